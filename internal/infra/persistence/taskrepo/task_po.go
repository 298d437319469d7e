package taskrepo

import (
	"time"

	domain "github.com/timerd/scheduler/internal/biz/task"
	"gorm.io/datatypes"
)

type TaskPo struct {
	TaskID          string            `gorm:"column:task_id;primaryKey;size:36"`
	UserID          int               `gorm:"column:user_id;not null;index"`
	Type            domain.TaskType   `gorm:"column:type;size:20;not null"`
	HTTPEndpoint    string            `gorm:"column:http_endpoint;size:1024;not null"`
	Method          string            `gorm:"column:method;size:10;not null"`
	Headers         datatypes.JSON    `gorm:"column:headers;type:json"`
	RequestBody     string            `gorm:"column:request_body;type:text"`
	IntervalSeconds int               `gorm:"column:interval_seconds"`
	CronExpression  string            `gorm:"column:cron_expression;size:100"`
	StartTime       *time.Time        `gorm:"column:start_time"`
	Status          domain.TaskStatus `gorm:"column:status;size:20;not null;index"`
	NextRunTime     *time.Time        `gorm:"column:next_run_time;index"`
	StopCondition   datatypes.JSON    `gorm:"column:stop_condition;type:json"`
	CreatedAt       time.Time         `gorm:"index;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"index;autoUpdateTime"`
}

func (TaskPo) TableName() string {
	return "timer_tasks"
}
