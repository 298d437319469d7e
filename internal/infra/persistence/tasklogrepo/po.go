package tasklogrepo

import (
	"time"
)

type TaskLogPo struct {
	LogID        string    `gorm:"column:log_id;primaryKey;size:36"`
	TaskID       string    `gorm:"column:task_id;size:36;not null;index"`
	UserID       int       `gorm:"column:user_id;not null;index"`
	HTTPStatus   int       `gorm:"column:http_status;not null"`
	ResponseBody string    `gorm:"column:response_body;type:text"`
	ElapsedMs    int       `gorm:"column:elapsed_ms;not null"`
	CreatedAt    time.Time `gorm:"index;autoCreateTime"`
}

func (TaskLogPo) TableName() string {
	return "timer_task_logs"
}
