package taskrepo

import "github.com/timerd/scheduler/internal/infra/persistence/commonrepo"

type TaskAssignmentPo struct {
	commonrepo.Mode
	TaskID     string `gorm:"column:task_id;size:36;not null;uniqueIndex"`
	InstanceID uint64 `gorm:"column:instance_id;not null;index"`
}

func (TaskAssignmentPo) TableName() string {
	return "timer_task_assignments"
}
