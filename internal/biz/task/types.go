package task

type TaskType string

const (
	TaskTypeOnce     TaskType = "once"
	TaskTypeInterval TaskType = "interval"
	TaskTypeCron     TaskType = "cron"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusStopped   TaskStatus = "stopped"
)

// SchedulableStatuses are the statuses in which a task may still be
// selected for execution.
var SchedulableStatuses = []TaskStatus{TaskStatusPending, TaskStatusRunning}

func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusStopped:
		return true
	}
	return false
}
