package task

import (
	"errors"
	"time"
)

var ErrTaskNotFound = errors.New("task not found")

type Task struct {
	TaskID          string
	UserID          int
	Type            TaskType
	HTTPEndpoint    string
	Method          string
	Headers         map[string]string
	RequestBody     string
	IntervalSeconds int
	CronExpression  string
	StartTime       *time.Time
	Status          TaskStatus
	NextRunTime     *time.Time
	StopCondition   *StopCondition
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StopCondition terminates a recurring task once a rule fires.
// MaxCount stops the task after that many logged executions.
type StopCondition struct {
	MaxCount int `json:"maxCount"`
}

// Schedulable reports whether the task may still be picked up by a scan
// cycle. NextRunTime is non-nil exactly when this holds.
func (t *Task) Schedulable() bool {
	return !t.Status.IsTerminal() && t.NextRunTime != nil
}

// TaskAssignment is the exclusive ownership edge from one task to the
// instance responsible for executing it. At most one live assignment
// exists per task id.
type TaskAssignment struct {
	ID         uint64
	TaskID     string
	InstanceID uint64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
