package task

import (
	"context"
	"time"

	"github.com/samber/mo"
)

type Repo interface {
	Create(ctx context.Context, task *Task) error
	GetByID(ctx context.Context, taskID string) (*Task, error)
	Delete(ctx context.Context, taskID string) error

	// FindDue returns tasks among the given ids whose next_run_time has
	// passed and whose status is still schedulable.
	FindDue(ctx context.Context, taskIDs []string, now time.Time, limit int) ([]*Task, error)

	FindByUser(ctx context.Context, userID int, filter *TaskFilter, offset, limit int) ([]*Task, error)
	CountRunning(ctx context.Context, userID int) (int64, error)

	// FindUnassigned returns schedulable tasks with no live assignment.
	FindUnassigned(ctx context.Context, limit int) ([]*Task, error)

	// ClaimDue transitions the task to running and clears next_run_time,
	// but only while the task is still schedulable and due. The returned
	// row count is the CAS result: 0 means another claimant won.
	ClaimDue(ctx context.Context, taskID string, now time.Time) (int64, error)

	// UpdateStatusFrom writes status and next_run_time only when the
	// current status is one of from. Returns affected rows for CAS use.
	UpdateStatusFrom(ctx context.Context, taskID string, from []TaskStatus, to TaskStatus, nextRun *time.Time) (int64, error)

	CreateAssignment(ctx context.Context, assignment *TaskAssignment) error
	GetAssignmentByTaskID(ctx context.Context, taskID string) (*TaskAssignment, error)
	ListAssignmentsByInstance(ctx context.Context, instanceID uint64) ([]*TaskAssignment, error)
	DeleteAssignmentByTaskID(ctx context.Context, taskID string) error
}

type TaskFilter struct {
	Status mo.Option[TaskStatus]
}
