package tasklog

import "context"

type Repo interface {
	Create(ctx context.Context, log *TaskLog) error
	FindLatestByTask(ctx context.Context, taskID string) (*TaskLog, error)
	FindByTask(ctx context.Context, taskID string, offset, limit int) ([]*TaskLog, error)
	CountByTask(ctx context.Context, taskID string) (int64, error)
}
