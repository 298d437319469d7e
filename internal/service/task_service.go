package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/google/wire"
	"github.com/samber/mo"
	"github.com/timerd/scheduler/internal/biz/task"
	"github.com/timerd/scheduler/internal/biz/tasklog"
	"github.com/timerd/scheduler/internal/schedule"
	"github.com/timerd/scheduler/internal/scheduler"
	"go.uber.org/zap"
)

var Provider = wire.NewSet(NewTaskService)

// ErrInvalidTask covers creation requests that fail validation outside
// the schedule itself (missing endpoint, unknown status filter, ...).
var ErrInvalidTask = errors.New("invalid task specification")

// ErrNotCancellable is returned when a cancel hits a task that is
// already in a terminal status.
var ErrNotCancellable = errors.New("task is not cancellable")

type CreateTaskInput struct {
	UserID          int
	Type            task.TaskType
	HTTPEndpoint    string
	Method          string
	Headers         map[string]string
	RequestBody     string
	IntervalSeconds int
	CronExpression  string
	StartTime       *time.Time
	StopCondition   *task.StopCondition
}

// TaskDetail pairs a task with its most recent execution record.
type TaskDetail struct {
	Task      *task.Task
	LatestLog *tasklog.TaskLog
}

type ITaskService interface {
	Create(ctx context.Context, input *CreateTaskInput) (*task.Task, error)
	Get(ctx context.Context, taskID string) (*TaskDetail, error)
	Cancel(ctx context.Context, taskID string) error
	Delete(ctx context.Context, taskID string) error
	List(ctx context.Context, userID int, status string, page, size int) ([]*task.Task, error)
	RunningCount(ctx context.Context, userID int) (int64, error)
	Logs(ctx context.Context, taskID string, page, size int) ([]*tasklog.TaskLog, error)
}

type TaskService struct {
	calc     *schedule.Calculator
	registry *scheduler.Registry
	taskRepo task.Repo
	logRepo  tasklog.Repo
	logger   *zap.Logger
}

func NewTaskService(
	calc *schedule.Calculator,
	registry *scheduler.Registry,
	taskRepo task.Repo,
	logRepo tasklog.Repo,
	logger *zap.Logger,
) ITaskService {
	return &TaskService{
		calc:     calc,
		registry: registry,
		taskRepo: taskRepo,
		logRepo:  logRepo,
		logger:   logger,
	}
}

// Create validates the request, computes the first run time and
// persists the task as pending. Schedule problems surface immediately as
// ErrInvalidSchedule and nothing is persisted.
func (s *TaskService) Create(ctx context.Context, input *CreateTaskInput) (*task.Task, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}

	t := &task.Task{
		TaskID:          uuid.NewString(),
		UserID:          input.UserID,
		Type:            input.Type,
		HTTPEndpoint:    input.HTTPEndpoint,
		Method:          input.Method,
		Headers:         input.Headers,
		RequestBody:     input.RequestBody,
		IntervalSeconds: input.IntervalSeconds,
		CronExpression:  input.CronExpression,
		StartTime:       input.StartTime,
		Status:          task.TaskStatusPending,
		StopCondition:   input.StopCondition,
	}

	next, err := s.calc.Initial(t, time.Now())
	if err != nil {
		return nil, err
	}
	t.NextRunTime = &next

	if err := s.taskRepo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	// Assign to the local instance right away so the task does not wait
	// for the next rebalancing pass.
	self, err := s.registry.Current(ctx)
	if err == nil && self.Active() {
		assignment := &task.TaskAssignment{TaskID: t.TaskID, InstanceID: self.ID}
		if err := s.taskRepo.CreateAssignment(ctx, assignment); err != nil {
			s.logger.Debug("immediate assignment skipped",
				zap.String("task_id", t.TaskID),
				zap.Error(err))
		}
	}

	s.logger.Info("task created",
		zap.String("task_id", t.TaskID),
		zap.String("type", string(t.Type)),
		zap.Timep("next_run_time", t.NextRunTime))
	return t, nil
}

func (s *TaskService) validate(input *CreateTaskInput) error {
	if input.HTTPEndpoint == "" {
		return fmt.Errorf("%w: http endpoint is required", ErrInvalidTask)
	}
	switch input.Type {
	case task.TaskTypeOnce:
		if input.IntervalSeconds != 0 || input.CronExpression != "" {
			return fmt.Errorf("%w: once tasks take no schedule parameters", schedule.ErrInvalidSchedule)
		}
	case task.TaskTypeInterval:
		if input.CronExpression != "" {
			return fmt.Errorf("%w: interval tasks take no cron expression", schedule.ErrInvalidSchedule)
		}
	case task.TaskTypeCron:
		if input.IntervalSeconds != 0 {
			return fmt.Errorf("%w: cron tasks take no interval", schedule.ErrInvalidSchedule)
		}
	default:
		return fmt.Errorf("%w: unknown task type %q", schedule.ErrInvalidSchedule, input.Type)
	}
	if input.StopCondition != nil && input.StopCondition.MaxCount < 1 {
		return fmt.Errorf("%w: stop condition maxCount must be positive", ErrInvalidTask)
	}
	return s.calc.Validate(input.Type, input.IntervalSeconds, input.CronExpression)
}

func (s *TaskService) Get(ctx context.Context, taskID string) (*TaskDetail, error) {
	t, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, task.ErrTaskNotFound
	}
	latest, err := s.logRepo.FindLatestByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &TaskDetail{Task: t, LatestLog: latest}, nil
}

// Cancel transitions the task to stopped and clears next_run_time. An
// execution already in flight is not interrupted; its completion handler
// observes the stopped status through the CAS and leaves it alone.
func (s *TaskService) Cancel(ctx context.Context, taskID string) error {
	rows, err := s.taskRepo.UpdateStatusFrom(ctx, taskID,
		task.SchedulableStatuses, task.TaskStatusStopped, nil)
	if err != nil {
		return err
	}
	if rows == 0 {
		t, err := s.taskRepo.GetByID(ctx, taskID)
		if err != nil {
			return err
		}
		if t == nil {
			return task.ErrTaskNotFound
		}
		return fmt.Errorf("%w: status is %s", ErrNotCancellable, t.Status)
	}
	s.logger.Info("task cancelled", zap.String("task_id", taskID))
	return nil
}

func (s *TaskService) Delete(ctx context.Context, taskID string) error {
	t, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if t == nil {
		return task.ErrTaskNotFound
	}
	if err := s.taskRepo.DeleteAssignmentByTaskID(ctx, taskID); err != nil {
		return err
	}
	if err := s.taskRepo.Delete(ctx, taskID); err != nil {
		return err
	}
	s.logger.Info("task deleted", zap.String("task_id", taskID))
	return nil
}

func (s *TaskService) List(ctx context.Context, userID int, status string, page, size int) ([]*task.Task, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	filter := &task.TaskFilter{}
	if status != "" {
		st := task.TaskStatus(status)
		switch st {
		case task.TaskStatusPending, task.TaskStatusRunning, task.TaskStatusCompleted,
			task.TaskStatusFailed, task.TaskStatusStopped:
			filter.Status = mo.Some(st)
		default:
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTask, status)
		}
	}
	return s.taskRepo.FindByUser(ctx, userID, filter, (page-1)*size, size)
}

func (s *TaskService) RunningCount(ctx context.Context, userID int) (int64, error) {
	return s.taskRepo.CountRunning(ctx, userID)
}

func (s *TaskService) Logs(ctx context.Context, taskID string, page, size int) ([]*tasklog.TaskLog, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return s.logRepo.FindByTask(ctx, taskID, (page-1)*size, size)
}
