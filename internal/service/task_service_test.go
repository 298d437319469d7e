package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timerd/scheduler/internal/biz/instance"
	"github.com/timerd/scheduler/internal/biz/task"
	"github.com/timerd/scheduler/internal/biz/tasklog"
	"github.com/timerd/scheduler/internal/schedule"
	"github.com/timerd/scheduler/internal/scheduler"
	"github.com/timerd/scheduler/pkg/config"
	"go.uber.org/zap"
)

type memTaskRepo struct {
	mu          sync.Mutex
	tasks       map[string]*task.Task
	assignments map[string]*task.TaskAssignment
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{
		tasks:       make(map[string]*task.Task),
		assignments: make(map[string]*task.TaskAssignment),
	}
}

func (r *memTaskRepo) Create(_ context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tasks[t.TaskID] = &cp
	return nil
}

func (r *memTaskRepo) GetByID(_ context.Context, taskID string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *memTaskRepo) Delete(_ context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, taskID)
	return nil
}

func (r *memTaskRepo) FindDue(_ context.Context, _ []string, _ time.Time, _ int) ([]*task.Task, error) {
	return nil, nil
}

func (r *memTaskRepo) FindByUser(_ context.Context, userID int, filter *task.TaskFilter, offset, limit int) ([]*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*task.Task
	for _, t := range r.tasks {
		if t.UserID != userID {
			continue
		}
		if filter != nil {
			if st, ok := filter.Status.Get(); ok && t.Status != st {
				continue
			}
		}
		cp := *t
		out = append(out, &cp)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memTaskRepo) CountRunning(_ context.Context, userID int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.tasks {
		if t.UserID == userID && t.Status == task.TaskStatusRunning {
			n++
		}
	}
	return n, nil
}

func (r *memTaskRepo) FindUnassigned(_ context.Context, _ int) ([]*task.Task, error) {
	return nil, nil
}

func (r *memTaskRepo) ClaimDue(_ context.Context, _ string, _ time.Time) (int64, error) {
	return 0, nil
}

func (r *memTaskRepo) UpdateStatusFrom(_ context.Context, taskID string, from []task.TaskStatus, to task.TaskStatus, nextRun *time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok || !lo.Contains(from, t.Status) {
		return 0, nil
	}
	t.Status = to
	t.NextRunTime = nextRun
	return 1, nil
}

func (r *memTaskRepo) CreateAssignment(_ context.Context, a *task.TaskAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.assignments[a.TaskID] = &cp
	return nil
}

func (r *memTaskRepo) GetAssignmentByTaskID(_ context.Context, taskID string) (*task.TaskAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[taskID]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *memTaskRepo) ListAssignmentsByInstance(_ context.Context, _ uint64) ([]*task.TaskAssignment, error) {
	return nil, nil
}

func (r *memTaskRepo) DeleteAssignmentByTaskID(_ context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.assignments, taskID)
	return nil
}

type memLogRepo struct {
	mu   sync.Mutex
	logs []*tasklog.TaskLog
}

func (r *memLogRepo) Create(_ context.Context, log *tasklog.TaskLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *log
	r.logs = append(r.logs, &cp)
	return nil
}

func (r *memLogRepo) FindLatestByTask(_ context.Context, taskID string) (*tasklog.TaskLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].TaskID == taskID {
			cp := *r.logs[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memLogRepo) FindByTask(_ context.Context, taskID string, offset, limit int) ([]*tasklog.TaskLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*tasklog.TaskLog
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].TaskID == taskID {
			cp := *r.logs[i]
			out = append(out, &cp)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memLogRepo) CountByTask(_ context.Context, taskID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, l := range r.logs {
		if l.TaskID == taskID {
			n++
		}
	}
	return n, nil
}

type memInstanceRepo struct {
	mu   sync.Mutex
	inst *instance.Instance
}

func (r *memInstanceRepo) Upsert(_ context.Context, inst *instance.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst.ID = 1
	cp := *inst
	cp.Status = instance.InstanceStatusActive
	r.inst = &cp
	return nil
}

func (r *memInstanceRepo) GetByName(_ context.Context, name string) (*instance.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inst == nil || r.inst.Name != name {
		return nil, nil
	}
	cp := *r.inst
	return &cp, nil
}

func (r *memInstanceRepo) ListActive(_ context.Context) ([]*instance.Instance, error) {
	return nil, nil
}

func (r *memInstanceRepo) FindExpired(_ context.Context, _ time.Duration, _ time.Time) ([]*instance.Instance, error) {
	return nil, nil
}

func (r *memInstanceRepo) UpdateHeartbeat(_ context.Context, _ uint64, _ time.Time) (int64, error) {
	return 1, nil
}

func (r *memInstanceRepo) UpdateStatusFrom(_ context.Context, _ uint64, _, _ instance.InstanceStatus) (int64, error) {
	return 1, nil
}

func newTestService(t *testing.T) (ITaskService, *memTaskRepo, *memLogRepo) {
	t.Helper()
	calc, err := schedule.NewCalculator("Asia/Shanghai")
	require.NoError(t, err)

	cfg := config.Config{
		Instance: config.InstanceConfig{Name: "timer-test", Address: "127.0.0.1:8080"},
	}
	instanceRepo := &memInstanceRepo{}
	registry := scheduler.NewRegistry(cfg, instanceRepo, zap.NewNop())
	_, err = registry.Register(context.Background())
	require.NoError(t, err)

	taskRepo := newMemTaskRepo()
	logRepo := &memLogRepo{}
	svc := NewTaskService(calc, registry, taskRepo, logRepo, zap.NewNop())
	return svc, taskRepo, logRepo
}

func TestCreateIntervalTask(t *testing.T) {
	svc, taskRepo, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, &CreateTaskInput{
		UserID:          7,
		Type:            task.TaskTypeInterval,
		HTTPEndpoint:    "http://example.com/hook",
		Method:          "POST",
		IntervalSeconds: 30,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.TaskID)
	assert.Equal(t, task.TaskStatusPending, created.Status)
	require.NotNil(t, created.NextRunTime)

	stored, err := taskRepo.GetByID(ctx, created.TaskID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	// The task is immediately bound to the local active instance.
	a, err := taskRepo.GetAssignmentByTaskID(ctx, created.TaskID)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.EqualValues(t, 1, a.InstanceID)
}

func TestCreateCronTaskFirstRunStrictlyAfterNow(t *testing.T) {
	svc, _, _ := newTestService(t)

	created, err := svc.Create(context.Background(), &CreateTaskInput{
		Type:           task.TaskTypeCron,
		HTTPEndpoint:   "http://example.com/hook",
		CronExpression: "0 0 * * *",
	})
	require.NoError(t, err)
	require.NotNil(t, created.NextRunTime)
	assert.True(t, created.NextRunTime.After(time.Now()))
}

func TestCreateValidation(t *testing.T) {
	svc, taskRepo, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input *CreateTaskInput
		want  error
	}{
		{
			name:  "missing endpoint",
			input: &CreateTaskInput{Type: task.TaskTypeOnce},
			want:  ErrInvalidTask,
		},
		{
			name: "interval without seconds",
			input: &CreateTaskInput{
				Type:         task.TaskTypeInterval,
				HTTPEndpoint: "http://example.com",
			},
			want: schedule.ErrInvalidSchedule,
		},
		{
			name: "cron with bad expression",
			input: &CreateTaskInput{
				Type:           task.TaskTypeCron,
				HTTPEndpoint:   "http://example.com",
				CronExpression: "not a cron",
			},
			want: schedule.ErrInvalidSchedule,
		},
		{
			name: "once with interval",
			input: &CreateTaskInput{
				Type:            task.TaskTypeOnce,
				HTTPEndpoint:    "http://example.com",
				IntervalSeconds: 5,
			},
			want: schedule.ErrInvalidSchedule,
		},
		{
			name: "unknown type",
			input: &CreateTaskInput{
				Type:         task.TaskType("weekly"),
				HTTPEndpoint: "http://example.com",
			},
			want: schedule.ErrInvalidSchedule,
		},
		{
			name: "non-positive stop condition",
			input: &CreateTaskInput{
				Type:          task.TaskTypeOnce,
				HTTPEndpoint:  "http://example.com",
				StopCondition: &task.StopCondition{MaxCount: 0},
			},
			want: ErrInvalidTask,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.input)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	// Nothing was persisted for any rejected input.
	assert.Empty(t, taskRepo.tasks)
}

func TestCancel(t *testing.T) {
	svc, taskRepo, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, &CreateTaskInput{
		Type:            task.TaskTypeInterval,
		HTTPEndpoint:    "http://example.com",
		IntervalSeconds: 10,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, created.TaskID))

	stored, err := taskRepo.GetByID(ctx, created.TaskID)
	require.NoError(t, err)
	assert.Equal(t, task.TaskStatusStopped, stored.Status)
	assert.Nil(t, stored.NextRunTime)

	// Already stopped: terminal statuses are not cancellable.
	err = svc.Cancel(ctx, created.TaskID)
	assert.ErrorIs(t, err, ErrNotCancellable)
}

func TestCancelMissingTask(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.Cancel(context.Background(), "no-such-task")
	assert.ErrorIs(t, err, task.ErrTaskNotFound)
}

func TestDeleteRemovesTaskAndAssignment(t *testing.T) {
	svc, taskRepo, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, &CreateTaskInput{
		Type:         task.TaskTypeOnce,
		HTTPEndpoint: "http://example.com",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.TaskID))

	stored, err := taskRepo.GetByID(ctx, created.TaskID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	a, err := taskRepo.GetAssignmentByTaskID(ctx, created.TaskID)
	require.NoError(t, err)
	assert.Nil(t, a)

	assert.ErrorIs(t, svc.Delete(ctx, created.TaskID), task.ErrTaskNotFound)
}

func TestGetWithLatestLog(t *testing.T) {
	svc, _, logRepo := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, &CreateTaskInput{
		Type:         task.TaskTypeOnce,
		HTTPEndpoint: "http://example.com",
	})
	require.NoError(t, err)

	detail, err := svc.Get(ctx, created.TaskID)
	require.NoError(t, err)
	assert.Nil(t, detail.LatestLog)

	require.NoError(t, logRepo.Create(ctx, &tasklog.TaskLog{
		LogID:      "l1",
		TaskID:     created.TaskID,
		HTTPStatus: 200,
	}))
	require.NoError(t, logRepo.Create(ctx, &tasklog.TaskLog{
		LogID:      "l2",
		TaskID:     created.TaskID,
		HTTPStatus: 502,
	}))

	detail, err = svc.Get(ctx, created.TaskID)
	require.NoError(t, err)
	require.NotNil(t, detail.LatestLog)
	assert.Equal(t, "l2", detail.LatestLog.LogID)
	assert.Equal(t, 502, detail.LatestLog.HTTPStatus)

	_, err = svc.Get(ctx, "no-such-task")
	assert.ErrorIs(t, err, task.ErrTaskNotFound)
}

func TestListFiltersByStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, &CreateTaskInput{
			UserID:       9,
			Type:         task.TaskTypeOnce,
			HTTPEndpoint: "http://example.com",
		})
		require.NoError(t, err)
	}
	created, err := svc.Create(ctx, &CreateTaskInput{
		UserID:          9,
		Type:            task.TaskTypeInterval,
		HTTPEndpoint:    "http://example.com",
		IntervalSeconds: 5,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, created.TaskID))

	all, err := svc.List(ctx, 9, "", 1, 20)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	stopped, err := svc.List(ctx, 9, "stopped", 1, 20)
	require.NoError(t, err)
	require.Len(t, stopped, 1)
	assert.Equal(t, created.TaskID, stopped[0].TaskID)

	_, err = svc.List(ctx, 9, "bogus", 1, 20)
	assert.ErrorIs(t, err, ErrInvalidTask)
}

func TestRunningCount(t *testing.T) {
	svc, taskRepo, _ := newTestService(t)
	ctx := context.Background()

	next := time.Now()
	require.NoError(t, taskRepo.Create(ctx, &task.Task{
		TaskID: "r1", UserID: 3, Status: task.TaskStatusRunning, NextRunTime: &next,
	}))
	require.NoError(t, taskRepo.Create(ctx, &task.Task{
		TaskID: "p1", UserID: 3, Status: task.TaskStatusPending,
	}))
	require.NoError(t, taskRepo.Create(ctx, &task.Task{
		TaskID: "r2", UserID: 4, Status: task.TaskStatusRunning,
	}))

	count, err := svc.RunningCount(ctx, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
