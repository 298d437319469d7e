package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timerd/scheduler/internal/biz/task"
	"github.com/timerd/scheduler/internal/schedule"
	"github.com/timerd/scheduler/pkg/config"
	"go.uber.org/zap"
)

func newTestRunner(t *testing.T, cfg config.Config) (*Runner, *fakeTaskRepo, *fakeLogRepo) {
	t.Helper()
	calc, err := schedule.NewCalculator(cfg.Scheduler.Timezone)
	require.NoError(t, err)
	taskRepo := newFakeTaskRepo()
	logRepo := newFakeLogRepo()
	runner := NewRunner(cfg, NewRateLimiter(cfg.Executor.RateLimiter),
		NewMemoryLocker(), calc, taskRepo, logRepo, zap.NewNop())
	return runner, taskRepo, logRepo
}

func TestScannerDispatchesDueTasks(t *testing.T) {
	runner, taskRepo, _ := newTestRunner(t, testConfig())
	instanceRepo := newFakeInstanceRepo()
	registry := NewRegistry(testConfig(), instanceRepo, zap.NewNop())
	scanner := NewScanner(testConfig(), registry, taskRepo, runner, zap.NewNop())
	ctx := context.Background()

	self, err := registry.Register(ctx)
	require.NoError(t, err)

	due := pendingTask("due")
	notDue := pendingTask("future")
	future := time.Now().Add(time.Hour)
	notDue.NextRunTime = &future

	require.NoError(t, taskRepo.Create(ctx, due))
	require.NoError(t, taskRepo.Create(ctx, notDue))
	for _, id := range []string{"due", "future"} {
		require.NoError(t, taskRepo.CreateAssignment(ctx, &task.TaskAssignment{
			TaskID:     id,
			InstanceID: self.ID,
		}))
	}

	require.NoError(t, scanner.RunOnce(ctx))

	require.Len(t, runner.taskCh, 1)
	dispatched := <-runner.taskCh
	assert.Equal(t, "due", dispatched.TaskID)
}

func TestScannerIgnoresOtherInstancesTasks(t *testing.T) {
	runner, taskRepo, _ := newTestRunner(t, testConfig())
	instanceRepo := newFakeInstanceRepo()
	registry := NewRegistry(testConfig(), instanceRepo, zap.NewNop())
	scanner := NewScanner(testConfig(), registry, taskRepo, runner, zap.NewNop())
	ctx := context.Background()

	self, err := registry.Register(ctx)
	require.NoError(t, err)

	require.NoError(t, taskRepo.Create(ctx, pendingTask("foreign")))
	require.NoError(t, taskRepo.CreateAssignment(ctx, &task.TaskAssignment{
		TaskID:     "foreign",
		InstanceID: self.ID + 100,
	}))

	require.NoError(t, scanner.RunOnce(ctx))
	assert.Empty(t, runner.taskCh)
}

func TestScannerSkipsWhenInactive(t *testing.T) {
	runner, taskRepo, _ := newTestRunner(t, testConfig())
	instanceRepo := newFakeInstanceRepo()
	registry := NewRegistry(testConfig(), instanceRepo, zap.NewNop())
	scanner := NewScanner(testConfig(), registry, taskRepo, runner, zap.NewNop())
	ctx := context.Background()

	self, err := registry.Register(ctx)
	require.NoError(t, err)
	require.NoError(t, taskRepo.Create(ctx, pendingTask("t1")))
	require.NoError(t, taskRepo.CreateAssignment(ctx, &task.TaskAssignment{
		TaskID:     "t1",
		InstanceID: self.ID,
	}))
	require.NoError(t, registry.Deactivate(ctx))

	require.NoError(t, scanner.RunOnce(ctx))
	assert.Empty(t, runner.taskCh)
}
