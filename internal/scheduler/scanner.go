package scheduler

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/timerd/scheduler/internal/biz/task"
	"github.com/timerd/scheduler/pkg/config"
	"go.uber.org/zap"
)

// Scanner polls tasks assigned to the local instance that are due and
// hands them to the runner. Dispatch is fire-and-forget: the scan cycle
// never waits on execution latency.
type Scanner struct {
	cfg      config.SchedulerConfig
	registry *Registry
	taskRepo task.Repo
	runner   *Runner
	logger   *zap.Logger
}

func NewScanner(
	cfg config.Config,
	registry *Registry,
	taskRepo task.Repo,
	runner *Runner,
	logger *zap.Logger,
) *Scanner {
	return &Scanner{
		cfg:      cfg.Scheduler,
		registry: registry,
		taskRepo: taskRepo,
		runner:   runner,
		logger:   logger,
	}
}

func (s *Scanner) RunOnce(ctx context.Context) error {
	self, err := s.registry.Current(ctx)
	if err != nil {
		return err
	}
	if !self.Active() {
		s.logger.Debug("skipping scan, instance not active")
		return nil
	}

	assignments, err := s.taskRepo.ListAssignmentsByInstance(ctx, self.ID)
	if err != nil {
		return err
	}
	if len(assignments) == 0 {
		return nil
	}

	taskIDs := lo.Map(assignments, func(a *task.TaskAssignment, _ int) string {
		return a.TaskID
	})

	due, err := s.taskRepo.FindDue(ctx, taskIDs, time.Now(), s.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	s.logger.Info("due tasks found", zap.Int("count", len(due)))
	for _, t := range due {
		s.runner.Submit(t)
	}
	return nil
}
