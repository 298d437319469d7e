package scheduler

import (
	"context"
	"time"

	inst "github.com/timerd/scheduler/internal/biz/instance"
	"github.com/timerd/scheduler/internal/biz/task"
	"github.com/timerd/scheduler/pkg/config"
	"go.uber.org/zap"
)

const assignLockKey = "timer:assign"

// Assigner shards tasks onto live instances: it claims unassigned tasks
// for the local instance and steals assignments from instances whose
// heartbeat expired. Each pass is serialized across the cluster with an
// advisory lock; duplicate claims under race are resolved downstream by
// the status CAS in the runner, not here.
type Assigner struct {
	cfg          config.SchedulerConfig
	locker       Locker
	registry     *Registry
	taskRepo     task.Repo
	instanceRepo inst.Repo
	logger       *zap.Logger
}

func NewAssigner(
	cfg config.Config,
	locker Locker,
	registry *Registry,
	taskRepo task.Repo,
	instanceRepo inst.Repo,
	logger *zap.Logger,
) *Assigner {
	return &Assigner{
		cfg:          cfg.Scheduler,
		locker:       locker,
		registry:     registry,
		taskRepo:     taskRepo,
		instanceRepo: instanceRepo,
		logger:       logger,
	}
}

// RunOnce performs one rebalancing pass. Skips silently when the local
// instance is not active or another instance holds the rebalance lock.
func (a *Assigner) RunOnce(ctx context.Context) error {
	self, err := a.registry.Current(ctx)
	if err != nil {
		return err
	}
	if !self.Active() {
		a.logger.Debug("skipping assignment pass, instance not active")
		return nil
	}

	locked, err := a.locker.TryLock(ctx, assignLockKey, a.cfg.AssignLockTTL)
	if err != nil {
		return err
	}
	if !locked {
		return nil
	}
	defer func() {
		if err := a.locker.Unlock(ctx, assignLockKey); err != nil {
			a.logger.Warn("failed to release assignment lock", zap.Error(err))
		}
	}()

	if err := a.assignUnclaimed(ctx, self); err != nil {
		a.logger.Error("failed to assign unclaimed tasks", zap.Error(err))
	}
	if err := a.reassignOrphans(ctx, self); err != nil {
		a.logger.Error("failed to reassign orphaned tasks", zap.Error(err))
	}
	return nil
}

func (a *Assigner) assignUnclaimed(ctx context.Context, self *inst.Instance) error {
	tasks, err := a.taskRepo.FindUnassigned(ctx, a.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		assignment := &task.TaskAssignment{TaskID: t.TaskID, InstanceID: self.ID}
		if err := a.taskRepo.CreateAssignment(ctx, assignment); err != nil {
			// Unique index on task_id rejects a racing duplicate claim.
			a.logger.Debug("assignment lost to concurrent claimant",
				zap.String("task_id", t.TaskID),
				zap.Error(err))
			continue
		}
		a.logger.Info("task assigned",
			zap.String("task_id", t.TaskID),
			zap.String("instance", self.Name))
	}
	return nil
}

func (a *Assigner) reassignOrphans(ctx context.Context, self *inst.Instance) error {
	expired, err := a.instanceRepo.FindExpired(ctx, a.cfg.InactiveThreshold, time.Now())
	if err != nil {
		return err
	}
	for _, dead := range expired {
		rows, err := a.instanceRepo.UpdateStatusFrom(ctx, dead.ID,
			inst.InstanceStatusActive, inst.InstanceStatusInactive)
		if err != nil {
			a.logger.Error("failed to mark instance inactive",
				zap.String("instance", dead.Name),
				zap.Error(err))
			continue
		}
		if rows == 0 {
			// Another rebalancer got here first.
			continue
		}
		a.logger.Warn("instance marked inactive",
			zap.String("instance", dead.Name),
			zap.Time("last_heartbeat", dead.LastHeartbeat))

		assignments, err := a.taskRepo.ListAssignmentsByInstance(ctx, dead.ID)
		if err != nil {
			a.logger.Error("failed to list assignments of inactive instance",
				zap.String("instance", dead.Name),
				zap.Error(err))
			continue
		}
		for _, assignment := range assignments {
			if err := a.taskRepo.DeleteAssignmentByTaskID(ctx, assignment.TaskID); err != nil {
				a.logger.Error("failed to delete orphaned assignment",
					zap.String("task_id", assignment.TaskID),
					zap.Error(err))
				continue
			}
			replacement := &task.TaskAssignment{TaskID: assignment.TaskID, InstanceID: self.ID}
			if err := a.taskRepo.CreateAssignment(ctx, replacement); err != nil {
				a.logger.Debug("reassignment lost to concurrent claimant",
					zap.String("task_id", assignment.TaskID),
					zap.Error(err))
				continue
			}
			a.logger.Info("task reassigned from inactive instance",
				zap.String("task_id", assignment.TaskID),
				zap.String("from", dead.Name),
				zap.String("to", self.Name))
		}
	}
	return nil
}
