package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/timerd/scheduler/internal/biz/instance"
	"github.com/timerd/scheduler/pkg/config"
	"go.uber.org/zap"
)

// Registry tracks this process's identity in the instance table. It
// holds no state beyond the configured name: every loop re-reads the
// source of truth, so a crashed or restarted process picks up where the
// table says it is.
type Registry struct {
	cfg    config.InstanceConfig
	repo   instance.Repo
	logger *zap.Logger
}

func NewRegistry(cfg config.Config, repo instance.Repo, logger *zap.Logger) *Registry {
	return &Registry{cfg: cfg.Instance, repo: repo, logger: logger}
}

// Register upserts this instance by name and revives it to active.
// Called once at process start.
func (r *Registry) Register(ctx context.Context) (*instance.Instance, error) {
	inst := &instance.Instance{
		Name:          r.cfg.Name,
		Address:       r.cfg.Address,
		Status:        instance.InstanceStatusActive,
		LastHeartbeat: time.Now(),
	}
	if err := r.repo.Upsert(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to register instance %q: %w", r.cfg.Name, err)
	}
	r.logger.Info("instance registered",
		zap.String("instance", inst.Name),
		zap.String("address", inst.Address),
		zap.Uint64("id", inst.ID))
	return inst, nil
}

// Current resolves the local instance row. Callers must no-op when the
// result is nil or not active: an unregistered or deactivated instance
// does no work.
func (r *Registry) Current(ctx context.Context) (*instance.Instance, error) {
	return r.repo.GetByName(ctx, r.cfg.Name)
}

// Heartbeat refreshes this instance's liveness timestamp. Only the
// owning process writes its own heartbeat.
func (r *Registry) Heartbeat(ctx context.Context) error {
	self, err := r.Current(ctx)
	if err != nil {
		return err
	}
	if self == nil {
		return fmt.Errorf("instance %q is not registered: %w", r.cfg.Name, instance.ErrInstanceNotFound)
	}
	rows, err := r.repo.UpdateHeartbeat(ctx, self.ID, time.Now())
	if err != nil {
		return err
	}
	if rows == 0 {
		r.logger.Warn("heartbeat update affected no rows",
			zap.String("instance", self.Name))
	}
	return nil
}

// Deactivate marks this instance inactive on graceful shutdown so peers
// reassign its tasks without waiting for the heartbeat to expire.
func (r *Registry) Deactivate(ctx context.Context) error {
	self, err := r.Current(ctx)
	if err != nil || self == nil {
		return err
	}
	_, err = r.repo.UpdateStatusFrom(ctx, self.ID, instance.InstanceStatusActive, instance.InstanceStatusInactive)
	return err
}
