package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/timerd/scheduler/pkg/config"
	"go.uber.org/zap"
)

// Scheduler runs the three periodic loops of one instance: heartbeat,
// assignment rebalancing and scan-and-dispatch. Each loop is an
// independent ticker cancelled through a shared stop channel; a failed
// iteration is logged and retried next tick, never crashing the process.
type Scheduler struct {
	cfg      config.SchedulerConfig
	registry *Registry
	assigner *Assigner
	scanner  *Scanner
	runner   *Runner
	logger   *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(
	cfg config.Config,
	registry *Registry,
	assigner *Assigner,
	scanner *Scanner,
	runner *Runner,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:      cfg.Scheduler,
		registry: registry,
		assigner: assigner,
		scanner:  scanner,
		runner:   runner,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.registry.Register(ctx); err != nil {
		return err
	}

	s.runner.Start()

	s.startLoop("heartbeat", s.cfg.HeartbeatInterval, s.registry.Heartbeat)
	s.startLoop("assign", s.cfg.AssignInterval, s.assigner.RunOnce)
	s.startLoop("scan", s.cfg.ScanInterval, s.scanner.RunOnce)

	s.logger.Info("scheduler started",
		zap.Duration("scan_interval", s.cfg.ScanInterval),
		zap.Duration("assign_interval", s.cfg.AssignInterval),
		zap.Duration("heartbeat_interval", s.cfg.HeartbeatInterval))
	return nil
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.runner.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.registry.Deactivate(ctx); err != nil {
		s.logger.Error("failed to deactivate instance", zap.Error(err))
	}

	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) startLoop(name string, interval time.Duration, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := fn(context.Background()); err != nil {
					s.logger.Error("loop iteration failed",
						zap.String("loop", name),
						zap.Error(err))
				}
			case <-s.stopCh:
				return
			}
		}
	}()
}
