package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timerd/scheduler/internal/api"
	"github.com/timerd/scheduler/internal/infra/persistence/instancerepo"
	"github.com/timerd/scheduler/internal/infra/persistence/tasklogrepo"
	"github.com/timerd/scheduler/internal/infra/persistence/taskrepo"
	"github.com/timerd/scheduler/internal/orm"
	"github.com/timerd/scheduler/internal/schedule"
	"github.com/timerd/scheduler/internal/scheduler"
	"github.com/timerd/scheduler/internal/service"
	"github.com/timerd/scheduler/pkg/config"
	"github.com/timerd/scheduler/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting timer scheduler",
		zap.String("instance", cfg.Instance.Name))

	storageConfig := orm.Config{
		Host:                  cfg.Database.Host,
		Port:                  cfg.Database.Port,
		Database:              cfg.Database.Database,
		User:                  cfg.Database.User,
		Password:              cfg.Database.Password,
		MaxConnections:        cfg.Database.MaxConnections,
		MaxIdleConnections:    cfg.Database.MaxIdleConnections,
		ConnectionMaxLifetime: cfg.Database.ConnectionMaxLifetime,
	}

	db, err := orm.New(storageConfig)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	locker, err := ProvideLocker(*cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to redis", zap.Error(err))
	}

	calc, err := schedule.NewCalculator(cfg.Scheduler.Timezone)
	if err != nil {
		zapLogger.Fatal("Failed to load timezone", zap.Error(err))
	}

	taskRepo := taskrepo.NewMysqlRepositoryImpl(db.DB())
	instanceRepo := instancerepo.NewMysqlRepositoryImpl(db.DB())
	logRepo := tasklogrepo.NewMysqlRepositoryImpl(db.DB())

	registry := scheduler.NewRegistry(*cfg, instanceRepo, zapLogger)
	limiter := scheduler.NewRateLimiter(cfg.Executor.RateLimiter)
	runner := scheduler.NewRunner(*cfg, limiter, locker, calc, taskRepo, logRepo, zapLogger)
	assigner := scheduler.NewAssigner(*cfg, locker, registry, taskRepo, instanceRepo, zapLogger)
	scanner := scheduler.NewScanner(*cfg, registry, taskRepo, runner, zapLogger)
	sched := scheduler.New(*cfg, registry, assigner, scanner, runner, zapLogger)

	ctx := context.Background()
	if err := sched.Start(ctx); err != nil {
		zapLogger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	taskService := service.NewTaskService(calc, registry, taskRepo, logRepo, zapLogger)
	apiServer := api.NewServer(api.NewTaskAPI(taskService), zapLogger)

	httpServer := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        apiServer.Router(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		zapLogger.Info("Starting API server",
			zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	zapLogger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shutdown API server", zap.Error(err))
	}

	sched.Stop()

	zapLogger.Info("Shutdown complete")
}
