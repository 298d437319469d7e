//go:build wireinject
// +build wireinject

package main

//go:generate go run -mod=mod github.com/google/wire/cmd/wire

import (
	"github.com/google/wire"
	"github.com/timerd/scheduler/internal/api"
	"github.com/timerd/scheduler/internal/infra/persistence/commonrepo"
	"github.com/timerd/scheduler/internal/infra/persistence/instancerepo"
	"github.com/timerd/scheduler/internal/infra/persistence/tasklogrepo"
	"github.com/timerd/scheduler/internal/infra/persistence/taskrepo"
	"github.com/timerd/scheduler/internal/scheduler"
	"github.com/timerd/scheduler/internal/service"
	"github.com/timerd/scheduler/pkg/config"
	"go.uber.org/zap"
)

func InitializeServer(logger *zap.Logger, cfg config.Config, db commonrepo.DB) (*api.Server, error) {
	wire.Build(
		ProvideLocker,
		ProvideCalculator,
		ProvideRateLimiterConfig,

		scheduler.Provider,
		service.Provider,
		api.Provider,

		taskrepo.Provider,
		instancerepo.Provider,
		tasklogrepo.Provider,
	)
	return nil, nil
}
