package simracing

import (
	"github.com/pitstophq/pitstop/internal/simracing/repository"
	"github.com/pitstophq/pitstop/internal/simracing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("simracing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
