package carwash

import (
	"github.com/pitstophq/pitstop/internal/carwash/repository"
	"github.com/pitstophq/pitstop/internal/carwash/service"
	"go.uber.org/fx"
)

var Module = fx.Module("carwash.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
