package parking

import (
	"github.com/pitstophq/pitstop/internal/parking/repository"
	"github.com/pitstophq/pitstop/internal/parking/service"
	"go.uber.org/fx"
)

var Module = fx.Module("parking.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
