package catalog

import (
	"github.com/pitstophq/pitstop/internal/catalog/repository"
	"github.com/pitstophq/pitstop/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
