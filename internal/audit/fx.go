package audit

import (
	"github.com/pitstophq/pitstop/internal/audit/repository"
	"github.com/pitstophq/pitstop/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
