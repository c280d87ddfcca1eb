package customer

import (
	"github.com/pitstophq/pitstop/internal/customer/repository"
	"github.com/pitstophq/pitstop/internal/customer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
