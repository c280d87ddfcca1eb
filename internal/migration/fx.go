package migration

import (
	auditdomain "github.com/pitstophq/pitstop/internal/audit/domain"
	carwashdomain "github.com/pitstophq/pitstop/internal/carwash/domain"
	catalogdomain "github.com/pitstophq/pitstop/internal/catalog/domain"
	"github.com/pitstophq/pitstop/internal/config"
	customerdomain "github.com/pitstophq/pitstop/internal/customer/domain"
	parkingdomain "github.com/pitstophq/pitstop/internal/parking/domain"
	"github.com/pitstophq/pitstop/internal/seed"
	simracingdomain "github.com/pitstophq/pitstop/internal/simracing/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(cfg config.Config, conn *gorm.DB) error {
		if err := runSchema(conn); err != nil {
			return err
		}
		if cfg.SeedDefaults {
			return seed.EnsureDefaults(conn)
		}
		return nil
	}),
)

func runSchema(conn *gorm.DB) error {
	// The versioned SQL migrations target postgres. Other dialects are
	// development conveniences and get the gorm-derived schema, without
	// the partial unique indexes postgres enforces.
	if conn.Dialector.Name() != "postgres" {
		return conn.AutoMigrate(
			&customerdomain.Customer{},
			&catalogdomain.CarWashVehicleType{},
			&catalogdomain.ServiceType{},
			&catalogdomain.PaymentMode{},
			&carwashdomain.Transaction{},
			&simracingdomain.Rig{},
			&simracingdomain.Transaction{},
			&parkingdomain.VehicleType{},
			&parkingdomain.Transaction{},
			&auditdomain.Activity{},
		)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}
