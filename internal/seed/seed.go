// Package seed bootstraps a fresh venue with a usable catalog: payment
// modes, car wash services, rigs, and parking lots. Every helper is
// idempotent, so running the seed against an existing store is a no-op.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/pitstophq/pitstop/internal/catalog/domain"
	parkingdomain "github.com/pitstophq/pitstop/internal/parking/domain"
	simracingdomain "github.com/pitstophq/pitstop/internal/simracing/domain"
	"gorm.io/gorm"
)

// EnsureDefaults seeds the baseline catalog rows for a fresh deployment.
func EnsureDefaults(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensurePaymentModes(ctx, tx, node); err != nil {
			return err
		}
		if err := ensureCarWashCatalog(ctx, tx, node); err != nil {
			return err
		}
		if err := ensureRigs(ctx, tx, node); err != nil {
			return err
		}
		return ensureParkingLots(ctx, tx, node)
	})
}

func ensurePaymentModes(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&catalogdomain.PaymentMode{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	modes := []catalogdomain.PaymentMode{
		{ID: node.Generate(), Name: "Cash", Operational: true, CreatedAt: now, UpdatedAt: now},
		{ID: node.Generate(), Name: "QR", Operational: true, CreatedAt: now, UpdatedAt: now},
		{ID: node.Generate(), Name: "Card", Operational: true, CreatedAt: now, UpdatedAt: now},
	}
	return tx.WithContext(ctx).Create(&modes).Error
}

func ensureCarWashCatalog(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&catalogdomain.CarWashVehicleType{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	hatchback := catalogdomain.CarWashVehicleType{
		ID: node.Generate(), Name: "Hatchback", Operational: true, CreatedAt: now, UpdatedAt: now,
	}
	suv := catalogdomain.CarWashVehicleType{
		ID: node.Generate(), Name: "SUV", Operational: true, CreatedAt: now, UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&[]catalogdomain.CarWashVehicleType{hatchback, suv}).Error; err != nil {
		return err
	}

	services := []catalogdomain.ServiceType{
		{
			ID: node.Generate(), Name: "Full Wash", BillAbbreviation: "FW", Rate: 700,
			Operational: true, StreakApplicable: true, StreakWashCount: 5,
			VehicleTypeID: hatchback.ID, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: node.Generate(), Name: "Exterior Wash", BillAbbreviation: "EW", Rate: 400,
			Operational: true, VehicleTypeID: hatchback.ID, CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: node.Generate(), Name: "Full Wash SUV", BillAbbreviation: "FWS", Rate: 1000,
			Operational: true, StreakApplicable: true, StreakWashCount: 5,
			VehicleTypeID: suv.ID, CreatedAt: now, UpdatedAt: now,
		},
	}
	return tx.WithContext(ctx).Create(&services).Error
}

func ensureRigs(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&simracingdomain.Rig{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	rigs := []simracingdomain.Rig{
		{ID: node.Generate(), Name: "Rig 1", Status: simracingdomain.RigStatusPitStop, Operational: true, CreatedAt: now, UpdatedAt: now},
		{ID: node.Generate(), Name: "Rig 2", Status: simracingdomain.RigStatusPitStop, Operational: true, CreatedAt: now, UpdatedAt: now},
	}
	return tx.WithContext(ctx).Create(&rigs).Error
}

func ensureParkingLots(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&parkingdomain.VehicleType{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	lots := []parkingdomain.VehicleType{
		{ID: node.Generate(), Name: "Two Wheeler", Capacity: 40, Rate: 50, Operational: true, CreatedAt: now, UpdatedAt: now},
		{ID: node.Generate(), Name: "Four Wheeler", Capacity: 15, Rate: 150, Operational: true, CreatedAt: now, UpdatedAt: now},
	}
	return tx.WithContext(ctx).Create(&lots).Error
}
