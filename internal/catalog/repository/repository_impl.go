package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/pitstophq/pitstop/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindServiceType(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.ServiceType, error) {
	var serviceType domain.ServiceType
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Take(&serviceType).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &serviceType, nil
}

func (r *repo) ListOperationalServiceTypes(ctx context.Context, db *gorm.DB) ([]*domain.ServiceType, error) {
	var serviceTypes []*domain.ServiceType
	err := db.WithContext(ctx).
		Where("operational = ?", true).
		Order("name asc").
		Find(&serviceTypes).Error
	if err != nil {
		return nil, err
	}
	return serviceTypes, nil
}

func (r *repo) FindPaymentMode(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentMode, error) {
	var mode domain.PaymentMode
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Take(&mode).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mode, nil
}

func (r *repo) ListOperationalPaymentModes(ctx context.Context, db *gorm.DB) ([]*domain.PaymentMode, error) {
	var modes []*domain.PaymentMode
	err := db.WithContext(ctx).
		Where("operational = ?", true).
		Order("name asc").
		Find(&modes).Error
	if err != nil {
		return nil, err
	}
	return modes, nil
}

func (r *repo) ListOperationalVehicleTypes(ctx context.Context, db *gorm.DB) ([]*domain.CarWashVehicleType, error) {
	var vehicleTypes []*domain.CarWashVehicleType
	err := db.WithContext(ctx).
		Where("operational = ?", true).
		Order("name asc").
		Find(&vehicleTypes).Error
	if err != nil {
		return nil, err
	}
	return vehicleTypes, nil
}
