package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pitstophq/pitstop/internal/parking/domain"
	"github.com/pitstophq/pitstop/internal/transaction"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func forUpdate(db *gorm.DB) *gorm.DB {
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, txn *domain.Transaction) error {
	return db.WithContext(ctx).Create(txn).Error
}

func (r *repo) ExistsBillNo(ctx context.Context, db *gorm.DB, billNo string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("bill_no = ?", billNo).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	return findByID(db.WithContext(ctx), id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	return findByID(forUpdate(db.WithContext(ctx)), id)
}

func findByID(stmt *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := stmt.Where("id = ?", id).Take(&txn).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repo) FindParkedByVehicle(ctx context.Context, db *gorm.DB, vehicleNumber string) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := db.WithContext(ctx).
		Where("vehicle_number = ? AND transaction_status = ?", vehicleNumber, transaction.StatusParked).
		Take(&txn).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, txn *domain.Transaction) error {
	return db.WithContext(ctx).Save(txn).Error
}

func (r *repo) ListActiveAndTodays(ctx context.Context, db *gorm.DB, dayStart, dayEnd time.Time) ([]*domain.Transaction, error) {
	var txns []*domain.Transaction
	err := db.WithContext(ctx).
		Where(
			db.Where("created_at BETWEEN ? AND ?", dayStart, dayEnd).
				Or("transaction_time BETWEEN ? AND ?", dayStart, dayEnd).
				Or("transaction_status = ?", transaction.StatusParked),
		).
		Order("created_at DESC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repo) FindVehicleType(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.VehicleType, error) {
	var vt domain.VehicleType
	err := db.WithContext(ctx).Where("id = ?", id).Take(&vt).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vt, nil
}

func (r *repo) ListVehicleTypes(ctx context.Context, db *gorm.DB) ([]*domain.VehicleType, error) {
	var vts []*domain.VehicleType
	err := db.WithContext(ctx).
		Where("operational = ?", true).
		Order("name ASC").
		Find(&vts).Error
	if err != nil {
		return nil, err
	}
	return vts, nil
}

// IncrementOccupancy guards the capacity bound in the WHERE clause, so a
// full lot can never be oversubscribed by concurrent arrivals.
func (r *repo) IncrementOccupancy(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.VehicleType{}).
		Where("id = ? AND occupancy < capacity AND operational = ?", id, true).
		Updates(map[string]any{
			"occupancy":  gorm.Expr("occupancy + 1"),
			"updated_at": now,
		})
	return result.RowsAffected == 1, result.Error
}

func (r *repo) DecrementOccupancy(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.VehicleType{}).
		Where("id = ? AND occupancy > 0", id).
		Updates(map[string]any{
			"occupancy":  gorm.Expr("occupancy - 1"),
			"updated_at": now,
		})
	return result.RowsAffected == 1, result.Error
}
