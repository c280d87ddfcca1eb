package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pitstophq/pitstop/internal/simracing/domain"
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

func (r *repo) FindBookedByDeadline(ctx context.Context, db *gorm.DB, deadline time.Time) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := db.WithContext(ctx).
		Where("booking_deadline = ? AND transaction_status = ?", deadline, transaction.StatusBooked).
		Take(&txn).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repo) FindActiveByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := db.WithContext(ctx).
		Where("customer_id = ? AND transaction_status = ?", customerID, transaction.StatusActive).
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
				Or("transaction_status IN ?", []transaction.Status{transaction.StatusBooked, transaction.StatusActive}).
				Or("payment_status = ?", transaction.PaymentPending),
		).
		Order("created_at DESC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repo) PurgeExpiredBookings(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Where("transaction_status = ? AND delete_at IS NOT NULL AND delete_at <= ?", transaction.StatusBooked, now).
		Delete(&domain.Transaction{})
	return result.RowsAffected, result.Error
}

func (r *repo) FindRig(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Rig, error) {
	var rig domain.Rig
	err := db.WithContext(ctx).Where("id = ?", id).Take(&rig).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rig, nil
}

func (r *repo) ListRigs(ctx context.Context, db *gorm.DB) ([]*domain.Rig, error) {
	var rigs []*domain.Rig
	err := db.WithContext(ctx).
		Where("operational = ?", true).
		Order("name ASC").
		Find(&rigs).Error
	if err != nil {
		return nil, err
	}
	return rigs, nil
}

// AcquireRig is a conditional update: the WHERE on the current status makes
// two concurrent acquisitions of the same rig impossible, whichever engine
// runs it.
func (r *repo) AcquireRig(ctx context.Context, db *gorm.DB, id, racerID, transactionID snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.Rig{}).
		Where("id = ? AND status = ? AND operational = ?", id, domain.RigStatusPitStop, true).
		Updates(map[string]any{
			"status":                domain.RigStatusOnTrack,
			"active_racer_id":       racerID,
			"active_transaction_id": transactionID,
			"updated_at":            now,
		})
	return result.RowsAffected == 1, result.Error
}

func (r *repo) ReleaseRig(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.Rig{}).
		Where("id = ? AND status = ?", id, domain.RigStatusOnTrack).
		Updates(map[string]any{
			"status":                domain.RigStatusPitStop,
			"active_racer_id":       nil,
			"active_transaction_id": nil,
			"updated_at":            now,
		})
	return result.RowsAffected == 1, result.Error
}
