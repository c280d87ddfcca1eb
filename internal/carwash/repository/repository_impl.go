package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pitstophq/pitstop/internal/carwash/domain"
	"github.com/pitstophq/pitstop/internal/transaction"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// forUpdate adds row locking on engines that support it. The sqlite test
// database serializes writers anyway.
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
	return r.findByID(ctx, db.WithContext(ctx), id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	return r.findByID(ctx, forUpdate(db.WithContext(ctx)), id)
}

func (r *repo) findByID(_ context.Context, stmt *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
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

// FindActiveByServiceAndVehicle is the existence guard for duplicate starts:
// any transaction on the same service and plate that is neither settled nor
// cancelled blocks a new one.
func (r *repo) FindActiveByServiceAndVehicle(ctx context.Context, db *gorm.DB, serviceTypeID snowflake.ID, vehicleNumber string) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := db.WithContext(ctx).
		Where("service_type_id = ? AND vehicle_number = ?", serviceTypeID, vehicleNumber).
		Where("transaction_status NOT IN ?", []transaction.Status{transaction.StatusCompleted, transaction.StatusCancelled}).
		Where("payment_status NOT IN ?", []transaction.PaymentStatus{transaction.PaymentPaid, transaction.PaymentCancelled}).
		Take(&txn).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindBookedByDeadline implements the exact-deadline double-booking guard.
// It deliberately does not check interval overlap.
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

func (r *repo) Update(ctx context.Context, db *gorm.DB, txn *domain.Transaction) error {
	return db.WithContext(ctx).
		Session(&gorm.Session{FullSaveAssociations: false}).
		Save(txn).Error
}

// ListActiveAndTodays returns the union of transactions touching the given
// day (created, settled, or finished) and every still-open transaction.
func (r *repo) ListActiveAndTodays(ctx context.Context, db *gorm.DB, dayStart, dayEnd time.Time) ([]*domain.Transaction, error) {
	var txns []*domain.Transaction
	err := db.WithContext(ctx).
		Where(
			db.Where("created_at BETWEEN ? AND ?", dayStart, dayEnd).
				Or("transaction_time BETWEEN ? AND ?", dayStart, dayEnd).
				Or("service_end BETWEEN ? AND ?", dayStart, dayEnd).
				Or("transaction_status IN ?", []transaction.Status{transaction.StatusBooked, transaction.StatusInQueue, transaction.StatusReadyForPickup}).
				Or("payment_status = ?", transaction.PaymentPending),
		).
		Order("created_at DESC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// EligibleStreak returns a customer's settled, not-yet-redeemed washes on
// streak-applicable operational services, oldest first.
func (r *repo) EligibleStreak(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]*domain.Transaction, error) {
	var txns []*domain.Transaction
	err := db.WithContext(ctx).
		Joins("JOIN service_types st ON st.id = carwash_transactions.service_type_id").
		Where("carwash_transactions.customer_id = ?", customerID).
		Where("carwash_transactions.transaction_status = ? AND carwash_transactions.payment_status = ?", transaction.StatusCompleted, transaction.PaymentPaid).
		Where("carwash_transactions.redeemed = ?", false).
		Where("st.streak_applicable = ? AND st.operational = ?", true, true).
		Order("carwash_transactions.created_at ASC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// MarkOldestEligibleRedeemed consumes a streak: the count oldest settled,
// unredeemed washes for the customer and service are flagged redeemed.
func (r *repo) MarkOldestEligibleRedeemed(ctx context.Context, db *gorm.DB, customerID, serviceTypeID snowflake.ID, count int) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE carwash_transactions SET redeemed = ?
		 WHERE id IN (
		   SELECT id FROM (
		     SELECT id FROM carwash_transactions
		     WHERE customer_id = ? AND service_type_id = ?
		       AND transaction_status = ? AND payment_status = ?
		       AND redeemed = ?
		     ORDER BY created_at ASC
		     LIMIT ?
		   ) oldest
		 )`,
		true,
		customerID,
		serviceTypeID,
		transaction.StatusCompleted,
		transaction.PaymentPaid,
		false,
		count,
	)
	return result.RowsAffected, result.Error
}

// UnmarkNewestRedeemed reverses a streak consumption during rollback. The
// rows consumed last are the newest redeemed ones, so reversal walks back
// from the newest.
func (r *repo) UnmarkNewestRedeemed(ctx context.Context, db *gorm.DB, customerID, serviceTypeID snowflake.ID, count int) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE carwash_transactions SET redeemed = ?
		 WHERE id IN (
		   SELECT id FROM (
		     SELECT id FROM carwash_transactions
		     WHERE customer_id = ? AND service_type_id = ?
		       AND transaction_status = ? AND payment_status = ?
		       AND redeemed = ?
		     ORDER BY created_at DESC
		     LIMIT ?
		   ) newest
		 )`,
		false,
		customerID,
		serviceTypeID,
		transaction.StatusCompleted,
		transaction.PaymentPaid,
		true,
		count,
	)
	return result.RowsAffected, result.Error
}

// PurgeExpiredBookings deletes abandoned bookings past their delete_at
// stamp. This is the only row deletion in the domain.
func (r *repo) PurgeExpiredBookings(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Where("transaction_status = ? AND delete_at IS NOT NULL AND delete_at <= ?", transaction.StatusBooked, now).
		Delete(&domain.Transaction{})
	return result.RowsAffected, result.Error
}
