package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pitstophq/pitstop/internal/transaction"
	"gorm.io/gorm"
)

// Rig status labels. A rig in the pit is free; a rig on track is bound to
// exactly one non-terminal transaction.
const (
	RigStatusPitStop = "Pit Stop"
	RigStatusOnTrack = "On Track"
)

// Rig is one simulator seat.
type Rig struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"not null" json:"name"`
	Status      string       `gorm:"not null;default:'Pit Stop'" json:"status"`
	Operational bool         `gorm:"not null;default:true" json:"operational"`
	// Set and cleared together with Status: an On Track rig always names
	// its occupant, a Pit Stop rig never does.
	ActiveRacerID       *snowflake.ID `gorm:"index" json:"active_racer_id,omitempty"`
	ActiveTransactionID *snowflake.ID `json:"active_transaction_id,omitempty"`
	CreatedAt           time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time     `gorm:"not null" json:"updated_at"`
}

func (Rig) TableName() string { return "simracing_rigs" }

// Transaction is one sim racing engagement: Booked → Active → Completed,
// with Cancelled reachable from both non-terminal states.
type Transaction struct {
	ID              snowflake.ID              `gorm:"primaryKey" json:"id"`
	CustomerID      snowflake.ID              `gorm:"not null;index" json:"customer_id"`
	RigID           *snowflake.ID             `gorm:"index" json:"rig_id,omitempty"`
	Status          transaction.Status        `gorm:"not null;index;column:transaction_status" json:"transaction_status"`
	PaymentStatus   transaction.PaymentStatus `gorm:"not null;index" json:"payment_status"`
	PaymentModeID   *snowflake.ID             `gorm:"index" json:"payment_mode_id,omitempty"`
	BillNo          string                    `gorm:"not null;uniqueIndex" json:"bill_no"`
	SessionStart    *time.Time                `json:"session_start,omitempty"`
	SessionEnd      *time.Time                `json:"session_end,omitempty"`
	DurationMinutes int                       `json:"duration_minutes,omitempty"`
	RatePerSession  float64                   `json:"rate_per_session"`
	TransactionTime *time.Time                `json:"transaction_time,omitempty"`
	GrossAmount     float64                   `json:"gross_amount"`
	DiscountAmount  float64                   `json:"discount_amount"`
	NetAmount       float64                   `json:"net_amount"`
	BookingDeadline *time.Time                `json:"booking_deadline,omitempty"`
	DeleteAt        *time.Time                `gorm:"index" json:"delete_at,omitempty"`
	CreatedAt       time.Time                 `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time                 `gorm:"not null" json:"updated_at"`
}

func (Transaction) TableName() string { return "simracing_transactions" }

type CreateBookingRequest struct {
	CustomerID      string
	BookingDeadline time.Time
}

type StartSessionRequest struct {
	TransactionID  string // empty for a walk-in
	CustomerID     string // required for a walk-in
	RigID          string
	RatePerSession float64
}

type CompleteRequest struct {
	TransactionID   string
	PaymentModeID   string
	DurationMinutes int
	GrossAmount     float64
	DiscountAmount  float64
	NetAmount       float64
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, txn *Transaction) error
	ExistsBillNo(ctx context.Context, db *gorm.DB, billNo string) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindBookedByDeadline(ctx context.Context, db *gorm.DB, deadline time.Time) (*Transaction, error)
	FindActiveByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (*Transaction, error)
	Update(ctx context.Context, db *gorm.DB, txn *Transaction) error
	ListActiveAndTodays(ctx context.Context, db *gorm.DB, dayStart, dayEnd time.Time) ([]*Transaction, error)
	PurgeExpiredBookings(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)

	FindRig(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Rig, error)
	ListRigs(ctx context.Context, db *gorm.DB) ([]*Rig, error)
	// AcquireRig flips a free rig on track and records who holds it.
	// Returns false when the rig was not free; the caller treats that as
	// occupied.
	AcquireRig(ctx context.Context, db *gorm.DB, id, racerID, transactionID snowflake.ID, now time.Time) (bool, error)
	// ReleaseRig returns an on-track rig to the pit and clears the
	// occupant references.
	ReleaseRig(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
}

type Service interface {
	CreateBooking(ctx context.Context, req CreateBookingRequest) (Transaction, error)
	StartSession(ctx context.Context, req StartSessionRequest) (Transaction, error)
	Complete(ctx context.Context, req CompleteRequest) (Transaction, error)
	Cancel(ctx context.Context, transactionID string) (Transaction, error)
	RollbackOneStep(ctx context.Context, transactionID string) (Transaction, error)
	ListActiveAndTodays(ctx context.Context, day time.Time) ([]Transaction, error)
	ListRigs(ctx context.Context) ([]Rig, error)
	PurgeExpiredBookings(ctx context.Context) (int64, error)
}

var (
	ErrTransactionNotFound   = errors.New("simracing_transaction_not_found")
	ErrInvalidID             = errors.New("invalid_id")
	ErrInvalidDeadline       = errors.New("invalid_booking_deadline")
	ErrDoubleBooking         = errors.New("booking_slot_taken")
	ErrRigNotFound           = errors.New("rig_not_found")
	ErrRigOccupied           = errors.New("rig_occupied")
	ErrRigNotOperational     = errors.New("rig_not_operational")
	ErrCustomerOnTrack       = errors.New("customer_session_active")
	ErrPaymentModeRequired   = errors.New("payment_mode_required")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidDuration       = errors.New("invalid_duration")
	ErrInvalidTransition     = errors.New("invalid_transition")
	ErrRollbackWindowExpired = errors.New("rollback_window_expired")
)
