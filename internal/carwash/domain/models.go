package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pitstophq/pitstop/internal/transaction"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Transaction is one car wash engagement. A row is created by a booking or a
// direct start and only ever mutated afterwards; cancellation is a status
// change, and only abandoned bookings (DeleteAt in the past) are purged.
type Transaction struct {
	ID                snowflake.ID               `gorm:"primaryKey" json:"id"`
	CustomerID        snowflake.ID               `gorm:"not null;index" json:"customer_id"`
	ServiceTypeID     *snowflake.ID              `gorm:"index" json:"service_type_id,omitempty"`
	VehicleNumber     string                     `gorm:"index" json:"vehicle_number,omitempty"`
	Status            transaction.Status         `gorm:"not null;index;column:transaction_status" json:"transaction_status"`
	PaymentStatus     transaction.PaymentStatus  `gorm:"not null;index" json:"payment_status"`
	PaymentModeID     *snowflake.ID              `gorm:"index" json:"payment_mode_id,omitempty"`
	BillNo            string                     `gorm:"not null;uniqueIndex" json:"bill_no"`
	ServiceStart      *time.Time                 `json:"service_start,omitempty"`
	ServiceEnd        *time.Time                 `json:"service_end,omitempty"`
	ServiceCost       float64                    `json:"service_cost"`
	ServiceActualRate float64                    `json:"service_actual_rate"`
	TransactionTime   *time.Time                 `json:"transaction_time,omitempty"`
	GrossAmount       float64                    `json:"gross_amount"`
	DiscountAmount    float64                    `json:"discount_amount"`
	NetAmount         float64                    `json:"net_amount"`
	// Optional sub-charge for a vehicle left on the lot around its wash.
	ParkingIn   *time.Time `json:"parking_in,omitempty"`
	ParkingOut  *time.Time `json:"parking_out,omitempty"`
	ParkingCost float64    `gorm:"not null;default:0" json:"parking_cost,omitempty"`
	Redeemed          bool                       `gorm:"not null;default:false" json:"redeemed"`
	RedeemedCount     int                        `gorm:"not null;default:0" json:"redeemed_count,omitempty"`
	Inspections       datatypes.JSON             `json:"inspections,omitempty"`
	BookingDeadline   *time.Time                 `json:"booking_deadline,omitempty"`
	DeleteAt          *time.Time                 `gorm:"index" json:"delete_at,omitempty"`
	CreatedAt         time.Time                  `gorm:"not null;index" json:"created_at"`
	UpdatedAt         time.Time                  `gorm:"not null" json:"updated_at"`
}

func (Transaction) TableName() string { return "carwash_transactions" }

// InspectionCategory is one section of the pre-pickup inspection report.
type InspectionCategory struct {
	CategoryName string           `json:"category_name"`
	Items        []InspectionItem `json:"items"`
}

type InspectionItem struct {
	ItemName string `json:"item_name"`
	Response bool   `json:"response"`
}

type CreateBookingRequest struct {
	CustomerID      string
	BookingDeadline time.Time
}

type StartFromBookingRequest struct {
	TransactionID string
	ServiceTypeID string
	VehicleNumber string
	ServiceRate   float64
	ActualRate    float64
}

type StartDirectRequest struct {
	CustomerID    string
	ServiceTypeID string
	VehicleNumber string
	ServiceRate   float64
	ActualRate    float64
}

type AdvanceRequest struct {
	TransactionID string
	Inspections   []InspectionCategory
}

type CheckoutRequest struct {
	TransactionID  string
	PaymentModeID  string
	GrossAmount    float64
	DiscountAmount float64
	NetAmount      float64
	Redeemed       bool
	WashCount      int
	ParkingIn      *time.Time
	ParkingOut     *time.Time
	ParkingCost    float64
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, txn *Transaction) error
	ExistsBillNo(ctx context.Context, db *gorm.DB, billNo string) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindActiveByServiceAndVehicle(ctx context.Context, db *gorm.DB, serviceTypeID snowflake.ID, vehicleNumber string) (*Transaction, error)
	FindBookedByDeadline(ctx context.Context, db *gorm.DB, deadline time.Time) (*Transaction, error)
	Update(ctx context.Context, db *gorm.DB, txn *Transaction) error
	ListActiveAndTodays(ctx context.Context, db *gorm.DB, dayStart, dayEnd time.Time) ([]*Transaction, error)
	EligibleStreak(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]*Transaction, error)
	MarkOldestEligibleRedeemed(ctx context.Context, db *gorm.DB, customerID, serviceTypeID snowflake.ID, count int) (int64, error)
	UnmarkNewestRedeemed(ctx context.Context, db *gorm.DB, customerID, serviceTypeID snowflake.ID, count int) (int64, error)
	PurgeExpiredBookings(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
}

type Service interface {
	CreateBooking(ctx context.Context, req CreateBookingRequest) (Transaction, error)
	StartFromBooking(ctx context.Context, req StartFromBookingRequest) (Transaction, error)
	StartDirect(ctx context.Context, req StartDirectRequest) (Transaction, error)
	AdvanceToReadyForPickup(ctx context.Context, req AdvanceRequest) (Transaction, error)
	Checkout(ctx context.Context, req CheckoutRequest) (Transaction, error)
	Cancel(ctx context.Context, transactionID string) (Transaction, error)
	RollbackOneStep(ctx context.Context, transactionID string) (Transaction, error)
	ListActiveAndTodays(ctx context.Context, day time.Time) ([]Transaction, error)
	EligibleStreakTransactions(ctx context.Context, customerID string) ([]Transaction, error)
	PurgeExpiredBookings(ctx context.Context) (int64, error)
}

var (
	ErrTransactionNotFound     = errors.New("carwash_transaction_not_found")
	ErrInvalidID               = errors.New("invalid_id")
	ErrInvalidDeadline         = errors.New("invalid_booking_deadline")
	ErrDoubleBooking           = errors.New("booking_slot_taken")
	ErrActiveTransactionExists = errors.New("active_transaction_exists")
	ErrVehicleNumberRequired   = errors.New("vehicle_number_required")
	ErrPaymentModeRequired     = errors.New("payment_mode_required")
	ErrWashCountRequired       = errors.New("wash_count_required")
	ErrStreakNotEligible       = errors.New("streak_not_eligible")
	ErrInvalidAmount           = errors.New("invalid_amount")
	ErrInvalidTransition       = errors.New("invalid_transition")
	ErrRollbackWindowExpired   = errors.New("rollback_window_expired")
)
