package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pitstophq/pitstop/internal/transaction"
	"gorm.io/gorm"
)

// VehicleType is one parking category with a bounded lot. Occupancy is the
// number of vehicles currently parked and always stays within
// [0, Capacity]; both bounds are enforced by conditional updates, never in
// application memory.
type VehicleType struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"not null" json:"name"`
	Capacity    int          `gorm:"not null" json:"capacity"`
	Occupancy   int          `gorm:"not null;default:0" json:"occupancy"`
	Rate        float64      `gorm:"not null" json:"rate"`
	Operational bool         `gorm:"not null;default:true" json:"operational"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

func (VehicleType) TableName() string { return "parking_vehicle_types" }

// Transaction is one parked vehicle. Parking is anonymous: there is no
// customer record, only the plate.
type Transaction struct {
	ID              snowflake.ID              `gorm:"primaryKey" json:"id"`
	VehicleTypeID   snowflake.ID              `gorm:"not null;index" json:"vehicle_type_id"`
	VehicleNumber   string                    `gorm:"not null;index" json:"vehicle_number"`
	Status          transaction.Status        `gorm:"not null;index;column:transaction_status" json:"transaction_status"`
	PaymentStatus   transaction.PaymentStatus `gorm:"not null;index" json:"payment_status"`
	PaymentModeID   *snowflake.ID             `gorm:"index" json:"payment_mode_id,omitempty"`
	BillNo          string                    `gorm:"not null;uniqueIndex" json:"bill_no"`
	EntryTime       time.Time                 `gorm:"not null" json:"entry_time"`
	ExitTime        *time.Time                `json:"exit_time,omitempty"`
	Rate            float64                   `json:"rate"`
	TransactionTime *time.Time                `json:"transaction_time,omitempty"`
	GrossAmount     float64                   `json:"gross_amount"`
	DiscountAmount  float64                   `json:"discount_amount"`
	NetAmount       float64                   `json:"net_amount"`
	CreatedAt       time.Time                 `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time                 `gorm:"not null" json:"updated_at"`
}

func (Transaction) TableName() string { return "parking_transactions" }

type ParkRequest struct {
	VehicleTypeID string
	VehicleNumber string
}

type CheckoutRequest struct {
	TransactionID  string
	PaymentModeID  string
	GrossAmount    float64
	DiscountAmount float64
	NetAmount      float64
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, txn *Transaction) error
	ExistsBillNo(ctx context.Context, db *gorm.DB, billNo string) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindParkedByVehicle(ctx context.Context, db *gorm.DB, vehicleNumber string) (*Transaction, error)
	Update(ctx context.Context, db *gorm.DB, txn *Transaction) error
	ListActiveAndTodays(ctx context.Context, db *gorm.DB, dayStart, dayEnd time.Time) ([]*Transaction, error)

	FindVehicleType(ctx context.Context, db *gorm.DB, id snowflake.ID) (*VehicleType, error)
	ListVehicleTypes(ctx context.Context, db *gorm.DB) ([]*VehicleType, error)
	// IncrementOccupancy takes one slot; reports false when the lot is full.
	IncrementOccupancy(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	// DecrementOccupancy frees one slot; reports false at zero.
	DecrementOccupancy(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
}

type Service interface {
	Park(ctx context.Context, req ParkRequest) (Transaction, error)
	Checkout(ctx context.Context, req CheckoutRequest) (Transaction, error)
	Cancel(ctx context.Context, transactionID string) (Transaction, error)
	RollbackOneStep(ctx context.Context, transactionID string) (Transaction, error)
	ListActiveAndTodays(ctx context.Context, day time.Time) ([]Transaction, error)
	ListVehicleTypes(ctx context.Context) ([]VehicleType, error)
}

var (
	ErrTransactionNotFound    = errors.New("parking_transaction_not_found")
	ErrInvalidID              = errors.New("invalid_id")
	ErrVehicleTypeNotFound    = errors.New("parking_vehicle_type_not_found")
	ErrVehicleTypeUnavailable = errors.New("parking_vehicle_type_unavailable")
	ErrLotFull                = errors.New("parking_lot_full")
	ErrOccupancyUnderflow     = errors.New("parking_occupancy_underflow")
	ErrVehicleNumberRequired  = errors.New("vehicle_number_required")
	ErrVehicleAlreadyParked   = errors.New("vehicle_already_parked")
	ErrPaymentModeRequired    = errors.New("payment_mode_required")
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrInvalidTransition      = errors.New("invalid_transition")
	ErrRollbackWindowExpired  = errors.New("rollback_window_expired")
)
