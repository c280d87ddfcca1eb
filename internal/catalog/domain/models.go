package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// CarWashVehicleType groups car wash services by the kind of vehicle they apply to.
type CarWashVehicleType struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"not null" json:"name"`
	Operational bool         `gorm:"not null;default:true" json:"operational"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

func (CarWashVehicleType) TableName() string { return "carwash_vehicle_types" }

// ServiceType is one purchasable car wash service. StreakApplicable services
// participate in loyalty redemption: every WashCount paid washes earn a free one.
type ServiceType struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	Name             string       `gorm:"not null" json:"name"`
	BillAbbreviation string       `gorm:"not null" json:"bill_abbreviation"`
	Rate             float64      `gorm:"not null" json:"rate"`
	Operational      bool         `gorm:"not null;default:true" json:"operational"`
	StreakApplicable bool         `gorm:"not null;default:false" json:"streak_applicable"`
	StreakWashCount  int          `json:"streak_wash_count,omitempty"`
	VehicleTypeID    snowflake.ID `gorm:"not null;index" json:"vehicle_type_id"`
	CreatedAt        time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updated_at"`
}

func (ServiceType) TableName() string { return "service_types" }

// PaymentMode is a settlement channel (cash, QR, card).
type PaymentMode struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"not null" json:"name"`
	QRCodeData  string       `json:"qr_code_data,omitempty"`
	Operational bool         `gorm:"not null;default:true" json:"operational"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

func (PaymentMode) TableName() string { return "payment_modes" }

type Repository interface {
	FindServiceType(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ServiceType, error)
	ListOperationalServiceTypes(ctx context.Context, db *gorm.DB) ([]*ServiceType, error)
	FindPaymentMode(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentMode, error)
	ListOperationalPaymentModes(ctx context.Context, db *gorm.DB) ([]*PaymentMode, error)
	ListOperationalVehicleTypes(ctx context.Context, db *gorm.DB) ([]*CarWashVehicleType, error)
}

type Service interface {
	GetServiceType(ctx context.Context, id string) (ServiceType, error)
	ActivePaymentModes(ctx context.Context) ([]PaymentMode, error)
	ActiveVehicleTypes(ctx context.Context) ([]CarWashVehicleType, error)
}

var (
	ErrServiceTypeNotFound = errors.New("service_type_not_found")
	ErrPaymentModeNotFound = errors.New("payment_mode_not_found")
	ErrInvalidID           = errors.New("invalid_id")
)
