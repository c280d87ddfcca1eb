package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Domain names the service line a customer record belongs to. Car wash and
// sim racing keep separate customer books; parking is anonymous.
type Domain string

const (
	DomainCarWash   Domain = "carwash"
	DomainSimRacing Domain = "simracing"
)

// Customer is identified by contact number, unique within its service line.
type Customer struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Domain    Domain       `gorm:"not null;uniqueIndex:idx_customers_domain_contact" json:"domain"`
	Name      string       `gorm:"not null" json:"name"`
	Contact   string       `gorm:"not null;uniqueIndex:idx_customers_domain_contact" json:"contact"`
	Address   string       `json:"address,omitempty"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

// CustomerSummary is a customer plus the lifetime net revenue of their
// settled transactions, produced by the list aggregation.
type CustomerSummary struct {
	Customer
	TotalNetAmount float64 `json:"total_net_amount"`
}

type CreateRequest struct {
	Domain  Domain
	Name    string
	Contact string
	Address string
}

type UpdateRequest struct {
	ID      string
	Name    string
	Contact string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, customer *Customer) error
	FindByID(ctx context.Context, db *gorm.DB, domain Domain, id snowflake.ID) (*Customer, error)
	FindByContact(ctx context.Context, db *gorm.DB, domain Domain, contact string) (*Customer, error)
	Update(ctx context.Context, db *gorm.DB, customer *Customer) error
	ListWithTotals(ctx context.Context, db *gorm.DB, domain Domain) ([]*CustomerSummary, error)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Customer, error)
	FindByContact(ctx context.Context, domain Domain, contact string) (Customer, error)
	GetByID(ctx context.Context, domain Domain, id string) (Customer, error)
	Update(ctx context.Context, domain Domain, req UpdateRequest) (Customer, error)
	ListWithTotals(ctx context.Context, domain Domain) ([]CustomerSummary, error)
}

var (
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidContact = errors.New("invalid_contact")
	ErrInvalidID      = errors.New("invalid_id")
	ErrNotFound       = errors.New("customer_not_found")
	ErrCustomerExists = errors.New("customer_exists")
)
