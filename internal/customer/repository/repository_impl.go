package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/pitstophq/pitstop/internal/customer/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Create(customer).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, dom domain.Domain, id snowflake.ID) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).
		Where("domain = ? AND id = ?", dom, id).
		Take(&customer).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repo) FindByContact(ctx context.Context, db *gorm.DB, dom domain.Domain, contact string) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).
		Where("domain = ? AND contact = ?", dom, contact).
		Take(&customer).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).
		Model(&domain.Customer{}).
		Where("id = ?", customer.ID).
		Updates(map[string]any{
			"name":       customer.Name,
			"contact":    customer.Contact,
			"updated_at": customer.UpdatedAt,
		}).Error
}

// ListWithTotals joins each customer against their settled transactions and
// sums the net amounts, newest customers first.
func (r *repo) ListWithTotals(ctx context.Context, db *gorm.DB, dom domain.Domain) ([]*domain.CustomerSummary, error) {
	table := "carwash_transactions"
	if dom == domain.DomainSimRacing {
		table = "simracing_transactions"
	}

	var summaries []*domain.CustomerSummary
	err := db.WithContext(ctx).Raw(
		`SELECT c.id, c.domain, c.name, c.contact, c.address, c.created_at, c.updated_at,
		        COALESCE(SUM(t.net_amount), 0) AS total_net_amount
		 FROM customers c
		 LEFT JOIN `+table+` t ON t.customer_id = c.id AND t.payment_status = 'Paid'
		 WHERE c.domain = ?
		 GROUP BY c.id, c.domain, c.name, c.contact, c.address, c.created_at, c.updated_at
		 ORDER BY c.created_at DESC`,
		dom,
	).Scan(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}
