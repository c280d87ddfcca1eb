package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/pitstophq/pitstop/internal/clock"
	"github.com/pitstophq/pitstop/internal/customer/domain"
	"github.com/pitstophq/pitstop/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Customer{}, domain.ErrInvalidName
	}
	contact := strings.TrimSpace(req.Contact)
	if contact == "" {
		return domain.Customer{}, domain.ErrInvalidContact
	}

	existing, err := s.repo.FindByContact(ctx, s.db, req.Domain, contact)
	if err != nil {
		return domain.Customer{}, err
	}
	if existing != nil {
		return domain.Customer{}, domain.ErrCustomerExists
	}

	now := s.clock.Now()
	customer := domain.Customer{
		ID:        s.genID.Generate(),
		Domain:    req.Domain,
		Name:      name,
		Contact:   contact,
		Address:   strings.TrimSpace(req.Address),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, s.db, &customer); err != nil {
		// The unique index is the source of truth; the pre-check only
		// narrows the race window.
		if db.IsDuplicateKeyErr(err) {
			return domain.Customer{}, domain.ErrCustomerExists
		}
		return domain.Customer{}, err
	}

	return customer, nil
}

func (s *Service) FindByContact(ctx context.Context, dom domain.Domain, contact string) (domain.Customer, error) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return domain.Customer{}, domain.ErrInvalidContact
	}
	customer, err := s.repo.FindByContact(ctx, s.db, dom, contact)
	if err != nil {
		return domain.Customer{}, err
	}
	if customer == nil {
		return domain.Customer{}, domain.ErrNotFound
	}
	return *customer, nil
}

func (s *Service) GetByID(ctx context.Context, dom domain.Domain, id string) (domain.Customer, error) {
	parsed, err := s.parseID(id)
	if err != nil {
		return domain.Customer{}, err
	}
	customer, err := s.repo.FindByID(ctx, s.db, dom, parsed)
	if err != nil {
		return domain.Customer{}, err
	}
	if customer == nil {
		return domain.Customer{}, domain.ErrNotFound
	}
	return *customer, nil
}

func (s *Service) Update(ctx context.Context, dom domain.Domain, req domain.UpdateRequest) (domain.Customer, error) {
	parsed, err := s.parseID(req.ID)
	if err != nil {
		return domain.Customer{}, err
	}
	name := strings.TrimSpace(req.Name)
	contact := strings.TrimSpace(req.Contact)
	if name == "" {
		return domain.Customer{}, domain.ErrInvalidName
	}
	if contact == "" {
		return domain.Customer{}, domain.ErrInvalidContact
	}

	customer, err := s.repo.FindByID(ctx, s.db, dom, parsed)
	if err != nil {
		return domain.Customer{}, err
	}
	if customer == nil {
		return domain.Customer{}, domain.ErrNotFound
	}

	customer.Name = name
	customer.Contact = contact
	customer.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, customer); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Customer{}, domain.ErrCustomerExists
		}
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) ListWithTotals(ctx context.Context, dom domain.Domain) ([]domain.CustomerSummary, error) {
	items, err := s.repo.ListWithTotals(ctx, s.db, dom)
	if err != nil {
		return nil, err
	}
	summaries := make([]domain.CustomerSummary, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		summaries = append(summaries, *item)
	}
	return summaries, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
