package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/pitstophq/pitstop/internal/cache"
	"github.com/pitstophq/pitstop/internal/catalog/domain"
	"github.com/pitstophq/pitstop/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Repo   domain.Repository
	Cache  *cache.Cache
	Policy *config.PolicyHolder
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	repo   domain.Repository
	cache  *cache.Cache
	policy *config.PolicyHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("catalog.service"),
		repo:   p.Repo,
		cache:  p.Cache,
		policy: p.Policy,
	}
}

func (s *Service) GetServiceType(ctx context.Context, id string) (domain.ServiceType, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return domain.ServiceType{}, domain.ErrInvalidID
	}
	serviceType, err := s.repo.FindServiceType(ctx, s.db, parsed)
	if err != nil {
		return domain.ServiceType{}, err
	}
	if serviceType == nil {
		return domain.ServiceType{}, domain.ErrServiceTypeNotFound
	}
	return *serviceType, nil
}

// ActivePaymentModes serves the checkout screen and is read-through cached.
func (s *Service) ActivePaymentModes(ctx context.Context) ([]domain.PaymentMode, error) {
	payload, err := s.cache.ReadThrough(ctx, cache.KeyActivePayments, s.policy.Get().CacheTTL(), func(ctx context.Context) ([]byte, error) {
		modes, err := s.repo.ListOperationalPaymentModes(ctx, s.db)
		if err != nil {
			return nil, err
		}
		out := make([]domain.PaymentMode, 0, len(modes))
		for _, mode := range modes {
			if mode != nil {
				out = append(out, *mode)
			}
		}
		return json.Marshal(out)
	})
	if err != nil {
		return nil, err
	}

	var modes []domain.PaymentMode
	if err := json.Unmarshal(payload, &modes); err != nil {
		return nil, err
	}
	return modes, nil
}

func (s *Service) ActiveVehicleTypes(ctx context.Context) ([]domain.CarWashVehicleType, error) {
	vehicleTypes, err := s.repo.ListOperationalVehicleTypes(ctx, s.db)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CarWashVehicleType, 0, len(vehicleTypes))
	for _, vt := range vehicleTypes {
		if vt != nil {
			out = append(out, *vt)
		}
	}
	return out, nil
}
