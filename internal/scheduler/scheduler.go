// Package scheduler sweeps abandoned bookings. Bookings that were never
// started carry a purge stamp (deadline plus grace); once the stamp passes
// the row is deleted, which is what frees the slot for rebooking.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/pitstophq/pitstop/internal/cache"
	carwashdomain "github.com/pitstophq/pitstop/internal/carwash/domain"
	"github.com/pitstophq/pitstop/internal/clock"
	"github.com/pitstophq/pitstop/internal/config"
	simracingdomain "github.com/pitstophq/pitstop/internal/simracing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const purgeLockKey = "scheduler:purge_bookings"

// ErrInvalidConfig is returned by New when a required dependency is missing.
var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock
	Policy       *config.PolicyHolder
	Locker       *cache.Locker
	CarWashSvc   carwashdomain.Service
	SimRacingSvc simracingdomain.Service
}

type Scheduler struct {
	log          *zap.Logger
	clock        clock.Clock
	policy       *config.PolicyHolder
	locker       *cache.Locker
	carWashSvc   carwashdomain.Service
	simRacingSvc simracingdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Policy == nil || p.CarWashSvc == nil || p.SimRacingSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:          p.Log.Named("scheduler"),
		clock:        p.Clock,
		policy:       p.Policy,
		locker:       p.Locker,
		carWashSvc:   p.CarWashSvc,
		simRacingSvc: p.SimRacingSvc,
	}, nil
}

// RunOnce executes a single purge sweep. A distributed lock keeps multiple
// instances from sweeping at the same time; losing the lock is not an error,
// another instance is doing the work.
func (s *Scheduler) RunOnce(parent context.Context) error {
	interval := s.policy.Get().PurgeInterval()
	ctx, cancel := context.WithTimeout(parent, interval)
	defer cancel()

	token, ok, err := s.locker.TryLock(ctx, purgeLockKey, interval)
	if err != nil {
		s.log.Warn("purge lock unavailable, sweeping anyway", zap.Error(err))
	} else if !ok {
		return nil
	}
	if token != "" {
		defer func() {
			if err := s.locker.Release(ctx, purgeLockKey, token); err != nil {
				s.log.Warn("purge lock release failed", zap.Error(err))
			}
		}()
	}

	var errs error

	purged, err := s.carWashSvc.PurgeExpiredBookings(ctx)
	if err != nil {
		errs = errors.Join(errs, err)
	} else if purged > 0 {
		s.log.Info("purged expired car wash bookings", zap.Int64("count", purged))
	}

	purged, err = s.simRacingSvc.PurgeExpiredBookings(ctx)
	if err != nil {
		errs = errors.Join(errs, err)
	} else if purged > 0 {
		s.log.Info("purged expired sim racing bookings", zap.Int64("count", purged))
	}

	return errs
}

// RunForever sweeps on the configured interval until ctx is done. The
// interval is re-read from policy every cycle, so a config reload takes
// effect without a restart.
func (s *Scheduler) RunForever(ctx context.Context) {
	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("purge sweep failed", zap.Error(err))
		}

		timer := time.NewTimer(s.policy.Get().PurgeInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
