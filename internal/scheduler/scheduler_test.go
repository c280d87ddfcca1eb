package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	carwashdomain "github.com/pitstophq/pitstop/internal/carwash/domain"
	"github.com/pitstophq/pitstop/internal/clock"
	"github.com/pitstophq/pitstop/internal/config"
	simracingdomain "github.com/pitstophq/pitstop/internal/simracing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Only PurgeExpiredBookings is exercised; the embedded interface covers the
// rest of the surface.
type carWashStub struct {
	carwashdomain.Service
	purged int64
	err    error
	calls  int
}

func (s *carWashStub) PurgeExpiredBookings(context.Context) (int64, error) {
	s.calls++
	return s.purged, s.err
}

type simRacingStub struct {
	simracingdomain.Service
	purged int64
	err    error
	calls  int
}

func (s *simRacingStub) PurgeExpiredBookings(context.Context) (int64, error) {
	s.calls++
	return s.purged, s.err
}

func newScheduler(t *testing.T, carWash *carWashStub, simRacing *simRacingStub) *Scheduler {
	t.Helper()
	sched, err := New(Params{
		Log:          zaptest.NewLogger(t),
		Clock:        clock.NewFakeClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)),
		Policy:       config.NewStaticPolicyHolder(config.DefaultPolicy()),
		Locker:       nil,
		CarWashSvc:   carWash,
		SimRacingSvc: simRacing,
	})
	require.NoError(t, err)
	return sched
}

func TestRunOnceSweepsBothDomains(t *testing.T) {
	carWash := &carWashStub{purged: 2}
	simRacing := &simRacingStub{purged: 1}
	sched := newScheduler(t, carWash, simRacing)

	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, 1, carWash.calls)
	assert.Equal(t, 1, simRacing.calls)
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	carWash := &carWashStub{err: errors.New("store down")}
	simRacing := &simRacingStub{purged: 3}
	sched := newScheduler(t, carWash, simRacing)

	err := sched.RunOnce(context.Background())
	assert.Error(t, err)
	// The car wash failure must not skip the sim racing sweep.
	assert.Equal(t, 1, simRacing.calls)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
