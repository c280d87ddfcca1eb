package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/pitstophq/pitstop/internal/audit/domain"
	"github.com/pitstophq/pitstop/internal/cache"
	catalogdomain "github.com/pitstophq/pitstop/internal/catalog/domain"
	catalogrepository "github.com/pitstophq/pitstop/internal/catalog/repository"
	"github.com/pitstophq/pitstop/internal/clock"
	"github.com/pitstophq/pitstop/internal/config"
	customerdomain "github.com/pitstophq/pitstop/internal/customer/domain"
	customerrepository "github.com/pitstophq/pitstop/internal/customer/repository"
	"github.com/pitstophq/pitstop/internal/simracing/domain"
	"github.com/pitstophq/pitstop/internal/simracing/repository"
	"github.com/pitstophq/pitstop/internal/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type recorderStub struct {
	mu      sync.Mutex
	entries []auditdomain.Entry
}

func (r *recorderStub) Record(_ context.Context, entry auditdomain.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recorderStub) List(context.Context, auditdomain.ListRequest) ([]auditdomain.Activity, error) {
	return nil, nil
}

type fixture struct {
	svc   *Service
	db    *gorm.DB
	clock *clock.FakeClock
	node  *snowflake.Node

	customerID       snowflake.ID
	secondCustomerID snowflake.ID
	rigID            snowflake.ID
	secondRigID      snowflake.ID
	paymentModeID    snowflake.ID
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Transaction{},
		&domain.Rig{},
		&catalogdomain.PaymentMode{},
		&customerdomain.Customer{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	now := fake.Now()

	customer := customerdomain.Customer{
		ID:        node.Generate(),
		Domain:    customerdomain.DomainSimRacing,
		Name:      "Pasang Sherpa",
		Contact:   "9810000002",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, db.Create(&customer).Error)

	secondCustomer := customerdomain.Customer{
		ID:        node.Generate(),
		Domain:    customerdomain.DomainSimRacing,
		Name:      "Mingma Lama",
		Contact:   "9810000003",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, db.Create(&secondCustomer).Error)

	rig := domain.Rig{
		ID:          node.Generate(),
		Name:        "Rig A",
		Status:      domain.RigStatusPitStop,
		Operational: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, db.Create(&rig).Error)

	secondRig := domain.Rig{
		ID:          node.Generate(),
		Name:        "Rig B",
		Status:      domain.RigStatusPitStop,
		Operational: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, db.Create(&secondRig).Error)

	paymentMode := catalogdomain.PaymentMode{
		ID:          node.Generate(),
		Name:        "Cash",
		Operational: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, db.Create(&paymentMode).Error)

	svc := &Service{
		db:           db,
		log:          zaptest.NewLogger(t),
		clock:        fake,
		genID:        node,
		repo:         repository.Provide(),
		customerRepo: customerrepository.Provide(),
		catalogRepo:  catalogrepository.Provide(),
		cache:        cache.New(cache.NewMemoryStore(), zaptest.NewLogger(t)),
		policy:       config.NewStaticPolicyHolder(config.DefaultPolicy()),
		audit:        &recorderStub{},
	}

	return &fixture{
		svc:              svc,
		db:               db,
		clock:            fake,
		node:             node,
		customerID:       customer.ID,
		secondCustomerID: secondCustomer.ID,
		rigID:            rig.ID,
		secondRigID:      secondRig.ID,
		paymentModeID:    paymentMode.ID,
	}
}

func (f *fixture) rig(t *testing.T, id snowflake.ID) domain.Rig {
	t.Helper()
	var rig domain.Rig
	require.NoError(t, f.db.Where("id = ?", id).Take(&rig).Error)
	return rig
}

func (f *fixture) rigStatus(t *testing.T, id snowflake.ID) string {
	t.Helper()
	return f.rig(t, id).Status
}

func (f *fixture) startWalkIn(t *testing.T, rigID snowflake.ID) domain.Transaction {
	t.Helper()
	txn, err := f.svc.StartSession(context.Background(), domain.StartSessionRequest{
		CustomerID:     f.customerID.String(),
		RigID:          rigID.String(),
		RatePerSession: 1500,
	})
	require.NoError(t, err)
	return txn
}

func (f *fixture) complete(t *testing.T, id snowflake.ID) domain.Transaction {
	t.Helper()
	txn, err := f.svc.Complete(context.Background(), domain.CompleteRequest{
		TransactionID:   id.String(),
		PaymentModeID:   f.paymentModeID.String(),
		DurationMinutes: 30,
		GrossAmount:     1500,
		NetAmount:       1500,
	})
	require.NoError(t, err)
	return txn
}

func TestWalkInSessionLifecycle(t *testing.T) {
	f := setup(t)

	txn := f.startWalkIn(t, f.rigID)
	assert.Equal(t, transaction.StatusActive, txn.Status)
	assert.Equal(t, transaction.PaymentPending, txn.PaymentStatus)
	require.NotNil(t, txn.RigID)
	assert.Equal(t, f.rigID, *txn.RigID)
	assert.Equal(t, domain.RigStatusOnTrack, f.rigStatus(t, f.rigID))

	done := f.complete(t, txn.ID)
	assert.Equal(t, transaction.StatusCompleted, done.Status)
	assert.Equal(t, transaction.PaymentPaid, done.PaymentStatus)
	assert.Equal(t, 30, done.DurationMinutes)
	assert.Equal(t, domain.RigStatusPitStop, f.rigStatus(t, f.rigID))
}

func TestRigExclusivity(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.startWalkIn(t, f.rigID)

	_, err := f.svc.StartSession(ctx, domain.StartSessionRequest{
		CustomerID:     f.secondCustomerID.String(),
		RigID:          f.rigID.String(),
		RatePerSession: 1500,
	})
	assert.ErrorIs(t, err, domain.ErrRigOccupied)

	// A different rig is unaffected.
	_, err = f.svc.StartSession(ctx, domain.StartSessionRequest{
		CustomerID:     f.secondCustomerID.String(),
		RigID:          f.secondRigID.String(),
		RatePerSession: 1500,
	})
	require.NoError(t, err)
}

func TestRigTracksOccupant(t *testing.T) {
	f := setup(t)

	txn := f.startWalkIn(t, f.rigID)

	// On Track carries the occupant references.
	rig := f.rig(t, f.rigID)
	assert.Equal(t, domain.RigStatusOnTrack, rig.Status)
	require.NotNil(t, rig.ActiveRacerID)
	assert.Equal(t, f.customerID, *rig.ActiveRacerID)
	require.NotNil(t, rig.ActiveTransactionID)
	assert.Equal(t, txn.ID, *rig.ActiveTransactionID)

	// Pit Stop clears them in the same update.
	f.complete(t, txn.ID)
	rig = f.rig(t, f.rigID)
	assert.Equal(t, domain.RigStatusPitStop, rig.Status)
	assert.Nil(t, rig.ActiveRacerID)
	assert.Nil(t, rig.ActiveTransactionID)
}

func TestBookingActivationTracksOccupant(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	booked, err := f.svc.CreateBooking(ctx, domain.CreateBookingRequest{
		CustomerID:      f.customerID.String(),
		BookingDeadline: f.clock.Now().Add(2 * time.Hour),
	})
	require.NoError(t, err)

	active, err := f.svc.StartSession(ctx, domain.StartSessionRequest{
		TransactionID:  booked.ID.String(),
		RigID:          f.rigID.String(),
		RatePerSession: 1500,
	})
	require.NoError(t, err)

	rig := f.rig(t, f.rigID)
	require.NotNil(t, rig.ActiveRacerID)
	assert.Equal(t, f.customerID, *rig.ActiveRacerID)
	require.NotNil(t, rig.ActiveTransactionID)
	assert.Equal(t, active.ID, *rig.ActiveTransactionID)
}

func TestCustomerCannotHoldTwoRigs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.startWalkIn(t, f.rigID)

	_, err := f.svc.StartSession(ctx, domain.StartSessionRequest{
		CustomerID:     f.customerID.String(),
		RigID:          f.secondRigID.String(),
		RatePerSession: 1500,
	})
	assert.ErrorIs(t, err, domain.ErrCustomerOnTrack)

	// The failed start must not leave the second rig on track.
	assert.Equal(t, domain.RigStatusPitStop, f.rigStatus(t, f.secondRigID))
}

func TestBookingActivation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	deadline := f.clock.Now().Add(2 * time.Hour)

	booked, err := f.svc.CreateBooking(ctx, domain.CreateBookingRequest{
		CustomerID:      f.customerID.String(),
		BookingDeadline: deadline,
	})
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusBooked, booked.Status)
	require.NotNil(t, booked.DeleteAt)

	active, err := f.svc.StartSession(ctx, domain.StartSessionRequest{
		TransactionID:  booked.ID.String(),
		RigID:          f.rigID.String(),
		RatePerSession: 1500,
	})
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusActive, active.Status)
	assert.Nil(t, active.DeleteAt)
	assert.Equal(t, domain.RigStatusOnTrack, f.rigStatus(t, f.rigID))

	// Activating a second time is an illegal transition, and the rig grab
	// from the failed attempt must not stick.
	_, err = f.svc.StartSession(ctx, domain.StartSessionRequest{
		TransactionID:  booked.ID.String(),
		RigID:          f.secondRigID.String(),
		RatePerSession: 1500,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.RigStatusPitStop, f.rigStatus(t, f.secondRigID))
}

func TestDoubleBookingGuard(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	deadline := f.clock.Now().Add(3 * time.Hour)

	_, err := f.svc.CreateBooking(ctx, domain.CreateBookingRequest{
		CustomerID:      f.customerID.String(),
		BookingDeadline: deadline,
	})
	require.NoError(t, err)

	_, err = f.svc.CreateBooking(ctx, domain.CreateBookingRequest{
		CustomerID:      f.customerID.String(),
		BookingDeadline: deadline,
	})
	assert.ErrorIs(t, err, domain.ErrDoubleBooking)
}

func TestCancelActiveSessionFreesRig(t *testing.T) {
	f := setup(t)

	txn := f.startWalkIn(t, f.rigID)
	cancelled, err := f.svc.Cancel(context.Background(), txn.ID.String())
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCancelled, cancelled.Status)
	assert.Equal(t, transaction.PaymentCancelled, cancelled.PaymentStatus)
	assert.Equal(t, domain.RigStatusPitStop, f.rigStatus(t, f.rigID))
}

func TestRollbackCompletedReacquiresRig(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	txn := f.startWalkIn(t, f.rigID)
	f.complete(t, txn.ID)
	assert.Equal(t, domain.RigStatusPitStop, f.rigStatus(t, f.rigID))

	rolled, err := f.svc.RollbackOneStep(ctx, txn.ID.String())
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusActive, rolled.Status)
	assert.Equal(t, transaction.PaymentPending, rolled.PaymentStatus)
	assert.Zero(t, rolled.DurationMinutes)
	assert.Nil(t, rolled.TransactionTime)

	rig := f.rig(t, f.rigID)
	assert.Equal(t, domain.RigStatusOnTrack, rig.Status)
	require.NotNil(t, rig.ActiveTransactionID)
	assert.Equal(t, rolled.ID, *rig.ActiveTransactionID)
}

func TestRollbackCompletedBlockedByOccupiedRig(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first := f.startWalkIn(t, f.rigID)
	f.complete(t, first.ID)

	// Another driver takes the seat before the rollback.
	_, err := f.svc.StartSession(ctx, domain.StartSessionRequest{
		CustomerID:     f.secondCustomerID.String(),
		RigID:          f.rigID.String(),
		RatePerSession: 1500,
	})
	require.NoError(t, err)

	_, err = f.svc.RollbackOneStep(ctx, first.ID.String())
	assert.ErrorIs(t, err, domain.ErrRigOccupied)

	// The settled transaction is untouched by the failed rollback.
	var current domain.Transaction
	require.NoError(t, f.db.Where("id = ?", first.ID).Take(&current).Error)
	assert.Equal(t, transaction.StatusCompleted, current.Status)
}

func TestRollbackActivatedBooking(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	deadline := f.clock.Now().Add(2 * time.Hour)

	booked, err := f.svc.CreateBooking(ctx, domain.CreateBookingRequest{
		CustomerID:      f.customerID.String(),
		BookingDeadline: deadline,
	})
	require.NoError(t, err)

	active, err := f.svc.StartSession(ctx, domain.StartSessionRequest{
		TransactionID:  booked.ID.String(),
		RigID:          f.rigID.String(),
		RatePerSession: 1500,
	})
	require.NoError(t, err)

	rolled, err := f.svc.RollbackOneStep(ctx, active.ID.String())
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusBooked, rolled.Status)
	assert.Nil(t, rolled.RigID)
	assert.Nil(t, rolled.SessionStart)
	require.NotNil(t, rolled.DeleteAt)
	assert.Equal(t, domain.RigStatusPitStop, f.rigStatus(t, f.rigID))
}

func TestRollbackWalkInHasNoEarlierState(t *testing.T) {
	f := setup(t)

	txn := f.startWalkIn(t, f.rigID)
	_, err := f.svc.RollbackOneStep(context.Background(), txn.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRollbackWindowExpired(t *testing.T) {
	f := setup(t)

	txn := f.startWalkIn(t, f.rigID)
	f.complete(t, txn.ID)

	f.clock.Advance(72*time.Hour + time.Minute)

	_, err := f.svc.RollbackOneStep(context.Background(), txn.ID.String())
	assert.ErrorIs(t, err, domain.ErrRollbackWindowExpired)
}

func TestCompleteValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	txn := f.startWalkIn(t, f.rigID)

	_, err := f.svc.Complete(ctx, domain.CompleteRequest{
		TransactionID:   txn.ID.String(),
		PaymentModeID:   f.paymentModeID.String(),
		DurationMinutes: 0,
		GrossAmount:     1500,
		NetAmount:       1500,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDuration)

	_, err = f.svc.Complete(ctx, domain.CompleteRequest{
		TransactionID:   txn.ID.String(),
		PaymentModeID:   f.paymentModeID.String(),
		DurationMinutes: 30,
		GrossAmount:     1500,
		DiscountAmount:  100,
		NetAmount:       1500,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.Complete(ctx, domain.CompleteRequest{
		TransactionID:   txn.ID.String(),
		DurationMinutes: 30,
		GrossAmount:     1500,
		NetAmount:       1500,
	})
	assert.ErrorIs(t, err, domain.ErrPaymentModeRequired)

	// Consistent decimal amounts settle despite float rounding.
	done, err := f.svc.Complete(ctx, domain.CompleteRequest{
		TransactionID:   txn.ID.String(),
		PaymentModeID:   f.paymentModeID.String(),
		DurationMinutes: 30,
		GrossAmount:     1500.3,
		DiscountAmount:  0.1,
		NetAmount:       1500.2,
	})
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, done.Status)
}

func TestPurgeExpiredBookings(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateBooking(ctx, domain.CreateBookingRequest{
		CustomerID:      f.customerID.String(),
		BookingDeadline: f.clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	f.clock.Advance(time.Hour + 16*time.Minute)
	purged, err := f.svc.PurgeExpiredBookings(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)
}

func TestListRigs(t *testing.T) {
	f := setup(t)

	rigs, err := f.svc.ListRigs(context.Background())
	require.NoError(t, err)
	require.Len(t, rigs, 2)
	assert.Equal(t, "Rig A", rigs[0].Name)
}
