package service

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/pitstophq/pitstop/internal/audit/domain"
	"github.com/pitstophq/pitstop/internal/cache"
	"github.com/pitstophq/pitstop/internal/carwash/domain"
	"github.com/pitstophq/pitstop/internal/carwash/repository"
	catalogdomain "github.com/pitstophq/pitstop/internal/catalog/domain"
	catalogrepository "github.com/pitstophq/pitstop/internal/catalog/repository"
	"github.com/pitstophq/pitstop/internal/clock"
	"github.com/pitstophq/pitstop/internal/config"
	customerdomain "github.com/pitstophq/pitstop/internal/customer/domain"
	customerrepository "github.com/pitstophq/pitstop/internal/customer/repository"
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
	store cache.Store
	audit *recorderStub

	customerID    snowflake.ID
	serviceTypeID snowflake.ID
	paymentModeID snowflake.ID
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Transaction{},
		&catalogdomain.ServiceType{},
		&catalogdomain.PaymentMode{},
		&customerdomain.Customer{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	store := cache.NewMemoryStore()
	recorder := &recorderStub{}

	now := fake.Now()
	customer := customerdomain.Customer{
		ID:        node.Generate(),
		Domain:    customerdomain.DomainCarWash,
		Name:      "Nima Lama",
		Contact:   "9810000001",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, db.Create(&customer).Error)

	serviceType := catalogdomain.ServiceType{
		ID:               node.Generate(),
		Name:             "Full Wash",
		BillAbbreviation: "FW",
		Rate:             700,
		Operational:      true,
		StreakApplicable: true,
		StreakWashCount:  5,
		VehicleTypeID:    node.Generate(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, db.Create(&serviceType).Error)

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
		cache:        cache.New(store, zaptest.NewLogger(t)),
		policy:       config.NewStaticPolicyHolder(config.DefaultPolicy()),
		audit:        recorder,
	}

	return &fixture{
		svc:           svc,
		db:            db,
		clock:         fake,
		node:          node,
		store:         store,
		audit:         recorder,
		customerID:    customer.ID,
		serviceTypeID: serviceType.ID,
		paymentModeID: paymentMode.ID,
	}
}

func (f *fixture) book(t *testing.T, deadline time.Time) domain.Transaction {
	t.Helper()
	txn, err := f.svc.CreateBooking(context.Background(), domain.CreateBookingRequest{
		CustomerID:      f.customerID.String(),
		BookingDeadline: deadline,
	})
	require.NoError(t, err)
	return txn
}

func (f *fixture) startDirect(t *testing.T, vehicle string) domain.Transaction {
	t.Helper()
	txn, err := f.svc.StartDirect(context.Background(), domain.StartDirectRequest{
		CustomerID:    f.customerID.String(),
		ServiceTypeID: f.serviceTypeID.String(),
		VehicleNumber: vehicle,
		ServiceRate:   700,
		ActualRate:    700,
	})
	require.NoError(t, err)
	return txn
}

func (f *fixture) checkout(t *testing.T, id snowflake.ID) domain.Transaction {
	t.Helper()
	txn, err := f.svc.Checkout(context.Background(), domain.CheckoutRequest{
		TransactionID: id.String(),
		PaymentModeID: f.paymentModeID.String(),
		GrossAmount:   700,
		NetAmount:     700,
	})
	require.NoError(t, err)
	return txn
}

// seedSettledWash inserts a completed, paid, unredeemed wash directly, back
// at an arbitrary creation time.
func (f *fixture) seedSettledWash(t *testing.T, createdAt time.Time) domain.Transaction {
	t.Helper()
	txnTime := createdAt.Add(time.Hour)
	txn := domain.Transaction{
		ID:              f.node.Generate(),
		CustomerID:      f.customerID,
		ServiceTypeID:   &f.serviceTypeID,
		VehicleNumber:   "BA 2 PA 1234",
		Status:          transaction.StatusCompleted,
		PaymentStatus:   transaction.PaymentPaid,
		PaymentModeID:   &f.paymentModeID,
		BillNo:          createdAt.UTC().Format("060102-1504"),
		GrossAmount:     700,
		NetAmount:       700,
		TransactionTime: &txnTime,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	require.NoError(t, f.db.Create(&txn).Error)
	return txn
}

var billNoPattern = regexp.MustCompile(`^\d{6}-\d{4}$`)

func TestBookingToCheckoutLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	deadline := f.clock.Now().Add(2 * time.Hour)

	booked := f.book(t, deadline)
	assert.Equal(t, transaction.StatusBooked, booked.Status)
	assert.Equal(t, transaction.PaymentPending, booked.PaymentStatus)
	assert.Regexp(t, billNoPattern, booked.BillNo)
	require.NotNil(t, booked.DeleteAt)
	assert.Equal(t, deadline.Add(15*time.Minute), booked.DeleteAt.UTC())

	started, err := f.svc.StartFromBooking(ctx, domain.StartFromBookingRequest{
		TransactionID: booked.ID.String(),
		ServiceTypeID: f.serviceTypeID.String(),
		VehicleNumber: "ba 2 pa 1234",
		ServiceRate:   700,
		ActualRate:    700,
	})
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusInQueue, started.Status)
	assert.Equal(t, "BA 2 PA 1234", started.VehicleNumber)
	assert.Nil(t, started.DeleteAt)
	require.NotNil(t, started.ServiceStart)

	ready, err := f.svc.AdvanceToReadyForPickup(ctx, domain.AdvanceRequest{
		TransactionID: started.ID.String(),
		Inspections: []domain.InspectionCategory{
			{CategoryName: "Exterior", Items: []domain.InspectionItem{{ItemName: "No scratches", Response: true}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusReadyForPickup, ready.Status)
	require.NotNil(t, ready.ServiceEnd)
	assert.NotEmpty(t, ready.Inspections)

	done := f.checkout(t, ready.ID)
	assert.Equal(t, transaction.StatusCompleted, done.Status)
	assert.Equal(t, transaction.PaymentPaid, done.PaymentStatus)
	require.NotNil(t, done.TransactionTime)
	assert.True(t, transaction.LegalPair(done.Status, done.PaymentStatus))
}

func TestDoubleBookingGuard(t *testing.T) {
	f := setup(t)
	deadline := f.clock.Now().Add(3 * time.Hour)
	f.book(t, deadline)

	_, err := f.svc.CreateBooking(context.Background(), domain.CreateBookingRequest{
		CustomerID:      f.customerID.String(),
		BookingDeadline: deadline,
	})
	assert.ErrorIs(t, err, domain.ErrDoubleBooking)

	// The guard matches exact deadlines only; a minute over is a new slot.
	f.book(t, deadline.Add(time.Minute))
}

func TestBookingValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateBooking(ctx, domain.CreateBookingRequest{
		CustomerID:      "not-a-snowflake",
		BookingDeadline: f.clock.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = f.svc.CreateBooking(ctx, domain.CreateBookingRequest{
		CustomerID:      f.customerID.String(),
		BookingDeadline: f.clock.Now().Add(-time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDeadline)

	_, err = f.svc.CreateBooking(ctx, domain.CreateBookingRequest{
		CustomerID:      f.node.Generate().String(),
		BookingDeadline: f.clock.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, customerdomain.ErrNotFound)
}

func TestDuplicateActiveVehicleRejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first := f.startDirect(t, "BA 2 PA 1234")

	_, err := f.svc.StartDirect(ctx, domain.StartDirectRequest{
		CustomerID:    f.customerID.String(),
		ServiceTypeID: f.serviceTypeID.String(),
		VehicleNumber: "BA 2 PA 1234",
		ServiceRate:   700,
		ActualRate:    700,
	})
	assert.ErrorIs(t, err, domain.ErrActiveTransactionExists)

	// Settling the open transaction frees the vehicle for a new one.
	_, err = f.svc.AdvanceToReadyForPickup(ctx, domain.AdvanceRequest{TransactionID: first.ID.String()})
	require.NoError(t, err)
	f.checkout(t, first.ID)
	f.startDirect(t, "BA 2 PA 1234")
}

func TestStreakRedemption(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	base := f.clock.Now().Add(-30 * 24 * time.Hour)
	var seeded []domain.Transaction
	for i := 0; i < 6; i++ {
		seeded = append(seeded, f.seedSettledWash(t, base.Add(time.Duration(i)*24*time.Hour)))
	}

	eligible, err := f.svc.EligibleStreakTransactions(ctx, f.customerID.String())
	require.NoError(t, err)
	require.Len(t, eligible, 6)
	assert.Equal(t, seeded[0].ID, eligible[0].ID, "oldest first")

	free := f.startDirect(t, "BA 9 KHA 7777")
	_, err = f.svc.AdvanceToReadyForPickup(ctx, domain.AdvanceRequest{TransactionID: free.ID.String()})
	require.NoError(t, err)

	done, err := f.svc.Checkout(ctx, domain.CheckoutRequest{
		TransactionID:  free.ID.String(),
		PaymentModeID:  f.paymentModeID.String(),
		GrossAmount:    700,
		DiscountAmount: 700,
		NetAmount:      0,
		Redeemed:       true,
		WashCount:      5,
	})
	require.NoError(t, err)
	assert.True(t, done.Redeemed)
	assert.Equal(t, 5, done.RedeemedCount)

	// The five oldest were consumed; only the sixth remains eligible.
	eligible, err = f.svc.EligibleStreakTransactions(ctx, f.customerID.String())
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, seeded[5].ID, eligible[0].ID)
}

func TestStreakRedemptionInsufficientHistory(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	base := f.clock.Now().Add(-10 * 24 * time.Hour)
	for i := 0; i < 3; i++ {
		f.seedSettledWash(t, base.Add(time.Duration(i)*24*time.Hour))
	}

	free := f.startDirect(t, "BA 9 KHA 7777")
	_, err := f.svc.AdvanceToReadyForPickup(ctx, domain.AdvanceRequest{TransactionID: free.ID.String()})
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, domain.CheckoutRequest{
		TransactionID:  free.ID.String(),
		PaymentModeID:  f.paymentModeID.String(),
		GrossAmount:    700,
		DiscountAmount: 700,
		NetAmount:      0,
		Redeemed:       true,
		WashCount:      5,
	})
	assert.ErrorIs(t, err, domain.ErrStreakNotEligible)

	// The failed checkout must not leave partial redemption behind.
	eligible, err := f.svc.EligibleStreakTransactions(ctx, f.customerID.String())
	require.NoError(t, err)
	assert.Len(t, eligible, 3)
}

func TestCheckoutValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	txn := f.startDirect(t, "BA 1 CHA 1111")
	_, err := f.svc.AdvanceToReadyForPickup(ctx, domain.AdvanceRequest{TransactionID: txn.ID.String()})
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, domain.CheckoutRequest{
		TransactionID: txn.ID.String(),
		PaymentModeID: f.paymentModeID.String(),
		GrossAmount:   700,
		DiscountAmount: 100,
		NetAmount:     700,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.Checkout(ctx, domain.CheckoutRequest{
		TransactionID: txn.ID.String(),
		PaymentModeID: f.paymentModeID.String(),
		GrossAmount:   700,
		NetAmount:     700,
		Redeemed:      true,
	})
	assert.ErrorIs(t, err, domain.ErrWashCountRequired)

	_, err = f.svc.Checkout(ctx, domain.CheckoutRequest{
		TransactionID: txn.ID.String(),
		GrossAmount:   700,
		NetAmount:     700,
	})
	assert.ErrorIs(t, err, domain.ErrPaymentModeRequired)

	// Decimal inputs that are arithmetically consistent must pass; the
	// consistency check tolerates float rounding.
	done, err := f.svc.Checkout(ctx, domain.CheckoutRequest{
		TransactionID:  txn.ID.String(),
		PaymentModeID:  f.paymentModeID.String(),
		GrossAmount:    700.3,
		DiscountAmount: 0.1,
		NetAmount:      700.2,
	})
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, done.Status)
}

func TestCheckoutParkingSubCharge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	txn := f.startDirect(t, "BA 3 CHA 3333")
	_, err := f.svc.AdvanceToReadyForPickup(ctx, domain.AdvanceRequest{TransactionID: txn.ID.String()})
	require.NoError(t, err)

	in := f.clock.Now().Add(-2 * time.Hour)
	out := f.clock.Now()
	done, err := f.svc.Checkout(ctx, domain.CheckoutRequest{
		TransactionID: txn.ID.String(),
		PaymentModeID: f.paymentModeID.String(),
		GrossAmount:   800,
		NetAmount:     800,
		ParkingIn:     &in,
		ParkingOut:    &out,
		ParkingCost:   100,
	})
	require.NoError(t, err)
	require.NotNil(t, done.ParkingIn)
	require.NotNil(t, done.ParkingOut)
	assert.Equal(t, float64(100), done.ParkingCost)

	// A parking window that ends before it begins is rejected.
	_, err = f.svc.RollbackOneStep(ctx, txn.ID.String())
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, domain.CheckoutRequest{
		TransactionID: txn.ID.String(),
		PaymentModeID: f.paymentModeID.String(),
		GrossAmount:   800,
		NetAmount:     800,
		ParkingIn:     &out,
		ParkingOut:    &in,
		ParkingCost:   100,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	// The rollback already cleared the sub-charge alongside the payment.
	var current domain.Transaction
	require.NoError(t, f.db.Where("id = ?", txn.ID).Take(&current).Error)
	assert.Nil(t, current.ParkingIn)
	assert.Nil(t, current.ParkingOut)
	assert.Zero(t, current.ParkingCost)
}

func TestRollbackCheckout(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	base := f.clock.Now().Add(-20 * 24 * time.Hour)
	for i := 0; i < 5; i++ {
		f.seedSettledWash(t, base.Add(time.Duration(i)*24*time.Hour))
	}

	free := f.startDirect(t, "BA 9 KHA 7777")
	_, err := f.svc.AdvanceToReadyForPickup(ctx, domain.AdvanceRequest{TransactionID: free.ID.String()})
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, domain.CheckoutRequest{
		TransactionID:  free.ID.String(),
		PaymentModeID:  f.paymentModeID.String(),
		GrossAmount:    700,
		DiscountAmount: 700,
		NetAmount:      0,
		Redeemed:       true,
		WashCount:      5,
	})
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)

	rolled, err := f.svc.RollbackOneStep(ctx, free.ID.String())
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusReadyForPickup, rolled.Status)
	assert.Equal(t, transaction.PaymentPending, rolled.PaymentStatus)
	assert.Nil(t, rolled.TransactionTime)
	assert.False(t, rolled.Redeemed)
	assert.Zero(t, rolled.RedeemedCount)

	// The consumed streak washes come back.
	eligible, err := f.svc.EligibleStreakTransactions(ctx, f.customerID.String())
	require.NoError(t, err)
	assert.Len(t, eligible, 5)

	// Re-running the identical checkout lands in the same settled state:
	// same amounts, Completed, streak consumed again.
	redone, err := f.svc.Checkout(ctx, domain.CheckoutRequest{
		TransactionID:  free.ID.String(),
		PaymentModeID:  f.paymentModeID.String(),
		GrossAmount:    700,
		DiscountAmount: 700,
		NetAmount:      0,
		Redeemed:       true,
		WashCount:      5,
	})
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, redone.Status)
	assert.Equal(t, transaction.PaymentPaid, redone.PaymentStatus)
	assert.Equal(t, float64(700), redone.GrossAmount)
	assert.Equal(t, float64(700), redone.DiscountAmount)
	assert.Zero(t, redone.NetAmount)
	assert.True(t, redone.Redeemed)
	assert.Equal(t, 5, redone.RedeemedCount)

	eligible, err = f.svc.EligibleStreakTransactions(ctx, f.customerID.String())
	require.NoError(t, err)
	assert.Empty(t, eligible)
}

func TestRollbackWindowExpired(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	txn := f.startDirect(t, "BA 1 CHA 1111")
	_, err := f.svc.AdvanceToReadyForPickup(ctx, domain.AdvanceRequest{TransactionID: txn.ID.String()})
	require.NoError(t, err)
	f.checkout(t, txn.ID)

	f.clock.Advance(72*time.Hour + time.Minute)

	_, err = f.svc.RollbackOneStep(ctx, txn.ID.String())
	assert.ErrorIs(t, err, domain.ErrRollbackWindowExpired)
}

func TestRollbackStartedBooking(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	deadline := f.clock.Now().Add(2 * time.Hour)

	booked := f.book(t, deadline)
	started, err := f.svc.StartFromBooking(ctx, domain.StartFromBookingRequest{
		TransactionID: booked.ID.String(),
		ServiceTypeID: f.serviceTypeID.String(),
		VehicleNumber: "BA 2 PA 1234",
		ServiceRate:   700,
		ActualRate:    700,
	})
	require.NoError(t, err)

	rolled, err := f.svc.RollbackOneStep(ctx, started.ID.String())
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusBooked, rolled.Status)
	assert.Empty(t, rolled.VehicleNumber)
	assert.Nil(t, rolled.ServiceTypeID)
	require.NotNil(t, rolled.DeleteAt)
	assert.Equal(t, deadline.Add(15*time.Minute), rolled.DeleteAt.UTC())
}

func TestRollbackWalkInHasNoEarlierState(t *testing.T) {
	f := setup(t)

	txn := f.startDirect(t, "BA 1 CHA 1111")
	_, err := f.svc.RollbackOneStep(context.Background(), txn.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	booked := f.book(t, f.clock.Now().Add(time.Hour))
	cancelled, err := f.svc.Cancel(ctx, booked.ID.String())
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCancelled, cancelled.Status)
	assert.Equal(t, transaction.PaymentCancelled, cancelled.PaymentStatus)

	// Ready for Pickup is past the point of cancellation.
	txn := f.startDirect(t, "BA 1 CHA 1111")
	_, err = f.svc.AdvanceToReadyForPickup(ctx, domain.AdvanceRequest{TransactionID: txn.ID.String()})
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, txn.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCacheInvalidatedAfterMutation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.store.Set(ctx, cache.KeyCarwashToday, []byte(`[]`), time.Hour))

	f.book(t, f.clock.Now().Add(time.Hour))

	_, err := f.store.Get(ctx, cache.KeyCarwashToday)
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestPurgeExpiredBookings(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	booked := f.book(t, f.clock.Now().Add(time.Hour))
	started := f.startDirect(t, "BA 1 CHA 1111")

	// Before the grace period ends nothing is purged.
	f.clock.Advance(time.Hour)
	purged, err := f.svc.PurgeExpiredBookings(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged)

	f.clock.Advance(16 * time.Minute)
	purged, err = f.svc.PurgeExpiredBookings(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	_, err = f.svc.RollbackOneStep(ctx, booked.ID.String())
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	// Started transactions never carry a purge stamp.
	day, err := f.svc.ListActiveAndTodays(ctx, f.clock.Now())
	require.NoError(t, err)
	require.Len(t, day, 1)
	assert.Equal(t, started.ID, day[0].ID)
}

func TestListActiveAndTodays(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// A wash settled weeks ago stays out of today's view.
	f.seedSettledWash(t, f.clock.Now().Add(-21*24*time.Hour))

	open := f.startDirect(t, "BA 1 CHA 1111")
	settledToday := f.startDirect(t, "BA 2 PA 2222")
	_, err := f.svc.AdvanceToReadyForPickup(ctx, domain.AdvanceRequest{TransactionID: settledToday.ID.String()})
	require.NoError(t, err)
	f.checkout(t, settledToday.ID)

	txns, err := f.svc.ListActiveAndTodays(ctx, f.clock.Now())
	require.NoError(t, err)
	require.Len(t, txns, 2)

	ids := map[snowflake.ID]bool{txns[0].ID: true, txns[1].ID: true}
	assert.True(t, ids[open.ID])
	assert.True(t, ids[settledToday.ID])
}
