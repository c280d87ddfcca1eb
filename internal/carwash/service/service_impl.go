package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/pitstophq/pitstop/internal/audit/domain"
	"github.com/pitstophq/pitstop/internal/auditctx"
	"github.com/pitstophq/pitstop/internal/billno"
	"github.com/pitstophq/pitstop/internal/cache"
	"github.com/pitstophq/pitstop/internal/carwash/domain"
	catalogdomain "github.com/pitstophq/pitstop/internal/catalog/domain"
	"github.com/pitstophq/pitstop/internal/clock"
	"github.com/pitstophq/pitstop/internal/config"
	customerdomain "github.com/pitstophq/pitstop/internal/customer/domain"
	"github.com/pitstophq/pitstop/internal/transaction"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const systemModule = "Car Wash"

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	GenID        *snowflake.Node
	Repo         domain.Repository
	CustomerRepo customerdomain.Repository
	CatalogRepo  catalogdomain.Repository
	Cache        *cache.Cache
	Policy       *config.PolicyHolder
	Audit        auditdomain.Recorder
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	genID        *snowflake.Node
	repo         domain.Repository
	customerRepo customerdomain.Repository
	catalogRepo  catalogdomain.Repository
	cache        *cache.Cache
	policy       *config.PolicyHolder
	audit        auditdomain.Recorder
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("carwash.service"),
		clock:        p.Clock,
		genID:        p.GenID,
		repo:         p.Repo,
		customerRepo: p.CustomerRepo,
		catalogRepo:  p.CatalogRepo,
		cache:        p.Cache,
		policy:       p.Policy,
		audit:        p.Audit,
	}
}

// CreateBooking opens a transaction in Booked with a reserved slot. The row
// carries a purge stamp: if the booking is never started it is deleted once
// the grace period after the deadline elapses.
func (s *Service) CreateBooking(ctx context.Context, req domain.CreateBookingRequest) (domain.Transaction, error) {
	customerID, err := parseID(req.CustomerID)
	if err != nil {
		return domain.Transaction{}, err
	}

	now := s.clock.Now()
	deadline := req.BookingDeadline.UTC()
	if deadline.IsZero() || !deadline.After(now) {
		return domain.Transaction{}, domain.ErrInvalidDeadline
	}

	policy := s.policy.Get()
	deleteAt := deadline.Add(policy.BookingGrace())

	var txn domain.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, err := s.customerRepo.FindByID(ctx, tx, customerdomain.DomainCarWash, customerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return customerdomain.ErrNotFound
		}

		clash, err := s.repo.FindBookedByDeadline(ctx, tx, deadline)
		if err != nil {
			return err
		}
		if clash != nil {
			return domain.ErrDoubleBooking
		}

		bill, err := billno.Reserve(ctx, now, policy.BillNoMaxAttempts, func(ctx context.Context, candidate string) (bool, error) {
			return s.repo.ExistsBillNo(ctx, tx, candidate)
		})
		if err != nil {
			return err
		}

		txn = domain.Transaction{
			ID:              s.genID.Generate(),
			CustomerID:      customerID,
			Status:          transaction.StatusBooked,
			PaymentStatus:   transaction.PaymentPending,
			BillNo:          bill,
			BookingDeadline: &deadline,
			DeleteAt:        &deleteAt,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return s.repo.Insert(ctx, tx, &txn)
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.afterCommit(ctx, auditdomain.ActivityBooking, "Car wash booking created", txn)
	s.cache.IncrVisitor(ctx, string(customerdomain.DomainCarWash), now)
	return txn, nil
}

// StartFromBooking moves a Booked transaction to In Queue, attaching the
// service and vehicle the customer showed up with. The purge stamp is
// cleared: a started transaction is never deleted.
func (s *Service) StartFromBooking(ctx context.Context, req domain.StartFromBookingRequest) (domain.Transaction, error) {
	txnID, err := parseID(req.TransactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	serviceTypeID, err := parseID(req.ServiceTypeID)
	if err != nil {
		return domain.Transaction{}, err
	}
	vehicleNumber := normalizeVehicle(req.VehicleNumber)
	if vehicleNumber == "" {
		return domain.Transaction{}, domain.ErrVehicleNumberRequired
	}
	if req.ServiceRate < 0 || req.ActualRate < 0 {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}

	now := s.clock.Now()

	var txn domain.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, txnID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrTransactionNotFound
		}
		if !transaction.CarWashTable.Allowed(current.Status, transaction.StatusInQueue) {
			return domain.ErrInvalidTransition
		}

		serviceType, err := s.catalogRepo.FindServiceType(ctx, tx, serviceTypeID)
		if err != nil {
			return err
		}
		if serviceType == nil {
			return catalogdomain.ErrServiceTypeNotFound
		}

		open, err := s.repo.FindActiveByServiceAndVehicle(ctx, tx, serviceTypeID, vehicleNumber)
		if err != nil {
			return err
		}
		if open != nil && open.ID != current.ID {
			return domain.ErrActiveTransactionExists
		}

		current.ServiceTypeID = &serviceTypeID
		current.VehicleNumber = vehicleNumber
		current.ServiceCost = req.ServiceRate
		current.ServiceActualRate = req.ActualRate
		current.ServiceStart = &now
		current.Status = transaction.StatusInQueue
		current.DeleteAt = nil
		current.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}
		txn = *current
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.afterCommit(ctx, auditdomain.ActivityUpdate, "Car wash service started from booking", txn)
	return txn, nil
}

// StartDirect opens a walk-in transaction straight in In Queue.
func (s *Service) StartDirect(ctx context.Context, req domain.StartDirectRequest) (domain.Transaction, error) {
	customerID, err := parseID(req.CustomerID)
	if err != nil {
		return domain.Transaction{}, err
	}
	serviceTypeID, err := parseID(req.ServiceTypeID)
	if err != nil {
		return domain.Transaction{}, err
	}
	vehicleNumber := normalizeVehicle(req.VehicleNumber)
	if vehicleNumber == "" {
		return domain.Transaction{}, domain.ErrVehicleNumberRequired
	}
	if req.ServiceRate < 0 || req.ActualRate < 0 {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	policy := s.policy.Get()

	var txn domain.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, err := s.customerRepo.FindByID(ctx, tx, customerdomain.DomainCarWash, customerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return customerdomain.ErrNotFound
		}

		serviceType, err := s.catalogRepo.FindServiceType(ctx, tx, serviceTypeID)
		if err != nil {
			return err
		}
		if serviceType == nil {
			return catalogdomain.ErrServiceTypeNotFound
		}

		open, err := s.repo.FindActiveByServiceAndVehicle(ctx, tx, serviceTypeID, vehicleNumber)
		if err != nil {
			return err
		}
		if open != nil {
			return domain.ErrActiveTransactionExists
		}

		bill, err := billno.Reserve(ctx, now, policy.BillNoMaxAttempts, func(ctx context.Context, candidate string) (bool, error) {
			return s.repo.ExistsBillNo(ctx, tx, candidate)
		})
		if err != nil {
			return err
		}

		txn = domain.Transaction{
			ID:                s.genID.Generate(),
			CustomerID:        customerID,
			ServiceTypeID:     &serviceTypeID,
			VehicleNumber:     vehicleNumber,
			Status:            transaction.StatusInQueue,
			PaymentStatus:     transaction.PaymentPending,
			BillNo:            bill,
			ServiceStart:      &now,
			ServiceCost:       req.ServiceRate,
			ServiceActualRate: req.ActualRate,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		return s.repo.Insert(ctx, tx, &txn)
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.afterCommit(ctx, auditdomain.ActivityCreate, "Car wash service started", txn)
	s.cache.IncrVisitor(ctx, string(customerdomain.DomainCarWash), now)
	return txn, nil
}

// AdvanceToReadyForPickup marks the wash finished and stores the inspection
// report taken before handover.
func (s *Service) AdvanceToReadyForPickup(ctx context.Context, req domain.AdvanceRequest) (domain.Transaction, error) {
	txnID, err := parseID(req.TransactionID)
	if err != nil {
		return domain.Transaction{}, err
	}

	now := s.clock.Now()

	var txn domain.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, txnID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrTransactionNotFound
		}
		if !transaction.CarWashTable.Allowed(current.Status, transaction.StatusReadyForPickup) {
			return domain.ErrInvalidTransition
		}

		if len(req.Inspections) > 0 {
			raw, err := json.Marshal(req.Inspections)
			if err != nil {
				return err
			}
			current.Inspections = datatypes.JSON(raw)
		}
		current.Status = transaction.StatusReadyForPickup
		current.ServiceEnd = &now
		current.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}
		txn = *current
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.afterCommit(ctx, auditdomain.ActivityUpdate, "Car wash ready for pickup", txn)
	return txn, nil
}

// Checkout settles a Ready for Pickup transaction: status and payment flip
// together, and a streak redemption consumes the customer's oldest eligible
// washes. Streak rows are flagged before this transaction turns Completed so
// it can never consume itself.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Transaction, error) {
	txnID, err := parseID(req.TransactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	paymentModeID, err := parseID(req.PaymentModeID)
	if err != nil {
		return domain.Transaction{}, domain.ErrPaymentModeRequired
	}
	if req.GrossAmount < 0 || req.DiscountAmount < 0 || req.NetAmount < 0 || req.ParkingCost < 0 ||
		!transaction.AmountsConsistent(req.GrossAmount, req.DiscountAmount, req.NetAmount) {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}
	if req.ParkingIn != nil && req.ParkingOut != nil && req.ParkingOut.Before(*req.ParkingIn) {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}
	if req.Redeemed && req.WashCount <= 0 {
		return domain.Transaction{}, domain.ErrWashCountRequired
	}

	now := s.clock.Now()

	var txn domain.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, txnID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrTransactionNotFound
		}
		if !transaction.CarWashTable.Allowed(current.Status, transaction.StatusCompleted) {
			return domain.ErrInvalidTransition
		}

		mode, err := s.catalogRepo.FindPaymentMode(ctx, tx, paymentModeID)
		if err != nil {
			return err
		}
		if mode == nil {
			return catalogdomain.ErrPaymentModeNotFound
		}

		if req.Redeemed {
			if current.ServiceTypeID == nil {
				return domain.ErrStreakNotEligible
			}
			marked, err := s.repo.MarkOldestEligibleRedeemed(ctx, tx, current.CustomerID, *current.ServiceTypeID, req.WashCount)
			if err != nil {
				return err
			}
			if marked < int64(req.WashCount) {
				return domain.ErrStreakNotEligible
			}
			current.Redeemed = true
			current.RedeemedCount = req.WashCount
		}

		current.Status = transaction.StatusCompleted
		current.PaymentStatus = transaction.PaymentPaid
		current.PaymentModeID = &paymentModeID
		current.GrossAmount = req.GrossAmount
		current.DiscountAmount = req.DiscountAmount
		current.NetAmount = req.NetAmount
		current.ParkingIn = req.ParkingIn
		current.ParkingOut = req.ParkingOut
		current.ParkingCost = req.ParkingCost
		current.TransactionTime = &now
		current.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}
		txn = *current
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.afterCommit(ctx, auditdomain.ActivityUpdate, "Car wash checked out", txn)
	return txn, nil
}

// Cancel moves a cancellable transaction to Cancelled. Settled transactions
// cannot be cancelled; they can only be rolled back.
func (s *Service) Cancel(ctx context.Context, transactionID string) (domain.Transaction, error) {
	txnID, err := parseID(transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}

	now := s.clock.Now()

	var txn domain.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, txnID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrTransactionNotFound
		}
		if !transaction.CarWashTable.Cancellable(current.Status) {
			return domain.ErrInvalidTransition
		}

		current.Status = transaction.StatusCancelled
		current.PaymentStatus = transaction.PaymentCancelled
		current.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}
		txn = *current
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.afterCommit(ctx, auditdomain.ActivityCancelled, "Car wash transaction cancelled", txn)
	return txn, nil
}

// RollbackOneStep reverses the most recent lifecycle step, within the
// rollback window measured from that step's own timestamp. Rolling back a
// settlement re-opens payment and returns any consumed streak washes.
func (s *Service) RollbackOneStep(ctx context.Context, transactionID string) (domain.Transaction, error) {
	txnID, err := parseID(transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}

	now := s.clock.Now()
	window := s.policy.Get().RollbackWindow()

	var txn domain.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, txnID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrTransactionNotFound
		}

		switch current.Status {
		case transaction.StatusCompleted:
			if !withinWindow(now, current.TransactionTime, window) {
				return domain.ErrRollbackWindowExpired
			}
			redeemedCount := current.RedeemedCount
			customerID := current.CustomerID
			serviceTypeID := current.ServiceTypeID

			current.Status = transaction.StatusReadyForPickup
			current.PaymentStatus = transaction.PaymentPending
			current.PaymentModeID = nil
			current.TransactionTime = nil
			current.GrossAmount = 0
			current.DiscountAmount = 0
			current.NetAmount = 0
			current.ParkingIn = nil
			current.ParkingOut = nil
			current.ParkingCost = 0
			current.Redeemed = false
			current.RedeemedCount = 0
			current.UpdatedAt = now
			if err := s.repo.Update(ctx, tx, current); err != nil {
				return err
			}
			// The update above already took this row out of Completed, so
			// the reversal below cannot touch it.
			if redeemedCount > 0 && serviceTypeID != nil {
				if _, err := s.repo.UnmarkNewestRedeemed(ctx, tx, customerID, *serviceTypeID, redeemedCount); err != nil {
					return err
				}
			}

		case transaction.StatusReadyForPickup:
			if !withinWindow(now, current.ServiceEnd, window) {
				return domain.ErrRollbackWindowExpired
			}
			current.Status = transaction.StatusInQueue
			current.ServiceEnd = nil
			current.Inspections = nil
			current.UpdatedAt = now
			if err := s.repo.Update(ctx, tx, current); err != nil {
				return err
			}

		case transaction.StatusInQueue:
			if current.BookingDeadline == nil {
				// A walk-in has no earlier state to return to.
				return domain.ErrInvalidTransition
			}
			if !withinWindow(now, current.ServiceStart, window) {
				return domain.ErrRollbackWindowExpired
			}
			deleteAt := current.BookingDeadline.Add(s.policy.Get().BookingGrace())
			current.Status = transaction.StatusBooked
			current.ServiceTypeID = nil
			current.VehicleNumber = ""
			current.ServiceStart = nil
			current.ServiceCost = 0
			current.ServiceActualRate = 0
			current.DeleteAt = &deleteAt
			current.UpdatedAt = now
			if err := s.repo.Update(ctx, tx, current); err != nil {
				return err
			}

		case transaction.StatusCancelled:
			if current.BookingDeadline == nil {
				return domain.ErrInvalidTransition
			}
			if !transaction.WithinRollbackWindow(now, current.UpdatedAt, window) {
				return domain.ErrRollbackWindowExpired
			}
			deleteAt := current.BookingDeadline.Add(s.policy.Get().BookingGrace())
			current.Status = transaction.StatusBooked
			current.PaymentStatus = transaction.PaymentPending
			current.DeleteAt = &deleteAt
			current.UpdatedAt = now
			if err := s.repo.Update(ctx, tx, current); err != nil {
				return err
			}

		default:
			return domain.ErrInvalidTransition
		}

		txn = *current
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.afterCommit(ctx, auditdomain.ActivityRollback, "Car wash transaction rolled back", txn)
	return txn, nil
}

// ListActiveAndTodays powers the operator dashboard. Today's list goes
// through the read-through cache; historical days hit the store directly.
func (s *Service) ListActiveAndTodays(ctx context.Context, day time.Time) ([]domain.Transaction, error) {
	dayStart := day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24*time.Hour - time.Nanosecond)

	load := func(ctx context.Context) ([]byte, error) {
		txns, err := s.repo.ListActiveAndTodays(ctx, s.db, dayStart, dayEnd)
		if err != nil {
			return nil, err
		}
		out := make([]domain.Transaction, 0, len(txns))
		for _, txn := range txns {
			if txn != nil {
				out = append(out, *txn)
			}
		}
		return json.Marshal(out)
	}

	var payload []byte
	var err error
	if dayStart.Equal(s.clock.Now().Truncate(24 * time.Hour)) {
		payload, err = s.cache.ReadThrough(ctx, cache.KeyCarwashToday, s.policy.Get().CacheTTL(), load)
	} else {
		payload, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}

	var txns []domain.Transaction
	if err := json.Unmarshal(payload, &txns); err != nil {
		return nil, err
	}
	return txns, nil
}

// EligibleStreakTransactions returns the customer's washes that would count
// toward a redemption, oldest first.
func (s *Service) EligibleStreakTransactions(ctx context.Context, customerID string) ([]domain.Transaction, error) {
	parsed, err := parseID(customerID)
	if err != nil {
		return nil, err
	}
	txns, err := s.repo.EligibleStreak(ctx, s.db, parsed)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Transaction, 0, len(txns))
	for _, txn := range txns {
		if txn != nil {
			out = append(out, *txn)
		}
	}
	return out, nil
}

// PurgeExpiredBookings removes abandoned bookings whose purge stamp has
// passed. Called by the scheduler; the cache is only invalidated when rows
// actually went away.
func (s *Service) PurgeExpiredBookings(ctx context.Context) (int64, error) {
	now := s.clock.Now()

	var purged int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		purged, err = s.repo.PurgeExpiredBookings(ctx, tx, now)
		return err
	})
	if err != nil {
		return 0, err
	}

	if purged > 0 {
		s.cache.Invalidate(ctx, cache.KeyCarwashToday)
		s.audit.Record(ctx, auditdomain.Entry{
			Description:  "Expired car wash bookings purged",
			ActivityType: auditdomain.ActivityDelete,
			SystemModule: systemModule,
			Metadata:     map[string]any{"purged": purged},
		})
	}
	return purged, nil
}

// afterCommit runs the side effects of a committed state change: cache
// invalidation first, then the audit append.
func (s *Service) afterCommit(ctx context.Context, activityType auditdomain.ActivityType, description string, txn domain.Transaction) {
	s.cache.Invalidate(ctx, cache.KeyCarwashToday)

	meta := auditctx.FromContext(ctx)
	s.audit.Record(ctx, auditdomain.Entry{
		Description:  description,
		ActivityType: activityType,
		SystemModule: systemModule,
		ActorID:      meta.ActorID,
		IP:           meta.IP,
		UserAgent:    meta.UserAgent,
		Metadata: map[string]any{
			"transaction_id": txn.ID.String(),
			"bill_no":        txn.BillNo,
			"status":         string(txn.Status),
			"payment_status": string(txn.PaymentStatus),
		},
	})
}

func withinWindow(now time.Time, ref *time.Time, window time.Duration) bool {
	if ref == nil {
		return false
	}
	return transaction.WithinRollbackWindow(now, *ref, window)
}

func parseID(raw string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || parsed == 0 {
		return 0, domain.ErrInvalidID
	}
	return parsed, nil
}

func normalizeVehicle(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), " "))
}
