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
	catalogdomain "github.com/pitstophq/pitstop/internal/catalog/domain"
	"github.com/pitstophq/pitstop/internal/clock"
	"github.com/pitstophq/pitstop/internal/config"
	customerdomain "github.com/pitstophq/pitstop/internal/customer/domain"
	"github.com/pitstophq/pitstop/internal/simracing/domain"
	"github.com/pitstophq/pitstop/internal/transaction"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const systemModule = "Sim Racing"

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
		log:          p.Log.Named("simracing.service"),
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
		customer, err := s.customerRepo.FindByID(ctx, tx, customerdomain.DomainSimRacing, customerID)
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

	s.afterCommit(ctx, auditdomain.ActivityBooking, "Sim racing booking created", txn)
	s.cache.IncrVisitor(ctx, string(customerdomain.DomainSimRacing), now)
	return txn, nil
}

// StartSession puts a driver on a rig. With a transaction ID it activates a
// booking; without one it opens a walk-in session. Either way the rig
// acquisition is a conditional update, so an occupied rig loses the race
// cleanly.
func (s *Service) StartSession(ctx context.Context, req domain.StartSessionRequest) (domain.Transaction, error) {
	rigID, err := parseID(req.RigID)
	if err != nil {
		return domain.Transaction{}, domain.ErrRigNotFound
	}
	if req.RatePerSession < 0 {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	policy := s.policy.Get()

	var txn domain.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rig, err := s.repo.FindRig(ctx, tx, rigID)
		if err != nil {
			return err
		}
		if rig == nil {
			return domain.ErrRigNotFound
		}
		if !rig.Operational {
			return domain.ErrRigNotOperational
		}

		if strings.TrimSpace(req.TransactionID) != "" {
			txnID, err := parseID(req.TransactionID)
			if err != nil {
				return err
			}
			current, err := s.repo.FindByIDForUpdate(ctx, tx, txnID)
			if err != nil {
				return err
			}
			if current == nil {
				return domain.ErrTransactionNotFound
			}
			if !transaction.SimRacingTable.Allowed(current.Status, transaction.StatusActive) {
				return domain.ErrInvalidTransition
			}
			if err := s.guardCustomerFree(ctx, tx, current.CustomerID); err != nil {
				return err
			}

			acquired, err := s.repo.AcquireRig(ctx, tx, rigID, current.CustomerID, current.ID, now)
			if err != nil {
				return err
			}
			if !acquired {
				return domain.ErrRigOccupied
			}

			current.RigID = &rigID
			current.RatePerSession = req.RatePerSession
			current.SessionStart = &now
			current.Status = transaction.StatusActive
			current.DeleteAt = nil
			current.UpdatedAt = now
			if err := s.repo.Update(ctx, tx, current); err != nil {
				return err
			}
			txn = *current
			return nil
		}

		customerID, err := parseID(req.CustomerID)
		if err != nil {
			return err
		}
		customer, err := s.customerRepo.FindByID(ctx, tx, customerdomain.DomainSimRacing, customerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return customerdomain.ErrNotFound
		}
		if err := s.guardCustomerFree(ctx, tx, customerID); err != nil {
			return err
		}

		bill, err := billno.Reserve(ctx, now, policy.BillNoMaxAttempts, func(ctx context.Context, candidate string) (bool, error) {
			return s.repo.ExistsBillNo(ctx, tx, candidate)
		})
		if err != nil {
			return err
		}

		// The transaction ID is minted up front so the rig can reference
		// its occupant from the moment it leaves the pit.
		txnID := s.genID.Generate()
		acquired, err := s.repo.AcquireRig(ctx, tx, rigID, customerID, txnID, now)
		if err != nil {
			return err
		}
		if !acquired {
			return domain.ErrRigOccupied
		}

		txn = domain.Transaction{
			ID:             txnID,
			CustomerID:     customerID,
			RigID:          &rigID,
			Status:         transaction.StatusActive,
			PaymentStatus:  transaction.PaymentPending,
			BillNo:         bill,
			SessionStart:   &now,
			RatePerSession: req.RatePerSession,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return s.repo.Insert(ctx, tx, &txn)
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.afterCommit(ctx, auditdomain.ActivityUpdate, "Sim racing session started", txn)
	if strings.TrimSpace(req.TransactionID) == "" {
		s.cache.IncrVisitor(ctx, string(customerdomain.DomainSimRacing), now)
	}
	return txn, nil
}

// Complete settles an Active session and returns the rig to the pit, in the
// same store transaction.
func (s *Service) Complete(ctx context.Context, req domain.CompleteRequest) (domain.Transaction, error) {
	txnID, err := parseID(req.TransactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	paymentModeID, err := parseID(req.PaymentModeID)
	if err != nil {
		return domain.Transaction{}, domain.ErrPaymentModeRequired
	}
	if req.DurationMinutes <= 0 {
		return domain.Transaction{}, domain.ErrInvalidDuration
	}
	if req.GrossAmount < 0 || req.DiscountAmount < 0 || req.NetAmount < 0 ||
		!transaction.AmountsConsistent(req.GrossAmount, req.DiscountAmount, req.NetAmount) {
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
		if !transaction.SimRacingTable.Allowed(current.Status, transaction.StatusCompleted) {
			return domain.ErrInvalidTransition
		}

		mode, err := s.catalogRepo.FindPaymentMode(ctx, tx, paymentModeID)
		if err != nil {
			return err
		}
		if mode == nil {
			return catalogdomain.ErrPaymentModeNotFound
		}

		if current.RigID != nil {
			if _, err := s.repo.ReleaseRig(ctx, tx, *current.RigID, now); err != nil {
				return err
			}
		}

		current.Status = transaction.StatusCompleted
		current.PaymentStatus = transaction.PaymentPaid
		current.PaymentModeID = &paymentModeID
		current.DurationMinutes = req.DurationMinutes
		current.GrossAmount = req.GrossAmount
		current.DiscountAmount = req.DiscountAmount
		current.NetAmount = req.NetAmount
		current.SessionEnd = &now
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

	s.afterCommit(ctx, auditdomain.ActivityUpdate, "Sim racing session completed", txn)
	return txn, nil
}

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
		if !transaction.SimRacingTable.Cancellable(current.Status) {
			return domain.ErrInvalidTransition
		}

		// Cancelling an active session frees the rig.
		if current.Status == transaction.StatusActive && current.RigID != nil {
			if _, err := s.repo.ReleaseRig(ctx, tx, *current.RigID, now); err != nil {
				return err
			}
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

	s.afterCommit(ctx, auditdomain.ActivityCancelled, "Sim racing transaction cancelled", txn)
	return txn, nil
}

// RollbackOneStep reverses the last lifecycle step within the rollback
// window. Rolling back a settlement re-acquires the rig, so it fails with
// ErrRigOccupied when another session has taken the seat since.
func (s *Service) RollbackOneStep(ctx context.Context, transactionID string) (domain.Transaction, error) {
	txnID, err := parseID(transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}

	now := s.clock.Now()
	policy := s.policy.Get()
	window := policy.RollbackWindow()

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
			if current.RigID != nil {
				acquired, err := s.repo.AcquireRig(ctx, tx, *current.RigID, current.CustomerID, current.ID, now)
				if err != nil {
					return err
				}
				if !acquired {
					return domain.ErrRigOccupied
				}
			}
			current.Status = transaction.StatusActive
			current.PaymentStatus = transaction.PaymentPending
			current.PaymentModeID = nil
			current.DurationMinutes = 0
			current.GrossAmount = 0
			current.DiscountAmount = 0
			current.NetAmount = 0
			current.SessionEnd = nil
			current.TransactionTime = nil
			current.UpdatedAt = now

		case transaction.StatusActive:
			if current.BookingDeadline == nil {
				return domain.ErrInvalidTransition
			}
			if !withinWindow(now, current.SessionStart, window) {
				return domain.ErrRollbackWindowExpired
			}
			if current.RigID != nil {
				if _, err := s.repo.ReleaseRig(ctx, tx, *current.RigID, now); err != nil {
					return err
				}
			}
			deleteAt := current.BookingDeadline.Add(policy.BookingGrace())
			current.Status = transaction.StatusBooked
			current.RigID = nil
			current.SessionStart = nil
			current.RatePerSession = 0
			current.DeleteAt = &deleteAt
			current.UpdatedAt = now

		case transaction.StatusCancelled:
			if current.BookingDeadline == nil {
				return domain.ErrInvalidTransition
			}
			if !transaction.WithinRollbackWindow(now, current.UpdatedAt, window) {
				return domain.ErrRollbackWindowExpired
			}
			deleteAt := current.BookingDeadline.Add(policy.BookingGrace())
			current.Status = transaction.StatusBooked
			current.PaymentStatus = transaction.PaymentPending
			current.DeleteAt = &deleteAt
			current.UpdatedAt = now

		default:
			return domain.ErrInvalidTransition
		}

		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}
		txn = *current
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.afterCommit(ctx, auditdomain.ActivityRollback, "Sim racing transaction rolled back", txn)
	return txn, nil
}

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
		payload, err = s.cache.ReadThrough(ctx, cache.KeySimracingToday, s.policy.Get().CacheTTL(), load)
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

func (s *Service) ListRigs(ctx context.Context) ([]domain.Rig, error) {
	rigs, err := s.repo.ListRigs(ctx, s.db)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Rig, 0, len(rigs))
	for _, rig := range rigs {
		if rig != nil {
			out = append(out, *rig)
		}
	}
	return out, nil
}

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
		s.cache.Invalidate(ctx, cache.KeySimracingToday)
		s.audit.Record(ctx, auditdomain.Entry{
			Description:  "Expired sim racing bookings purged",
			ActivityType: auditdomain.ActivityDelete,
			SystemModule: systemModule,
			Metadata:     map[string]any{"purged": purged},
		})
	}
	return purged, nil
}

// guardCustomerFree rejects a session start while the customer already has
// one on track. One driver, one rig.
func (s *Service) guardCustomerFree(ctx context.Context, tx *gorm.DB, customerID snowflake.ID) error {
	active, err := s.repo.FindActiveByCustomer(ctx, tx, customerID)
	if err != nil {
		return err
	}
	if active != nil {
		return domain.ErrCustomerOnTrack
	}
	return nil
}

func (s *Service) afterCommit(ctx context.Context, activityType auditdomain.ActivityType, description string, txn domain.Transaction) {
	s.cache.Invalidate(ctx, cache.KeySimracingToday)

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
