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
	"github.com/pitstophq/pitstop/internal/parking/domain"
	"github.com/pitstophq/pitstop/internal/transaction"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	systemModule  = "Parking"
	visitorDomain = "parking"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	Repo        domain.Repository
	CatalogRepo catalogdomain.Repository
	Cache       *cache.Cache
	Policy      *config.PolicyHolder
	Audit       auditdomain.Recorder
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	genID       *snowflake.Node
	repo        domain.Repository
	catalogRepo catalogdomain.Repository
	cache       *cache.Cache
	policy      *config.PolicyHolder
	audit       auditdomain.Recorder
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("parking.service"),
		clock:       p.Clock,
		genID:       p.GenID,
		repo:        p.Repo,
		catalogRepo: p.CatalogRepo,
		cache:       p.Cache,
		policy:      p.Policy,
		audit:       p.Audit,
	}
}

// Park admits a vehicle: one slot is taken from the lot and a Parked
// transaction opens, atomically.
func (s *Service) Park(ctx context.Context, req domain.ParkRequest) (domain.Transaction, error) {
	vehicleTypeID, err := parseID(req.VehicleTypeID)
	if err != nil {
		return domain.Transaction{}, err
	}
	vehicleNumber := normalizeVehicle(req.VehicleNumber)
	if vehicleNumber == "" {
		return domain.Transaction{}, domain.ErrVehicleNumberRequired
	}

	now := s.clock.Now()
	policy := s.policy.Get()

	var txn domain.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		vt, err := s.repo.FindVehicleType(ctx, tx, vehicleTypeID)
		if err != nil {
			return err
		}
		if vt == nil {
			return domain.ErrVehicleTypeNotFound
		}
		if !vt.Operational {
			return domain.ErrVehicleTypeUnavailable
		}

		parked, err := s.repo.FindParkedByVehicle(ctx, tx, vehicleNumber)
		if err != nil {
			return err
		}
		if parked != nil {
			return domain.ErrVehicleAlreadyParked
		}

		taken, err := s.repo.IncrementOccupancy(ctx, tx, vehicleTypeID, now)
		if err != nil {
			return err
		}
		if !taken {
			return domain.ErrLotFull
		}

		bill, err := billno.Reserve(ctx, now, policy.BillNoMaxAttempts, func(ctx context.Context, candidate string) (bool, error) {
			return s.repo.ExistsBillNo(ctx, tx, candidate)
		})
		if err != nil {
			return err
		}

		txn = domain.Transaction{
			ID:            s.genID.Generate(),
			VehicleTypeID: vehicleTypeID,
			VehicleNumber: vehicleNumber,
			Status:        transaction.StatusParked,
			PaymentStatus: transaction.PaymentPending,
			BillNo:        bill,
			EntryTime:     now,
			Rate:          vt.Rate,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return s.repo.Insert(ctx, tx, &txn)
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.afterCommit(ctx, auditdomain.ActivityCreate, "Vehicle parked", txn)
	s.cache.IncrVisitor(ctx, visitorDomain, now)
	return txn, nil
}

// Checkout settles a Parked transaction and frees the slot.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.Transaction, error) {
	txnID, err := parseID(req.TransactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	paymentModeID, err := parseID(req.PaymentModeID)
	if err != nil {
		return domain.Transaction{}, domain.ErrPaymentModeRequired
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
		if !transaction.ParkingTable.Allowed(current.Status, transaction.StatusCompleted) {
			return domain.ErrInvalidTransition
		}

		mode, err := s.catalogRepo.FindPaymentMode(ctx, tx, paymentModeID)
		if err != nil {
			return err
		}
		if mode == nil {
			return catalogdomain.ErrPaymentModeNotFound
		}

		freed, err := s.repo.DecrementOccupancy(ctx, tx, current.VehicleTypeID, now)
		if err != nil {
			return err
		}
		if !freed {
			return domain.ErrOccupancyUnderflow
		}

		current.Status = transaction.StatusCompleted
		current.PaymentStatus = transaction.PaymentPaid
		current.PaymentModeID = &paymentModeID
		current.GrossAmount = req.GrossAmount
		current.DiscountAmount = req.DiscountAmount
		current.NetAmount = req.NetAmount
		current.ExitTime = &now
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

	s.afterCommit(ctx, auditdomain.ActivityUpdate, "Parking checked out", txn)
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
		if !transaction.ParkingTable.Cancellable(current.Status) {
			return domain.ErrInvalidTransition
		}

		freed, err := s.repo.DecrementOccupancy(ctx, tx, current.VehicleTypeID, now)
		if err != nil {
			return err
		}
		if !freed {
			return domain.ErrOccupancyUnderflow
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

	s.afterCommit(ctx, auditdomain.ActivityCancelled, "Parking transaction cancelled", txn)
	return txn, nil
}

// RollbackOneStep returns a settled or cancelled vehicle to Parked, taking
// a slot back. It fails with ErrLotFull when the lot has filled up since.
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
		case transaction.StatusCancelled:
			if !transaction.WithinRollbackWindow(now, current.UpdatedAt, window) {
				return domain.ErrRollbackWindowExpired
			}
		default:
			return domain.ErrInvalidTransition
		}

		// The same plate must not end up parked twice.
		parked, err := s.repo.FindParkedByVehicle(ctx, tx, current.VehicleNumber)
		if err != nil {
			return err
		}
		if parked != nil {
			return domain.ErrVehicleAlreadyParked
		}

		taken, err := s.repo.IncrementOccupancy(ctx, tx, current.VehicleTypeID, now)
		if err != nil {
			return err
		}
		if !taken {
			return domain.ErrLotFull
		}

		current.Status = transaction.StatusParked
		current.PaymentStatus = transaction.PaymentPending
		current.PaymentModeID = nil
		current.GrossAmount = 0
		current.DiscountAmount = 0
		current.NetAmount = 0
		current.ExitTime = nil
		current.TransactionTime = nil
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

	s.afterCommit(ctx, auditdomain.ActivityRollback, "Parking transaction rolled back", txn)
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
		payload, err = s.cache.ReadThrough(ctx, cache.KeyParkingToday, s.policy.Get().CacheTTL(), load)
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

func (s *Service) ListVehicleTypes(ctx context.Context) ([]domain.VehicleType, error) {
	vts, err := s.repo.ListVehicleTypes(ctx, s.db)
	if err != nil {
		return nil, err
	}
	out := make([]domain.VehicleType, 0, len(vts))
	for _, vt := range vts {
		if vt != nil {
			out = append(out, *vt)
		}
	}
	return out, nil
}

func (s *Service) afterCommit(ctx context.Context, activityType auditdomain.ActivityType, description string, txn domain.Transaction) {
	s.cache.Invalidate(ctx, cache.KeyParkingToday)

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
