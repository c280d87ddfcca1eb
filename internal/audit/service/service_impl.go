package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/pitstophq/pitstop/internal/audit/domain"
	"github.com/pitstophq/pitstop/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const recordTimeout = 5 * time.Second

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func New(p Params) auditdomain.Recorder {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Record appends the entry on a detached goroutine. The caller returns as
// soon as its own transaction has committed; a failed append is logged and
// swallowed.
func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) {
	description := strings.TrimSpace(entry.Description)
	if description == "" {
		s.log.Warn("audit entry dropped", zap.Error(auditdomain.ErrInvalidDescription))
		return
	}
	if entry.ActivityType == "" {
		s.log.Warn("audit entry dropped", zap.Error(auditdomain.ErrInvalidType))
		return
	}

	module := strings.TrimSpace(entry.SystemModule)
	if module == "" {
		module = "unknown"
	}

	activity := auditdomain.Activity{
		ID:           s.genID.Generate(),
		Description:  description,
		ActivityType: entry.ActivityType,
		SystemModule: module,
		ActivityAt:   s.clock.Now(),
		CreatedAt:    s.clock.Now(),
	}
	if actor := strings.TrimSpace(entry.ActorID); actor != "" {
		activity.ActorID = &actor
	}
	if ip := strings.TrimSpace(entry.IP); ip != "" {
		activity.IPAddress = &ip
	}
	if ua := strings.TrimSpace(entry.UserAgent); ua != "" {
		activity.UserAgent = &ua
	}
	if len(entry.Metadata) > 0 {
		activity.Metadata = datatypes.JSONMap(entry.Metadata)
	}

	go func() {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()
		if err := s.repo.Insert(writeCtx, s.db, &activity); err != nil {
			s.log.Warn("failed to write audit log",
				zap.String("module", activity.SystemModule),
				zap.String("type", string(activity.ActivityType)),
				zap.Error(err),
			)
		}
	}()
}

func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) ([]auditdomain.Activity, error) {
	items, err := s.repo.List(ctx, s.db, req)
	if err != nil {
		return nil, err
	}
	activities := make([]auditdomain.Activity, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		activities = append(activities, *item)
	}
	return activities, nil
}
