package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActivityType classifies a state-changing operation.
type ActivityType string

const (
	ActivityRollback  ActivityType = "Rollback"
	ActivityBooking   ActivityType = "Booking"
	ActivityCreate    ActivityType = "Create"
	ActivityLogin     ActivityType = "Login"
	ActivityLogout    ActivityType = "Logout"
	ActivityUpdate    ActivityType = "Update"
	ActivityCancelled ActivityType = "Cancelled"
	ActivityDelete    ActivityType = "Delete"
)

// Activity is one append-only audit row. Never read by the state machines.
type Activity struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	Description  string            `gorm:"not null;size:500" json:"description"`
	ActivityType ActivityType      `gorm:"not null;index" json:"activity_type"`
	SystemModule string            `gorm:"not null;index" json:"system_module"`
	ActorID      *string           `json:"actor_id,omitempty"`
	IPAddress    *string           `json:"ip_address,omitempty"`
	UserAgent    *string           `json:"user_agent,omitempty"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	ActivityAt   time.Time         `gorm:"not null;index" json:"activity_at"`
	CreatedAt    time.Time         `gorm:"not null" json:"created_at"`
}

func (Activity) TableName() string { return "system_activities" }

// Entry is the caller-facing shape of one audit append.
type Entry struct {
	Description  string
	ActivityType ActivityType
	SystemModule string
	ActorID      string
	IP           string
	UserAgent    string
	Metadata     map[string]any
}

type ListRequest struct {
	SystemModule string
	ActivityType ActivityType
	From         *time.Time
	To           *time.Time
	Limit        int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, activity *Activity) error
	List(ctx context.Context, db *gorm.DB, req ListRequest) ([]*Activity, error)
}

// Recorder appends audit entries. Record is fire-and-forget: it must never
// block a state transition or surface a failure to it.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
	List(ctx context.Context, req ListRequest) ([]Activity, error)
}

var (
	ErrInvalidDescription = errors.New("invalid_description")
	ErrInvalidType        = errors.New("invalid_activity_type")
)
