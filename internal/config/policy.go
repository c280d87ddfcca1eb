package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Policy carries operational policy knobs that venue staff may tune without
// a redeploy: rollback windows, booking grace, cache TTLs.
type Policy struct {
	RollbackWindowHours  int `mapstructure:"rollbackWindowHours"`
	BookingGraceMinutes  int `mapstructure:"bookingGraceMinutes"`
	CacheTTLSeconds      int `mapstructure:"cacheTTLSeconds"`
	BillNoMaxAttempts    int `mapstructure:"billNoMaxAttempts"`
	PurgeIntervalSeconds int `mapstructure:"purgeIntervalSeconds"`
}

func DefaultPolicy() Policy {
	return Policy{
		RollbackWindowHours:  72,
		BookingGraceMinutes:  15,
		CacheTTLSeconds:      3600,
		BillNoMaxAttempts:    25,
		PurgeIntervalSeconds: 60,
	}
}

func (p Policy) RollbackWindow() time.Duration {
	return time.Duration(p.RollbackWindowHours) * time.Hour
}

func (p Policy) BookingGrace() time.Duration {
	return time.Duration(p.BookingGraceMinutes) * time.Minute
}

func (p Policy) CacheTTL() time.Duration {
	return time.Duration(p.CacheTTLSeconds) * time.Second
}

func (p Policy) PurgeInterval() time.Duration {
	return time.Duration(p.PurgeIntervalSeconds) * time.Second
}

// PolicyHolder holds the current Policy and swaps it atomically on reload.
type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewPolicyHolder reads policy.yml if present, falls back to defaults, and
// watches the file for changes.
func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/pitstop")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PITSTOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("policy.rollbackWindowHours", defaults.RollbackWindowHours)
	v.SetDefault("policy.bookingGraceMinutes", defaults.BookingGraceMinutes)
	v.SetDefault("policy.cacheTTLSeconds", defaults.CacheTTLSeconds)
	v.SetDefault("policy.billNoMaxAttempts", defaults.BillNoMaxAttempts)
	v.SetDefault("policy.purgeIntervalSeconds", defaults.PurgeIntervalSeconds)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var policy Policy
	if err := v.UnmarshalKey("policy", &policy); err != nil {
		return nil, err
	}
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Policy
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			log.Printf("[policy] reload failed: %v", err)
			return
		}
		if err := validatePolicy(updated); err != nil {
			log.Printf("[policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPolicyHolder returns a holder pinned to the given policy. Used in tests.
func NewStaticPolicyHolder(policy Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *PolicyHolder) Get() Policy {
	return h.current.Load().(Policy)
}

func validatePolicy(p Policy) error {
	if p.RollbackWindowHours <= 0 {
		return errors.New("policy.rollbackWindowHours must be positive")
	}
	if p.BookingGraceMinutes <= 0 {
		return errors.New("policy.bookingGraceMinutes must be positive")
	}
	if p.CacheTTLSeconds <= 0 {
		return errors.New("policy.cacheTTLSeconds must be positive")
	}
	if p.BillNoMaxAttempts <= 0 {
		return errors.New("policy.billNoMaxAttempts must be positive")
	}
	if p.PurgeIntervalSeconds <= 0 {
		return errors.New("policy.purgeIntervalSeconds must be positive")
	}
	return nil
}
