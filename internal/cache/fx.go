package cache

import (
	"strings"

	"github.com/pitstophq/pitstop/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("cache",
	fx.Provide(NewClient),
	fx.Provide(ProvideStore),
	fx.Provide(New),
	fx.Provide(NewLocker),
)

// NewClient returns a redis client, or nil when no address is configured.
// The cache layer degrades to an in-process store in that case.
func NewClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func ProvideStore(client *redis.Client, log *zap.Logger) Store {
	if client == nil {
		log.Warn("redis not configured, using in-process cache store")
		return NewMemoryStore()
	}
	return NewRedisStore(client)
}
