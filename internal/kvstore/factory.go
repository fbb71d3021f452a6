package kvstore

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Backend string // "file", "redis", "postgres" or "memory"
	Path    string // file backend
	Prefix  string // redis backend
	DSN     string // postgres backend
	Table   string // postgres backend
}

// New builds the configured backend. The redis client is created by the
// caller (and only when needed) so connection failures surface at startup.
func New(ctx context.Context, cfg Config, redisClient *redis.Client) (Store, error) {
	switch cfg.Backend {
	case "redis":
		return NewRedisStore(redisClient, RedisConfig{Prefix: cfg.Prefix}), nil
	case "postgres":
		return NewPostgresStore(ctx, cfg.DSN, cfg.Table)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return NewFileStore(cfg.Path)
	}
}
