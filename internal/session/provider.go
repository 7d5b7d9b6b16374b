package session

import (
	"context"
	"fmt"
	"log/slog"
)

type Config struct {
	Provider              string
	RedisConnectionString string
	Logger                *slog.Logger
}

// NewStore picks the session backend. Memory suits a single replica; Redis
// lets carts survive restarts and be shared between replicas.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Provider {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, cfg.RedisConnectionString, cfg.Logger)
	default:
		return nil, fmt.Errorf("unsupported session store provider: %s", cfg.Provider)
	}
}
