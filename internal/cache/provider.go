// Package cache backs carrier fee quotes and short-lived per-order locks.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Provider is a string key/value cache with TTLs.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	// Release deletes key only while it still holds token, so an expired lock
	// re-acquired by another caller is left alone.
	Release(ctx context.Context, key string, token string) (bool, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProvider()
	case "redis":
		return NewRedisProvider(cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

func FeeQuoteKey(districtID int, wardCode string, weight int) string {
	return fmt.Sprintf("fee:%d:%s:%d", districtID, wardCode, weight)
}

func OrderLockKey(orderID string) string {
	return "lock:order:" + orderID
}
