package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sessions share the Redis instance with the cache, which uses "storefront:cache:".
const redisKeyPrefix = "storefront:session:"

const redisOpTimeout = 5 * time.Second

// RedisStore keeps carts and tracked orders in Redis so they survive restarts
// and are shared between replicas.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisStore(ctx context.Context, connectionString string, logger *slog.Logger) (*RedisStore, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if connectionString == "" {
		return nil, errors.New("redis session store requires a connection string")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	opts, err := redis.ParseURL(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis connection string: %w", err)
	}
	opts.ClientName = "storefront-session"
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w (and failed to close client: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, logger: logger.With("component", "session_store")}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (*Data, bool) {
	if r == nil || r.client == nil || key == "" || ctx == nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	val, err := r.client.Get(ctx, redisSessionKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.logger.Warn("failed to load session", "error", err)
		return nil, false
	}

	data, err := decodeData(val)
	if err != nil {
		// Undecodable entries are dropped so the shopper gets a fresh session.
		r.logger.Warn("discarding unreadable session", "error", err)
		r.client.Del(ctx, redisSessionKey(key))
		return nil, false
	}
	return data, true
}

func (r *RedisStore) Set(ctx context.Context, key string, data *Data, ttl time.Duration) {
	if r == nil || r.client == nil || key == "" || data == nil || ctx == nil {
		return
	}

	val, err := json.Marshal(data)
	if err != nil {
		r.logger.Error("failed to encode session", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := r.client.Set(ctx, redisSessionKey(key), val, ttl).Err(); err != nil {
		r.logger.Warn("failed to save session", "error", err, "cart_lines", len(data.Cart))
	}
}

func (r *RedisStore) Delete(ctx context.Context, key string) {
	if r == nil || r.client == nil || key == "" || ctx == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := r.client.Del(ctx, redisSessionKey(key)).Err(); err != nil {
		r.logger.Warn("failed to delete session", "error", err)
	}
}

func (r *RedisStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func redisSessionKey(id string) string {
	return redisKeyPrefix + id
}

// decodeData parses a stored session and drops cart lines that can never be
// checked out.
func decodeData(raw []byte) (*Data, error) {
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	data.Cart = slices.DeleteFunc(data.Cart, func(line CartLine) bool {
		return line.ProductID == "" || line.Quantity <= 0
	})
	return &data, nil
}
