package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"OrderPipeline/internal/config"
	"OrderPipeline/internal/domain/models/transport"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "pipeline:idempotency:"

// DefaultTTL is how long a cached placement response stays replayable.
const DefaultTTL = 24 * time.Hour

// RedisStore caches placement responses by idempotency key. Within the TTL
// a key always replays the exact response that was first cached for it.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(redisConfig config.RedisConfig) *RedisStore {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisConfig.Host + ":" + strconv.Itoa(redisConfig.Port),
		Password: redisConfig.Password,
		DB:       redisConfig.Db,
	})

	return &RedisStore{client: redisClient}
}

func (s *RedisStore) Get(ctx context.Context, key string) (transport.OrderResponse, bool, error) {
	const op = "idempotency.Get"
	log := slog.With("op", op)

	data, err := s.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return transport.OrderResponse{}, false, nil
	}
	if err != nil {
		log.Error("failed to read idempotency record", "key", key, "err", err)
		return transport.OrderResponse{}, false, fmt.Errorf("%s: %w", op, err)
	}

	var resp transport.OrderResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		log.Error("failed to unmarshal idempotency record", "key", key, "err", err)
		return transport.OrderResponse{}, false, fmt.Errorf("%s: %w", op, err)
	}

	log.Debug("idempotency hit", "key", key, "orderId", resp.OrderId)
	return resp, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, resp transport.OrderResponse, ttl time.Duration) error {
	const op = "idempotency.Set"
	log := slog.With("op", op)

	data, err := json.Marshal(resp)
	if err != nil {
		log.Error("failed to marshal idempotency record", "key", key, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.client.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		log.Error("failed to write idempotency record", "key", key, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
