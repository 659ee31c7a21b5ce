package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "notification:order-created:"

// Deduplicator remembers which orders already had a confirmation sent.
type Deduplicator interface {
	Seen(ctx context.Context, orderID uuid.UUID) (bool, error)
	Mark(ctx context.Context, orderID uuid.UUID) error
}

type RedisDeduplicator struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeduplicator(rdb *redis.Client, ttl time.Duration) *RedisDeduplicator {
	return &RedisDeduplicator{rdb: rdb, ttl: ttl}
}

func dedupeKey(orderID uuid.UUID) string {
	return dedupeKeyPrefix + orderID.String()
}

func (d *RedisDeduplicator) Seen(ctx context.Context, orderID uuid.UUID) (bool, error) {
	n, err := d.rdb.Exists(ctx, dedupeKey(orderID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (d *RedisDeduplicator) Mark(ctx context.Context, orderID uuid.UUID) error {
	if err := d.rdb.Set(ctx, dedupeKey(orderID), time.Now().UTC().Format(time.RFC3339), d.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// NewRedisClient parses a redis:// URL and checks the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
