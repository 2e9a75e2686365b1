package server

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeliveryLog remembers processed webhook deliveries so redeliveries of a
// successful delivery are not processed twice.
type DeliveryLog interface {
	// Seen reports whether the delivery was processed before.
	Seen(ctx context.Context, deliveryID string) (bool, error)

	// Remember records a processed delivery.
	Remember(ctx context.Context, deliveryID string) error
}

const (
	// DefaultDeliveryKeyPrefix namespaces delivery keys.
	DefaultDeliveryKeyPrefix = "pulljoy:delivery:"

	// DefaultDeliveryTTL is how long a delivery is remembered.
	DefaultDeliveryTTL = 24 * time.Hour
)

// RedisDeliveryLog keeps processed delivery IDs in Redis with a TTL.
type RedisDeliveryLog struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ DeliveryLog = (*RedisDeliveryLog)(nil)

// NewRedisDeliveryLog returns a delivery log on rdb. Zero values select
// the defaults.
func NewRedisDeliveryLog(rdb redis.UniversalClient, prefix string,
	ttl time.Duration) *RedisDeliveryLog {

	if prefix == "" {
		prefix = DefaultDeliveryKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultDeliveryTTL
	}

	return &RedisDeliveryLog{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Seen implements DeliveryLog.
func (l *RedisDeliveryLog) Seen(ctx context.Context,
	deliveryID string) (bool, error) {

	n, err := l.rdb.Exists(ctx, l.prefix+deliveryID).Result()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

// Remember implements DeliveryLog.
func (l *RedisDeliveryLog) Remember(ctx context.Context,
	deliveryID string) error {

	return l.rdb.Set(ctx, l.prefix+deliveryID, "ok", l.ttl).Err()
}
