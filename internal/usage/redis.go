package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// counterTTL keeps a day's key around past the UTC boundary for late reads.
const counterTTL = 48 * time.Hour

// RedisCounter keeps usage counters in redis, one key per user and period.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter creates a Counter backed by client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func counterKey(userID string, periodStart time.Time, periodType string) string {
	return fmt.Sprintf("usage:%s:%s:%s", periodType, periodStart.UTC().Format("2006-01-02"), userID)
}

// GetUsage returns the current count, or 0 when the key is absent.
func (c *RedisCounter) GetUsage(ctx context.Context, userID string, periodStart time.Time, periodType string) (int, error) {
	n, err := c.client.Get(ctx, counterKey(userID, periodStart, periodType)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get usage: %w", err)
	}
	return n, nil
}

// IncrementUsage atomically adds one and refreshes the key's expiry.
func (c *RedisCounter) IncrementUsage(ctx context.Context, userID string, periodStart time.Time, periodType string) (int, error) {
	key := counterKey(userID, periodStart, periodType)
	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.Expire(ctx, key, counterTTL)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis incr usage: %w", err)
	}
	return int(incr.Val()), nil
}
