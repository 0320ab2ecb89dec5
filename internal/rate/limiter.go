package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited reports a spent fixed-window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Counter is a fixed-window hit counter.
type Counter struct {
	redis  redis.UniversalClient
	prefix string
}

// NewCounter creates a [Counter] whose keys live under prefix.
func NewCounter(redisClient redis.UniversalClient, prefix string) *Counter {
	return &Counter{redis: redisClient, prefix: prefix}
}

func (c *Counter) key(id string) string {
	return c.prefix + ":" + id
}

// Hit records one hit for id and returns ErrRateLimited once the count
// exceeds max inside the current window. The rejected hit is still counted.
func (c *Counter) Hit(ctx context.Context, id string, max int, window time.Duration) error {
	count, err := c.incrementWithTTL(ctx, c.key(id), window)
	if err != nil {
		return err
	}
	if count > int64(max) {
		return ErrRateLimited
	}
	return nil
}

// Count returns the hits recorded for id in the current window.
func (c *Counter) Count(ctx context.Context, id string) (int, error) {
	count, err := c.redis.Get(ctx, c.key(id)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Reset clears the counter for id.
func (c *Counter) Reset(ctx context.Context, id string) error {
	if err := c.redis.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (c *Counter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := c.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := c.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

// Window counts events over a sliding time window.
type Window struct {
	redis  redis.UniversalClient
	prefix string
	span   time.Duration
}

// NewWindow creates a sliding [Window] of length span under prefix.
func NewWindow(redisClient redis.UniversalClient, prefix string, span time.Duration) *Window {
	return &Window{redis: redisClient, prefix: prefix, span: span}
}

// Span returns the window length.
func (w *Window) Span() time.Duration {
	return w.span
}

func (w *Window) key(id string) string {
	return w.prefix + ":" + id
}

// Add records event member for id at the given time. Members must be unique
// per event; concurrent adds never overwrite each other.
func (w *Window) Add(ctx context.Context, id, member string, at time.Time) error {
	key := w.key(id)
	cutoff := strconv.FormatInt(at.Add(-w.span).UnixMilli(), 10)

	_, err := w.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMilli()), Member: member})
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+cutoff)
		pipe.PExpire(ctx, key, w.span)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Count returns the number of events for id inside the window ending at now.
func (w *Window) Count(ctx context.Context, id string, now time.Time) (int, error) {
	min := strconv.FormatInt(now.Add(-w.span).UnixMilli(), 10)
	n, err := w.redis.ZCount(ctx, w.key(id), min, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// Clear removes every event for id.
func (w *Window) Clear(ctx context.Context, id string) error {
	if err := w.redis.Del(ctx, w.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
