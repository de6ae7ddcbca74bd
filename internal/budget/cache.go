package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/af-corp/costrouter/internal/breaker"
	"github.com/af-corp/costrouter/internal/usage"
)

const spendKeyPrefix = "costrouter:spend:"

// CachedSpend is a read-through Redis cache in front of a SpendSource. With a
// nil client every lookup goes to the source. Redis failures fall through to
// the source, and repeated failures open a breaker that skips Redis for a
// while.
type CachedSpend struct {
	source  SpendSource
	rdb     *redis.Client
	ttl     time.Duration
	breaker *breaker.Breaker
}

var _ SpendSource = (*CachedSpend)(nil)

func NewCachedSpend(source SpendSource, rdb *redis.Client, ttl time.Duration) *CachedSpend {
	return &CachedSpend{
		source:  source,
		rdb:     rdb,
		ttl:     ttl,
		breaker: breaker.New(3, 30*time.Second),
	}
}

// Breaker exposes the Redis circuit breaker so /healthz can report it.
func (c *CachedSpend) Breaker() *breaker.Breaker { return c.breaker }

func spendKey(department string, r usage.Range) string {
	return fmt.Sprintf("%s%s:%d:%d", spendKeyPrefix, department, unixOrZero(r.From), unixOrZero(r.To))
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func (c *CachedSpend) DepartmentSpend(ctx context.Context, department string, r usage.Range) (float64, error) {
	if c.rdb == nil {
		return c.source.DepartmentSpend(ctx, department, r)
	}

	key := spendKey(department, r)

	var cached float64
	hit := false
	err := c.breaker.Do(func() error {
		v, err := c.rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			// Corrupt entry: treat as a miss, it is overwritten below.
			return nil
		}
		cached, hit = f, true
		return nil
	})
	if err != nil && !errors.Is(err, breaker.ErrOpen) {
		slog.Warn("spend cache read failed", "department", department, "error", err)
	}
	if hit {
		return cached, nil
	}

	spend, err := c.source.DepartmentSpend(ctx, department, r)
	if err != nil {
		return 0, err
	}

	err = c.breaker.Do(func() error {
		return c.rdb.Set(ctx, key, strconv.FormatFloat(spend, 'f', -1, 64), c.ttl).Err()
	})
	if err != nil && !errors.Is(err, breaker.ErrOpen) {
		slog.Warn("spend cache write failed", "department", department, "error", err)
	}
	return spend, nil
}
