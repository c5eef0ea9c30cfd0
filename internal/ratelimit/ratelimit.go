// Package ratelimit enforces fixed-window request limits: a global window
// protecting the upstream vision provider, then per-user burst and hourly
// windows. Windows reset wholesale at their deadline; these are not token
// buckets.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Scope names the window that rejected a request.
const (
	ScopeGlobal = "global"
	ScopeBurst  = "burst"
	ScopeHourly = "hourly"
)

// Result is a single limiter verdict. RetryAfterSeconds is computed from
// the exhausted window's reset time and is always a positive integer on
// rejection.
type Result struct {
	Allowed           bool
	Scope             string
	RetryAfterSeconds int
}

// Limiter is the check interface the analysis pipeline consumes. The global
// check runs before quota consumption; the per-user check runs after it.
type Limiter interface {
	CheckGlobal(ctx context.Context) (Result, error)
	CheckUser(ctx context.Context, userID string) (Result, error)
}

// Config holds the window sizes and limits.
type Config struct {
	BurstLimit   int
	BurstWindow  time.Duration
	HourlyLimit  int
	HourlyWindow time.Duration
	GlobalLimit  int
	GlobalWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		BurstLimit:   10,
		BurstWindow:  5 * time.Minute,
		HourlyLimit:  30,
		HourlyWindow: time.Hour,
		GlobalLimit:  100,
		GlobalWindow: time.Minute,
	}
}

type window struct {
	count   int
	resetAt time.Time
}

type userWindows struct {
	burst  window
	hourly window
}

// MemoryLimiter keeps all counters in process memory. Known limitation:
// counters reset on process restart, so a restart hands every user a fresh
// window. Acceptable degradation for a single-replica deployment; use
// RedisLimiter when counts must survive restarts or span replicas.
type MemoryLimiter struct {
	mu     sync.Mutex
	users  map[string]*userWindows
	global window
	cfg    Config
	now    func() time.Time
}

func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	return &MemoryLimiter{
		users: make(map[string]*userWindows),
		cfg:   cfg,
		now:   time.Now,
	}
}

// SetClock replaces the limiter's clock. Test hook.
func (l *MemoryLimiter) SetClock(now func() time.Time) {
	l.now = now
}

func (l *MemoryLimiter) CheckGlobal(_ context.Context) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if r, ok := check(&l.global, now, l.cfg.GlobalLimit, l.cfg.GlobalWindow, ScopeGlobal); !ok {
		return r, nil
	}
	l.global.count++
	return Result{Allowed: true}, nil
}

func (l *MemoryLimiter) CheckUser(_ context.Context, userID string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.users[userID]
	if !ok {
		u = &userWindows{}
		l.users[userID] = u
	}

	now := l.now()
	if r, ok := check(&u.burst, now, l.cfg.BurstLimit, l.cfg.BurstWindow, ScopeBurst); !ok {
		return r, nil
	}
	if r, ok := check(&u.hourly, now, l.cfg.HourlyLimit, l.cfg.HourlyWindow, ScopeHourly); !ok {
		return r, nil
	}

	// Both windows have capacity; count the request against each. A
	// rejected request never reaches this point, so it does not increment
	// its own counter.
	u.burst.count++
	u.hourly.count++
	return Result{Allowed: true}, nil
}

// check rolls the window over if its deadline passed, then reports whether
// one more request fits. It does not increment.
func check(w *window, now time.Time, limit int, span time.Duration, scope string) (Result, bool) {
	if !now.Before(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(span)
	}
	if w.count >= limit {
		return Result{
			Allowed:           false,
			Scope:             scope,
			RetryAfterSeconds: retryAfter(now, w.resetAt),
		}, false
	}
	return Result{Allowed: true}, true
}

// retryAfter is the whole-second wait until resetAt, rounded up, never
// below 1.
func retryAfter(now, resetAt time.Time) int {
	d := resetAt.Sub(now)
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
