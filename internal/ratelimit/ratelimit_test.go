package ratelimit

import (
	"context"
	"testing"
	"time"
)

func newTestLimiter(cfg Config) (*MemoryLimiter, *time.Time) {
	l := NewMemoryLimiter(cfg)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return now })
	return l, &now
}

func TestBurstWindowRejectsEleventhRequest(t *testing.T) {
	l, _ := newTestLimiter(DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		r, err := l.CheckUser(ctx, "user-1")
		if err != nil {
			t.Fatalf("CheckUser error: %v", err)
		}
		if !r.Allowed {
			t.Fatalf("request %d rejected, want allowed", i+1)
		}
	}

	r, err := l.CheckUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("CheckUser error: %v", err)
	}
	if r.Allowed {
		t.Fatal("11th request allowed, want rejected")
	}
	if r.Scope != ScopeBurst {
		t.Fatalf("scope = %s, want %s", r.Scope, ScopeBurst)
	}
	if r.RetryAfterSeconds <= 0 || r.RetryAfterSeconds > 300 {
		t.Fatalf("retry after = %d, want (0, 300]", r.RetryAfterSeconds)
	}
}

func TestRejectedRequestDoesNotIncrement(t *testing.T) {
	l, now := newTestLimiter(DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		l.CheckUser(ctx, "user-1")
	}
	for i := 0; i < 5; i++ {
		if r, _ := l.CheckUser(ctx, "user-1"); r.Allowed {
			t.Fatal("expected rejection while burst window exhausted")
		}
	}

	// After the burst window rolls over the user gets a full fresh window;
	// the rejected attempts must not have eaten into it.
	*now = now.Add(5 * time.Minute)
	for i := 0; i < 10; i++ {
		r, _ := l.CheckUser(ctx, "user-1")
		if !r.Allowed {
			t.Fatalf("request %d after reset rejected", i+1)
		}
	}
}

func TestHourlyWindowOutlastsBurstResets(t *testing.T) {
	l, now := newTestLimiter(DefaultConfig())
	ctx := context.Background()

	// 30 requests spread over three burst windows exhaust the hourly
	// window without ever tripping the burst one.
	for i := 0; i < 3; i++ {
		for j := 0; j < 10; j++ {
			r, _ := l.CheckUser(ctx, "user-1")
			if !r.Allowed {
				t.Fatalf("request %d/%d rejected", i, j)
			}
		}
		*now = now.Add(5 * time.Minute)
	}

	r, _ := l.CheckUser(ctx, "user-1")
	if r.Allowed {
		t.Fatal("31st request within the hour allowed")
	}
	if r.Scope != ScopeHourly {
		t.Fatalf("scope = %s, want %s", r.Scope, ScopeHourly)
	}
	// 15 minutes have elapsed; the hourly window has 45 minutes left.
	if r.RetryAfterSeconds != 45*60 {
		t.Fatalf("retry after = %d, want %d", r.RetryAfterSeconds, 45*60)
	}
}

func TestRetryAfterRoundsUp(t *testing.T) {
	l, now := newTestLimiter(DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		l.CheckUser(ctx, "user-1")
	}
	*now = now.Add(4*time.Minute + 59*time.Second + 500*time.Millisecond)

	r, _ := l.CheckUser(ctx, "user-1")
	if r.Allowed {
		t.Fatal("expected rejection")
	}
	if r.RetryAfterSeconds != 1 {
		t.Fatalf("retry after = %d, want 1 (rounded up)", r.RetryAfterSeconds)
	}
}

func TestGlobalWindowCapsAllUsers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GlobalLimit = 3
	l, _ := newTestLimiter(cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r, _ := l.CheckGlobal(ctx)
		if !r.Allowed {
			t.Fatalf("global request %d rejected", i+1)
		}
	}

	r, _ := l.CheckGlobal(ctx)
	if r.Allowed {
		t.Fatal("global window should be exhausted")
	}
	if r.Scope != ScopeGlobal {
		t.Fatalf("scope = %s, want %s", r.Scope, ScopeGlobal)
	}
	if r.RetryAfterSeconds <= 0 || r.RetryAfterSeconds > 60 {
		t.Fatalf("retry after = %d, want (0, 60]", r.RetryAfterSeconds)
	}

	// Per-user windows are untouched by global exhaustion.
	ur, _ := l.CheckUser(ctx, "user-1")
	if !ur.Allowed {
		t.Fatal("per-user check should be independent of global window")
	}
}

func TestUsersAreIsolated(t *testing.T) {
	l, _ := newTestLimiter(DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		l.CheckUser(ctx, "user-1")
	}
	if r, _ := l.CheckUser(ctx, "user-1"); r.Allowed {
		t.Fatal("user-1 should be limited")
	}
	if r, _ := l.CheckUser(ctx, "user-2"); !r.Allowed {
		t.Fatal("user-2 should not inherit user-1's window")
	}
}
