package quota

import (
	"context"
	"sync"
	"time"

	"github.com/closetmind/stylescan/internal/models"
)

type poolKey struct {
	userID string
	op     Operation
	period string // "2026-03"
}

// MemoryStore is an in-process Store for tests and database-less runs. The
// idempotency ledger and the counters live behind one mutex, which gives
// the same at-most-once guarantee the stored function provides via row
// locks.
type MemoryStore struct {
	mu        sync.Mutex
	used      map[poolKey]int
	limits    map[poolKey]int
	decisions map[string]*models.QuotaDecision
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		used:      make(map[poolKey]int),
		limits:    make(map[poolKey]int),
		decisions: make(map[string]*models.QuotaDecision),
		now:       time.Now,
	}
}

// SetClock replaces the store's clock. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.now = now
}

// SetLimit overrides the monthly limit for one user's pool in the current
// period.
func (s *MemoryStore) SetLimit(userID string, op Operation, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits[s.key(userID, op)] = limit
}

func (s *MemoryStore) Consume(_ context.Context, userID, idempotencyKey string, op Operation) (*models.QuotaDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, ok := s.decisions[idempotencyKey]; ok {
		return prior, nil
	}

	if op != OpScan && op != OpWardrobeAdd {
		d := &models.QuotaDecision{Allowed: false, Reason: models.QuotaReasonOther}
		s.decisions[idempotencyKey] = d
		return d, nil
	}

	k := s.key(userID, op)
	limit, ok := s.limits[k]
	if !ok {
		limit = DefaultScanLimit
		if op == OpWardrobeAdd {
			limit = DefaultWardrobeAddLimit
		}
	}

	used := s.used[k]
	var d *models.QuotaDecision
	if used >= limit {
		d = &models.QuotaDecision{
			Allowed:          false,
			Reason:           models.QuotaReasonMonthlyExceeded,
			MonthlyUsed:      used,
			MonthlyLimit:     limit,
			MonthlyRemaining: 0,
		}
	} else {
		s.used[k] = used + 1
		d = &models.QuotaDecision{
			Allowed:          true,
			Reason:           models.QuotaReasonNone,
			MonthlyUsed:      used + 1,
			MonthlyLimit:     limit,
			MonthlyRemaining: limit - used - 1,
		}
	}

	s.decisions[idempotencyKey] = d
	return d, nil
}

func (s *MemoryStore) key(userID string, op Operation) poolKey {
	return poolKey{userID: userID, op: op, period: s.now().UTC().Format("2006-01")}
}
