// Package quota enforces the two monthly consumption pools (scan and
// wardrobe_add). Consumption is a single atomic consume-or-reject call keyed
// by a client-generated idempotency key, so a retried request never spends
// twice.
package quota

import (
	"context"

	"github.com/google/uuid"

	"github.com/closetmind/stylescan/internal/models"
)

// Operation selects which quota pool a consumption draws from.
type Operation string

const (
	OpScan        Operation = "scan"
	OpWardrobeAdd Operation = "wardrobe_add"
)

// Default monthly limits per pool. The Postgres store keeps its own copies
// in the stored function; these back the in-memory store.
const (
	DefaultScanLimit        = 40
	DefaultWardrobeAddLimit = 100
)

// Store is the atomic consume-or-reject call. Implementations must
// guarantee that concurrent Consume calls with the same idempotency key
// decrement quota at most once and observe the same decision.
type Store interface {
	Consume(ctx context.Context, userID, idempotencyKey string, op Operation) (*models.QuotaDecision, error)
}

// NewIdempotencyKey mints a key for one logical user attempt. The caller
// reuses it across network retries of that attempt and mints a fresh one
// for each new action.
func NewIdempotencyKey() string {
	return uuid.NewString()
}

// pgStore delegates to the SQL layer; the consume_scan_quota stored
// function does the real work.
type pgStore struct {
	db consumer
}

type consumer interface {
	ConsumeQuota(ctx context.Context, userID, idempotencyKey, operation string) (*models.QuotaDecision, error)
}

// NewPostgresStore wraps the database's consume_scan_quota call.
func NewPostgresStore(db consumer) Store {
	return &pgStore{db: db}
}

func (s *pgStore) Consume(ctx context.Context, userID, idempotencyKey string, op Operation) (*models.QuotaDecision, error) {
	return s.db.ConsumeQuota(ctx, userID, idempotencyKey, string(op))
}
