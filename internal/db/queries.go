package db

import (
	"context"
	"time"

	"github.com/closetmind/stylescan/internal/models"
)

// ConsumeQuota runs the single atomic consume-or-reject call. All quota
// logic lives in the consume_scan_quota stored function (see
// migrations/001_init.sql) so concurrent retries with the same idempotency
// key can never double-spend.
func (db *DB) ConsumeQuota(ctx context.Context, userID, idempotencyKey, operation string) (*models.QuotaDecision, error) {
	query := `
        SELECT allowed, reason, monthly_used, monthly_limit, monthly_remaining
        FROM consume_scan_quota($1, $2, $3)
    `

	var decision models.QuotaDecision
	var reason string
	err := db.Pool.QueryRow(ctx, query, userID, idempotencyKey, operation).Scan(
		&decision.Allowed,
		&reason,
		&decision.MonthlyUsed,
		&decision.MonthlyLimit,
		&decision.MonthlyRemaining,
	)
	if err != nil {
		return nil, err
	}

	decision.Reason = models.QuotaReason(reason)
	return &decision, nil
}

func (db *DB) GetUserByAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	query := `
        SELECT id, name, api_key, plan, created_at, updated_at
        FROM users
        WHERE api_key = $1
    `

	var user models.User
	err := db.Pool.QueryRow(ctx, query, apiKey).Scan(
		&user.ID,
		&user.Name,
		&user.APIKey,
		&user.Plan,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `
        SELECT id, name, api_key, plan, created_at, updated_at
        FROM users
        WHERE id = $1
    `

	var user models.User
	err := db.Pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.APIKey,
		&user.Plan,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	query := `
        INSERT INTO users (id, name, api_key, plan)
        VALUES ($1, $2, $3, $4)
    `

	_, err := db.Pool.Exec(ctx, query, user.ID, user.Name, user.APIKey, user.Plan)
	return err
}

func (db *DB) RotateAPIKey(ctx context.Context, id, newAPIKey string) error {
	query := `
        UPDATE users SET api_key = $2, updated_at = NOW() WHERE id = $1
    `

	_, err := db.Pool.Exec(ctx, query, id, newAPIKey)
	return err
}

// GetUserUsage reads the current-month counters for both quota pools.
// Pools with no row yet report zero used against the plan default limit.
func (db *DB) GetUserUsage(ctx context.Context, userID string) (*models.UsageStats, error) {
	query := `
        SELECT operation, used, monthly_limit, period_start
        FROM quota_usage
        WHERE user_id = $1 AND period_start = date_trunc('month', NOW())
    `

	rows, err := db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &models.UsageStats{
		UserID: userID,
		Pools:  make(map[string]models.PoolUsage),
	}

	for rows.Next() {
		var op string
		var used, limit int
		var periodStart time.Time
		if err := rows.Scan(&op, &used, &limit, &periodStart); err != nil {
			return nil, err
		}
		stats.Pools[op] = models.PoolUsage{
			Used:      used,
			Limit:     limit,
			Remaining: limit - used,
			ResetsAt:  periodStart.AddDate(0, 1, 0),
		}
	}

	return stats, rows.Err()
}

func (db *DB) SetQuotaLimit(ctx context.Context, userID, operation string, limit int) error {
	query := `
        INSERT INTO quota_usage (user_id, operation, period_start, used, monthly_limit)
        VALUES ($1, $2, date_trunc('month', NOW()), 0, $3)
        ON CONFLICT (user_id, operation, period_start) DO UPDATE
        SET monthly_limit = EXCLUDED.monthly_limit
    `

	_, err := db.Pool.Exec(ctx, query, userID, operation, limit)
	return err
}

func (db *DB) ResetQuota(ctx context.Context, userID, operation string) error {
	query := `
        UPDATE quota_usage
        SET used = 0
        WHERE user_id = $1 AND operation = $2 AND period_start = date_trunc('month', NOW())
    `

	_, err := db.Pool.Exec(ctx, query, userID, operation)
	return err
}

func (db *DB) LogScan(ctx context.Context, log *models.ScanLog) error {
	query := `
        INSERT INTO scan_logs (user_id, endpoint, status_code, cache_hit, response_time_ms, request_size, response_size)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `

	_, err := db.Pool.Exec(ctx, query,
		log.UserID,
		log.Endpoint,
		log.StatusCode,
		log.CacheHit,
		log.ResponseTimeMs,
		log.RequestSize,
		log.ResponseSize,
	)

	return err
}

// ScanAnalytics summarizes a user's pipeline traffic over a date range.
type ScanAnalytics struct {
	TotalScans     int     `json:"total_scans"`
	CacheHits      int     `json:"cache_hits"`
	ErrorCount     int     `json:"error_count"`
	AvgResponseMs  float64 `json:"avg_response_ms"`
	TotalReqBytes  int64   `json:"total_request_bytes"`
	TotalRespBytes int64   `json:"total_response_bytes"`
}

func (db *DB) GetScanAnalytics(ctx context.Context, userID, from, to string) (*ScanAnalytics, error) {
	query := `
        SELECT
            COUNT(*),
            COUNT(*) FILTER (WHERE cache_hit),
            COUNT(*) FILTER (WHERE status_code >= 400),
            COALESCE(AVG(response_time_ms), 0),
            COALESCE(SUM(request_size), 0),
            COALESCE(SUM(response_size), 0)
        FROM scan_logs
        WHERE user_id = $1
          AND ($2 = '' OR timestamp >= $2::date)
          AND ($3 = '' OR timestamp < $3::date + INTERVAL '1 day')
    `

	var stats ScanAnalytics
	err := db.Pool.QueryRow(ctx, query, userID, from, to).Scan(
		&stats.TotalScans,
		&stats.CacheHits,
		&stats.ErrorCount,
		&stats.AvgResponseMs,
		&stats.TotalReqBytes,
		&stats.TotalRespBytes,
	)
	if err != nil {
		return nil, err
	}

	return &stats, nil
}
