package models

import "time"

// SignalVersion is the current StyleSignal schema version. Bump when the
// provider contract changes shape.
const SignalVersion = 1

// StyleSignal is the structured result of a vision analysis. Immutable once
// produced; the cache owns stored instances and callers must not mutate them.
type StyleSignal struct {
	Version   int       `json:"version"`
	Aesthetic Aesthetic `json:"aesthetic"`
	Formality string    `json:"formality"`
	Statement string    `json:"statement"`
	Season    string    `json:"season"`
	Palette   Palette   `json:"palette"`
	Pattern   string    `json:"pattern"`
	Material  string    `json:"material"`
}

// Aesthetic is the archetype classification part of a signal.
type Aesthetic struct {
	Primary    string  `json:"primary"`
	Secondary  string  `json:"secondary,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Palette is an ordered list of color tokens, most dominant first.
type Palette struct {
	Colors     []string `json:"colors"`
	Confidence float64  `json:"confidence"`
}

// Valid reports whether the signal carries every required field. The
// secondary archetype is optional, everything else must be present.
func (s *StyleSignal) Valid() bool {
	if s == nil {
		return false
	}
	return s.Aesthetic.Primary != "" &&
		s.Formality != "" &&
		s.Statement != "" &&
		s.Season != "" &&
		len(s.Palette.Colors) > 0 &&
		s.Pattern != "" &&
		s.Material != ""
}

// QuotaReason explains why a quota decision rejected a request.
type QuotaReason string

const (
	QuotaReasonNone            QuotaReason = "none"
	QuotaReasonMonthlyExceeded QuotaReason = "monthly_quota_exceeded"
	QuotaReasonOther           QuotaReason = "other"
)

// QuotaDecision is the result of a single atomic quota consumption attempt.
type QuotaDecision struct {
	Allowed          bool        `json:"allowed"`
	Reason           QuotaReason `json:"reason"`
	MonthlyUsed      int         `json:"monthly_used"`
	MonthlyLimit     int         `json:"monthly_limit"`
	MonthlyRemaining int         `json:"monthly_remaining"`
}

// AddOnItem is a wardrobe candidate considered for add-on recommendations.
// Read-only input to the ranker.
type AddOnItem struct {
	ID            string   `json:"id"`
	Category      string   `json:"category"`
	Colors        []string `json:"colors"`
	DetectedLabel string   `json:"detected_label"`
	UserStyleTags []string `json:"user_style_tags"`
}

// ElevateBullet is an AI-suggested enhancement. List order encodes priority:
// earlier bullets outrank later ones.
type ElevateBullet struct {
	Category   string   `json:"category"`
	Attributes []string `json:"attributes"`
}

// User is an account that can exchange its API key for a bearer token.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"api_key"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScanLog is one access-log row for a pipeline request.
type ScanLog struct {
	ID             int64     `json:"id"`
	UserID         string    `json:"user_id"`
	Endpoint       string    `json:"endpoint"`
	StatusCode     int       `json:"status_code"`
	CacheHit       bool      `json:"cache_hit"`
	ResponseTimeMs int       `json:"response_time_ms"`
	RequestSize    int64     `json:"request_size"`
	ResponseSize   int64     `json:"response_size"`
	Timestamp      time.Time `json:"timestamp"`
}

// UsageStats is the monthly quota state for one user across both pools.
type UsageStats struct {
	UserID string               `json:"user_id"`
	Pools  map[string]PoolUsage `json:"pools"`
}

// PoolUsage is the state of a single quota pool.
type PoolUsage struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}
