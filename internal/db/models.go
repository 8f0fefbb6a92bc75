package db

import (
	"encoding/json"
	"time"
)

// Rule is a single pattern rule evaluated against incoming requests.
// The Action field is advisory: it is stored and served for the admin UI,
// but the block decision is made by the engine's score threshold alone.
type Rule struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Pattern   string    `json:"pattern"`
	Score     int       `json:"score"`
	Action    string    `json:"action"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// AttackLog is an immutable record of one inspected request.
type AttackLog struct {
	ID          string          `json:"id"`
	IPAddress   string          `json:"ip_address"`
	Method      string          `json:"method"`
	Endpoint    string          `json:"endpoint"`
	Headers     json.RawMessage `json:"headers,omitempty"`
	RequestBody *string         `json:"request_body,omitempty"`
	ThreatScore int             `json:"threat_score"`
	ActionTaken string          `json:"action_taken"`
	ThreatTypes []string        `json:"threat_types"`
	CreatedAt   time.Time       `json:"created_at"`
}

// BlockedIP is a persistent (hard) blocklist entry. A nil ExpiresAt means
// the block is permanent.
type BlockedIP struct {
	ID        string     `json:"id"`
	IPAddress string     `json:"ip_address"`
	Reason    *string    `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// IPCount is one entry of the top-attackers aggregation.
type IPCount struct {
	IP    string `json:"ip"`
	Count int64  `json:"count"`
}

// TypeCount is one entry of the threat-category histogram.
type TypeCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// HourCount is one hourly bucket of the last-24h request series.
type HourCount struct {
	Hour  string `json:"hour"`
	Count int64  `json:"count"`
}

// Stats is the aggregate payload served by GET /api/stats.
type Stats struct {
	TotalRequests      int64       `json:"total_requests"`
	BlockedRequests    int64       `json:"blocked_requests"`
	AllowedRequests    int64       `json:"allowed_requests"`
	TopIPs             []IPCount   `json:"top_ips"`
	ThreatDistribution []TypeCount `json:"threat_distribution"`
	RequestsOverTime   []HourCount `json:"requests_over_time"`
}
