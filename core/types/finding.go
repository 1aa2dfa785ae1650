// Package types - Finding and reporting types
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Finding is one classified, cost-annotated resource group for a
// connection. The set for a connection is fully replaced on each scan,
// never appended to.
type Finding struct {
	ID                  string          `json:"id"`
	ConnectionID        string          `json:"connection_id"`
	UserID              string          `json:"user_id"`
	ResourceName        string          `json:"resource_name"`
	ResourceType        string          `json:"resource_type"`
	Status              FindingStatus   `json:"status"`
	PotentialSavings    decimal.Decimal `json:"potential_savings"`
	Reason              string          `json:"reason"`
	SmartRecommendation string          `json:"smart_recommendation"`
	UsesFallback        bool            `json:"uses_fallback"`
	DetectedAt          time.Time       `json:"detected_at"`
}

// BillingPeriodSummary is one upserted cost row per (connection,
// calendar period). Re-scanning mid-period corrects the estimate.
type BillingPeriodSummary struct {
	ConnectionID string                     `json:"connection_id"`
	Period       string                     `json:"period"`
	TotalCost    decimal.Decimal            `json:"total_cost"`
	Breakdown    map[string]decimal.Decimal `json:"breakdown,omitempty"`
	FetchedAt    time.Time                  `json:"fetched_at"`
}

// SavingsSnapshot is one point in the savings time series. An empty
// ConnectionID marks the aggregate across all of the user's connections.
type SavingsSnapshot struct {
	ID           string                     `json:"id"`
	UserID       string                     `json:"user_id"`
	ConnectionID string                     `json:"connection_id,omitempty"`
	Date         string                     `json:"date"`
	TotalSavings decimal.Decimal            `json:"total_savings"`
	ZombieCount  int                        `json:"zombie_count"`
	ActiveCount  int                        `json:"active_count"`
	ByService    map[string]decimal.Decimal `json:"by_service,omitempty"`
}

// AggregateStats is the single cross-user statistics row refreshed on
// the periodic scan-count heuristic.
type AggregateStats struct {
	TotalUsers            int             `json:"total_users"`
	TotalFindings         int             `json:"total_findings"`
	TotalPotentialSavings decimal.Decimal `json:"total_potential_savings"`
	RefreshedAt           time.Time       `json:"refreshed_at"`
}

// ScanOutcome is the result of one orchestrator run
type ScanOutcome struct {
	Findings         []Finding  `json:"findings"`
	Cached           bool       `json:"cached"`
	ScannedCount     int        `json:"scanned_count"`
	TotalConnections int        `json:"total_connections"`
	LastScanTime     *time.Time `json:"last_scan_time,omitempty"`
}

// PeriodKey returns the calendar-month billing key for a point in time
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// DateKey returns the calendar-day key used by savings snapshots
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
