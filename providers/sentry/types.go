// Package sentry implements the error-tracking provider plugin.
package sentry

import (
	"time"

	"github.com/shopspring/decimal"

	"wastescan/core/types"
)

// Usage is the raw usage figure set returned by the upstream API
type Usage struct {
	Plan           string
	EventQuota     int64
	EventsConsumed int64
	LastEventAt    *time.Time
	MonthlySpend   decimal.Decimal
}

// Snapshot is the normalized usage snapshot handed to classification
type Snapshot struct {
	Plan           string
	EventQuota     int64
	EventsConsumed int64
	LastEventAt    *time.Time

	// MonthlySpend is the native metered spend figure, zero on gated
	// free-tier snapshots
	MonthlySpend decimal.Decimal

	// Gated marks a free-tier restricted snapshot
	Gated bool
}

// Provider implements types.UsageSnapshot
func (s Snapshot) Provider() types.Provider {
	return types.ProviderSentry
}

// IsEmpty implements types.UsageSnapshot
func (s Snapshot) IsEmpty() bool {
	return s.Plan == ""
}
