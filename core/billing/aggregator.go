// Package billing maintains one upserted cost row per connection and
// calendar period.
package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"wastescan/core/types"
	"wastescan/internal/errors"
	"wastescan/internal/metrics"
)

// Input is what one scan contributes to billing for a connection.
// Metered providers report native cost figures keyed by period;
// plan-tier providers report a derived monthly cost.
type Input struct {
	// PlanCost is the converted monthly plan-tier cost, already
	// multiplied by seats for per-seat plans
	PlanCost decimal.Decimal

	// Breakdown itemizes PlanCost
	Breakdown map[string]decimal.Decimal

	// MeteredByPeriod carries native cost per period key. When
	// present it takes precedence over PlanCost, and every period in
	// the map is back-filled, not just the current one.
	MeteredByPeriod map[string]decimal.Decimal
}

// IsZero reports whether the input carries nothing to record
func (in Input) IsZero() bool {
	return in.PlanCost.IsZero() && len(in.MeteredByPeriod) == 0
}

// Store is the slice of persistence the aggregator needs
type Store interface {
	UpsertBillingPeriod(ctx context.Context, summary types.BillingPeriodSummary) error
}

// Aggregator upserts billing summaries. Writes are race-safe because
// rows are keyed by (connection, period) and applied as conditional
// upserts, so no locking is needed here.
type Aggregator struct {
	store Store
	log   *zap.Logger
}

// NewAggregator creates a billing aggregator
func NewAggregator(store Store, log *zap.Logger) *Aggregator {
	return &Aggregator{store: store, log: log}
}

// Record persists the cost rows derived from one scan's input
func (a *Aggregator) Record(ctx context.Context, connectionID string, in Input, now time.Time) error {
	if in.IsZero() {
		return nil
	}

	if len(in.MeteredByPeriod) > 0 {
		for period, cost := range in.MeteredByPeriod {
			summary := types.BillingPeriodSummary{
				ConnectionID: connectionID,
				Period:       period,
				TotalCost:    cost,
				Breakdown:    map[string]decimal.Decimal{"usage": cost},
				FetchedAt:    now,
			}
			if err := a.store.UpsertBillingPeriod(ctx, summary); err != nil {
				return errors.Persistence("failed to upsert metered billing period", err).
					WithContext("connection_id", connectionID).
					WithContext("period", period)
			}
			metrics.Get().BillingUpsertsTotal.Inc()
		}
		return nil
	}

	summary := types.BillingPeriodSummary{
		ConnectionID: connectionID,
		Period:       types.PeriodKey(now),
		TotalCost:    in.PlanCost,
		Breakdown:    in.Breakdown,
		FetchedAt:    now,
	}
	if err := a.store.UpsertBillingPeriod(ctx, summary); err != nil {
		return errors.Persistence("failed to upsert billing period", err).
			WithContext("connection_id", connectionID)
	}
	metrics.Get().BillingUpsertsTotal.Inc()
	return nil
}

// RecordAll persists billing inputs collected for multiple connections,
// logging and continuing on individual failures
func (a *Aggregator) RecordAll(ctx context.Context, inputs map[string]Input, now time.Time) {
	for connID, in := range inputs {
		if err := a.Record(ctx, connID, in, now); err != nil {
			a.log.Warn("billing refresh failed for connection",
				zap.String("connection_id", connID), zap.Error(err))
		}
	}
}
