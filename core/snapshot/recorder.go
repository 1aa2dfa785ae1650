// Package snapshot maintains the daily savings history derived from
// the current finding set.
package snapshot

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"wastescan/core/types"
	"wastescan/db"
	"wastescan/internal/logging"
)

// Recorder recomputes savings snapshots from persisted findings.
type Recorder struct {
	store db.Store
	log   *zap.Logger
}

func NewRecorder(store db.Store) *Recorder {
	return &Recorder{store: store, log: logging.Logger}
}

// Recompute rebuilds today's snapshot rows for userID: one row per
// connection that has findings, plus one aggregate row with an empty
// connection ID. Re-running on the same day overwrites rather than
// appending, so a history never holds more than one entry per day.
func (r *Recorder) Recompute(ctx context.Context, userID string, now time.Time) error {
	findings, err := r.store.ListFindings(ctx, userID)
	if err != nil {
		return err
	}

	date := types.DateKey(now)
	perConn := make(map[string]*types.SavingsSnapshot)
	aggregate := &types.SavingsSnapshot{
		UserID:       userID,
		ConnectionID: "",
		Date:         date,
		ByService:    make(map[string]decimal.Decimal),
	}

	for _, f := range findings {
		snap, ok := perConn[f.ConnectionID]
		if !ok {
			snap = &types.SavingsSnapshot{
				UserID:       userID,
				ConnectionID: f.ConnectionID,
				Date:         date,
				ByService:    make(map[string]decimal.Decimal),
			}
			perConn[f.ConnectionID] = snap
		}
		tally(snap, f)
		tally(aggregate, f)
	}

	for _, snap := range perConn {
		snap.ID = uuid.NewString()
		if err := r.store.UpsertSavingsSnapshot(ctx, *snap); err != nil {
			return err
		}
	}
	aggregate.ID = uuid.NewString()
	if err := r.store.UpsertSavingsSnapshot(ctx, *aggregate); err != nil {
		return err
	}

	r.log.Debug("savings snapshots recomputed",
		zap.String("user_id", userID),
		zap.String("date", date),
		zap.Int("connections", len(perConn)),
		zap.String("total_savings", aggregate.TotalSavings.String()))
	return nil
}

func tally(snap *types.SavingsSnapshot, f types.Finding) {
	if f.Status.Actionable() {
		snap.TotalSavings = snap.TotalSavings.Add(f.PotentialSavings)
		snap.ByService[f.ResourceType] = snap.ByService[f.ResourceType].Add(f.PotentialSavings)
	}
	switch f.Status {
	case types.FindingZombie:
		snap.ZombieCount++
	case types.FindingActive:
		snap.ActiveCount++
	}
}
