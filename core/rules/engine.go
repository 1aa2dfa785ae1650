// Package rules provides the classification engine.
// Evaluation is a pure function of its inputs: identical (provider,
// snapshot, tier) must yield identical findings, because persistence
// relies on delete-and-recreate rather than diffing. The reference
// time is an explicit input for the same reason.
package rules

import (
	"time"

	"github.com/shopspring/decimal"

	"wastescan/core/pricing"
	"wastescan/core/types"
	"wastescan/internal/errors"
)

// Input carries everything a rule set may consult
type Input struct {
	Connection types.Connection
	Snapshot   types.UsageSnapshot
	Tier       types.Tier
	Table      *pricing.Table
	Thresholds pricing.Thresholds

	// Now is the reference time for inactivity math. Injected so that
	// evaluation stays deterministic.
	Now time.Time
}

// RuleSet evaluates one provider's usage snapshot into findings.
// Every evaluated category must emit a finding even when healthy, so
// an empty result set is never ambiguous with "not yet scanned".
type RuleSet interface {
	Provider() types.Provider
	Evaluate(in Input) []types.Finding
}

// Engine dispatches snapshots to the rule set of their provider
type Engine struct {
	sets       map[types.Provider]RuleSet
	table      *pricing.Table
	thresholds pricing.Thresholds
}

// NewEngine creates an engine over a closed set of rule sets
func NewEngine(table *pricing.Table, thresholds pricing.Thresholds, sets ...RuleSet) *Engine {
	m := make(map[types.Provider]RuleSet, len(sets))
	for _, rs := range sets {
		m[rs.Provider()] = rs
	}
	return &Engine{sets: m, table: table, thresholds: thresholds}
}

// Analyze classifies one connection's snapshot. Findings come back
// without IDs or timestamps; the persistence pipeline stamps those.
func (e *Engine) Analyze(conn types.Connection, snapshot types.UsageSnapshot, tier types.Tier, now time.Time) ([]types.Finding, error) {
	rs, ok := e.sets[conn.Provider]
	if !ok {
		return nil, errors.NotFound("rule set", conn.Provider.String())
	}
	if snapshot == nil {
		return nil, errors.New(errors.TypeInternal, "nil usage snapshot")
	}
	if snapshot.Provider() != conn.Provider {
		return nil, errors.Newf(errors.TypeInternal,
			"snapshot provider %s does not match connection provider %s",
			snapshot.Provider(), conn.Provider)
	}

	return rs.Evaluate(Input{
		Connection: conn,
		Snapshot:   snapshot,
		Tier:       tier,
		Table:      e.table,
		Thresholds: e.thresholds,
		Now:        now,
	}), nil
}

// Healthy builds the zero-savings finding an evaluated category emits
// when nothing is wrong
func Healthy(conn types.Connection, resourceType, resourceName, reason string) types.Finding {
	return types.Finding{
		ConnectionID:     conn.ID,
		UserID:           conn.UserID,
		ResourceName:     resourceName,
		ResourceType:     resourceType,
		Status:           types.FindingActive,
		PotentialSavings: decimal.Zero,
		Reason:           reason,
	}
}

// Actionable builds a cost-incurring finding. Callers must have
// checked the free-plan guard first.
func Actionable(conn types.Connection, status types.FindingStatus, resourceType, resourceName string, savings decimal.Decimal, reason string) types.Finding {
	return types.Finding{
		ConnectionID:     conn.ID,
		UserID:           conn.UserID,
		ResourceName:     resourceName,
		ResourceType:     resourceType,
		Status:           status,
		PotentialSavings: savings,
		Reason:           reason,
	}
}

// DaysSince returns whole days between then and now, never negative
func DaysSince(now, then time.Time) int {
	d := int(now.Sub(then).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
