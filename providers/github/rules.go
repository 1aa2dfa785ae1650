package github

import (
	"fmt"

	"github.com/shopspring/decimal"

	"wastescan/core/rules"
	"wastescan/core/types"
)

type ruleSet struct{}

// Provider implements rules.RuleSet
func (ruleSet) Provider() types.Provider {
	return types.ProviderGitHub
}

// Evaluate implements rules.RuleSet. Two categories: repository
// activity and seat utilization. The free-plan guard runs before any
// rule, so a free account can never yield a cost-incurring finding.
func (ruleSet) Evaluate(in rules.Input) []types.Finding {
	snap, ok := in.Snapshot.(Snapshot)
	if !ok || snap.IsEmpty() {
		return nil
	}

	conn := in.Connection
	freePlan := in.Table.IsFreePlan(types.ProviderGitHub, snap.Plan)
	var findings []types.Finding

	// Repository activity category
	cutoff := in.Thresholds.InactivityCutoff(types.ProviderGitHub)
	var stale []Repository
	newestStalePush := 0
	for _, r := range snap.Repositories {
		days := rules.DaysSince(in.Now, r.PushedAt)
		if days > cutoff {
			stale = append(stale, r)
			if newestStalePush == 0 || days < newestStalePush {
				newestStalePush = days
			}
		}
	}

	switch {
	case freePlan || len(stale) == 0:
		findings = append(findings, rules.Healthy(conn, "repository", "Repository activity",
			fmt.Sprintf("All %d repositories show recent push activity", len(snap.Repositories))))
	default:
		savings := in.Table.PlanCost(types.ProviderGitHub, snap.Plan)
		findings = append(findings, rules.Actionable(conn, types.FindingZombie,
			"repository", "Inactive repositories", savings,
			fmt.Sprintf("%d of %d repositories have had no pushes in %d days",
				len(stale), len(snap.Repositories), newestStalePush)))
	}

	// Seat utilization category, only meaningful on per-seat plans
	// with seat detail available (gated snapshots have none)
	if snap.Seats > 0 && in.Table.IsPerSeat(types.ProviderGitHub, snap.Plan) {
		ratio := float64(snap.FilledSeats) / float64(snap.Seats)
		if !freePlan && ratio < in.Thresholds.UtilizationLowerBound {
			unused := snap.Seats - snap.FilledSeats
			savings := in.Table.PlanCost(types.ProviderGitHub, snap.Plan).
				Mul(decimal.NewFromInt(int64(unused)))
			findings = append(findings, rules.Actionable(conn, types.FindingDowngrade,
				"seat", "Underused seats", savings,
				fmt.Sprintf("Only %d of %d paid seats are filled (%.0f%%)",
					snap.FilledSeats, snap.Seats, ratio*100)))
		} else {
			findings = append(findings, rules.Healthy(conn, "seat", "Seat utilization",
				fmt.Sprintf("%d of %d paid seats are filled", snap.FilledSeats, snap.Seats)))
		}
	}

	return findings
}
