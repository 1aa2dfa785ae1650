package sentry

import (
	"fmt"

	"github.com/shopspring/decimal"

	"wastescan/core/rules"
	"wastescan/core/types"
)

type ruleSet struct{}

// Provider implements rules.RuleSet
func (ruleSet) Provider() types.Provider {
	return types.ProviderSentry
}

// Evaluate implements rules.RuleSet. Categories: event ingestion and
// quota utilization. The developer plan is the free tier; the guard
// short-circuits it to healthy findings before any threshold rule.
func (ruleSet) Evaluate(in rules.Input) []types.Finding {
	snap, ok := in.Snapshot.(Snapshot)
	if !ok || snap.IsEmpty() {
		return nil
	}

	conn := in.Connection
	freePlan := in.Table.IsFreePlan(types.ProviderSentry, snap.Plan)
	var findings []types.Finding

	// Event ingestion category
	cutoff := in.Thresholds.InactivityCutoff(types.ProviderSentry)
	daysQuiet := -1
	if snap.LastEventAt != nil {
		daysQuiet = rules.DaysSince(in.Now, *snap.LastEventAt)
	}

	switch {
	case freePlan || (daysQuiet >= 0 && daysQuiet <= cutoff):
		findings = append(findings, rules.Healthy(conn, "project", "Event ingestion",
			"Events were ingested recently"))
	case daysQuiet < 0:
		// Paid plan that has never received an event
		findings = append(findings, rules.Actionable(conn, types.FindingZombie,
			"project", "Silent project", in.Table.PlanCost(types.ProviderSentry, snap.Plan),
			fmt.Sprintf("No events have ever been ingested on the %s plan", snap.Plan)))
	default:
		findings = append(findings, rules.Actionable(conn, types.FindingZombie,
			"project", "Silent project", in.Table.PlanCost(types.ProviderSentry, snap.Plan),
			fmt.Sprintf("No events ingested in %d days on the %s plan", daysQuiet, snap.Plan)))
	}

	// Quota utilization category, only when quota detail is visible
	if snap.EventQuota > 0 {
		ratio := float64(snap.EventsConsumed) / float64(snap.EventQuota)
		if !freePlan && ratio < in.Thresholds.UtilizationLowerBound {
			savings := downgradeSavings(in, snap.Plan)
			findings = append(findings, rules.Actionable(conn, types.FindingDowngrade,
				"event_quota", "Oversized event quota", savings,
				fmt.Sprintf("Only %d of %d monthly events used (%.0f%%)",
					snap.EventsConsumed, snap.EventQuota, ratio*100)))
		} else {
			findings = append(findings, rules.Healthy(conn, "event_quota", "Quota utilization",
				fmt.Sprintf("%d of %d monthly events used", snap.EventsConsumed, snap.EventQuota)))
		}
	}

	return findings
}

// downgradeSavings is the monthly difference to the next lower plan
func downgradeSavings(in rules.Input, plan string) decimal.Decimal {
	current := in.Table.PlanCost(types.ProviderSentry, plan)
	if plan == "business" {
		return current.Sub(in.Table.PlanCost(types.ProviderSentry, "team"))
	}
	return current
}
