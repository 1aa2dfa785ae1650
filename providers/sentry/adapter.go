package sentry

import (
	"context"

	"github.com/shopspring/decimal"

	"wastescan/core/billing"
	"wastescan/core/pricing"
	"wastescan/core/rules"
	"wastescan/core/types"
	"wastescan/providers"
)

// Plugin is the error-tracking provider plugin
type Plugin struct {
	newClient func(secret string) Client
}

// New creates the plugin with the production REST client
func New() *Plugin {
	return &Plugin{newClient: NewClient}
}

// NewWithClientFactory creates the plugin with a custom client
// factory, used by tests
func NewWithClientFactory(factory func(secret string) Client) *Plugin {
	return &Plugin{newClient: factory}
}

// Provider implements providers.Plugin
func (p *Plugin) Provider() types.Provider {
	return types.ProviderSentry
}

// Name implements providers.Plugin
func (p *Plugin) Name() string {
	return "Sentry"
}

// Adapter implements providers.Plugin
func (p *Plugin) Adapter() providers.Adapter {
	return p
}

// Rules implements providers.Plugin
func (p *Plugin) Rules() rules.RuleSet {
	return ruleSet{}
}

// Snapshot implements providers.Adapter. The connection's account
// label is the organization slug. Free-tier users get activity data
// only: no quota detail and no spend figure.
func (p *Plugin) Snapshot(ctx context.Context, conn types.Connection, secret string, tier types.Tier) (types.UsageSnapshot, error) {
	client := p.newClient(secret)

	usage, err := client.Usage(ctx, conn.AccountLabel)
	if err != nil {
		return nil, err
	}

	snap := Snapshot{
		Plan:           usage.Plan,
		EventQuota:     usage.EventQuota,
		EventsConsumed: usage.EventsConsumed,
		LastEventAt:    usage.LastEventAt,
		MonthlySpend:   usage.MonthlySpend,
	}
	if tier == types.TierFree {
		snap.EventQuota = 0
		snap.EventsConsumed = 0
		snap.MonthlySpend = decimal.Zero
		snap.Gated = true
	}
	return snap, nil
}

// Empty implements providers.Adapter
func (p *Plugin) Empty() types.UsageSnapshot {
	return Snapshot{}
}

// BillingInput implements providers.Plugin. The error tracker reports
// a native spend figure; when that is missing (gated snapshots) the
// plan list price is used instead.
func (p *Plugin) BillingInput(snapshot types.UsageSnapshot, table *pricing.Table) (billing.Input, bool) {
	snap, ok := snapshot.(Snapshot)
	if !ok || snap.IsEmpty() {
		return billing.Input{}, false
	}

	if snap.MonthlySpend.IsPositive() {
		return billing.Input{
			PlanCost:  snap.MonthlySpend,
			Breakdown: map[string]decimal.Decimal{"usage": snap.MonthlySpend},
		}, true
	}
	if table.IsFreePlan(types.ProviderSentry, snap.Plan) {
		return billing.Input{}, false
	}
	cost := table.PlanCost(types.ProviderSentry, snap.Plan)
	return billing.Input{
		PlanCost:  cost,
		Breakdown: map[string]decimal.Decimal{"plan": cost},
	}, true
}
