package github

import (
	"context"

	"github.com/shopspring/decimal"

	"wastescan/core/billing"
	"wastescan/core/pricing"
	"wastescan/core/rules"
	"wastescan/core/types"
	"wastescan/providers"
)

// Plugin is the code-hosting provider plugin
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
	return types.ProviderGitHub
}

// Name implements providers.Plugin
func (p *Plugin) Name() string {
	return "GitHub"
}

// Adapter implements providers.Plugin
func (p *Plugin) Adapter() providers.Adapter {
	return p
}

// Rules implements providers.Plugin
func (p *Plugin) Rules() rules.RuleSet {
	return ruleSet{}
}

// Snapshot implements providers.Adapter. Free-tier users receive a
// gated snapshot: public repositories only and no seat detail.
func (p *Plugin) Snapshot(ctx context.Context, conn types.Connection, secret string, tier types.Tier) (types.UsageSnapshot, error) {
	client := p.newClient(secret)

	account, err := client.Account(ctx)
	if err != nil {
		return nil, err
	}
	repos, err := client.Repositories(ctx)
	if err != nil {
		return nil, err
	}

	snap := Snapshot{
		Plan:         account.Plan,
		Seats:        account.Seats,
		FilledSeats:  account.FilledSeats,
		Repositories: repos,
	}

	if tier == types.TierFree {
		public := make([]Repository, 0, len(repos))
		for _, r := range repos {
			if !r.Private {
				public = append(public, r)
			}
		}
		snap.Repositories = public
		snap.Seats = 0
		snap.FilledSeats = 0
		snap.Gated = true
	}
	return snap, nil
}

// Empty implements providers.Adapter
func (p *Plugin) Empty() types.UsageSnapshot {
	return Snapshot{}
}

// BillingInput implements providers.Plugin. The code host bills by
// plan tier, per seat on team and enterprise plans.
func (p *Plugin) BillingInput(snapshot types.UsageSnapshot, table *pricing.Table) (billing.Input, bool) {
	snap, ok := snapshot.(Snapshot)
	if !ok || snap.IsEmpty() || table.IsFreePlan(types.ProviderGitHub, snap.Plan) {
		return billing.Input{}, false
	}

	cost := table.PlanCost(types.ProviderGitHub, snap.Plan)
	breakdown := map[string]decimal.Decimal{"plan": cost}
	if table.IsPerSeat(types.ProviderGitHub, snap.Plan) && snap.Seats > 0 {
		cost = cost.Mul(decimal.NewFromInt(int64(snap.Seats)))
		breakdown = map[string]decimal.Decimal{"seats": cost}
	}
	return billing.Input{PlanCost: cost, Breakdown: breakdown}, true
}
