package aws

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"wastescan/core/billing"
	"wastescan/core/pricing"
	"wastescan/core/rules"
	"wastescan/core/types"
	"wastescan/providers"
)

// Plugin is the cloud-compute provider plugin
type Plugin struct {
	newClient func(ctx context.Context, secret string) (Client, error)
}

// New creates the plugin with the production SDK client
func New() *Plugin {
	return &Plugin{newClient: NewClient}
}

// NewWithClientFactory creates the plugin with a custom client
// factory, used by tests
func NewWithClientFactory(factory func(ctx context.Context, secret string) (Client, error)) *Plugin {
	return &Plugin{newClient: factory}
}

// Provider implements providers.Plugin
func (p *Plugin) Provider() types.Provider {
	return types.ProviderAWS
}

// Name implements providers.Plugin
func (p *Plugin) Name() string {
	return "AWS"
}

// Adapter implements providers.Plugin
func (p *Plugin) Adapter() providers.Adapter {
	return p
}

// Rules implements providers.Plugin
func (p *Plugin) Rules() rules.RuleSet {
	return ruleSet{}
}

// regionData collects one region's records; one slot per region keeps
// the merge order deterministic regardless of completion order
type regionData struct {
	instances []Instance
	volumes   []Volume
	addresses []Address
	samples   []CPUSample
}

// Snapshot implements providers.Adapter. All regions scan
// concurrently; the global cost history fetch runs alongside them
// without blocking any region. Free-tier users scan only the first
// region and get no cost history.
func (p *Plugin) Snapshot(ctx context.Context, conn types.Connection, secret string, tier types.Tier) (types.UsageSnapshot, error) {
	client, err := p.newClient(ctx, secret)
	if err != nil {
		return nil, err
	}

	regions := Regions()
	withHistory := true
	if tier == types.TierFree {
		regions = regions[:1]
		withHistory = false
	}

	slots := make([]regionData, len(regions))
	var history map[string]decimal.Decimal

	g, gctx := errgroup.WithContext(ctx)
	for i, region := range regions {
		g.Go(func() error {
			instances, err := client.StoppedInstances(gctx, region)
			if err != nil {
				return err
			}
			volumes, err := client.UnattachedVolumes(gctx, region)
			if err != nil {
				return err
			}
			addresses, err := client.IdleAddresses(gctx, region)
			if err != nil {
				return err
			}
			samples, err := client.CPUUtilization(gctx, region)
			if err != nil {
				return err
			}
			slots[i] = regionData{instances: instances, volumes: volumes, addresses: addresses, samples: samples}
			return nil
		})
	}
	if withHistory {
		g.Go(func() error {
			h, err := client.CostHistory(gctx)
			if err != nil {
				return err
			}
			history = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := Snapshot{Regions: regions, CostByPeriod: history}
	for _, slot := range slots {
		snap.StoppedInstances = append(snap.StoppedInstances, slot.instances...)
		snap.UnattachedVolumes = append(snap.UnattachedVolumes, slot.volumes...)
		snap.IdleAddresses = append(snap.IdleAddresses, slot.addresses...)
		snap.CPUSamples = append(snap.CPUSamples, slot.samples...)
	}
	return snap, nil
}

// Empty implements providers.Adapter
func (p *Plugin) Empty() types.UsageSnapshot {
	return Snapshot{}
}

// BillingInput implements providers.Plugin. The cloud provider is
// metered: its native cost history is used as-is and every period it
// covers is back-filled.
func (p *Plugin) BillingInput(snapshot types.UsageSnapshot, table *pricing.Table) (billing.Input, bool) {
	snap, ok := snapshot.(Snapshot)
	if !ok || len(snap.CostByPeriod) == 0 {
		return billing.Input{}, false
	}
	return billing.Input{MeteredByPeriod: snap.CostByPeriod}, true
}
