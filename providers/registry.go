// Package providers defines the provider plugin system.
// Each connected service is a plugin behind one interface, selected
// through a registry keyed by provider identifier, so the compiler
// enforces that every provider implements the full contract.
package providers

import (
	"context"
	"sync"

	"wastescan/core/billing"
	"wastescan/core/pricing"
	"wastescan/core/rules"
	"wastescan/core/types"
	"wastescan/internal/errors"
)

// Adapter turns a connection plus credential into a normalized usage
// snapshot. Tier gating happens here, never in the rule engine: a
// free-tier user receives a deliberately restricted snapshot.
type Adapter interface {
	// Snapshot fetches usage data for one connection. The secret is
	// the plaintext credential revealed by the vault for this scan
	// only; implementations must not retain it.
	Snapshot(ctx context.Context, conn types.Connection, secret string, tier types.Tier) (types.UsageSnapshot, error)

	// Empty returns the neutral snapshot classified after an
	// upstream failure, so a failed re-scan cannot leave stale
	// findings implying resources still exist.
	Empty() types.UsageSnapshot
}

// Plugin bundles everything one provider contributes: the adapter,
// the classification rule set, and the billing mapping.
type Plugin interface {
	// Provider returns the provider identifier
	Provider() types.Provider

	// Name returns a human-readable name
	Name() string

	// Adapter returns the usage snapshot adapter
	Adapter() Adapter

	// Rules returns the classification rule set
	Rules() rules.RuleSet

	// BillingInput derives this scan's billing contribution from a
	// snapshot. ok is false when the snapshot carries nothing billable.
	BillingInput(snapshot types.UsageSnapshot, table *pricing.Table) (in billing.Input, ok bool)
}

// Registry manages plugin registration
type Registry struct {
	mu      sync.RWMutex
	plugins map[types.Provider]Plugin
}

// NewRegistry creates a new plugin registry
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[types.Provider]Plugin),
	}
}

// Register adds a plugin to the registry
func (r *Registry) Register(plugin Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[plugin.Provider()]; exists {
		return errors.Newf(errors.TypeConfig, "plugin already registered: %s", plugin.Provider())
	}
	r.plugins[plugin.Provider()] = plugin
	return nil
}

// Get returns a plugin by provider
func (r *Registry) Get(provider types.Provider) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plugin, ok := r.plugins[provider]
	return plugin, ok
}

// All returns every registered plugin
func (r *Registry) All() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plugins := make([]Plugin, 0, len(r.plugins))
	for _, plugin := range r.plugins {
		plugins = append(plugins, plugin)
	}
	return plugins
}

// RuleSets collects the rule sets of all registered plugins, in the
// shape the classification engine constructor expects
func (r *Registry) RuleSets() []rules.RuleSet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sets := make([]rules.RuleSet, 0, len(r.plugins))
	for _, plugin := range r.plugins {
		sets = append(sets, plugin.Rules())
	}
	return sets
}
