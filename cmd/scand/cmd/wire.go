// Package cmd - shared wiring for the scan commands
package cmd

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"wastescan/core/enrich"
	"wastescan/core/pricing"
	"wastescan/core/rules"
	"wastescan/core/scan"
	"wastescan/core/types"
	"wastescan/db"
	"wastescan/internal/config"
	"wastescan/internal/logging"
	"wastescan/providers"
	"wastescan/providers/aws"
	"wastescan/providers/github"
	"wastescan/providers/sentry"
	"wastescan/vault"
)

// app bundles the wired components a command needs
type app struct {
	store        *db.SQLStore
	orchestrator *scan.Orchestrator
}

func (a *app) Close() error {
	return a.store.Close()
}

// buildApp wires the full scan pipeline from the global configuration
func buildApp() (*app, error) {
	cfg := config.Get()

	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	factor, err := decimal.NewFromString(cfg.Pricing.CurrencyFactor)
	if err != nil {
		store.Close()
		return nil, err
	}
	table := pricing.NewTable(factor)
	thresholds := thresholdsFromConfig(cfg)

	registry := providers.NewRegistry()
	for _, plugin := range []providers.Plugin{github.New(), aws.New(), sentry.New()} {
		if err := registry.Register(plugin); err != nil {
			store.Close()
			return nil, err
		}
	}
	engine := rules.NewEngine(table, thresholds, registry.RuleSets()...)

	// Missing API key is not fatal: the enricher degrades to its
	// deterministic fallback.
	var completer enrich.Completer
	if c, err := enrich.NewAnthropicCompleter(""); err == nil {
		completer = c
	} else {
		logging.Logger.Warn("generative enrichment disabled", zap.Error(err))
	}
	enricher := enrich.New(completer, enrich.Config{
		Models:    cfg.AI.Models,
		Timeout:   time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
		MaxTokens: cfg.AI.MaxTokens,
		CacheSize: cfg.AI.CacheSize,
	}, logging.Logger)

	orchestrator := scan.NewOrchestrator(store, registry, engine, enricher, vault.NewEnv(), table, scan.Options{
		TTL:                   time.Duration(cfg.Scan.TTLSeconds) * time.Second,
		StatsRefreshInterval:  cfg.Scan.StatsRefreshInterval,
		ReferralScanThreshold: cfg.Scan.ReferralScanThreshold,
	})

	return &app{store: store, orchestrator: orchestrator}, nil
}

func thresholdsFromConfig(cfg *config.Config) pricing.Thresholds {
	t := pricing.DefaultThresholds()
	for name, days := range cfg.Thresholds.InactivityDays {
		t.InactivityDays[types.Provider(name)] = days
	}
	if cfg.Thresholds.UtilizationLowerBound > 0 {
		t.UtilizationLowerBound = cfg.Thresholds.UtilizationLowerBound
	}
	return t
}
