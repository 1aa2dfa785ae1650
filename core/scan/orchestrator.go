// Package scan coordinates full scans across a user's connections:
// staleness checks, per-connection fan-out, classification,
// enrichment, persistence, and the deferred bookkeeping that follows
// a completed scan.
package scan

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wastescan/core/billing"
	"wastescan/core/enrich"
	"wastescan/core/pricing"
	"wastescan/core/rules"
	"wastescan/core/snapshot"
	"wastescan/core/types"
	"wastescan/db"
	"wastescan/internal/logging"
	"wastescan/internal/metrics"
	"wastescan/providers"
	"wastescan/vault"
)

// Options tune orchestrator behavior
type Options struct {
	// TTL is the staleness window for a connection's findings
	TTL time.Duration

	// StatsRefreshInterval refreshes the cross-user aggregates every
	// N completed scans per user
	StatsRefreshInterval int

	// ReferralScanThreshold is the completed-scan count after which a
	// referred user qualifies their referrer
	ReferralScanThreshold int
}

// DefaultOptions returns the standard orchestrator tuning
func DefaultOptions() Options {
	return Options{
		TTL:                   time.Hour,
		StatsRefreshInterval:  10,
		ReferralScanThreshold: 3,
	}
}

// Orchestrator runs scans for users. All provider calls fan out per
// connection and the trigger blocks until every connection has
// finished, so callers always observe a complete result set.
type Orchestrator struct {
	store    db.Store
	registry *providers.Registry
	engine   *rules.Engine
	enricher *enrich.Enricher
	vault    vault.Vault
	billing  *billing.Aggregator
	recorder *snapshot.Recorder
	table    *pricing.Table
	opts     Options
	log      *zap.Logger

	// now and spawn are swappable so tests can control time and make
	// post-scan bookkeeping synchronous
	now   func() time.Time
	spawn func(func())
}

// NewOrchestrator wires the scan pipeline together
func NewOrchestrator(store db.Store, registry *providers.Registry, engine *rules.Engine, enricher *enrich.Enricher, v vault.Vault, table *pricing.Table, opts Options) *Orchestrator {
	log := logging.Logger
	return &Orchestrator{
		store:    store,
		registry: registry,
		engine:   engine,
		enricher: enricher,
		vault:    v,
		billing:  billing.NewAggregator(store, log),
		recorder: snapshot.NewRecorder(store),
		table:    table,
		opts:     opts,
		log:      log,
		now:      time.Now,
		spawn:    func(fn func()) { go fn() },
	}
}

// SetClock overrides the reference clock. Test hook.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// SetSpawn overrides how post-scan bookkeeping is dispatched. Test hook.
func (o *Orchestrator) SetSpawn(spawn func(func())) { o.spawn = spawn }

// Trigger runs a scan for userID. Connections whose findings are still
// fresh are skipped unless forceRefresh is set; when every connection
// is fresh, the call returns persisted findings without a single
// provider call.
func (o *Orchestrator) Trigger(ctx context.Context, userID string, forceRefresh bool) (*types.ScanOutcome, error) {
	user, err := o.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	conns, err := o.store.ListConnections(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := o.now()
	existing, err := o.store.ListFindings(ctx, userID)
	if err != nil {
		return nil, err
	}
	findingsPerConn := make(map[string]int, len(conns))
	for _, f := range existing {
		findingsPerConn[f.ConnectionID]++
	}

	var stale, readable []types.Connection
	for _, conn := range conns {
		if conn.Status == types.ConnectionDisconnected {
			continue
		}
		readable = append(readable, conn)
		if forceRefresh || o.isStale(conn, findingsPerConn[conn.ID], now) {
			stale = append(stale, conn)
		}
	}

	// No stale connections means nothing to scan, even when the user
	// has no scannable connections at all. Scan-count bookkeeping only
	// advances when a scan actually ran.
	m := metrics.Get()
	if len(stale) == 0 {
		m.CachedHitsTotal.Inc()
		o.log.Info("scan served from cache",
			zap.String("user_id", userID),
			zap.Int("connections", len(readable)))
		return o.outcome(ctx, user, conns, readable, 0, true)
	}

	var (
		mu            sync.Mutex
		billingInputs = make(map[string]billing.Input)
		wg            sync.WaitGroup
	)
	for _, conn := range stale {
		wg.Add(1)
		go func(conn types.Connection) {
			defer wg.Done()
			in, ok := o.scanConnection(ctx, conn, user.Tier, now)
			if ok {
				mu.Lock()
				billingInputs[conn.ID] = in
				mu.Unlock()
			}
		}(conn)
	}
	wg.Wait()

	newCount, err := o.store.IncrementScanCount(ctx, userID)
	if err != nil {
		o.log.Error("failed to increment scan count",
			zap.String("user_id", userID), zap.Error(err))
	}

	o.spawn(func() {
		o.afterScan(context.Background(), user, newCount, billingInputs)
	})

	return o.outcome(ctx, user, conns, readable, len(stale), false)
}

// Results returns the persisted findings without triggering any scan
func (o *Orchestrator) Results(ctx context.Context, userID string) (*types.ScanOutcome, error) {
	user, err := o.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	conns, err := o.store.ListConnections(ctx, userID)
	if err != nil {
		return nil, err
	}
	var readable []types.Connection
	for _, conn := range conns {
		if conn.Status != types.ConnectionDisconnected {
			readable = append(readable, conn)
		}
	}
	return o.outcome(ctx, user, conns, readable, 0, true)
}

// isStale reports whether a connection's findings need refreshing
func (o *Orchestrator) isStale(conn types.Connection, findingCount int, now time.Time) bool {
	if findingCount == 0 {
		return true
	}
	if conn.LastScannedAt == nil {
		return true
	}
	return now.Sub(*conn.LastScannedAt) > o.opts.TTL
}

// scanConnection runs the full pipeline for one connection: reveal
// credential, fetch snapshot, classify, enrich, persist, and flip the
// connection status. A provider failure classifies the provider's
// neutral snapshot so stale findings never survive a failed re-scan.
func (o *Orchestrator) scanConnection(ctx context.Context, conn types.Connection, tier types.Tier, now time.Time) (billing.Input, bool) {
	m := metrics.Get()
	log := logging.Scan(conn.ID, conn.Provider.String())
	start := time.Now()

	plugin, ok := o.registry.Get(conn.Provider)
	if !ok {
		log.Error("no plugin registered for provider")
		if err := o.store.UpdateConnectionScan(ctx, conn.ID, types.ConnectionError, "unsupported provider", now); err != nil {
			log.Error("failed to record scan state", zap.Error(err))
		}
		m.ScansTotal.WithLabelValues(conn.Provider.String(), "error").Inc()
		return billing.Input{}, false
	}
	adapter := plugin.Adapter()

	status := types.ConnectionActive
	errMsg := ""
	var snap types.UsageSnapshot

	secret, err := o.vault.Reveal(ctx, conn)
	if err == nil {
		snap, err = adapter.Snapshot(ctx, conn, secret, tier)
	}
	if err != nil {
		log.Warn("provider snapshot failed", zap.Error(err))
		m.ProviderErrorsTotal.WithLabelValues(conn.Provider.String()).Inc()
		status = types.ConnectionError
		errMsg = err.Error()
		snap = adapter.Empty()
	}

	findings, err := o.engine.Analyze(conn, snap, tier, now)
	if err != nil {
		log.Error("classification failed", zap.Error(err))
		status = types.ConnectionError
		errMsg = err.Error()
		findings = nil
	}

	findings = o.enricher.Enrich(ctx, findings)
	for i := range findings {
		findings[i].ID = uuid.NewString()
		findings[i].DetectedAt = now
	}

	if err := o.store.DeleteFindings(ctx, conn.ID); err != nil {
		log.Error("failed to clear previous findings", zap.Error(err))
		status = types.ConnectionError
		errMsg = err.Error()
	} else if err := o.store.InsertFindings(ctx, findings); err != nil {
		log.Error("failed to persist findings", zap.Error(err))
		status = types.ConnectionError
		errMsg = err.Error()
	}

	if err := o.store.UpdateConnectionScan(ctx, conn.ID, status, errMsg, now); err != nil {
		log.Error("failed to record scan state", zap.Error(err))
	}

	result := "ok"
	if status == types.ConnectionError {
		result = "error"
	}
	m.ScansTotal.WithLabelValues(conn.Provider.String(), result).Inc()
	m.ScanDuration.WithLabelValues(conn.Provider.String()).Observe(time.Since(start).Seconds())
	for _, f := range findings {
		m.FindingsTotal.WithLabelValues(conn.Provider.String(), string(f.Status)).Inc()
	}
	log.Info("connection scanned",
		zap.String("status", string(status)),
		zap.Int("findings", len(findings)),
		zap.Duration("duration", time.Since(start)))

	if status != types.ConnectionActive {
		return billing.Input{}, false
	}
	in, hasBilling := plugin.BillingInput(snap, o.table)
	return in, hasBilling && !in.IsZero()
}

// afterScan runs the bookkeeping that must not delay the scan
// response: billing upserts, savings history, aggregate stats, and
// referral qualification.
func (o *Orchestrator) afterScan(ctx context.Context, user *types.User, newCount int, billingInputs map[string]billing.Input) {
	now := o.now()

	o.billing.RecordAll(ctx, billingInputs, now)

	if err := o.recorder.Recompute(ctx, user.ID, now); err != nil {
		o.log.Error("failed to recompute savings snapshots",
			zap.String("user_id", user.ID), zap.Error(err))
	}

	if newCount > 0 && o.opts.StatsRefreshInterval > 0 && newCount%o.opts.StatsRefreshInterval == 0 {
		if err := o.store.RefreshAggregateStats(ctx, now); err != nil {
			o.log.Error("failed to refresh aggregate stats", zap.Error(err))
		}
	}

	if user.ReferredBy != "" && !user.ReferralQualified && newCount >= o.opts.ReferralScanThreshold {
		if err := o.store.MarkReferralQualified(ctx, user.ID); err != nil {
			o.log.Error("failed to mark referral qualified",
				zap.String("user_id", user.ID), zap.Error(err))
		} else {
			o.log.Info("referral qualified",
				zap.String("user_id", user.ID),
				zap.String("referred_by", user.ReferredBy),
				zap.Int("scan_count", newCount))
		}
	}
}

// outcome assembles the response from persisted state
func (o *Orchestrator) outcome(ctx context.Context, user *types.User, all, readable []types.Connection, scanned int, cached bool) (*types.ScanOutcome, error) {
	ids := make([]string, len(readable))
	var lastScan *time.Time
	for i, conn := range readable {
		ids[i] = conn.ID
		if conn.LastScannedAt != nil && (lastScan == nil || conn.LastScannedAt.After(*lastScan)) {
			lastScan = conn.LastScannedAt
		}
	}
	findings, err := o.store.ListFindingsByConnections(ctx, ids)
	if err != nil {
		return nil, err
	}
	if scanned > 0 {
		now := o.now()
		lastScan = &now
	}
	return &types.ScanOutcome{
		Findings:         findings,
		Cached:           cached,
		ScannedCount:     scanned,
		TotalConnections: len(all),
		LastScanTime:     lastScan,
	}, nil
}
