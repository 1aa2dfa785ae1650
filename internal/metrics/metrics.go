// Package metrics holds Prometheus instrumentation for the scan core.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the scanner
type Metrics struct {
	ScansTotal          prometheus.CounterVec
	CachedHitsTotal     prometheus.Counter
	ProviderErrorsTotal prometheus.CounterVec
	FindingsTotal       prometheus.CounterVec
	EnricherCallsTotal  prometheus.CounterVec
	BillingUpsertsTotal prometheus.Counter
	ScanDuration        prometheus.HistogramVec
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Init initializes global Prometheus metrics
func Init() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			ScansTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "wastescan_scans_total",
					Help: "Connection scans by provider and result",
				},
				[]string{"provider", "result"},
			),
			CachedHitsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "wastescan_cached_hits_total",
					Help: "Scan triggers answered from existing findings",
				},
			),
			ProviderErrorsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "wastescan_provider_errors_total",
					Help: "Upstream provider failures by provider",
				},
				[]string{"provider"},
			),
			FindingsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "wastescan_findings_total",
					Help: "Findings produced by provider and status",
				},
				[]string{"provider", "status"},
			),
			EnricherCallsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "wastescan_enricher_calls_total",
					Help: "Generative recommendation calls by result",
				},
				[]string{"result"},
			),
			BillingUpsertsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "wastescan_billing_upserts_total",
					Help: "Billing period rows upserted",
				},
			),
			ScanDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "wastescan_scan_duration_seconds",
					Help:    "Duration of one connection scan",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
		}
	})
	return globalMetrics
}

// Get returns the global metrics, initializing them if needed
func Get() *Metrics {
	return Init()
}
