package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the plugin host
type Metrics struct {
	registry *prometheus.Registry

	// Pool metrics
	SandboxSpawnsTotal     *prometheus.CounterVec
	SandboxReuseHitsTotal  prometheus.Counter
	SandboxEvictionsTotal  prometheus.Counter
	SandboxCrashesTotal    prometheus.Counter
	SandboxesActive        prometheus.Gauge
	SandboxStartupDuration prometheus.Histogram

	// Catalog metrics
	CatalogScansTotal     prometheus.Counter
	CatalogEntriesNew     prometheus.Counter
	CatalogEntriesUpdated prometheus.Counter
	CatalogScanErrors     prometheus.Counter

	// Capability metrics
	PermissionsDroppedTotal *prometheus.CounterVec

	// Gateway metrics
	GatewayCallsTotal *prometheus.CounterVec
}

// New creates and registers all metrics on a private registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		SandboxSpawnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandbox_spawns_total",
				Help: "Total number of sandbox spawn attempts",
			},
			[]string{"provider_id", "status"},
		),
		SandboxReuseHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sandbox_reuse_hits_total",
				Help: "Total number of requests served by an existing sandbox",
			},
		),
		SandboxEvictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sandbox_evictions_total",
				Help: "Total number of sandboxes reclaimed by idle eviction",
			},
		),
		SandboxCrashesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sandbox_crashes_total",
				Help: "Total number of sandbox processes that exited unexpectedly",
			},
		),
		SandboxesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandboxes_active",
				Help: "Number of currently pooled sandboxes",
			},
		),
		SandboxStartupDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sandbox_startup_duration_seconds",
				Help:    "Time from spawn to readiness",
				Buckets: prometheus.DefBuckets,
			},
		),

		CatalogScansTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_scans_total",
				Help: "Total number of catalog discovery runs",
			},
		),
		CatalogEntriesNew: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_entries_new_total",
				Help: "Total number of newly inserted catalog entries",
			},
		),
		CatalogEntriesUpdated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_entries_updated_total",
				Help: "Total number of re-validated catalog entries",
			},
		),
		CatalogScanErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_scan_errors_total",
				Help: "Total number of per-entry catalog scan errors",
			},
		),

		PermissionsDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permissions_dropped_total",
				Help: "Well-formed permissions with no capability table entry",
			},
			[]string{"resource", "scope"},
		),

		GatewayCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_calls_total",
				Help: "Total number of gateway RPC calls",
			},
			[]string{"method", "status"},
		),
	}

	registry.MustRegister(
		m.SandboxSpawnsTotal,
		m.SandboxReuseHitsTotal,
		m.SandboxEvictionsTotal,
		m.SandboxCrashesTotal,
		m.SandboxesActive,
		m.SandboxStartupDuration,
		m.CatalogScansTotal,
		m.CatalogEntriesNew,
		m.CatalogEntriesUpdated,
		m.CatalogScanErrors,
		m.PermissionsDroppedTotal,
		m.GatewayCallsTotal,
	)

	return m
}

// Handler returns an HTTP handler serving the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
