// Package metrics provides Prometheus observability for scriptpool.
//
// The package exposes pre-registered collectors for the scope pool, the
// compiled-function cache, stored-function synchronization, and script
// file execution. Recording is thread-safe and cheap enough to sit on
// the pool hot path.
//
// Example:
//
//	metrics.ScopePoolHits.WithLabelValues("app").Inc()
//	metrics.ScopeEvictions.WithLabelValues("oom").Inc()
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScopePoolHits counts pool gets satisfied from an idle list, by pool key.
	ScopePoolHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptpool_pool_hits_total",
			Help: "Number of scope requests served from the idle pool",
		},
		[]string{"pool"},
	)

	// ScopePoolMisses counts pool gets that required a fresh scope, by pool key.
	ScopePoolMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptpool_pool_misses_total",
			Help: "Number of scope requests that created a new scope",
		},
		[]string{"pool"},
	)

	// ScopeEvictions counts scopes destroyed instead of pooled, by reason.
	// Reasons: pool_full, overused, error, oom, orphaned, cleared, cross_thread.
	ScopeEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptpool_scope_evictions_total",
			Help: "Number of scopes destroyed instead of returned to the pool",
		},
		[]string{"reason"},
	)

	// IdleScopes tracks the current number of idle pooled scopes.
	IdleScopes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scriptpool_idle_scopes",
			Help: "Current number of idle scopes across all pools",
		},
	)

	// StoredFunctionReloads counts full stored-function fetches.
	StoredFunctionReloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scriptpool_stored_function_reloads_total",
			Help: "Number of stored-function repository fetches",
		},
	)

	// StoredFunctionSkips counts individual stored functions skipped on bind failure.
	StoredFunctionSkips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scriptpool_stored_function_skips_total",
			Help: "Number of stored functions skipped because binding failed",
		},
	)

	// CompileCacheHits counts compiled-function cache hits.
	CompileCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scriptpool_compile_cache_hits_total",
			Help: "Number of function compilations served from the per-scope cache",
		},
	)

	// CompileCacheMisses counts compiled-function cache misses.
	CompileCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scriptpool_compile_cache_misses_total",
			Help: "Number of function compilations delegated to the engine",
		},
	)

	// ScriptFiles counts script file executions by status (ok or failed).
	ScriptFiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptpool_script_files_total",
			Help: "Number of script files executed, by status",
		},
		[]string{"status"},
	)
)
