package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the ingestion service

var (
	// API Call metrics
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oddscollector_api_calls_total",
			Help: "Total number of BetsAPI calls by outcome",
		},
		[]string{"endpoint", "status"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oddscollector_api_call_duration_seconds",
			Help:    "Duration of API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Database metrics
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oddscollector_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "table", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oddscollector_db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oddscollector_db_connections_active",
			Help: "Number of acquired database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oddscollector_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	// Cache metrics
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oddscollector_cache_hits_total",
			Help: "Total number of odds summary cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oddscollector_cache_misses_total",
			Help: "Total number of odds summary cache misses",
		},
	)

	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oddscollector_cache_operation_duration_seconds",
			Help:    "Duration of cache operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// Ingestion metrics
	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oddscollector_events_processed_total",
			Help: "Total number of events seen by the ingestion worker, by outcome",
		},
		[]string{"mode", "outcome"},
	)

	OddsInsertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oddscollector_odds_inserted_total",
			Help: "Total number of odds rows newly inserted",
		},
		[]string{"mode"},
	)

	PagesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oddscollector_pages_fetched_total",
			Help: "Total number of ended-events pages walked",
		},
		[]string{"mode"},
	)

	EventsPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oddscollector_events_pruned_total",
			Help: "Total number of events removed by the retention sweep",
		},
	)

	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oddscollector_runs_total",
			Help: "Total number of ingestion runs",
		},
		[]string{"type", "status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oddscollector_run_duration_seconds",
			Help:    "Duration of ingestion runs in seconds",
			Buckets: []float64{10, 30, 60, 300, 600, 1800, 3600, 7200, 14400},
		},
		[]string{"type"},
	)

	BackfillTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oddscollector_backfill_tasks_total",
			Help: "Total number of backfill day x league tasks by outcome",
		},
		[]string{"outcome"},
	)

	BackfillWorkersBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oddscollector_backfill_workers_busy",
			Help: "Number of backfill workers currently running a task",
		},
	)

	// Store metrics
	EventsStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oddscollector_events_stored",
			Help: "Number of events in the store",
		},
	)

	OddsStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oddscollector_odds_stored",
			Help: "Number of odds rows in the store",
		},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oddscollector_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	SystemUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oddscollector_system_uptime_seconds",
			Help: "System uptime in seconds",
		},
	)

	LastSuccessfulRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oddscollector_last_successful_run_timestamp",
			Help: "Timestamp of last successful ingestion run",
		},
	)
)

// RecordAPICall records an API call metric
func RecordAPICall(endpoint, status string, duration float64) {
	APICallsTotal.WithLabelValues(endpoint, status).Inc()
	APICallDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table, status string, duration float64) {
	DBQueriesTotal.WithLabelValues(operation, table, status).Inc()
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration)
}

// RecordCacheHit records a cache hit
func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// RecordCacheOperation records a cache operation duration
func RecordCacheOperation(operation string, duration float64) {
	CacheOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordEvent records the outcome of one processed event
func RecordEvent(mode, outcome string) {
	EventsProcessedTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordOddsInserted records newly inserted odds rows
func RecordOddsInserted(mode string, n int) {
	if n > 0 {
		OddsInsertedTotal.WithLabelValues(mode).Add(float64(n))
	}
}

// RecordPage records one fetched ended-events page
func RecordPage(mode string) {
	PagesFetchedTotal.WithLabelValues(mode).Inc()
}

// RecordPruned records events removed by the retention sweep
func RecordPruned(n int64) {
	if n > 0 {
		EventsPrunedTotal.Add(float64(n))
	}
}

// RecordRun records an ingestion run
func RecordRun(runType, status string, duration float64) {
	RunsTotal.WithLabelValues(runType, status).Inc()
	RunDuration.WithLabelValues(runType).Observe(duration)

	if status == "success" {
		LastSuccessfulRun.SetToCurrentTime()
	}
}

// RecordBackfillTask records the outcome of one backfill task
func RecordBackfillTask(outcome string) {
	BackfillTasksTotal.WithLabelValues(outcome).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// UpdateDBConnectionStats updates database connection pool statistics
func UpdateDBConnectionStats(active, idle int32) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}

// UpdateStoreStats updates row count gauges
func UpdateStoreStats(events, odds int64) {
	EventsStored.Set(float64(events))
	OddsStored.Set(float64(odds))
}
