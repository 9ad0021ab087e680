// Package metrics provides Prometheus metrics for the heatscore scoring service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcomes used as label values.
const (
	OutcomeApplied      = "applied"
	OutcomeDuplicate    = "duplicate"
	OutcomeNotFound     = "not_found"
	OutcomeAmbiguous    = "ambiguous"
	OutcomeInvalid      = "invalid"
	OutcomeUnauthorized = "unauthorized"
	OutcomeError        = "error"
)

// Manager manages all Prometheus metrics for the heatscore service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Scoring pipeline
	submissions        *prometheus.CounterVec
	submissionLatency  prometheus.Histogram
	resolutionFailures *prometheus.CounterVec
	upsertLatency      prometheus.Histogram
	dedupeSize         prometheus.Gauge

	// Read side
	viewQueries      *prometheus.CounterVec
	viewQueryLatency *prometheus.HistogramVec

	// Passcode gate
	panelSessions *prometheus.CounterVec

	// Judge station
	queueDepth      *prometheus.GaugeVec
	queueOperations *prometheus.CounterVec
	drainCycles     *prometheus.CounterVec
	drained         *prometheus.CounterVec
	stationOnline   prometheus.Gauge

	// Store pool
	dbOpenConnections prometheus.Gauge
	dbInUse           prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "heatscore",
		subsystem:        "scoring",
		histogramBuckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.histogramBuckets}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	auto := promauto.With(m.registry)

	m.submissions = auto.NewCounterVec(
		m.counterOpts("submissions_total", "Score submissions by outcome"),
		[]string{"outcome"},
	)
	m.submissionLatency = auto.NewHistogram(
		m.histogramOpts("submission_latency_milliseconds", "End-to-end latency of resolve + upsert"),
	)
	m.resolutionFailures = auto.NewCounterVec(
		m.counterOpts("resolution_failures_total", "Run result resolution failures by reason"),
		[]string{"reason"},
	)
	m.upsertLatency = auto.NewHistogram(
		m.histogramOpts("upsert_latency_milliseconds", "Latency of the judge score upsert"),
	)
	m.dedupeSize = auto.NewGauge(
		m.gaugeOpts("dedupe_entries", "Submission ids remembered for replay detection"),
	)

	m.viewQueries = auto.NewCounterVec(
		m.counterOpts("view_queries_total", "Aggregation view queries by view"),
		[]string{"view"},
	)
	m.viewQueryLatency = auto.NewHistogramVec(
		m.histogramOpts("view_query_latency_milliseconds", "Aggregation view latency by view"),
		[]string{"view"},
	)

	m.panelSessions = auto.NewCounterVec(
		m.counterOpts("panel_sessions_total", "Judging panel passcode attempts by result"),
		[]string{"result"},
	)

	m.queueDepth = auto.NewGaugeVec(
		m.gaugeOpts("station_queue_entries", "Station queue entries by list"),
		[]string{"list"},
	)
	m.queueOperations = auto.NewCounterVec(
		m.counterOpts("station_queue_operations_total", "Station queue operations by kind"),
		[]string{"op"},
	)
	m.drainCycles = auto.NewCounterVec(
		m.counterOpts("station_drain_cycles_total", "Drain cycles by end state"),
		[]string{"result"},
	)
	m.drained = auto.NewCounterVec(
		m.counterOpts("station_drained_total", "Queued submissions leaving the queue by outcome"),
		[]string{"outcome"},
	)
	m.stationOnline = auto.NewGauge(m.gaugeOpts("station_online", "1 while the scoring server is reachable"))

	m.dbOpenConnections = auto.NewGauge(m.gaugeOpts("db_open_connections", "Open connections in the store pool"))
	m.dbInUse = auto.NewGauge(m.gaugeOpts("db_in_use_connections", "Store connections currently in use"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)
	m.errorRateByType = auto.NewCounterVec(
		m.counterOpts("errors_by_type_total", "Errors by type and severity"),
		[]string{"error_type", "severity"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Errors by endpoint, method and type"),
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds", "Average GC pause in milliseconds"))
}

// RecordSubmission counts a score submission with the given outcome.
func RecordSubmission(outcome string) {
	globalManager.submissions.WithLabelValues(outcome).Inc()
}

// RecordSubmissionLatency records resolve + upsert latency.
func RecordSubmissionLatency(latencyMs float64) {
	globalManager.submissionLatency.Observe(latencyMs)
}

// RecordResolutionFailure counts a failed run result lookup.
func RecordResolutionFailure(reason string) {
	globalManager.resolutionFailures.WithLabelValues(reason).Inc()
}

// RecordUpsertLatency records the judge score write latency.
func RecordUpsertLatency(latencyMs float64) {
	globalManager.upsertLatency.Observe(latencyMs)
}

// UpdateDedupeSize sets the number of remembered submission ids.
func UpdateDedupeSize(size int64) {
	globalManager.dedupeSize.Set(float64(size))
}

// RecordViewQuery records one aggregation view read.
func RecordViewQuery(view string, latencyMs float64) {
	globalManager.viewQueries.WithLabelValues(view).Inc()
	globalManager.viewQueryLatency.WithLabelValues(view).Observe(latencyMs)
}

// RecordPanelSession counts a passcode attempt.
func RecordPanelSession(result string) {
	globalManager.panelSessions.WithLabelValues(result).Inc()
}

// UpdateQueueDepth sets the station queue sizes.
func UpdateQueueDepth(pending, rejected int) {
	globalManager.queueDepth.WithLabelValues("pending").Set(float64(pending))
	globalManager.queueDepth.WithLabelValues("rejected").Set(float64(rejected))
}

// RecordQueueOperation counts one station queue operation.
func RecordQueueOperation(op string) {
	globalManager.queueOperations.WithLabelValues(op).Inc()
}

// RecordDrainCycle counts a finished drain cycle and what it moved.
func RecordDrainCycle(result string, flushed, rejected int) {
	globalManager.drainCycles.WithLabelValues(result).Inc()
	globalManager.drained.WithLabelValues("confirmed").Add(float64(flushed))
	globalManager.drained.WithLabelValues("rejected").Add(float64(rejected))
}

// UpdateStationOnline records the station's view of server reachability.
func UpdateStationOnline(online bool) {
	v := 0.0
	if online {
		v = 1
	}
	globalManager.stationOnline.Set(v)
}

// UpdateDBStats mirrors database/sql pool statistics.
func UpdateDBStats(open, inUse int) {
	globalManager.dbOpenConnections.Set(float64(open))
	globalManager.dbInUse.Set(float64(inUse))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
