// Package metrics provides Prometheus metrics for the dashboard API.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// latencyBuckets are the millisecond buckets used by latency histograms.
var latencyBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500} //nolint:gochecknoglobals // immutable defaults

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Ingest
	eventsIngested  *prometheus.CounterVec
	eventsDuplicate prometheus.Counter
	eventsRejected  *prometheus.CounterVec
	eventsRecorded  *prometheus.CounterVec
	recordLatency   prometheus.Histogram
	trackedEvents   prometheus.Gauge

	// Queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueRejections  *prometheus.CounterVec

	// Workers
	workerCount  prometheus.Gauge
	workerErrors prometheus.Counter

	// Store
	storeQueryLatency *prometheus.HistogramVec
	storeErrors       *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec

	// Errors by component
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var (
	globalManager  atomic.Pointer[Manager]             //nolint:gochecknoglobals // singleton metrics manager
	globalRegistry atomic.Pointer[prometheus.Registry] //nolint:gochecknoglobals // registry behind /metrics
)

func init() { //nolint:gochecknoinits // recorders work before Init is called
	Init()
}

// Init replaces the global manager with one built from opts on a fresh
// registry, so default Go collectors stay out of the exposition. Call it
// once at startup, before the registry is exposed.
func Init(opts ...Option) *Manager {
	registry := prometheus.NewRegistry()
	opts = append(opts[:len(opts):len(opts)], WithPrometheusRegistry(registry))
	m := NewManager(opts...)
	globalRegistry.Store(registry)
	globalManager.Store(m)
	return m
}

func global() *Manager { return globalManager.Load() }

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "dashboard",
		subsystem:        "api",
		histogramBuckets: latencyBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of collectors
	auto := promauto.With(m.registry)

	m.eventsIngested = auto.NewCounterVec(m.counterOpts("events_ingested_total",
		"User events accepted for recording, by event type"), []string{"event_type"})
	m.eventsDuplicate = auto.NewCounter(m.counterOpts("events_duplicate_total",
		"User events dropped because their id was already seen"))
	m.eventsRejected = auto.NewCounterVec(m.counterOpts("events_rejected_total",
		"User events rejected before enqueue, by reason"), []string{"reason"})
	m.eventsRecorded = auto.NewCounterVec(m.counterOpts("events_recorded_total",
		"User events written to the store, by event type"), []string{"event_type"})
	m.recordLatency = auto.NewHistogram(m.histogramOpts("record_latency_milliseconds",
		"Time spent writing a single event to the store"))
	m.trackedEvents = auto.NewGauge(m.gaugeOpts("tracked_events",
		"Number of events currently held by the store"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Events waiting in the ingest queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum ingest queue length"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "queue_size / queue_capacity"))
	m.queueRejections = auto.NewCounterVec(m.counterOpts("queue_rejections_total",
		"Enqueue attempts that failed, by reason"), []string{"reason"})

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Number of recorder workers"))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Events the workers failed to record"))

	m.storeQueryLatency = auto.NewHistogramVec(m.histogramOpts("store_query_latency_milliseconds",
		"Store query latency by query"), []string{"query"})
	m.storeErrors = auto.NewCounterVec(m.counterOpts("store_errors_total",
		"Store operations that returned an error, by operation"), []string{"operation"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"HTTP requests by route, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration by route, method and status"), []string{"endpoint", "method", "status_code"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts("http_errors_total",
		"HTTP responses with status >= 400 by route, method and error type"), []string{"endpoint", "method", "error_type"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_total",
		"Errors by component and type"), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutines", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_milliseconds",
		"Average GC pause observed at each sample"))
}

// RecordEventIngested counts an accepted event.
func RecordEventIngested(eventType string) {
	global().eventsIngested.WithLabelValues(eventType).Inc()
}

// RecordEventDuplicate counts an event dropped by dedupe.
func RecordEventDuplicate() {
	global().eventsDuplicate.Inc()
}

// RecordEventRejected counts an event refused before enqueue.
func RecordEventRejected(reason string) {
	global().eventsRejected.WithLabelValues(reason).Inc()
}

// RecordEventRecorded counts an event persisted by a worker.
func RecordEventRecorded(eventType string) {
	global().eventsRecorded.WithLabelValues(eventType).Inc()
}

// RecordRecordLatency observes a store write latency in milliseconds.
func RecordRecordLatency(latencyMs float64) {
	global().recordLatency.Observe(latencyMs)
}

// UpdateTrackedEvents sets the number of events held by the store.
func UpdateTrackedEvents(count int) {
	global().trackedEvents.Set(float64(count))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	global().queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	global().queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets queue utilization in [0,1].
func UpdateQueueUtilization(utilization float64) {
	global().queueUtilization.Set(utilization)
}

// RecordQueueRejection counts a failed enqueue.
func RecordQueueRejection(reason string) {
	global().queueRejections.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	global().workerCount.Set(float64(count))
}

// RecordWorkerError counts an event a worker failed to record.
func RecordWorkerError() {
	global().workerErrors.Inc()
}

// RecordStoreQueryLatency observes a store query latency in milliseconds.
func RecordStoreQueryLatency(query string, latencyMs float64) {
	global().storeQueryLatency.WithLabelValues(query).Observe(latencyMs)
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(operation string) {
	global().storeErrors.WithLabelValues(operation).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	global().httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	global().httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByEndpoint counts an HTTP error response.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	global().errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByComponent counts an error raised inside a component.
func RecordErrorByComponent(component, errorType string) {
	global().errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap allocation in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	global().systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	global().systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	global().systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry of the current global manager.
func GetRegistry() *prometheus.Registry {
	return globalRegistry.Load()
}
