// Package metrics provides Prometheus metrics for the mosaic loading engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Resource lifecycle
	resourcesRegistered *prometheus.CounterVec
	resourcesLoaded     prometheus.Counter
	resourcesErrored    prometheus.Counter
	loadLatency         prometheus.Histogram
	loadRetries         prometheus.Counter
	fetchBytes          prometheus.Counter

	// Scheduler health
	pendingResources prometheus.Gauge
	batchSize        prometheus.Gauge
	drainCycles      prometheus.Counter
	schedulerPaused  prometheus.Gauge

	// Environment signals
	networkClass *prometheus.GaugeVec

	// Bus health
	busPublished     *prometheus.CounterVec
	busHandlerFaults prometheus.Counter

	// Process health
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "mosaic",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.resourcesRegistered = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "resources_registered_total",
			Help:      "Total number of resources registered, by priority tier",
		},
		[]string{"tier"},
	)

	m.resourcesLoaded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "resources_loaded_total",
		Help:      "Total number of resources that reached the loaded state",
	})

	m.resourcesErrored = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "resources_errored_total",
		Help:      "Total number of resources that exhausted their retries",
	})

	m.loadLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "load_latency_milliseconds",
		Help:      "Histogram of per-resource load latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.loadRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "load_retries_total",
		Help:      "Total number of retry attempts across all resources",
	})

	m.fetchBytes = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fetch_bytes_total",
		Help:      "Total bytes fetched for successfully loaded resources",
	})

	m.pendingResources = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pending_resources",
		Help:      "Current length of the scheduler's pending list",
	})

	m.batchSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_size",
		Help:      "Batch size used by the most recent drain cycle",
	})

	m.drainCycles = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "drain_cycles_total",
		Help:      "Total number of completed drain cycles",
	})

	m.schedulerPaused = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scheduler_paused",
		Help:      "1 while the scheduler is paused, 0 otherwise",
	})

	m.networkClass = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "network_class",
			Help:      "1 for the currently detected network class, 0 for the rest",
		},
		[]string{"class"},
	)

	m.busPublished = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "bus_published_total",
			Help:      "Total number of bus publishes, by topic",
		},
		[]string{"topic"},
	)

	m.busHandlerFaults = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "bus_handler_faults_total",
		Help:      "Total number of bus handlers that panicked during dispatch",
	})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "memory_usage_bytes",
		Help:      "Current heap allocation in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "goroutine_count",
		Help:      "Current number of goroutines",
	})
}

// RecordResourceRegistered increments the registered counter for a tier.
func RecordResourceRegistered(tier string) {
	globalManager.resourcesRegistered.WithLabelValues(tier).Inc()
}

// RecordResourceLoaded increments the loaded resources counter.
func RecordResourceLoaded() {
	globalManager.resourcesLoaded.Inc()
}

// RecordResourceErrored increments the errored resources counter.
func RecordResourceErrored() {
	globalManager.resourcesErrored.Inc()
}

// RecordLoadLatency records a load latency observation in milliseconds.
func RecordLoadLatency(latencyMs float64) {
	globalManager.loadLatency.Observe(latencyMs)
}

// RecordLoadRetry increments the retry counter.
func RecordLoadRetry() {
	globalManager.loadRetries.Inc()
}

// RecordFetchBytes adds to the fetched bytes counter.
func RecordFetchBytes(n int64) {
	if n > 0 {
		globalManager.fetchBytes.Add(float64(n))
	}
}

// UpdatePendingResources sets the current pending list length.
func UpdatePendingResources(n int) {
	globalManager.pendingResources.Set(float64(n))
}

// UpdateBatchSize sets the batch size chosen by the latest drain cycle.
func UpdateBatchSize(n int) {
	globalManager.batchSize.Set(float64(n))
}

// RecordDrainCycle increments the completed drain cycle counter.
func RecordDrainCycle() {
	globalManager.drainCycles.Inc()
}

// UpdateSchedulerPaused flags whether the scheduler is paused.
func UpdateSchedulerPaused(paused bool) {
	if paused {
		globalManager.schedulerPaused.Set(1)
	} else {
		globalManager.schedulerPaused.Set(0)
	}
}

// UpdateNetworkClass marks the currently detected network class.
func UpdateNetworkClass(class string) {
	for _, c := range []string{"fast", "normal", "slow"} {
		v := 0.0
		if c == class {
			v = 1.0
		}
		globalManager.networkClass.WithLabelValues(c).Set(v)
	}
}

// RecordBusPublish increments the publish counter for a topic.
func RecordBusPublish(topic string) {
	globalManager.busPublished.WithLabelValues(topic).Inc()
}

// RecordBusHandlerFault increments the handler fault counter.
func RecordBusHandlerFault() {
	globalManager.busHandlerFaults.Inc()
}

// UpdateSystemMemoryUsage sets the current heap allocation.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the current goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
