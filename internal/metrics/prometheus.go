// Package metrics provides Prometheus-based metrics collection for pathorama.
// Scanners and the manager record through the Recorder interface so library
// users can run without a registry.
package metrics

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Namespace for all pathorama metrics
	namespace = "pathorama"

	// Subsystems
	subsystemProbe   = "probe"
	subsystemScanner = "scanner"
	subsystemManager = "manager"
	subsystemSystem  = "system"
	subsystemAPI     = "api"
)

//go:generate mockgen -source=prometheus.go -destination=mocks/recorder_mock.go -package=mocks Recorder

// Recorder receives scan lifecycle and probe events.
type Recorder interface {
	RecordProbe(kind string, duration time.Duration)
	RecordHit(status int)
	ScannerStarted()
	ScannerFinished(state string, duration time.Duration)
	SetQueuedTargets(count int)
	IncrementTargetsAccepted()
	IncrementTargetsDuplicate()
	IncrementSinkDropped(sink string)
}

// Nop is a Recorder that discards everything.
type Nop struct{}

func (Nop) RecordProbe(string, time.Duration) {}
func (Nop) RecordHit(int) {}
func (Nop) ScannerStarted() {}
func (Nop) ScannerFinished(string, time.Duration) {}
func (Nop) SetQueuedTargets(int) {}
func (Nop) IncrementTargetsAccepted() {}
func (Nop) IncrementTargetsDuplicate() {}
func (Nop) IncrementSinkDropped(string) {}

var (
	_ Recorder = Nop{}
	_ Recorder = (*PrometheusMetrics)(nil)
)

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	// Probe metrics
	probesTotal   *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	hitsTotal     *prometheus.CounterVec

	// Scanner metrics
	scannersTotal   *prometheus.CounterVec
	scannerDuration prometheus.Histogram
	activeScanners  prometheus.Gauge

	// Manager metrics
	targetsTotal  *prometheus.CounterVec
	queuedTargets prometheus.Gauge
	sinkDropped   *prometheus.CounterVec

	// API metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpErrors   *prometheus.CounterVec

	// System metrics
	memoryUsage prometheus.Gauge
	goroutines  prometheus.Gauge
	uptime      prometheus.Gauge

	startTime  time.Time
	lastUpdate time.Time
	mu         sync.RWMutex
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	pm.initProbeMetrics()
	pm.initScannerMetrics()
	pm.initManagerMetrics()
	pm.initAPIMetrics()
	pm.initSystemMetrics()

	pm.registerMetrics()

	// Register standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

func (pm *PrometheusMetrics) initProbeMetrics() {
	pm.probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "total",
			Help:      "Total number of path probes by outcome kind",
		},
		[]string{"kind"},
	)

	pm.probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "duration_seconds",
			Help:      "Duration of path probes in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"kind"},
	)

	pm.hitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "hits_total",
			Help:      "Total number of hits forwarded to the sink by status code",
		},
		[]string{"status"},
	)
}

func (pm *PrometheusMetrics) initScannerMetrics() {
	pm.scannersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScanner,
			Name:      "finished_total",
			Help:      "Total number of finished scanners by final state",
		},
		[]string{"state"},
	)

	pm.scannerDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemScanner,
			Name:      "duration_seconds",
			Help:      "Duration of per-target scans in seconds",
			Buckets:   []float64{1.0, 5.0, 10.0, 30.0, 60.0, 300.0, 600.0, 1800.0},
		},
	)

	pm.activeScanners = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemScanner,
			Name:      "active",
			Help:      "Number of currently running scanners",
		},
	)
}

func (pm *PrometheusMetrics) initManagerMetrics() {
	pm.targetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemManager,
			Name:      "targets_total",
			Help:      "Total number of submitted targets by intake result",
		},
		[]string{"result"},
	)

	pm.queuedTargets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemManager,
			Name:      "targets_queued",
			Help:      "Number of targets waiting for a manager worker",
		},
	)

	pm.sinkDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemManager,
			Name:      "sink_dropped_total",
			Help:      "Total number of result batches dropped by a full sink",
		},
		[]string{"sink"},
	)
}

// initAPIMetrics initializes API-related metrics
func (pm *PrometheusMetrics) initAPIMetrics() {
	pm.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	pm.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"method", "path"},
	)

	pm.httpErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "errors_total",
			Help:      "Total number of HTTP errors by method, path and error type",
		},
		[]string{"method", "path", "error_type"},
	)
}

// initSystemMetrics initializes system-related metrics
func (pm *PrometheusMetrics) initSystemMetrics() {
	pm.memoryUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "memory_bytes",
			Help:      "Current memory usage in bytes",
		},
	)

	pm.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	pm.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Application uptime in seconds",
		},
	)
}

// registerMetrics registers all metrics with the Prometheus registry
func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(
		pm.probesTotal,
		pm.probeDuration,
		pm.hitsTotal,
		pm.scannersTotal,
		pm.scannerDuration,
		pm.activeScanners,
		pm.targetsTotal,
		pm.queuedTargets,
		pm.sinkDropped,
		pm.httpRequests,
		pm.httpDuration,
		pm.httpErrors,
		pm.memoryUsage,
		pm.goroutines,
		pm.uptime,
	)
}

// GetRegistry returns the Prometheus registry for HTTP handler
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// RecordProbe counts one probe and observes its duration.
func (pm *PrometheusMetrics) RecordProbe(kind string, duration time.Duration) {
	pm.probesTotal.WithLabelValues(kind).Inc()
	pm.probeDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordHit counts a forwarded hit.
func (pm *PrometheusMetrics) RecordHit(status int) {
	pm.hitsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

// ScannerStarted increments the active scanner gauge.
func (pm *PrometheusMetrics) ScannerStarted() {
	pm.activeScanners.Inc()
}

// ScannerFinished decrements the active scanner gauge and records the outcome.
func (pm *PrometheusMetrics) ScannerFinished(state string, duration time.Duration) {
	pm.activeScanners.Dec()
	pm.scannersTotal.WithLabelValues(state).Inc()
	pm.scannerDuration.Observe(duration.Seconds())
}

// SetQueuedTargets sets the target queue depth.
func (pm *PrometheusMetrics) SetQueuedTargets(count int) {
	pm.queuedTargets.Set(float64(count))
}

// IncrementTargetsAccepted counts a newly queued target.
func (pm *PrometheusMetrics) IncrementTargetsAccepted() {
	pm.targetsTotal.WithLabelValues("accepted").Inc()
}

// IncrementTargetsDuplicate counts a target ignored because it was already processed.
func (pm *PrometheusMetrics) IncrementTargetsDuplicate() {
	pm.targetsTotal.WithLabelValues("duplicate").Inc()
}

// IncrementSinkDropped counts a batch dropped by a bounded sink.
func (pm *PrometheusMetrics) IncrementSinkDropped(sink string) {
	pm.sinkDropped.WithLabelValues(sink).Inc()
}

// API Metrics Methods

// IncrementHTTPRequests increments HTTP request counter
func (pm *PrometheusMetrics) IncrementHTTPRequests(method, path, status string) {
	pm.httpRequests.WithLabelValues(method, path, status).Inc()
}

// RecordHTTPDuration records HTTP request duration
func (pm *PrometheusMetrics) RecordHTTPDuration(method, path string, duration time.Duration) {
	pm.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncrementHTTPErrors increments HTTP error counter
func (pm *PrometheusMetrics) IncrementHTTPErrors(method, path, errorType string) {
	pm.httpErrors.WithLabelValues(method, path, errorType).Inc()
}

// UpdateSystemMetrics updates all system metrics with current values
func (pm *PrometheusMetrics) UpdateSystemMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	pm.memoryUsage.Set(float64(memStats.Alloc))
	pm.goroutines.Set(float64(runtime.NumGoroutine()))
	pm.uptime.Set(time.Since(pm.startTime).Seconds())

	pm.lastUpdate = time.Now()
}

// GetUptime returns the application uptime
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// GetLastUpdate returns the last metrics update time
func (pm *PrometheusMetrics) GetLastUpdate() time.Time {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.lastUpdate
}

// StartPeriodicUpdates updates system metrics every interval until ctx is done.
func (pm *PrometheusMetrics) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.UpdateSystemMetrics()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.UpdateSystemMetrics()
		}
	}
}
