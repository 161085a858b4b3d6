// Package metrics exposes Prometheus metrics for the cleaning service.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "adr"

var (
	// RequestsTotal counts API requests by command and status.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of API requests processed",
		},
		[]string{"command", "status"},
	)

	// RequestDuration tracks request duration by command.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"command"},
	)

	// ElementsRemoved counts removed elements by classifier reason.
	ElementsRemoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "elements_removed_total",
			Help:      "Elements removed by reason",
		},
		[]string{"reason"},
	)

	// ElementsHidden counts elements force-hidden because detachment failed.
	ElementsHidden = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "elements_hidden_total",
			Help:      "Elements force-hidden instead of detached",
		},
	)

	// ExcludedRuns counts runs skipped because the host is excluded.
	ExcludedRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "excluded_runs_total",
			Help:      "Runs skipped by the exclusion list",
		},
	)

	// ElementsScanned counts elements visited by the scanner.
	ElementsScanned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "elements_scanned_total",
			Help:      "Elements visited by the scanner",
		},
	)

	// BrowserPoolSize shows the configured pool size.
	BrowserPoolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "browser_pool_size",
			Help:      "Configured browser pool size",
		},
	)

	// BrowserPoolAvailable shows idle browsers in the pool.
	BrowserPoolAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "browser_pool_available",
			Help:      "Available browsers in pool",
		},
	)

	// TrackedHosts shows how many hosts have statistics.
	TrackedHosts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_hosts",
			Help:      "Number of hosts with recorded statistics",
		},
	)

	// MemoryUsageBytes shows current heap allocation.
	MemoryUsageBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_usage_bytes",
			Help:      "Current memory usage in bytes (alloc)",
		},
	)

	// GoroutineCount shows current goroutine count.
	GoroutineCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	// BuildInfo provides build information as labels.
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "go_version"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ElementsRemoved,
		ElementsHidden,
		ExcludedRuns,
		ElementsScanned,
		BrowserPoolSize,
		BrowserPoolAvailable,
		TrackedHosts,
		MemoryUsageBytes,
		GoroutineCount,
		BuildInfo,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// StartMemoryCollector periodically updates runtime metrics until stopCh closes.
func StartMemoryCollector(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			updateMemoryMetrics()
		case <-stopCh:
			return
		}
	}
}

func updateMemoryMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryUsageBytes.Set(float64(m.Alloc))
	GoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// RecordRequest records metrics for a completed API request.
func RecordRequest(command, status string, duration time.Duration) {
	RequestsTotal.WithLabelValues(command, status).Inc()
	RequestDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordRun records the outcome of one engine run.
func RecordRun(excluded bool, scanned int, reasons []string, hidden int) {
	if excluded {
		ExcludedRuns.Inc()
	}
	ElementsScanned.Add(float64(scanned))
	for _, r := range reasons {
		ElementsRemoved.WithLabelValues(r).Inc()
	}
	if hidden > 0 {
		ElementsHidden.Add(float64(hidden))
	}
}

// UpdatePoolMetrics updates browser pool gauges.
func UpdatePoolMetrics(size, available int) {
	BrowserPoolSize.Set(float64(size))
	BrowserPoolAvailable.Set(float64(available))
}

// UpdateTrackedHosts updates the tracked hosts gauge.
func UpdateTrackedHosts(count int) {
	TrackedHosts.Set(float64(count))
}
