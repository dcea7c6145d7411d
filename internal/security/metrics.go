package security

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric handles are package globals assigned once by InitMetrics. Anything
// that can run before then (unit tests, library use) nil-checks before
// recording.
var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// StoreLatency records store operation latency, labeled by operation.
	StoreLatency *prometheus.HistogramVec

	// CacheHitsTotal and CacheMissesTotal count session-cache lookups.
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// SessionsIssuedTotal counts sessions created by login and registration.
	SessionsIssuedTotal prometheus.Counter

	// SessionsSweptTotal counts expired session rows removed by the sweeper.
	SessionsSweptTotal prometheus.Counter

	// IdentityLinksTotal counts established identity links by mode
	// ("auto" or "explicit").
	IdentityLinksTotal *prometheus.CounterVec

	// CompletionRequestsTotal counts upstream completion calls by outcome
	// ("ok" or "error"); CompletionLatency records how long they took.
	CompletionRequestsTotal *prometheus.CounterVec
	CompletionLatency       prometheus.Histogram

	// DBPoolOpenConnections and DBPoolMaxConnections expose database pool
	// pressure.
	DBPoolOpenConnections prometheus.Gauge
	DBPoolMaxConnections  prometheus.Gauge
)

const metricPrefix = "advisor_service_"

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels parses "key=value,key=value" into constant Prometheus
// labels. Values go through ${VAR} environment expansion and may not contain
// commas. An empty string yields nil.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		if !validLabelKey.MatchString(key) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", key)
		}
		labels[key] = value
	}
	return labels, nil
}

var initMetricsOnce sync.Once

// InitMetrics registers every metric under the given constant labels. Call
// it before the HTTP server or any store wiring that records metrics; later
// calls are no-ops.
func InitMetrics(constLabels prometheus.Labels) {
	initMetricsOnce.Do(func() {
		f := promauto.With(prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer))

		httpRequestsTotal = f.NewCounterVec(counterOpts("requests_total",
			"Total number of HTTP requests"), []string{"method", "status"})
		httpRequestDuration = f.NewHistogramVec(histogramOpts("request_duration_seconds",
			"HTTP request duration in seconds", prometheus.DefBuckets), []string{"method"})

		StoreLatency = f.NewHistogramVec(histogramOpts("store_latency_seconds",
			"Store operation latency in seconds", prometheus.DefBuckets), []string{"operation"})

		CacheHitsTotal = f.NewCounter(counterOpts("cache_hits_total", "Total session cache hits"))
		CacheMissesTotal = f.NewCounter(counterOpts("cache_misses_total", "Total session cache misses"))

		SessionsIssuedTotal = f.NewCounter(counterOpts("sessions_issued_total", "Total sessions issued"))
		SessionsSweptTotal = f.NewCounter(counterOpts("sessions_swept_total",
			"Total expired sessions removed by the sweeper"))

		IdentityLinksTotal = f.NewCounterVec(counterOpts("identity_links_total",
			"Total identity links established"), []string{"mode"})

		CompletionRequestsTotal = f.NewCounterVec(counterOpts("completion_requests_total",
			"Total upstream completion requests"), []string{"outcome"})
		CompletionLatency = f.NewHistogram(histogramOpts("completion_latency_seconds",
			"Upstream completion request latency in seconds",
			[]float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60}))

		DBPoolOpenConnections = f.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "db_pool_open_connections",
			Help: "Number of open database connections",
		})
		DBPoolMaxConnections = f.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "db_pool_max_connections",
			Help: "Maximum number of database connections",
		})
	})
}

func counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Name: metricPrefix + name, Help: help}
}

func histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Name: metricPrefix + name, Help: help, Buckets: buckets}
}

// MetricsMiddleware records request count and latency. A no-op until
// InitMetrics has run.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		httpRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
