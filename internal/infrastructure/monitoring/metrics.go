// Package monitoring exposes Prometheus metrics for the debug syscall layer
// and its API surface.
package monitoring

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	// Syscall metrics
	SyscallsTotal   *prometheus.CounterVec
	SyscallDuration *prometheus.HistogramVec

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Kernel metrics
	TraceRingUsed  prometheus.Gauge
	ProcessesAlive prometheus.Gauge
	Uptime         prometheus.Gauge

	startTime   time.Time
	gaugeSource func() (traceUsed, processes float64)
}

// NewMetrics creates a metrics collector backed by its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry:  reg,
		startTime: time.Now(),

		SyscallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_syscalls_total",
				Help: "Total debug syscalls by operation and result",
			},
			[]string{"op", "result"},
		),
		SyscallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kestrel_syscall_duration_seconds",
				Help:    "Debug syscall latency",
				Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
			},
			[]string{"op"},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_http_requests_total",
				Help: "Total debug API requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kestrel_http_request_duration_seconds",
				Help:    "Debug API request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		TraceRingUsed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kestrel_trace_ring_used_bytes",
			Help: "Bytes written to the trace ring",
		}),
		ProcessesAlive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kestrel_processes_alive",
			Help: "Live kernel processes",
		}),
		Uptime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kestrel_uptime_seconds",
			Help: "Seconds since boot",
		}),
	}
}

// ObserveSyscall implements the syscall layer's Observer contract.
func (m *Metrics) ObserveSyscall(op string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SyscallsTotal.WithLabelValues(op, result).Inc()
	m.SyscallDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// SetGaugeSource installs the callback that supplies kernel-state gauge
// values. The gauges are refreshed on scrape.
func (m *Metrics) SetGaugeSource(f func() (traceUsed, processes float64)) {
	m.gaugeSource = f
}

// Handler returns the /metrics HTTP handler. Gauges are refreshed on scrape.
func (m *Metrics) Handler() http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
		if m.gaugeSource != nil {
			used, procs := m.gaugeSource()
			m.TraceRingUsed.Set(used)
			m.ProcessesAlive.Set(procs)
		}
		inner.ServeHTTP(w, r)
	})
}

// GinMiddleware records request counts and latency per route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RequestsTotal.WithLabelValues(c.Request.Method, path, http.StatusText(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
