package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var PathMetrics = "/metrics"

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// priority changes, labelled by operation
	ReorderTotal       *prometheus.CounterVec
	ReorderRowsUpdated *prometheus.CounterVec

	IndexRunsTotal *prometheus.CounterVec
}

// Registry and Default are used by the running service. Tests build their own with NewMetrics.
var (
	Registry = prometheus.NewRegistry()
	Default  = NewMetrics(Registry)
)

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printflow_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "printflow_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		ReorderTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printflow_work_reorder_total",
				Help: "Total number of committed priority reorders",
			},
			[]string{"operation"},
		),
		ReorderRowsUpdated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printflow_work_reorder_rows_updated_total",
				Help: "Total number of work rows whose priority was rewritten",
			},
			[]string{"operation"},
		),
		IndexRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "printflow_index_sync_runs_total",
				Help: "Total number of full search index synchronizations",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReorderTotal,
		m.ReorderRowsUpdated,
		m.IndexRunsTotal,
	)
	return m
}

// ObserveReorder records one committed reorder operation.
func (m *Metrics) ObserveReorder(operation string, rowsUpdated int) {
	m.ReorderTotal.WithLabelValues(operation).Inc()
	m.ReorderRowsUpdated.WithLabelValues(operation).Add(float64(rowsUpdated))
}

func (m *Metrics) ObserveIndexRun(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.IndexRunsTotal.WithLabelValues(status).Inc()
}

// HTTPMetrics instruments requests. The route template is used as path label to bound cardinality.
func HTTPMetrics(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func RegisterMetricsEndpoint(r *gin.Engine, registry *prometheus.Registry) {
	r.GET(PathMetrics, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
}
