package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup results.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheExpired = "expired"
	CacheBypass  = "bypass"
)

// Collector records filesystem metrics into its own registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	operationsTotal    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	cacheLookups       *prometheus.CounterVec
	remoteBytes        *prometheus.CounterVec
	openHandles        prometheus.Gauge
	reconcileRuns      *prometheus.CounterVec
	reconcileRecords   *prometheus.CounterVec
	reconcileDurations *prometheus.HistogramVec
}

// NewCollector creates a collector registered under namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "s3fs"
	}

	reg := prometheus.NewRegistry()

	return &Collector{
		registry: reg,
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of filesystem operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of filesystem operations in seconds",
				Buckets: []float64{
					0.001, // cache hits
					0.01,
					0.05, // single remote round trip
					0.1,
					0.5,
					1,
					5, // uploads with confirmation wait
					30,
					120,
				},
			},
			[]string{"operation"},
		),
		cacheLookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Metadata cache lookups by result",
			},
			[]string{"result"},
		),
		remoteBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_bytes_total",
				Help:      "Bytes transferred to and from the object store",
			},
			[]string{"direction"},
		),
		openHandles: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "open_handles",
				Help:      "Currently open file handles",
			},
		),
		reconcileRuns: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_runs_total",
				Help:      "Cache reconciliation runs by scope and status",
			},
			[]string{"scope", "status"},
		),
		reconcileRecords: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_records_total",
				Help:      "Records written by cache reconciliation by kind",
			},
			[]string{"kind"},
		),
		reconcileDurations: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconcile_duration_seconds",
				Help:      "Duration of cache reconciliation runs in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
			},
			[]string{"scope"},
		),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveOperation records one operation that started at start.
func (c *Collector) ObserveOperation(op string, start time.Time, err error) {
	if c == nil {
		return
	}

	c.operationsTotal.WithLabelValues(op, status(err)).Inc()
	c.operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// CacheLookup records one metadata cache lookup result.
func (c *Collector) CacheLookup(result string) {
	if c == nil {
		return
	}

	c.cacheLookups.WithLabelValues(result).Inc()
}

// RemoteRead adds n bytes read from the object store.
func (c *Collector) RemoteRead(n int64) {
	if c == nil || n <= 0 {
		return
	}

	c.remoteBytes.WithLabelValues("read").Add(float64(n))
}

// RemoteWrite adds n bytes uploaded to the object store.
func (c *Collector) RemoteWrite(n int64) {
	if c == nil || n <= 0 {
		return
	}

	c.remoteBytes.WithLabelValues("write").Add(float64(n))
}

// HandleOpened and HandleClosed track the open handle gauge.
func (c *Collector) HandleOpened() {
	if c == nil {
		return
	}

	c.openHandles.Inc()
}

func (c *Collector) HandleClosed() {
	if c == nil {
		return
	}

	c.openHandles.Dec()
}

// ObserveReconcile records one reconciliation run.
func (c *Collector) ObserveReconcile(scope string, files, directories int, duration time.Duration, err error) {
	if c == nil {
		return
	}

	c.reconcileRuns.WithLabelValues(scope, status(err)).Inc()
	c.reconcileDurations.WithLabelValues(scope).Observe(duration.Seconds())
	if err == nil {
		c.reconcileRecords.WithLabelValues("file").Add(float64(files))
		c.reconcileRecords.WithLabelValues("directory").Add(float64(directories))
	}
}

// Registry exposes the underlying registry for tests and custom exporters.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}

	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
