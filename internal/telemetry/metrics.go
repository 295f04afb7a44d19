// Package telemetry exposes Prometheus metrics for refresh cycles and
// queries, and configures OpenTelemetry tracing.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ipranges/internal/cache"
)

const namespace = "ipranges"

// Metrics records refresh and query metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	refreshTotal    *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	lastSuccess     *prometheus.GaugeVec
	cycleTotal      prometheus.Counter
	cycleDuration   prometheus.Histogram
	queryTotal      *prometheus.CounterVec
	rateLimited     prometheus.Counter
}

// NewMetrics creates the collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "outcomes_total",
			Help:      "Refresh outcomes per provider and status.",
		}, []string{"provider", "status"}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "adapter_duration_seconds",
			Help:      "Duration of adapter fetch and parse calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"provider"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh per provider.",
		}, []string{"provider"}),
		cycleTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "cycles_total",
			Help:      "Completed refresh cycles.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of whole refresh cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		queryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Query API requests per provider and status code.",
		}, []string{"provider", "code"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "rate_limited_total",
			Help:      "Query API requests rejected by the rate limiter.",
		}),
	}

	m.registry.MustRegister(
		m.refreshTotal,
		m.refreshDuration,
		m.lastSuccess,
		m.cycleTotal,
		m.cycleDuration,
		m.queryTotal,
		m.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveRefresh records one adapter outcome
func (m *Metrics) ObserveRefresh(provider, status string, d time.Duration, succeeded bool, at time.Time) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(provider, status).Inc()
	m.refreshDuration.WithLabelValues(provider).Observe(d.Seconds())
	if succeeded {
		m.lastSuccess.WithLabelValues(provider).Set(float64(at.Unix()))
	}
}

// ObserveCycle records a completed refresh cycle
func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleTotal.Inc()
	m.cycleDuration.Observe(d.Seconds())
}

// ObserveQuery records a query API response
func (m *Metrics) ObserveQuery(provider string, code int) {
	if m == nil {
		return
	}
	m.queryTotal.WithLabelValues(provider, strconv.Itoa(code)).Inc()
}

// ObserveRateLimited records a rejected request
func (m *Metrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// WatchStore exports per-provider snapshot age and failure streaks, read
// from the store at scrape time.
func (m *Metrics) WatchStore(store *cache.Store) error {
	if m == nil {
		return nil
	}
	return m.registry.Register(&storeCollector{store: store, now: time.Now})
}

var (
	snapshotAgeDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "cache", "snapshot_age_seconds"),
		"Age of the published snapshot per provider.",
		[]string{"provider"}, nil)
	publishedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "cache", "published"),
		"1 if the provider has published data, 0 otherwise.",
		[]string{"provider"}, nil)
	failureStreakDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "cache", "consecutive_failures"),
		"Refresh failures since the last success per provider.",
		[]string{"provider"}, nil)
)

type storeCollector struct {
	store *cache.Store
	now   func() time.Time
}

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- snapshotAgeDesc
	ch <- publishedDesc
	ch <- failureStreakDesc
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	now := c.now()
	for _, st := range c.store.Status() {
		published := 0.0
		if st.Published {
			published = 1
			ch <- prometheus.MustNewConstMetric(snapshotAgeDesc, prometheus.GaugeValue, st.Age(now).Seconds(), st.Name)
		}
		ch <- prometheus.MustNewConstMetric(publishedDesc, prometheus.GaugeValue, published, st.Name)
		ch <- prometheus.MustNewConstMetric(failureStreakDesc, prometheus.GaugeValue, float64(st.ConsecutiveFailures), st.Name)
	}
}
