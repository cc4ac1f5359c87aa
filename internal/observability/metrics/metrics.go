// Package metrics exports loop and pool metrics in the Prometheus format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"resident/internal/looper"
	"resident/internal/resource"
)

const namespace = "resident"

// Metrics implements looper.Observer on top of a private Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	fired    *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	shutdown *prometheus.CounterVec
	failed   *prometheus.CounterVec
	slept    *prometheus.HistogramVec
}

var _ looper.Observer = (*Metrics)(nil)

// New registers loop collectors, plus pool gauges when pool is non-nil.
func New(pool resource.Provider) *Metrics {
	labels := []string{"loop", "kind"}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "loop", Name: "fired_total",
			Help: "Handler invocations that completed.",
		}, labels),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "loop", Name: "skipped_total",
			Help: "Iterations skipped because no connection could be acquired.",
		}, labels),
		shutdown: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "loop", Name: "shutdown_total",
			Help: "Loops that stopped gracefully.",
		}, labels),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "loop", Name: "failed_total",
			Help: "Loops terminated by a handler error or panic.",
		}, labels),
		slept: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "loop", Name: "sleep_seconds",
			Help:    "Bounded sleeps between iterations.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, labels),
	}
	m.registry.MustRegister(m.fired, m.skipped, m.shutdown, m.failed, m.slept)
	if pool != nil {
		m.registry.MustRegister(newPoolCollector(pool))
	}
	return m
}

// Registry is the registry served on /metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Fired(loop string, kind looper.Kind) {
	m.fired.WithLabelValues(loop, string(kind)).Inc()
}

func (m *Metrics) Skipped(loop string, kind looper.Kind, _ error) {
	m.skipped.WithLabelValues(loop, string(kind)).Inc()
}

func (m *Metrics) Slept(loop string, kind looper.Kind, d time.Duration) {
	m.slept.WithLabelValues(loop, string(kind)).Observe(d.Seconds())
}

func (m *Metrics) Stopped(loop string, kind looper.Kind) {
	m.shutdown.WithLabelValues(loop, string(kind)).Inc()
}

func (m *Metrics) Failed(loop string, kind looper.Kind, _ error) {
	m.failed.WithLabelValues(loop, string(kind)).Inc()
}

// poolCollector reads Provider.Stats on every scrape.
type poolCollector struct {
	pool     resource.Provider
	maxConns *prometheus.Desc
	inUse    *prometheus.Desc
	idle     *prometheus.Desc
	acquired *prometheus.Desc
	failed   *prometheus.Desc
}

func newPoolCollector(pool resource.Provider) *poolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", name), help, []string{"driver"}, nil)
	}
	return &poolCollector{
		pool:     pool,
		maxConns: desc("max_conns", "Configured pool size."),
		inUse:    desc("in_use", "Connections checked out."),
		idle:     desc("idle", "Idle connections."),
		acquired: desc("acquired_total", "Successful acquisitions."),
		failed:   desc("acquire_failed_total", "Failed acquisitions."),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.maxConns
	ch <- c.inUse
	ch <- c.idle
	ch <- c.acquired
	ch <- c.failed
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.pool.Stats()
	driver := string(st.Driver)
	ch <- prometheus.MustNewConstMetric(c.maxConns, prometheus.GaugeValue, float64(st.MaxConns), driver)
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(st.InUse), driver)
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(st.Idle), driver)
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.CounterValue, float64(st.Acquired), driver)
	ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(st.Failed), driver)
}
