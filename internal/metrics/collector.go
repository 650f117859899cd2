package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "autoheal"

// Gauges supplies values owned by other components. Any field may be nil.
type Gauges struct {
	ActiveTasks      func() int
	ConcurrencyLimit func() int
	CacheEntries     func() int
}

// Collector exports a Metrics and Gauges to Prometheus.
type Collector struct {
	m      *Metrics
	gauges Gauges

	operations   *prometheus.Desc
	memory       *prometheus.Desc
	cpu          *prometheus.Desc
	uptime       *prometheus.Desc
	active       *prometheus.Desc
	limit        *prometheus.Desc
	cacheEntries *prometheus.Desc
}

// NewCollector creates a collector reading m and g at scrape time.
func NewCollector(m *Metrics, g Gauges) *Collector {
	return &Collector{
		m:      m,
		gauges: g,
		operations: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "operations_total"),
			"Remediation operations, partitioned by outcome.",
			[]string{"outcome"}, nil,
		),
		memory: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "memory_usage_mb"),
			"Resident memory of the engine process at the last sample.",
			nil, nil,
		),
		cpu: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "cpu_usage_percent"),
			"CPU usage of the engine process at the last sample, percent of one core.",
			nil, nil,
		),
		uptime: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "uptime_seconds"),
			"Seconds since the engine started.",
			nil, nil,
		),
		active: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "active_tasks"),
			"Remediation tasks currently running.",
			nil, nil,
		),
		limit: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "concurrency_limit"),
			"Current remediation admission limit.",
			nil, nil,
		),
		cacheEntries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "cache_entries"),
			"Entries in the diagnosis cache.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.operations
	ch <- c.memory
	ch <- c.cpu
	ch <- c.uptime
	ch <- c.active
	ch <- c.limit
	ch <- c.cacheEntries
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.operations, prometheus.CounterValue, float64(s.TotalOperations), "total")
	ch <- prometheus.MustNewConstMetric(c.operations, prometheus.CounterValue, float64(s.SuccessfulOperations), "success")
	ch <- prometheus.MustNewConstMetric(c.operations, prometheus.CounterValue, float64(s.FailedOperations), "failed")
	ch <- prometheus.MustNewConstMetric(c.memory, prometheus.GaugeValue, s.MemoryUsageMB)
	ch <- prometheus.MustNewConstMetric(c.cpu, prometheus.GaugeValue, s.CPUUsagePercent)
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, s.SystemUptime.Seconds())

	if f := c.gauges.ActiveTasks; f != nil {
		ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(f()))
	}
	if f := c.gauges.ConcurrencyLimit; f != nil {
		ch <- prometheus.MustNewConstMetric(c.limit, prometheus.GaugeValue, float64(f()))
	}
	if f := c.gauges.CacheEntries; f != nil {
		ch <- prometheus.MustNewConstMetric(c.cacheEntries, prometheus.GaugeValue, float64(f()))
	}
}

var remediationSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "remediation_seconds",
		Help:      "Remediation latency in seconds, partitioned by fault kind.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	},
	[]string{"kind"},
)

// Register attaches c and the remediation histogram to reg.
func Register(reg prometheus.Registerer, c *Collector) error {
	for _, collector := range []prometheus.Collector{c, remediationSeconds} {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRemediation records how long a remediation for kind took.
func ObserveRemediation(kind string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	remediationSeconds.WithLabelValues(kind).Observe(d.Seconds())
}
