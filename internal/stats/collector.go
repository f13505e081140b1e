package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	totalDesc = prometheus.NewDesc(
		"meshnode_stat_total",
		"Lifetime count for a tracked meshnode statistic.",
		[]string{"name"}, nil,
	)
	rateDesc = prometheus.NewDesc(
		"meshnode_stat_rate_per_second",
		"Smoothed per-second rate for a tracked meshnode statistic.",
		[]string{"name"}, nil,
	)
)

// Collector adapts a Window to prometheus.Collector, exposing every
// counter the window has ever recorded under dynamic "name" labels
// rather than a fixed metric per channel (channel names are runtime
// data, spec.md section 3, not known at registration time).
type Collector struct {
	window *Window
	now    func() time.Time
}

// NewCollector wraps window. now defaults to time.Now when nil; tests
// supply a fixed clock.
func NewCollector(window *Window, now func() time.Time) *Collector {
	if now == nil {
		now = time.Now
	}
	return &Collector{window: window, now: now}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- totalDesc
	ch <- rateDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, entry := range c.window.Entries(c.now()) {
		ch <- prometheus.MustNewConstMetric(totalDesc, prometheus.CounterValue, float64(entry.Total), entry.Name)
		ch <- prometheus.MustNewConstMetric(rateDesc, prometheus.GaugeValue, entry.RatePerSecond, entry.Name)
	}
}
