// Package metrics collects and exposes Prometheus metrics of the refresh
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records refresh engine metrics.
type Collector struct {
	refreshOutcome *prometheus.CounterVec
	fetchStatus    *prometheus.CounterVec
	refreshLatency prometheus.Histogram
	brokenFeeds    prometheus.Counter
}

// Refresh outcome label values.
const (
	OutcomeModified    = "modified"
	OutcomeNotModified = "not_modified"
	OutcomeMoved       = "moved"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

// NewCollector creates a Collector and registers its metrics.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		refreshOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feeds_refresh_outcome_total",
			Help: "Feed refresh jobs by outcome",
		}, []string{"outcome"}),
		fetchStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feeds_fetch_status_total",
			Help: "Feed fetch responses by HTTP status code",
		}, []string{"status_code"}),
		refreshLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "feeds_refresh_duration_seconds",
			Help:    "Duration of one feed refresh job, fetch to commit",
			Buckets: prometheus.DefBuckets,
		}),
		brokenFeeds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feeds_broken_total",
			Help: "Feeds demoted to broken status",
		}),
	}
	reg.MustRegister(
		c.refreshOutcome,
		c.fetchStatus,
		c.refreshLatency,
		c.brokenFeeds,
	)
	return c
}

// RecordRefreshOutcome counts one finished refresh job.
func (c *Collector) RecordRefreshOutcome(outcome string) {
	c.refreshOutcome.WithLabelValues(outcome).Inc()
}

// RecordFetchStatus counts one HTTP response by status code.
func (c *Collector) RecordFetchStatus(statusCode int) {
	c.fetchStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRefreshDuration observes the wall time of one refresh job.
func (c *Collector) RecordRefreshDuration(duration time.Duration) {
	c.refreshLatency.Observe(duration.Seconds())
}

// RecordBrokenFeed counts one feed demotion.
func (c *Collector) RecordBrokenFeed() {
	c.brokenFeeds.Inc()
}

// Handler returns the scrape handler for the given gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
