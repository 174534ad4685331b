// Package metrics holds the Prometheus collectors for discovery, extraction
// and batch progress.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "gocorpus"

// Metrics groups every collector the pipeline updates. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	DiscoveryRuns     *prometheus.CounterVec
	DiscoveredLinks   *prometheus.CounterVec
	PagesVisited      prometheus.Histogram
	ExtractionsTotal  *prometheus.CounterVec
	ExtractionQuality *prometheus.HistogramVec
	ItemsProduced     *prometheus.CounterVec
	ItemsSkipped      *prometheus.CounterVec

	TasksTotal     prometheus.Gauge
	TasksCompleted prometheus.Gauge
	TasksFailed    prometheus.Gauge
}

// New creates the collectors and registers them with reg, or with the
// default registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	m := &Metrics{}

	m.DiscoveryRuns = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "discovery",
		Name:      "runs_total",
		Help:      "Discovery runs by winning strategy (none when nothing was found).",
	}, []string{"strategy"})
	m.DiscoveredLinks = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "discovery",
		Name:      "links_total",
		Help:      "Candidate links returned by discovery, by type.",
	}, []string{"type"})
	m.PagesVisited = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "discovery",
		Name:      "pages_visited",
		Help:      "Pages charged to the budget per discovery run.",
		Buckets:   prometheus.LinearBuckets(0, 5, 10),
	})

	m.ExtractionsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "extraction",
		Name:      "total",
		Help:      "Extraction outcomes by stage and reason (empty reason on success).",
	}, []string{"stage", "reason"})
	m.ExtractionQuality = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "extraction",
		Name:      "quality",
		Help:      "Quality score of the accepted extraction.",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	}, []string{"stage"})

	m.ItemsProduced = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "pipeline",
		Name:      "items_total",
		Help:      "Items emitted, by content type.",
	}, []string{"content_type"})
	m.ItemsSkipped = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "pipeline",
		Name:      "skipped_total",
		Help:      "Sources or links skipped, by reason.",
	}, []string{"reason"})

	m.TasksTotal = f.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace, Subsystem: "pipeline", Name: "tasks_total",
		Help: "Tasks scheduled in the current batch.",
	})
	m.TasksCompleted = f.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace, Subsystem: "pipeline", Name: "tasks_completed",
		Help: "Tasks finished successfully in the current batch.",
	})
	m.TasksFailed = f.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace, Subsystem: "pipeline", Name: "tasks_failed",
		Help: "Tasks that failed in the current batch.",
	})
	return m
}

// ObserveDiscovery records a finished discovery run.
func (m *Metrics) ObserveDiscovery(strategy string, pages int, linksByType map[string]int) {
	if m == nil {
		return
	}
	if strategy == "" {
		strategy = "none"
	}
	m.DiscoveryRuns.WithLabelValues(strategy).Inc()
	m.PagesVisited.Observe(float64(pages))
	for t, n := range linksByType {
		m.DiscoveredLinks.WithLabelValues(t).Add(float64(n))
	}
}

// ObserveExtraction records one extraction outcome.
func (m *Metrics) ObserveExtraction(stage, reason string, quality float64) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(stage, reason).Inc()
	if reason == "" {
		m.ExtractionQuality.WithLabelValues(stage).Observe(quality)
	}
}

// ObserveItems counts emitted items.
func (m *Metrics) ObserveItems(contentType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ItemsProduced.WithLabelValues(contentType).Add(float64(n))
}

// ObserveSkip counts a skipped source.
func (m *Metrics) ObserveSkip(reason string) {
	if m == nil {
		return
	}
	m.ItemsSkipped.WithLabelValues(reason).Inc()
}

// SetProgress mirrors the batch counters.
func (m *Metrics) SetProgress(total, completed, failed int64) {
	if m == nil {
		return
	}
	m.TasksTotal.Set(float64(total))
	m.TasksCompleted.Set(float64(completed))
	m.TasksFailed.Set(float64(failed))
}
