// Package metrics exposes pipeline, retrieval, platform API and cache outcomes as prometheus collectors.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"CrateDigger/internal/cache"
	"CrateDigger/internal/credentials"
	"CrateDigger/internal/ports"
)

const namespace = "cratedigger"

// Collector implements the observer interfaces of the pipeline, rotator and cache.
type Collector struct {
	stage     *prometheus.CounterVec
	retrieval *prometheus.CounterVec
	attempts  *prometheus.CounterVec
	cache     *prometheus.CounterVec
	cycle     *prometheus.HistogramVec
}

var (
	_ ports.StageObserver  = (*Collector)(nil)
	_ credentials.Observer = (*Collector)(nil)
	_ cache.Observer       = (*Collector)(nil)
)

// New registers the collectors on reg. A nil registerer yields a no-op collector.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		return &Collector{}
	}
	c := &Collector{
		stage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_items_total",
			Help:      "Candidates handled per pipeline stage and outcome.",
		}, []string{"stage", "outcome"}),
		retrieval: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_requests_total",
			Help:      "Random sample lookups by outcome.",
		}, []string{"outcome"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "platform_attempts_total",
			Help:      "Platform API attempts per credential outcome.",
		}, []string{"outcome"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by result.",
		}, []string{"result"}),
		cycle: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of scheduled pipeline cycles.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}
	reg.MustRegister(c.stage, c.retrieval, c.attempts, c.cache, c.cycle)
	return c
}

// ObserveStage adds n items to the stage/outcome counter.
func (c *Collector) ObserveStage(stage, outcome string, n int) {
	if c == nil || c.stage == nil || n <= 0 {
		return
	}
	c.stage.WithLabelValues(normalizeLabel(stage), normalizeLabel(outcome)).Add(float64(n))
}

// ObserveRetrieval counts one retrieval outcome: hit, none, error or fallback.
func (c *Collector) ObserveRetrieval(outcome string) {
	if c == nil || c.retrieval == nil {
		return
	}
	c.retrieval.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveAttempt counts one credential attempt.
func (c *Collector) ObserveAttempt(outcome string) {
	if c == nil || c.attempts == nil {
		return
	}
	c.attempts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveLookup counts one cache lookup.
func (c *Collector) ObserveLookup(hit bool) {
	if c == nil || c.cache == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cache.WithLabelValues(result).Inc()
}

// ObserveCycle records a scheduled cycle's duration.
func (c *Collector) ObserveCycle(d time.Duration, err error) {
	if c == nil || c.cycle == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.cycle.WithLabelValues(status).Observe(d.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
