// Package metrics exposes Prometheus collectors for decision evaluation.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/liamcoop/dmn/feel"
	"github.com/liamcoop/dmn/internal/logger"
	"github.com/liamcoop/dmn/rules"
)

// Config controls metric naming. Empty fields take the defaults.
type Config struct {
	Enabled         bool      `yaml:"enabled"`
	Namespace       string    `yaml:"namespace"`
	Subsystem       string    `yaml:"subsystem"`
	DurationBuckets []float64 `yaml:"durationBuckets"`
}

// Collector records decision evaluations, hit policy violations and parse
// cache lookups. A nil *Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	evaluations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	violations  *prometheus.CounterVec
	cacheLookup *prometheus.CounterVec
	recorded    *prometheus.CounterVec

	// mirrors of the process-wide logger counters
	logErrors   prometheus.CounterFunc
	logWarnings prometheus.CounterFunc
	http5xx     prometheus.CounterFunc
	http4xx     prometheus.CounterFunc
	http404     prometheus.CounterFunc
}

// NewCollector registers the collectors on registry, or on a new registry
// when it is nil
func NewCollector(cfg Config, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "dmn"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "engine"
	}
	if len(cfg.DurationBuckets) == 0 {
		// decisions are CPU bound: 50µs to 1s
		cfg.DurationBuckets = []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}
	}

	c := &Collector{
		registry: registry,
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "decision_evaluations_total",
			Help:      "Decisions evaluated, by model, decision and outcome.",
		}, []string{"model", "decision", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "decision_duration_seconds",
			Help:      "Time spent evaluating a single decision.",
			Buckets:   cfg.DurationBuckets,
		}, []string{"model", "decision"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "hit_policy_violations_total",
			Help:      "Decision tables whose matches broke the hit policy.",
		}, []string{"model", "decision", "policy"}),
		cacheLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "parse_cache_lookups_total",
			Help:      "Expression parse cache lookups by result.",
		}, []string{"result"}),
		recorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "results_recorded_total",
			Help:      "Evaluation results written by recorders, by status.",
		}, []string{"status"}),
	}

	counterFunc := func(subsystem, name, help string, v interface{ Load() int64 }) prometheus.CounterFunc {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(v.Load()) })
	}
	c.logErrors = counterFunc("log", "errors_total", "Errors logged, including sampled-out ones.", &logger.TotalErrors)
	c.logWarnings = counterFunc("log", "warnings_total", "Warnings logged, including sampled-out ones.", &logger.TotalWarnings)
	c.http5xx = counterFunc("http", "responses_5xx_total", "HTTP responses with a 5xx status.", &logger.Total5xxErrors)
	c.http4xx = counterFunc("http", "responses_4xx_total", "HTTP responses with a 4xx status.", &logger.Total4xxErrors)
	c.http404 = counterFunc("http", "responses_404_total", "HTTP responses with a 404 status.", &logger.Total404Errors)

	registry.MustRegister(c.evaluations, c.duration, c.violations, c.cacheLookup, c.recorded,
		c.logErrors, c.logWarnings, c.http5xx, c.http4xx, c.http404)
	return c
}

// Registry returns the registry the collectors are registered on
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveDecision implements rules.Metrics
func (c *Collector) ObserveDecision(modelID, decision string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	c.evaluations.WithLabelValues(modelID, decision, status(err)).Inc()
	c.duration.WithLabelValues(modelID, decision).Observe(elapsed.Seconds())
}

// ObserveHitPolicyViolation implements rules.Metrics
func (c *Collector) ObserveHitPolicyViolation(modelID, decision string, policy rules.HitPolicy) {
	if c == nil {
		return
	}
	c.violations.WithLabelValues(modelID, decision, string(policy)).Inc()
}

// ObserveCache counts a parse cache lookup. It has the shape expected by
// feel.WithCacheObserver.
func (c *Collector) ObserveCache(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookup.WithLabelValues(result).Inc()
}

// ObserveRecord counts a result written by a recorder
func (c *Collector) ObserveRecord(err error) {
	if c == nil {
		return
	}
	c.recorded.WithLabelValues(status(err)).Inc()
}

// InterpreterOption wires the parse cache counters into an interpreter
func (c *Collector) InterpreterOption() feel.Option {
	if c == nil {
		return nil
	}
	return feel.WithCacheObserver(c.ObserveCache)
}

func status(err error) string {
	if err == nil {
		return "success"
	}
	var hp *rules.HitPolicyViolation
	if errors.As(err, &hp) {
		return "violation"
	}
	return "error"
}
