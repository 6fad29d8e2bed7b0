package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"ai-fitness-planner/internal/generator"
)

const namespace = "fitness_planner"

// Collector exports generation telemetry to Prometheus. It implements
// generator.Observer and is safe to share between controllers.
type Collector struct {
	generations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	tokens      *prometheus.CounterVec
	snapshots   prometheus.Counter
	completed   prometheus.Histogram
}

var _ generator.Observer = (*Collector)(nil)

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Finished plan generations by outcome.",
		}, []string{"outcome", "demo"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall time from request to terminal phase.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 15, 30, 60},
		}, []string{"outcome"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by generations.",
		}, []string{"model", "kind"}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_snapshots_total",
			Help:      "Partial plan snapshots accepted from the model stream.",
		}),
		completed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "complete_days",
			Help:      "Complete days in the final snapshot of each generation.",
			Buckets:   prometheus.LinearBuckets(0, 1, 8),
		}),
	}

	for _, col := range []prometheus.Collector{c.generations, c.duration, c.tokens, c.snapshots, c.completed} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// OnSnapshot counts accepted stream snapshots.
func (c *Collector) OnSnapshot(generator.State) {
	c.snapshots.Inc()
}

// OnFinish records the outcome of a generation.
func (c *Collector) OnFinish(s generator.State) {
	outcome := s.Phase.String()
	demo := "false"
	if s.Demo {
		demo = "true"
	}
	c.generations.WithLabelValues(outcome, demo).Inc()
	c.duration.WithLabelValues(outcome).Observe(s.Elapsed().Seconds())
	c.completed.Observe(float64(s.CompleteDays))

	if s.Usage.PromptTokens > 0 || s.Usage.CompletionTokens > 0 {
		model := s.Usage.Model
		if model == "" {
			model = "unknown"
		}
		c.tokens.WithLabelValues(model, "prompt").Add(float64(s.Usage.PromptTokens))
		c.tokens.WithLabelValues(model, "completion").Add(float64(s.Usage.CompletionTokens))
	}
}
