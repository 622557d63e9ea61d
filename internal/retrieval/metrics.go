package retrieval

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the retrieval collectors.
type Metrics struct {
	retrievals       *prometheus.CounterVec
	smartFallbacks   *prometheus.CounterVec
	embedFailures    prometheus.Counter
	scoringFallbacks prometheus.Counter
	duration         prometheus.Histogram
	selected         prometheus.Histogram
}

// NewMetrics creates the retrieval collectors and registers them on reg.
// Collectors already registered by another orchestrator are reused. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openvault_retrievals_total",
			Help: "Retrievals by selection path.",
		}, []string{"path"}),
		smartFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openvault_smart_fallbacks_total",
			Help: "Smart selections that fell back to simple selection, by reason.",
		}, []string{"reason"}),
		embedFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "openvault_embedding_failures_total",
			Help: "Query embeddings that failed or timed out.",
		}),
		scoringFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "openvault_scoring_fallbacks_total",
			Help: "Scoring calls retried inline after the executor failed.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "openvault_retrieval_duration_seconds",
			Help:    "End-to-end retrieval latency.",
			Buckets: prometheus.DefBuckets,
		}),
		selected: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "openvault_selected_memories",
			Help:    "Number of memories returned per retrieval.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
	}
	if reg == nil {
		return m
	}

	m.retrievals = register(reg, m.retrievals)
	m.smartFallbacks = register(reg, m.smartFallbacks)
	m.embedFailures = register(reg, m.embedFailures)
	m.scoringFallbacks = register(reg, m.scoringFallbacks)
	m.duration = register(reg, m.duration)
	m.selected = register(reg, m.selected)
	return m
}

// register registers c, returning the existing collector when an
// identical one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) observe(res Result, elapsed time.Duration) {
	m.retrievals.WithLabelValues(string(res.Path)).Inc()
	m.duration.Observe(elapsed.Seconds())
	m.selected.Observe(float64(len(res.Memories)))
}
