package monitor

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Iron-Ham/replan/internal/replan"
)

// DefaultMetricsNamespace prefixes every metric name.
const DefaultMetricsNamespace = "replan"

// Metrics records engine activity in Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	decisions  *prometheus.CounterVec
	triggers   *prometheus.CounterVec
	results    *prometheus.CounterVec
	confidence prometheus.Histogram
	monitored  prometheus.Gauge
}

// NewMetrics creates the engine metrics and registers them on reg.
// An empty namespace selects DefaultMetricsNamespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultMetricsNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Replanning checks by suggested action and outcome.",
		}, []string{"action", "should_replan"}),
		triggers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_total",
			Help:      "Activated triggers by kind.",
		}, []string{"trigger"}),
		results: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Executed replan actions by action and success.",
		}, []string{"action", "success"}),
		confidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_confidence",
			Help:      "Combined confidence of positive replanning decisions.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		monitored: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitored_tasks",
			Help:      "Tasks currently under active monitoring.",
		}),
	}
}

func (m *Metrics) observeDecision(d replan.ReplanDecision) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(d.SuggestedAction.String(), strconv.FormatBool(d.ShouldReplan)).Inc()
	if !d.ShouldReplan {
		return
	}
	m.confidence.Observe(d.Confidence)
	for _, r := range d.Activated {
		m.triggers.WithLabelValues(r.Trigger.String()).Inc()
	}
}

func (m *Metrics) observeResult(r replan.ReplanResult) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(r.Action.String(), strconv.FormatBool(r.Success)).Inc()
}

func (m *Metrics) setMonitored(n int) {
	if m == nil {
		return
	}
	m.monitored.Set(float64(n))
}
