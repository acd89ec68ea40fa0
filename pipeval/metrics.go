package pipeval

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts the outcomes of evaluations.
type Metrics struct {
	Verdicts *prometheus.CounterVec
	Faults   *prometheus.CounterVec
	Steps    prometheus.Histogram
}

// NewMetrics creates the metrics and registers them with reg, if reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pip",
			Name:      "verdicts_total",
			Help:      "Number of packets evaluated, by verdict.",
		}, []string{"verdict"}),
		Faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pip",
			Name:      "faults_total",
			Help:      "Number of packets which faulted, by kind of error.",
		}, []string{"kind"}),
		Steps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pip",
			Name:      "steps",
			Help:      "Number of actions executed per packet.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 9),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Verdicts, m.Faults, m.Steps)
	}
	return m
}

// Observe records the outcome of one evaluation.
func (m *Metrics) Observe(res Result, err error) {
	m.Verdicts.WithLabelValues(res.Verdict.String()).Inc()
	m.Steps.Observe(float64(res.Steps))
	if err != nil {
		m.Faults.WithLabelValues(FaultKind(err)).Inc()
	}
}

// FaultKind classifies an error returned by Eval.
func FaultKind(err error) string {
	var serr StructuralError
	var ferr FieldError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &serr):
		return "structural"
	case errors.As(err, &ferr):
		return "field"
	default:
		return "other"
	}
}
