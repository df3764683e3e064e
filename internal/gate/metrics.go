package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: оценки gate'а по исходу (promote / block / error)
	Evaluations *prometheus.CounterVec

	// Errors: какие именно проверки валятся
	CheckFailures *prometheus.CounterVec

	// Latency полной оценки (включая backend-вызов)
	EvaluationDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Evaluations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "proofkit_gate_evaluations_total",
			Help: "Total gate evaluations by result.",
		}, []string{"account_id", "result"}),

		CheckFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "proofkit_gate_check_failures_total",
			Help: "Failed gate checks by check name.",
		}, []string{"check"}),

		EvaluationDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "proofkit_gate_evaluation_duration_seconds",
			Help:    "Histogram of full gate evaluation latency.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}
}
