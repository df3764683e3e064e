package harness

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: прогоны harness'а по исходу (pass / fail / error)
	Runs *prometheus.CounterVec

	// План первого прогона — сколько мутаций автоматизация хочет применить
	PlannedMutations prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Runs: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "proofkit_harness_runs_total",
			Help: "Total idempotency harness runs by outcome.",
		}, []string{"account_id", "outcome"}),

		PlannedMutations: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "proofkit_harness_planned_mutations",
			Help:    "Mutations planned by the first preview run.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
	}
}
