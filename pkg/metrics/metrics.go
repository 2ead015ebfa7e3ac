// Package metrics declares the Prometheus collectors for usage evaluation.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "meter"

// Evaluation metrics.
var (
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Total number of usage evaluations",
		},
		[]string{"tier"},
	)

	UpgradePromptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upgrade_prompts_total",
			Help:      "Evaluations that recommended an upgrade",
		},
		[]string{"reason"}, // "near-limit" / "at-limit"
	)

	EvaluationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_errors_total",
			Help:      "Failed usage evaluations",
		},
		[]string{"kind"},
	)

	ReportCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_cache_total",
			Help:      "Report cache lookups",
		},
		[]string{"result"}, // "hit" / "miss" / "error"
	)

	EvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Usage evaluation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)
)

var registerOnce sync.Once

// Register registers every collector with the default registry. Safe to
// call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EvaluationsTotal,
			UpgradePromptsTotal,
			EvaluationErrorsTotal,
			ReportCacheTotal,
			EvaluationDuration,
			httpRequestDuration,
			httpRequestsTotal,
		)
	})
}
