package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	assessmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "workload_assessor_assessment_duration_seconds",
			Help:    "End-to-end duration of workload assessments",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	assessmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workload_assessor_assessments_total",
			Help: "Assessments by terminal state",
		},
		[]string{"state"},
	)

	costUnavailableTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workload_assessor_cost_unavailable_total",
			Help: "Assessments completed without a cost breakdown, by reason code",
		},
		[]string{"code"},
	)
)
