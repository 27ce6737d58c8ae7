package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	collectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workload_assessor_collector_duration_seconds",
			Help:    "Time taken by individual collectors",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)

	collectorTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workload_assessor_collector_total",
			Help: "Total number of collector invocations",
		},
		[]string{"source", "status"}, // success, error, timeout, panic
	)

	activeCollectors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "workload_assessor_active_collectors",
			Help: "Number of collectors selected for the last dispatch",
		},
	)
)
