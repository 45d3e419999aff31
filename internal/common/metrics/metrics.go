// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_turns_processed_total",
			Help: "Total number of conversation turns processed",
		},
		[]string{"status"},
	)

	CycleFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_cycle_failures_total",
			Help: "Total number of failed orchestration cycles",
		},
		[]string{"error_code"},
	)

	ReasoningPassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "orchestrator_reasoning_pass_duration_seconds",
			Help: "Duration of reasoning service calls in seconds",
		},
		[]string{"purpose"},
	)

	DataFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_data_fetches_total",
			Help: "Total number of data source fetches",
		},
		[]string{"source", "outcome"},
	)

	ActiveCycles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_active_cycles",
			Help: "Number of orchestration cycles currently in flight",
		},
	)
)
