package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	turnsTotal *prometheus.CounterVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	compactionsTotal   *prometheus.CounterVec
	serviceErrorsTotal *prometheus.CounterVec

	runDuration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics

	// registry is private so tests and repeated runs never collide with
	// the global default registerer
	registry = prometheus.NewRegistry()
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			turnsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "surveyor_turns_total",
					Help: "Total provider turns by provider.",
				},
				[]string{"provider"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "surveyor_tool_executions_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "surveyor_tool_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			compactionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "surveyor_compactions_total",
					Help: "Total compaction attempts by trigger and outcome.",
				},
				[]string{"trigger", "outcome"},
			),
			serviceErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "surveyor_service_errors_total",
					Help: "Total remote service errors by provider and status.",
				},
				[]string{"provider", "status"},
			),
			runDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "surveyor_run_duration_seconds",
					Help:    "Run duration in seconds by outcome.",
					Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
				},
				[]string{"outcome"},
			),
		}

		registry.MustRegister(
			m.turnsTotal,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.compactionsTotal,
			m.serviceErrorsTotal,
			m.runDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// Registry exposes the private registry for gathering
func Registry() *prometheus.Registry {
	EnsureRegistered()
	return registry
}

// WriteTextfile dumps all metrics in Prometheus text format to path
func WriteTextfile(path string) error {
	EnsureRegistered()
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}

func RecordTurn(provider string) {
	m := getMetrics()
	m.turnsTotal.WithLabelValues(provider).Inc()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordCompaction(trigger string, outcome string) {
	m := getMetrics()
	m.compactionsTotal.WithLabelValues(trigger, outcome).Inc()
}

// RecordServiceError counts a failed provider call. A zero status means a
// transport failure.
func RecordServiceError(provider string, statusCode int) {
	m := getMetrics()
	status := "transport"
	if statusCode > 0 {
		status = fmt.Sprintf("%d", statusCode)
	}
	m.serviceErrorsTotal.WithLabelValues(provider, status).Inc()
}

func RecordRun(duration time.Duration, success bool) {
	m := getMetrics()
	outcome := "error"
	if success {
		outcome = "success"
	}
	m.runDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}
