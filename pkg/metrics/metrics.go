// Package metrics exposes the Prometheus collectors shared by the planner,
// the device workers, and the block executor.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records execution and planning activity. A nil *Metrics is valid
// and records nothing, so wiring it is optional in tests.
type Metrics struct {
	executionsStarted   prometheus.CounterVec
	executionsCompleted prometheus.CounterVec
	blockDuration       prometheus.HistogramVec
	queueDepth          prometheus.GaugeVec
	planCacheHits       prometheus.Counter
	planCacheMisses     prometheus.Counter
	planLLMCalls        prometheus.Counter
	planOutcomes        prometheus.CounterVec
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// New builds a Metrics recorder using the default registry.
func New() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = newMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewWithRegisterer allows tests to provide a dedicated registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		executionsStarted: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pilot",
			Subsystem: "executor",
			Name:      "executions_started_total",
			Help:      "Executions that entered the running state, by kind",
		}, []string{"kind"}),
		executionsCompleted: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pilot",
			Subsystem: "executor",
			Name:      "executions_completed_total",
			Help:      "Executions that reached a terminal state, by kind and status",
		}, []string{"kind", "status"}),
		blockDuration: *factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pilot",
			Subsystem: "executor",
			Name:      "block_duration_seconds",
			Help:      "Wall-clock duration of individual block runs, by block type",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"type"}),
		queueDepth: *factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pilot",
			Subsystem: "queue",
			Name:      "device_queue_depth",
			Help:      "Pending executions in each device mailbox",
		}, []string{"device"}),
		planCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pilot",
			Subsystem: "planner",
			Name:      "cache_hit_total",
			Help:      "Plan requests answered from the fingerprint cache",
		}),
		planCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pilot",
			Subsystem: "planner",
			Name:      "cache_miss_total",
			Help:      "Plan requests that missed the fingerprint cache",
		}),
		planLLMCalls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pilot",
			Subsystem: "planner",
			Name:      "llm_call_total",
			Help:      "Completion requests issued to the LLM backend",
		}),
		planOutcomes: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pilot",
			Subsystem: "planner",
			Name:      "outcome_total",
			Help:      "Plan builder outcomes, by status",
		}, []string{"status"}),
	}
}

// RecordExecutionStarted counts an execution entering running.
func (m *Metrics) RecordExecutionStarted(kind string) {
	if m == nil {
		return
	}
	m.executionsStarted.WithLabelValues(kind).Inc()
}

// RecordExecutionCompleted counts a terminal execution.
func (m *Metrics) RecordExecutionCompleted(kind, status string) {
	if m == nil {
		return
	}
	m.executionsCompleted.WithLabelValues(kind, status).Inc()
}

// RecordBlockDuration observes one block run.
func (m *Metrics) RecordBlockDuration(blockType string, d time.Duration) {
	if m == nil {
		return
	}
	m.blockDuration.WithLabelValues(blockType).Observe(d.Seconds())
}

// RecordQueueDepth sets the mailbox depth for a device.
func (m *Metrics) RecordQueueDepth(device string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(device).Set(float64(depth))
}

// RecordPlanCacheHit counts a fingerprint cache hit.
func (m *Metrics) RecordPlanCacheHit() {
	if m == nil {
		return
	}
	m.planCacheHits.Inc()
}

// RecordPlanCacheMiss counts a fingerprint cache miss.
func (m *Metrics) RecordPlanCacheMiss() {
	if m == nil {
		return
	}
	m.planCacheMisses.Inc()
}

// RecordLLMCall counts one completion request.
func (m *Metrics) RecordLLMCall() {
	if m == nil {
		return
	}
	m.planLLMCalls.Inc()
}

// RecordPlanOutcome counts a plan builder result by status.
func (m *Metrics) RecordPlanOutcome(status string) {
	if m == nil {
		return
	}
	m.planOutcomes.WithLabelValues(status).Inc()
}
