// internal/utils/metrics/collector.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "txdispatch"

// Collector держит метрики конвейера dispatch и RPC-адаптера.
// Нулевой указатель допустим: все методы становятся no-op.
type Collector struct {
	dispatchCounter  *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	stageFailures    *prometheus.CounterVec
	rpcLatency       *prometheus.HistogramVec
}

// NewCollector создает коллектор и регистрирует его метрики в reg.
// При reg == nil метрики не регистрируются (удобно в тестах).
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		dispatchCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_total",
				Help:      "Total number of dispatches by final state",
			},
			[]string{"state", "mode", "signer"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Dispatch duration from authorization to terminal state",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"mode"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Failures by pipeline stage",
			},
			[]string{"stage"},
		),
		rpcLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rpc_latency_seconds",
				Help:      "RPC request latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"method", "endpoint"},
		),
	}
	if reg != nil {
		reg.MustRegister(c.dispatchCounter, c.dispatchDuration, c.stageFailures, c.rpcLatency)
	}
	return c
}

// RecordDispatch записывает итог одного dispatch.
func (c *Collector) RecordDispatch(state, mode, signer string, duration time.Duration) {
	if c == nil {
		return
	}
	c.dispatchCounter.WithLabelValues(state, mode, signer).Inc()
	c.dispatchDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordStageFailure увеличивает счетчик ошибок стадии.
func (c *Collector) RecordStageFailure(stage string) {
	if c == nil {
		return
	}
	c.stageFailures.WithLabelValues(stage).Inc()
}

// RecordRPCLatency записывает метрики RPC-запроса
func (c *Collector) RecordRPCLatency(method, endpoint string, duration time.Duration) {
	if c == nil {
		return
	}
	c.rpcLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Reset сбрасывает все метрики (полезно для тестирования)
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.dispatchCounter.Reset()
	c.dispatchDuration.Reset()
	c.stageFailures.Reset()
	c.rpcLatency.Reset()
}
