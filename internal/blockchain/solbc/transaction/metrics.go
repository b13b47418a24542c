// internal/blockchain/solbc/transaction/metrics.go
package transaction

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics - счетчики отправки и подтверждения. Нулевой указатель допустим.
type Metrics struct {
	submitCounter     *prometheus.CounterVec
	outcomeCounter    *prometheus.CounterVec
	durationHistogram prometheus.Histogram
}

// NewMetrics создает метрики и регистрирует их в reg, если он задан.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submitCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txdispatch",
			Name:      "submissions_total",
			Help:      "Total number of sendTransaction attempts by result",
		}, []string{"result"}),
		outcomeCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txdispatch",
			Name:      "confirmations_total",
			Help:      "Confirmation outcomes by terminal state",
		}, []string{"state"}),
		durationHistogram: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "txdispatch",
			Name:      "confirmation_duration_seconds",
			Help:      "Time from submission to terminal confirmation state",
			Buckets:   prometheus.LinearBuckets(0.5, 2, 15),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.submitCounter, m.outcomeCounter, m.durationHistogram)
	}
	return m
}

func (m *Metrics) trackSubmit(result string) {
	if m == nil {
		return
	}
	m.submitCounter.WithLabelValues(result).Inc()
}

func (m *Metrics) trackOutcome(o *Outcome) {
	if m == nil {
		return
	}
	m.outcomeCounter.WithLabelValues(o.State.String()).Inc()
	m.durationHistogram.Observe(o.Elapsed.Seconds())
}
