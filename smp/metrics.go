package smp

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts protocol activity. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	transactions  *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	transferBytes *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wavy",
			Subsystem: "smp",
			Name:      "transactions_total",
			Help:      "SMP transactions by result.",
		}, []string{"result"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wavy",
			Subsystem: "smp",
			Name:      "dropped_frames_total",
			Help:      "Received SMP frames that were dropped, by reason.",
		}, []string{"reason"}),
		transferBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wavy",
			Subsystem: "transfer",
			Name:      "bytes_total",
			Help:      "Payload bytes moved by chunked transfers.",
		}, []string{"direction"}),
	}
	if reg != nil {
		reg.MustRegister(m.transactions, m.dropped, m.transferBytes)
	}
	return m
}

func (m *Metrics) transaction(result string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(result).Inc()
}

func (m *Metrics) drop(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

// Transferred adds n bytes moved in the given direction ("upload" or "download").
func (m *Metrics) Transferred(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.transferBytes.WithLabelValues(direction).Add(float64(n))
}
