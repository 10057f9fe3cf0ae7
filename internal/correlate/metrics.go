package correlate

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the registry's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Requests      *prometheus.GaugeVec
	Deliveries    *prometheus.CounterVec
	Removals      *prometheus.CounterVec
	HandlerFaults *prometheus.CounterVec
}

// Request states used as the "state" label.
const (
	statePending = "pending"
	stateActive  = "active"
)

// Delivery outcomes used as the "outcome" label.
const (
	outcomeBuffered  = "buffered"
	outcomeDelivered = "delivered"
	outcomeDropped   = "dropped"
)

// Removal reasons used as the "reason" label.
const (
	reasonCompleted    = "completed"
	reasonEmpty        = "empty"
	reasonCancelled    = "cancelled"
	reasonFailed       = "failed"
	reasonUnregistered = "unregistered"
	reasonCleared      = "cleared"
)

// NewMetrics creates the registry collectors and registers them with reg.
// Pass nil to create unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "histsess",
				Subsystem: "correlation",
				Name:      "requests",
				Help:      "Outstanding requests by state (pending, active)",
			},
			[]string{"state"},
		),

		Deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "histsess",
				Subsystem: "correlation",
				Name:      "deliveries_total",
				Help:      "Callback deliveries by outcome (buffered, delivered, dropped)",
			},
			[]string{"outcome"},
		),

		Removals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "histsess",
				Subsystem: "correlation",
				Name:      "removals_total",
				Help:      "Requests removed from the registry by reason",
			},
			[]string{"kind", "reason"},
		),

		HandlerFaults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "histsess",
				Subsystem: "correlation",
				Name:      "handler_faults_total",
				Help:      "Result handlers that returned an error or panicked",
			},
			[]string{"kind"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Requests, m.Deliveries, m.Removals, m.HandlerFaults)
	}
	return m
}

func (m *Metrics) addRequest(state string, delta float64) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(state).Add(delta)
}

func (m *Metrics) delivery(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Deliveries.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) removal(kind Kind, reason string) {
	if m == nil {
		return
	}
	m.Removals.WithLabelValues(kind.String(), reason).Inc()
}

func (m *Metrics) fault(kind Kind) {
	if m == nil {
		return
	}
	m.HandlerFaults.WithLabelValues(kind.String()).Inc()
}
