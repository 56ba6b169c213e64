package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking assistant.
type BookingMetrics struct {
	bookingsTotal      *prometheus.CounterVec
	confirmationsTotal *prometheus.CounterVec
	toolCallsTotal     *prometheus.CounterVec
	completionsTotal   *prometheus.CounterVec
	streamDuration     *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "appointments",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		confirmationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "appointments",
			Name:      "confirmations_total",
			Help:      "Confirmation link actions by outcome",
		}, []string{"action", "outcome"}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "conversation",
			Name:      "tool_calls_total",
			Help:      "Dispatched tool calls by tool and status",
		}, []string{"tool", "status"}),
		completionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "conversation",
			Name:      "completion_requests_total",
			Help:      "LLM completion requests by backend and outcome",
		}, []string{"backend", "outcome"}),
		streamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "conversation",
			Name:      "stream_duration_seconds",
			Help:      "Duration of streamed assistant replies",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.confirmationsTotal, m.toolCallsTotal, m.completionsTotal, m.streamDuration)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveConfirmation(action, outcome string) {
	if m == nil {
		return
	}
	m.confirmationsTotal.WithLabelValues(action, outcome).Inc()
}

func (m *BookingMetrics) ObserveToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.toolCallsTotal.WithLabelValues(tool, status).Inc()
}

func (m *BookingMetrics) ObserveCompletion(backend, outcome string) {
	if m == nil {
		return
	}
	m.completionsTotal.WithLabelValues(backend, outcome).Inc()
}

func (m *BookingMetrics) ObserveStreamDuration(backend string, seconds float64) {
	if m == nil {
		return
	}
	m.streamDuration.WithLabelValues(backend).Observe(seconds)
}
