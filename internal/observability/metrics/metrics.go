package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the reservation engine.
type BookingMetrics struct {
	reservationsTotal *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	sweeperExpired    prometheus.Counter
	reserveLatency    prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicbook",
			Subsystem: "booking",
			Name:      "reservations_total",
			Help:      "Reservation attempts by outcome",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicbook",
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Appointment status transitions by target status",
		}, []string{"to"}),
		sweeperExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicbook",
			Subsystem: "booking",
			Name:      "sweeper_expired_total",
			Help:      "Pending appointments expired by the sweeper",
		}),
		reserveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinicbook",
			Subsystem: "booking",
			Name:      "reserve_latency_seconds",
			Help:      "Latency of reserve operations",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reservationsTotal, m.transitionsTotal, m.sweeperExpired, m.reserveLatency)
	return m
}

func (m *BookingMetrics) ObserveReservation(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(outcome).Inc()
	m.reserveLatency.Observe(seconds)
}

func (m *BookingMetrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(to).Inc()
}

func (m *BookingMetrics) ObserveExpired(count int) {
	if m == nil {
		return
	}
	m.sweeperExpired.Add(float64(count))
}
