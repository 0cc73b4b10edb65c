package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking engine.
type BookingMetrics struct {
	catalogTotal     *prometheus.CounterVec
	catalogLatency   *prometheus.HistogramVec
	stepTransitions  *prometheus.CounterVec
	checkoutOutcomes *prometheus.CounterVec
	cartExpiries     prometheus.Counter
	trackingDropped  prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		catalogTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reluxe",
			Subsystem: "booking",
			Name:      "catalog_requests_total",
			Help:      "Total catalog/availability backend requests",
		}, []string{"operation", "status"}),
		catalogLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reluxe",
			Subsystem: "booking",
			Name:      "catalog_request_seconds",
			Help:      "Latency of catalog/availability backend requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		stepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reluxe",
			Subsystem: "booking",
			Name:      "step_transitions_total",
			Help:      "Booking flow step entries",
		}, []string{"step"}),
		checkoutOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reluxe",
			Subsystem: "booking",
			Name:      "checkout_outcomes_total",
			Help:      "Checkout attempts by outcome",
		}, []string{"outcome"}),
		cartExpiries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reluxe",
			Subsystem: "booking",
			Name:      "cart_expiries_total",
			Help:      "Reservations that expired before checkout",
		}),
		trackingDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reluxe",
			Subsystem: "booking",
			Name:      "tracking_events_dropped_total",
			Help:      "Tracking events dropped because the sink buffer was full",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.catalogTotal, m.catalogLatency, m.stepTransitions, m.checkoutOutcomes, m.cartExpiries, m.trackingDropped)
	return m
}

func (m *BookingMetrics) ObserveCatalog(operation string, err error, seconds float64) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.catalogTotal.WithLabelValues(operation, status).Inc()
	m.catalogLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *BookingMetrics) ObserveStep(step string) {
	if m == nil {
		return
	}
	m.stepTransitions.WithLabelValues(step).Inc()
}

func (m *BookingMetrics) ObserveCheckout(outcome string) {
	if m == nil {
		return
	}
	m.checkoutOutcomes.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveCartExpired() {
	if m == nil {
		return
	}
	m.cartExpiries.Inc()
}

func (m *BookingMetrics) ObserveTrackingDropped() {
	if m == nil {
		return
	}
	m.trackingDropped.Inc()
}
