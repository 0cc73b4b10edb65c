package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveCatalog("GetMenu", nil, 0.2)
	m.ObserveCatalog("GetMenu", errors.New("boom"), 0.4)
	m.ObserveStep("datetime")
	m.ObserveCheckout("success")
	m.ObserveCartExpired()
	m.ObserveTrackingDropped()

	if got := testutil.ToFloat64(m.catalogTotal.WithLabelValues("GetMenu", "error")); got != 1 {
		t.Fatalf("expected 1 errored catalog request, got %v", got)
	}
	if got := testutil.ToFloat64(m.cartExpiries); got != 1 {
		t.Fatalf("expected 1 cart expiry, got %v", got)
	}
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveCatalog("GetMenu", nil, 0.1)
	m.ObserveStep("options")
	m.ObserveCheckout("expired")
	m.ObserveCartExpired()
	m.ObserveTrackingDropped()
}
