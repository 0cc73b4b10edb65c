package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reluxe-code/reluxe-booking/internal/availability"
	"github.com/reluxe-code/reluxe-booking/internal/booking"
	"github.com/reluxe-code/reluxe-booking/internal/catalog"
	"github.com/reluxe-code/reluxe-booking/internal/http/handlers"
	"github.com/reluxe-code/reluxe-booking/internal/observability/metrics"
	"github.com/reluxe-code/reluxe-booking/internal/session"
	"github.com/reluxe-code/reluxe-booking/pkg/logging"
)

type emptyCatalog struct{}

func (emptyCatalog) GetMenu(context.Context, string, string) (*catalog.Menu, error) {
	return &catalog.Menu{}, nil
}

func (emptyCatalog) GetServiceOptions(context.Context, string, string, string) (*catalog.ServiceOptions, error) {
	return &catalog.ServiceOptions{}, nil
}

func (emptyCatalog) GetAvailableDates(context.Context, catalog.DatesRequest) ([]string, error) {
	return nil, nil
}

func (emptyCatalog) GetAvailableTimes(context.Context, catalog.TimesRequest) ([]catalog.TimeSlot, error) {
	return nil, nil
}

func (emptyCatalog) CreateCart(context.Context, catalog.CartRequest) (*catalog.Cart, error) {
	return nil, catalog.ErrSlotUnavailable
}

func (emptyCatalog) SendVerificationCode(context.Context, string, string) (*catalog.CodeChallenge, error) {
	return nil, catalog.ErrCartExpired
}

func (emptyCatalog) VerifyCode(context.Context, catalog.VerifyRequest) (*catalog.VerifyResult, error) {
	return nil, catalog.ErrCartExpired
}

func (emptyCatalog) Checkout(context.Context, string, catalog.CheckoutInput) (*catalog.CheckoutResult, error) {
	return nil, catalog.ErrCartExpired
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := logging.Default()
	reg := prometheus.NewRegistry()
	bm := metrics.NewBookingMetrics(reg)
	flows := session.NewRegistry(booking.Deps{
		Catalog:   emptyCatalog{},
		Locations: []availability.Location{{Key: "carmel", Label: "Carmel"}},
		Metrics:   bm,
	}, nil, logger)
	t.Cleanup(flows.Close)

	cfg := &Config{
		Logger:             logger,
		FlowHandler:        handlers.NewFlowHandler(handlers.FlowHandlerConfig{Flows: flows, TokenSecret: "secret", Logger: logger}),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: []string{"https://reluxe.example"},
	}
	return New(cfg)
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterCreatesFlow(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/booking/flows", nil)
	req.Header.Set("Origin", "https://reluxe.example")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://reluxe.example" {
		t.Errorf("expected CORS header, got %q", got)
	}
	var resp struct {
		FlowID string `json:"flowId"`
		Token  string `json:"token"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/booking/flows/"+resp.FlowID+"/", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthenticated flow read to be rejected, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/booking/flows/"+resp.FlowID+"/", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	// Creating a flow records nothing; resetting one records a step.
	req := httptest.NewRequest(http.MethodPost, "/api/booking/flows", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	var created struct {
		FlowID string `json:"flowId"`
		Token  string `json:"token"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/api/booking/flows/"+created.FlowID+"/reset", nil)
	req.Header.Set("Authorization", "Bearer "+created.Token)
	router.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "reluxe_booking_step_transitions_total") {
		t.Errorf("expected booking metrics in output")
	}
}
