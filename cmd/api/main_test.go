package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appconfig "github.com/reluxe-code/reluxe-booking/internal/config"
	"github.com/reluxe-code/reluxe-booking/internal/http/middleware"
	"github.com/reluxe-code/reluxe-booking/pkg/logging"
)

func TestSetupMetricsExposesBookingMetrics(t *testing.T) {
	handler, m := setupMetrics()
	if handler == nil || m == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	m.ObserveStep("service")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "reluxe_booking_step_transitions_total") {
		t.Fatalf("expected step counter to be exported")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected go runtime collector to be registered")
	}
}

func TestSetupSQSWithoutQueueReturnsNil(t *testing.T) {
	cfg := &appconfig.Config{AWSRegion: "us-east-1"}
	if client := setupSQS(context.Background(), cfg, logging.New("error")); client != nil {
		t.Fatalf("expected nil client without a tracking queue")
	}
}

func TestSetupSQSWithQueue(t *testing.T) {
	cfg := &appconfig.Config{
		AWSRegion:           "us-east-1",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "test",
		AWSEndpointOverride: "http://localhost:4566",
		TrackingQueueURL:    "http://localhost:4566/000000000000/tracking",
	}
	if client := setupSQS(context.Background(), cfg, logging.New("error")); client == nil {
		t.Fatalf("expected SQS client when a tracking queue is configured")
	}
}

func TestFlowTokenSecret(t *testing.T) {
	logger := logging.New("error")

	secret, err := flowTokenSecret(&appconfig.Config{FlowTokenSecret: " configured "}, logger)
	if err != nil || secret != "configured" {
		t.Fatalf("expected configured secret, got %q (%v)", secret, err)
	}

	first, err := flowTokenSecret(&appconfig.Config{Env: "development"}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := flowTokenSecret(&appconfig.Config{Env: "development"}, logger)
	if len(first) != 64 || first == second {
		t.Fatalf("expected distinct random secrets, got %q and %q", first, second)
	}

	if _, err := flowTokenSecret(&appconfig.Config{Env: "production"}, logger); err == nil {
		t.Fatalf("expected error without a secret in production")
	}
}

func TestSweepLimiterStopsOnCancel(t *testing.T) {
	limiter := middleware.NewRateLimiter(10, 10)
	limiter.Allow("203.0.113.9")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweepLimiter(ctx, limiter, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop")
	}
	if n := limiter.Sweep(time.Now().Add(time.Hour)); n != 0 {
		t.Fatalf("expected idle limiter to be swept already, %d left", n)
	}
}
