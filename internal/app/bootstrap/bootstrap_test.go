package bootstrap

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/reluxe-code/reluxe-booking/internal/booking"
	"github.com/reluxe-code/reluxe-booking/internal/catalog"
	appconfig "github.com/reluxe-code/reluxe-booking/internal/config"
	"github.com/reluxe-code/reluxe-booking/internal/events"
	"github.com/reluxe-code/reluxe-booking/pkg/logging"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		Locations:              appconfig.ParseLocations("carmel:Carmel,westfield:Westfield"),
		AvailabilityWindowDays: 60,
		TrackingBuffer:         8,
	}
}

func TestBuildRedisClientDisabledWithoutAddr(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}
}

func TestBuildRedisClientVerifiesPing(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr()}

	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	defer client.Close()

	mr.Close()
	if client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildPostgresPoolEmptyURLReturnsNil(t *testing.T) {
	if pool := BuildPostgresPool(context.Background(), "  ", logging.New("error")); pool != nil {
		t.Fatalf("expected nil pool for empty URL")
	}
}

func TestBuildCatalogWrapsCacheWhenRedisAvailable(t *testing.T) {
	cfg := testConfig()
	if _, ok := BuildCatalog(cfg, nil, nil, nil).(*catalog.Client); !ok {
		t.Fatalf("expected plain client without redis")
	}

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, nil, false)
	defer client.Close()
	if _, ok := BuildCatalog(cfg, client, nil, nil).(*catalog.CachedClient); !ok {
		t.Fatalf("expected cached client with redis")
	}
}

func TestBuildDepsRequiresCatalogAndLocations(t *testing.T) {
	cfg := testConfig()
	if _, err := BuildDeps(nil, EngineDeps{}, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, err := BuildDeps(cfg, EngineDeps{}, nil); err == nil {
		t.Fatalf("expected error without catalog")
	}
	cat := BuildCatalog(cfg, nil, nil, nil)
	if _, err := BuildDeps(&appconfig.Config{}, EngineDeps{Catalog: cat}, nil); err == nil {
		t.Fatalf("expected error without locations")
	}
	bad := testConfig()
	bad.DirectoryFile = "/nonexistent/directory.json"
	if _, err := BuildDeps(bad, EngineDeps{Catalog: cat}, nil); err == nil {
		t.Fatalf("expected error for missing directory file")
	}
}

func TestBuildDepsLeavesLedgerUnsetWithoutDatabase(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultLocation = "westfield"
	deps, err := BuildDeps(cfg, EngineDeps{Catalog: BuildCatalog(cfg, nil, nil, nil)}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deps.Ledger != nil {
		t.Fatalf("expected nil ledger interface, got %#v", deps.Ledger)
	}
	if len(deps.Locations) != 2 || deps.Locations[1].Label != "Westfield" {
		t.Fatalf("unexpected locations: %+v", deps.Locations)
	}
	if deps.DefaultLocation != "westfield" || deps.Directory == nil {
		t.Fatalf("unexpected deps: %+v", deps)
	}
}

func TestBuildRegistryPersistsToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, nil, false)
	defer client.Close()

	deps, err := BuildDeps(cfg, EngineDeps{Catalog: BuildCatalog(cfg, nil, nil, nil)}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	registry := BuildRegistry(cfg, deps, client, logging.New("error"))
	defer registry.Close()

	flow := registry.Create(context.Background(), booking.DeepLink{})
	if !mr.Exists("booking-flow:" + flow.ID()) {
		t.Fatalf("expected flow snapshot in redis, keys=%v", mr.Keys())
	}
}

func TestBuildTrackingFallsBackToLog(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter("info", &buf)

	tracking := BuildTracking(testConfig(), nil, nil, nil, logger)
	if tracking.Delivers() {
		t.Fatalf("expected no delivery without a database")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tracking.Run(ctx)

	tracking.Sink.Track(context.Background(), events.New("ServiceSelected", "flow-1", map[string]any{"service": "Signature Facial"}))
	tracking.Close()

	if !strings.Contains(buf.String(), "ServiceSelected") {
		t.Fatalf("expected event to be logged, got %s", buf.String())
	}
}
