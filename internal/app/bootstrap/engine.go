package bootstrap

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/reluxe-code/reluxe-booking/internal/availability"
	"github.com/reluxe-code/reluxe-booking/internal/booking"
	"github.com/reluxe-code/reluxe-booking/internal/catalog"
	"github.com/reluxe-code/reluxe-booking/internal/checkout"
	appconfig "github.com/reluxe-code/reluxe-booking/internal/config"
	"github.com/reluxe-code/reluxe-booking/internal/events"
	"github.com/reluxe-code/reluxe-booking/internal/observability/metrics"
	"github.com/reluxe-code/reluxe-booking/internal/session"
	"github.com/reluxe-code/reluxe-booking/pkg/logging"
)

// BuildCatalog returns the booking backend client, wrapped in the Redis
// menu cache when a Redis client is available.
func BuildCatalog(cfg *appconfig.Config, rdb *redis.Client, m *metrics.BookingMetrics, logger *logging.Logger) booking.Catalog {
	client := catalog.NewClient(cfg.CatalogAPIKey, cfg.CatalogBusinessID, logger,
		catalog.WithEndpoint(cfg.CatalogEndpoint),
		catalog.WithTimeout(cfg.CatalogTimeout),
		catalog.WithMetrics(m),
	)
	if rdb == nil {
		return client
	}
	return catalog.NewCachedClient(client, rdb, cfg.MenuCacheTTL, logger)
}

// BuildLocations converts configured locations for the engine.
func BuildLocations(cfg *appconfig.Config) []availability.Location {
	out := make([]availability.Location, 0, len(cfg.Locations))
	for _, loc := range cfg.Locations {
		out = append(out, availability.Location{Key: loc.Key, Label: loc.Label})
	}
	return out
}

// EngineDeps are the optional collaborators BuildDeps wires into every flow.
type EngineDeps struct {
	Catalog booking.Catalog
	Ledger  *events.CheckoutLedger
	Tracker events.Sink
	Metrics *metrics.BookingMetrics
}

// BuildDeps assembles the shared flow dependencies.
func BuildDeps(cfg *appconfig.Config, in EngineDeps, logger *logging.Logger) (booking.Deps, error) {
	if cfg == nil {
		return booking.Deps{}, fmt.Errorf("bootstrap: config is required")
	}
	if in.Catalog == nil {
		return booking.Deps{}, fmt.Errorf("bootstrap: catalog is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if len(cfg.Locations) == 0 {
		return booking.Deps{}, fmt.Errorf("bootstrap: at least one booking location is required")
	}
	directory, err := booking.LoadDirectory(cfg.DirectoryFile)
	if err != nil {
		return booking.Deps{}, fmt.Errorf("bootstrap: %w", err)
	}

	deps := booking.Deps{
		Catalog:         in.Catalog,
		Locations:       BuildLocations(cfg),
		DefaultLocation: cfg.DefaultLocation,
		Directory:       directory,
		WindowDays:      cfg.AvailabilityWindowDays,
		ResendCooldown:  cfg.ResendCooldown,
		Tracker:         in.Tracker,
		Metrics:         in.Metrics,
		Logger:          logger,
	}
	// a nil *CheckoutLedger must not become a non-nil interface
	if in.Ledger != nil {
		deps.Ledger = in.Ledger
	}
	return deps, nil
}

// BuildRegistry creates the flow registry, persisting to Redis when available.
func BuildRegistry(cfg *appconfig.Config, deps booking.Deps, rdb *redis.Client, logger *logging.Logger) *session.Registry {
	if logger == nil {
		logger = logging.Default()
	}
	var store session.Persister
	if rdb != nil {
		store = session.NewStore(rdb, cfg.FlowTTL)
	} else {
		logger.Warn("redis unavailable; booking flows are kept in memory only")
	}
	return session.NewRegistry(deps, store, logger, session.WithIdleTimeout(cfg.FlowIdleTimeout))
}

var _ checkout.Ledger = (*events.CheckoutLedger)(nil)
