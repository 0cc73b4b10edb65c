package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/reluxe-code/reluxe-booking/pkg/logging"
)

const defaultCacheTTL = 5 * time.Minute

// CachedClient serves menu and option lookups from Redis. Availability,
// cart and checkout calls always go to the backend.
type CachedClient struct {
	*Client
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
	logger *logging.Logger
}

// NewCachedClient wraps client with a Redis read-through cache.
func NewCachedClient(client *Client, rdb *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedClient {
	if client == nil {
		panic("catalog: client cannot be nil")
	}
	if rdb == nil {
		panic("catalog: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedClient{
		Client: client,
		redis:  rdb,
		ttl:    ttl,
		tracer: otel.Tracer("reluxe.internal.catalog.cache"),
		logger: logger,
	}
}

// GetMenu returns the cached menu or fetches and caches it.
func (c *CachedClient) GetMenu(ctx context.Context, locationKey, staffProviderID string) (*Menu, error) {
	key := fmt.Sprintf("catalog:menu:%s:%s:%s", c.businessID, locationKey, staffProviderID)
	var menu Menu
	if c.load(ctx, key, &menu) {
		return &menu, nil
	}
	fresh, err := c.Client.GetMenu(ctx, locationKey, staffProviderID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, fresh)
	return fresh, nil
}

// GetServiceOptions returns cached option groups or fetches and caches them.
func (c *CachedClient) GetServiceOptions(ctx context.Context, locationKey, serviceItemID, staffProviderID string) (*ServiceOptions, error) {
	key := fmt.Sprintf("catalog:options:%s:%s:%s:%s", c.businessID, locationKey, serviceItemID, staffProviderID)
	var opts ServiceOptions
	if c.load(ctx, key, &opts) {
		return &opts, nil
	}
	fresh, err := c.Client.GetServiceOptions(ctx, locationKey, serviceItemID, staffProviderID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, fresh)
	return fresh, nil
}

// load reports a hit. Cache failures are logged and treated as misses.
func (c *CachedClient) load(ctx context.Context, key string, dst any) bool {
	ctx, span := c.tracer.Start(ctx, "catalog.cache_get")
	defer span.End()

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			span.RecordError(err)
			c.logger.Warn("catalog cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		span.RecordError(err)
		c.logger.Warn("catalog cache entry undecodable", "key", key, "error", err)
		return false
	}
	return true
}

func (c *CachedClient) store(ctx context.Context, key string, v any) {
	ctx, span := c.tracer.Start(ctx, "catalog.cache_set")
	defer span.End()

	data, err := json.Marshal(v)
	if err != nil {
		span.RecordError(err)
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		span.RecordError(err)
		c.logger.Warn("catalog cache write failed", "key", key, "error", err)
	}
}
