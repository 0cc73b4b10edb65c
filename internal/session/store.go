package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultFlowTTL = 2 * time.Hour

// ErrNotFound is returned for a flow id that is neither live nor persisted.
var ErrNotFound = errors.New("session: flow not found")

// Store persists exported flow state in Redis.
type Store struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewStore creates a Redis-backed store. Snapshots expire after ttl.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if rdb == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultFlowTTL
	}
	return &Store{
		redis:  rdb,
		ttl:    ttl,
		tracer: otel.Tracer("reluxe.internal.session.store"),
	}
}

// Save writes the snapshot and refreshes its TTL.
func (s *Store) Save(ctx context.Context, flowID string, data []byte) error {
	ctx, span := s.tracer.Start(ctx, "session.save_flow")
	defer span.End()

	if err := s.redis.Set(ctx, flowKey(flowID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: persist flow: %w", err)
	}
	return nil
}

// Load returns the snapshot or ErrNotFound.
func (s *Store) Load(ctx context.Context, flowID string) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "session.load_flow")
	defer span.End()

	data, err := s.redis.Get(ctx, flowKey(flowID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("session: load flow: %w", err)
	}
	return data, nil
}

// Delete removes the snapshot.
func (s *Store) Delete(ctx context.Context, flowID string) error {
	ctx, span := s.tracer.Start(ctx, "session.delete_flow")
	defer span.End()

	if err := s.redis.Del(ctx, flowKey(flowID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: delete flow: %w", err)
	}
	return nil
}

func flowKey(id string) string {
	return fmt.Sprintf("booking-flow:%s", id)
}
