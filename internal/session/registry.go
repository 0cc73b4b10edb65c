// Package session keeps the live booking flows of this process and their
// persisted snapshots.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reluxe-code/reluxe-booking/internal/booking"
	"github.com/reluxe-code/reluxe-booking/pkg/logging"
)

const defaultIdleTimeout = 30 * time.Minute

// Persister stores exported flow state. *Store satisfies it.
type Persister interface {
	Save(ctx context.Context, flowID string, data []byte) error
	Load(ctx context.Context, flowID string) ([]byte, error)
	Delete(ctx context.Context, flowID string) error
}

// Registry owns the live flows. A flow missing from memory is restored from
// the persister when one is configured.
type Registry struct {
	deps   booking.Deps
	store  Persister
	idle   time.Duration
	logger *logging.Logger
	now    func() time.Time

	mu    sync.Mutex
	flows map[string]*booking.Flow
}

// Option configures a Registry.
type Option func(*Registry)

// WithIdleTimeout sets how long an untouched flow stays in memory.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.idle = d
		}
	}
}

// WithClock overrides the eviction clock.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates a registry. store may be nil, in which case flows live
// only in memory.
func NewRegistry(deps booking.Deps, store Persister, logger *logging.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	r := &Registry{
		deps:   deps,
		store:  store,
		idle:   defaultIdleTimeout,
		logger: logger,
		now:    time.Now,
		flows:  map[string]*booking.Flow{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create starts a new flow, applies the deep link if any and persists it. A
// deep link that fails to apply still yields a usable flow.
func (r *Registry) Create(ctx context.Context, link booking.DeepLink) *booking.Flow {
	id := uuid.NewString()
	flow := booking.NewFlow(id, r.flowDeps())
	if !link.Empty() {
		if err := flow.ApplyDeepLink(ctx, link); err != nil {
			r.logger.Warn("deep link not applied", "flow_id", id, "error", err)
		}
	}

	r.mu.Lock()
	r.flows[id] = flow
	r.mu.Unlock()

	r.Persist(ctx, flow)
	return flow
}

// Get returns a live flow, restoring it from the persister on a miss.
func (r *Registry) Get(ctx context.Context, id string) (*booking.Flow, error) {
	r.mu.Lock()
	flow, ok := r.flows[id]
	r.mu.Unlock()
	if ok {
		return flow, nil
	}
	if r.store == nil {
		return nil, ErrNotFound
	}

	data, err := r.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	restored, err := booking.RestoreFlow(id, data, r.flowDeps())
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.flows[id]; ok {
		// lost a restore race
		restored.Close()
		return existing, nil
	}
	r.flows[id] = restored
	r.logger.Info("flow restored", "flow_id", id)
	return restored, nil
}

// Persist saves the flow's state. Failures are logged; the live flow stays
// authoritative.
func (r *Registry) Persist(ctx context.Context, flow *booking.Flow) {
	if r.store == nil || flow == nil {
		return
	}
	data, err := flow.Export()
	if err != nil {
		r.logger.Error("flow export failed", "flow_id", flow.ID(), "error", err)
		return
	}
	if err := r.store.Save(ctx, flow.ID(), data); err != nil {
		r.logger.Warn("flow persist failed", "flow_id", flow.ID(), "error", err)
	}
}

// Remove discards a flow from memory and the persister.
func (r *Registry) Remove(ctx context.Context, id string) {
	r.mu.Lock()
	flow, ok := r.flows[id]
	delete(r.flows, id)
	r.mu.Unlock()

	if ok {
		flow.Close()
	}
	if r.store != nil {
		if err := r.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			r.logger.Warn("flow delete failed", "flow_id", id, "error", err)
		}
	}
}

// EvictIdle closes and drops flows untouched for longer than the idle
// timeout. Their persisted state is kept so they can be restored later.
func (r *Registry) EvictIdle() int {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	var idle []*booking.Flow
	for id, flow := range r.flows {
		if flow.LastActive().Before(cutoff) {
			idle = append(idle, flow)
			delete(r.flows, id)
		}
	}
	r.mu.Unlock()

	for _, flow := range idle {
		flow.Close()
	}
	if len(idle) > 0 {
		r.logger.Debug("evicted idle flows", "count", len(idle))
	}
	return len(idle)
}

// Len is the number of live flows.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Run evicts idle flows every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.EvictIdle()
		}
	}
}

// Close closes every live flow.
func (r *Registry) Close() {
	r.mu.Lock()
	flows := r.flows
	r.flows = map[string]*booking.Flow{}
	r.mu.Unlock()
	for _, flow := range flows {
		flow.Close()
	}
}

func (r *Registry) flowDeps() booking.Deps {
	deps := r.deps
	next := deps.OnExit
	deps.OnExit = func(flowID string) {
		r.Remove(context.Background(), flowID)
		if next != nil {
			next(flowID)
		}
	}
	return deps
}
