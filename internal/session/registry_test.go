package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reluxe-code/reluxe-booking/internal/availability"
	"github.com/reluxe-code/reluxe-booking/internal/booking"
	"github.com/reluxe-code/reluxe-booking/internal/catalog"
)

type stubCatalog struct{}

func (stubCatalog) GetMenu(context.Context, string, string) (*catalog.Menu, error) {
	price := 15000
	return &catalog.Menu{Categories: []catalog.MenuCategory{{ID: "facials", Name: "Facials", Items: []catalog.MenuItem{
		{ID: "svc-facial", Name: "Signature Facial", PriceCents: &price, DurationMinutes: 60},
	}}}}, nil
}

func (stubCatalog) GetServiceOptions(context.Context, string, string, string) (*catalog.ServiceOptions, error) {
	return &catalog.ServiceOptions{}, nil
}

func (stubCatalog) GetAvailableDates(context.Context, catalog.DatesRequest) ([]string, error) {
	return []string{"2025-03-14"}, nil
}

func (stubCatalog) GetAvailableTimes(context.Context, catalog.TimesRequest) ([]catalog.TimeSlot, error) {
	return nil, nil
}

func (stubCatalog) CreateCart(context.Context, catalog.CartRequest) (*catalog.Cart, error) {
	return &catalog.Cart{ID: "cart-1", ExpiresAt: time.Now().Add(10 * time.Minute)}, nil
}

func (stubCatalog) SendVerificationCode(context.Context, string, string) (*catalog.CodeChallenge, error) {
	return &catalog.CodeChallenge{CodeID: "c"}, nil
}

func (stubCatalog) VerifyCode(context.Context, catalog.VerifyRequest) (*catalog.VerifyResult, error) {
	return &catalog.VerifyResult{}, nil
}

func (stubCatalog) Checkout(context.Context, string, catalog.CheckoutInput) (*catalog.CheckoutResult, error) {
	return &catalog.CheckoutResult{Outcome: catalog.CheckoutSucceeded, Confirmation: &catalog.Confirmation{BookingID: "bk"}}, nil
}

func testDeps() booking.Deps {
	return booking.Deps{
		Catalog:         stubCatalog{},
		Locations:       []availability.Location{{Key: "carmel", Label: "Carmel"}},
		DefaultLocation: "carmel",
		Directory:       booking.DefaultDirectory(),
	}
}

type memoryPersister struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memoryPersister) Save(_ context.Context, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[id] = data
	return nil
}

func (m *memoryPersister) Load(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (m *memoryPersister) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func TestRegistryCreateAndGet(t *testing.T) {
	store := &memoryPersister{}
	reg := NewRegistry(testDeps(), store, nil)
	ctx := context.Background()

	flow := reg.Create(ctx, booking.DeepLink{})
	require.NotEmpty(t, flow.ID())
	assert.Equal(t, 1, reg.Len())

	got, err := reg.Get(ctx, flow.ID())
	require.NoError(t, err)
	assert.Same(t, flow, got)

	_, err = reg.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryCreateAppliesDeepLink(t *testing.T) {
	reg := NewRegistry(testDeps(), nil, nil)
	flow := reg.Create(context.Background(), booking.DeepLink{Service: "signature-facial", Date: "2025-03-20"})

	snap := flow.Snapshot()
	assert.Equal(t, booking.StepDateTime, snap.Step)
	assert.Equal(t, "2025-03-20", snap.State.Date)
}

func TestRegistryRestoresEvictedFlow(t *testing.T) {
	store := &memoryPersister{}
	now := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	deps := testDeps()
	deps.Now = clock
	reg := NewRegistry(deps, store, nil, WithIdleTimeout(time.Minute), WithClock(clock))
	ctx := context.Background()

	flow := reg.Create(ctx, booking.DeepLink{})
	require.NoError(t, flow.SelectService(ctx, "svc-facial"))
	reg.Persist(ctx, flow)

	assert.Zero(t, reg.EvictIdle())
	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	assert.Equal(t, 1, reg.EvictIdle())
	assert.Zero(t, reg.Len())

	restored, err := reg.Get(ctx, flow.ID())
	require.NoError(t, err)
	assert.NotSame(t, flow, restored)
	snap := restored.Snapshot()
	assert.Equal(t, "svc-facial", snap.State.Service.ID)
	assert.Equal(t, booking.StepDateTime, snap.Step)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryExitRemovesFlow(t *testing.T) {
	store := &memoryPersister{}
	exited := ""
	deps := testDeps()
	deps.OnExit = func(id string) { exited = id }
	reg := NewRegistry(deps, store, nil)
	ctx := context.Background()

	flow := reg.Create(ctx, booking.DeepLink{})
	assert.True(t, flow.Back())
	assert.Equal(t, flow.ID(), exited)
	assert.Zero(t, reg.Len())

	_, err := reg.Get(ctx, flow.ID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryWithRedisStore(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	reg := NewRegistry(testDeps(), store, nil)
	ctx := context.Background()

	flow := reg.Create(ctx, booking.DeepLink{})
	require.NoError(t, flow.SelectService(ctx, "svc-facial"))
	reg.Persist(ctx, flow)
	assert.True(t, mr.Exists("booking-flow:"+flow.ID()))

	reg.Close()
	assert.Zero(t, reg.Len())
	restored, err := reg.Get(ctx, flow.ID())
	require.NoError(t, err)
	assert.Equal(t, "svc-facial", restored.Snapshot().State.Service.ID)

	reg.Remove(ctx, flow.ID())
	assert.False(t, mr.Exists("booking-flow:"+flow.ID()))
}

func TestRegistryRunStops(t *testing.T) {
	reg := NewRegistry(testDeps(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
