package booking

import (
	"context"
	"sync"
	"time"

	"github.com/reluxe-code/reluxe-booking/internal/availability"
	"github.com/reluxe-code/reluxe-booking/internal/catalog"
	"github.com/reluxe-code/reluxe-booking/internal/events"
)

func cents(v int) *int { return &v }

func testMenu() *catalog.Menu {
	return &catalog.Menu{Categories: []catalog.MenuCategory{
		{ID: "facials", Name: "Facials", Items: []catalog.MenuItem{
			{ID: "svc-facial", Name: "Signature Facial", PriceCents: cents(15000), DurationMinutes: 60},
			{ID: "svc-hydra", Name: "HydraFacial", PriceCents: cents(20000), DurationMinutes: 60},
			{ID: "svc-derm", Name: "Dermaplane", PriceCents: cents(5000), DurationMinutes: 15},
		}},
		{ID: "injectables", Name: "Injectables", Items: []catalog.MenuItem{
			{ID: "svc-tox", Name: "Tox Consult", PriceCents: cents(0), DurationMinutes: 30},
			{ID: "svc-lip", Name: "Lip Flip", PriceCents: cents(10000), DurationMinutes: 15},
		}},
		{ID: "wellness", Name: "Wellness", Items: []catalog.MenuItem{
			{ID: "svc-led", Name: "LED Therapy", PriceCents: cents(4000), DurationMinutes: 20},
		}},
	}}
}

func testOptions() map[string]*catalog.ServiceOptions {
	return map[string]*catalog.ServiceOptions{
		"svc-tox": {DurationMinutes: 30, OptionGroups: []catalog.OptionGroup{{
			ID: "area", Name: "Treatment Area", MinSelections: 1, MaxSelections: 1,
			Options: []catalog.Option{
				{ID: "forehead", Name: "Forehead"},
				{ID: "crows", Name: "Crow's Feet", PriceDelta: 5000, DurationDelta: 10},
			},
		}}},
		"svc-led": {DurationMinutes: 20, OptionGroups: []catalog.OptionGroup{{
			ID: "boost", Name: "Boost", MinSelections: 1, MaxSelections: 2,
			Options: []catalog.Option{
				{ID: "neck", Name: "Neck", PriceDelta: 2000, DurationDelta: 10},
				{ID: "hands", Name: "Hands", PriceDelta: 2000, DurationDelta: 5},
				{ID: "chest", Name: "Chest", PriceDelta: 3000, DurationDelta: 10},
			},
		}}},
		"svc-facial": {DurationMinutes: 60, OptionGroups: []catalog.OptionGroup{{ID: "empty", Name: "Nothing"}}},
	}
}

type fakeCatalog struct {
	mu sync.Mutex

	menu       *catalog.Menu
	menuErr    error
	menuCalls  int
	options    map[string]*catalog.ServiceOptions
	optionsErr error
	// optionGates blocks GetServiceOptions for an item until closed.
	optionGates map[string]chan struct{}
	optionCalls []string

	dates        map[string][]string
	datesErr     error
	datesGate    chan struct{}
	datesEntered chan struct{}
	datesReqs    []catalog.DatesRequest
	times        map[string][]catalog.TimeSlot

	cartErr   error
	cartHold  time.Duration
	cartReqs  []catalog.CartRequest
	now       func() time.Time
	checkouts []catalog.CheckoutInput
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		menu:     testMenu(),
		options:  testOptions(),
		dates:    map[string][]string{"carmel": {"2025-03-14", "2025-03-15"}, "westfield": {"2025-03-15", "2025-03-16"}},
		times:    map[string][]catalog.TimeSlot{},
		cartHold: 10 * time.Minute,
		now:      time.Now,
	}
}

func (c *fakeCatalog) GetMenu(context.Context, string, string) (*catalog.Menu, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.menuCalls++
	if c.menuErr != nil {
		return nil, c.menuErr
	}
	return c.menu, nil
}

func (c *fakeCatalog) GetServiceOptions(_ context.Context, _ string, itemID, _ string) (*catalog.ServiceOptions, error) {
	c.mu.Lock()
	c.optionCalls = append(c.optionCalls, itemID)
	gate := c.optionGates[itemID]
	err := c.optionsErr
	opts := c.options[itemID]
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if opts == nil {
		return &catalog.ServiceOptions{}, nil
	}
	return opts, nil
}

func (c *fakeCatalog) GetAvailableDates(_ context.Context, req catalog.DatesRequest) ([]string, error) {
	c.mu.Lock()
	c.datesReqs = append(c.datesReqs, req)
	gate, entered := c.datesGate, c.datesEntered
	err := c.datesErr
	dates := c.dates[req.LocationKey]
	c.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return dates, err
}

func (c *fakeCatalog) GetAvailableTimes(_ context.Context, req catalog.TimesRequest) ([]catalog.TimeSlot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.times[req.LocationKey], nil
}

func (c *fakeCatalog) CreateCart(_ context.Context, req catalog.CartRequest) (*catalog.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cartReqs = append(c.cartReqs, req)
	if c.cartErr != nil {
		return nil, c.cartErr
	}
	return &catalog.Cart{
		ID:        "cart-" + req.StartTime.Format("1504"),
		ExpiresAt: c.now().Add(c.cartHold),
		Summary:   catalog.CartSummary{Description: req.ServiceItemID},
	}, nil
}

func (c *fakeCatalog) SendVerificationCode(context.Context, string, string) (*catalog.CodeChallenge, error) {
	return &catalog.CodeChallenge{CodeID: "abc"}, nil
}

func (c *fakeCatalog) VerifyCode(context.Context, catalog.VerifyRequest) (*catalog.VerifyResult, error) {
	return &catalog.VerifyResult{}, nil
}

func (c *fakeCatalog) Checkout(_ context.Context, _ string, in catalog.CheckoutInput) (*catalog.CheckoutResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkouts = append(c.checkouts, in)
	return &catalog.CheckoutResult{Outcome: catalog.CheckoutSucceeded, Confirmation: &catalog.Confirmation{BookingID: "bk-1", Status: "confirmed"}}, nil
}

var testLocations = []availability.Location{{Key: "carmel", Label: "Carmel"}, {Key: "westfield", Label: "Westfield"}}

type trackedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (t *trackedEvents) Track(_ context.Context, evt events.Event) {
	t.mu.Lock()
	t.events = append(t.events, evt)
	t.mu.Unlock()
}

func (t *trackedEvents) names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.events))
	for _, e := range t.events {
		out = append(out, e.Name)
	}
	return out
}

type flowFixture struct {
	catalog *fakeCatalog
	tracker *trackedEvents
	now     time.Time
	exits   int
	flow    *Flow
}

func newFixture(defaultLocation string) *flowFixture {
	fx := &flowFixture{
		catalog: newFakeCatalog(),
		tracker: &trackedEvents{},
		now:     time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC),
	}
	fx.catalog.now = fx.clock
	fx.flow = NewFlow("flow-1", fx.deps(defaultLocation))
	return fx
}

func (fx *flowFixture) clock() time.Time { return fx.now }

func (fx *flowFixture) deps(defaultLocation string) Deps {
	return Deps{
		Catalog:         fx.catalog,
		Locations:       testLocations,
		DefaultLocation: defaultLocation,
		Directory:       DefaultDirectory(),
		Tracker:         fx.tracker,
		Now:             fx.clock,
		OnExit:          func(string) { fx.exits++ },
	}
}

func slotAt(id string, hour int) catalog.TimeSlot {
	return catalog.TimeSlot{ID: id, StartTime: time.Date(2025, 3, 14, hour, 0, 0, 0, time.UTC)}
}
