// Package booking is the booking orchestration engine: the selection state,
// the derived step graph, add-on composition and the Flow that drives them
// against the catalog.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/reluxe-code/reluxe-booking/internal/availability"
	"github.com/reluxe-code/reluxe-booking/internal/catalog"
	"github.com/reluxe-code/reluxe-booking/internal/checkout"
	"github.com/reluxe-code/reluxe-booking/internal/events"
	"github.com/reluxe-code/reluxe-booking/internal/observability/metrics"
	"github.com/reluxe-code/reluxe-booking/pkg/logging"
)

const (
	msgSlotTaken  = "That time was just booked. Please choose another time."
	msgHoldFailed = "We couldn't hold that time. Please try again."
	msgCartExpire = "Your reservation expired. Please choose a new time."

	defaultWindowDays = 60
)

// Catalog is everything a flow needs from the booking backend.
type Catalog interface {
	availability.Source
	checkout.Backend
	GetMenu(ctx context.Context, locationKey, staffProviderID string) (*catalog.Menu, error)
	GetServiceOptions(ctx context.Context, locationKey, serviceItemID, staffProviderID string) (*catalog.ServiceOptions, error)
	CreateCart(ctx context.Context, req catalog.CartRequest) (*catalog.Cart, error)
}

// Deps are the collaborators shared by every flow.
type Deps struct {
	Catalog         Catalog
	Locations       []availability.Location
	DefaultLocation string
	Directory       *Directory
	WindowDays      int
	ResendCooldown  time.Duration
	Ledger          checkout.Ledger
	Tracker         events.Sink
	Metrics         *metrics.BookingMetrics
	Logger          *logging.Logger
	Now             func() time.Time
	// OnExit is called when Back is pressed on the first step.
	OnExit func(flowID string)
}

// Flow is one visitor's booking session. Methods are safe for concurrent
// use. Network calls run without the lock and their results are applied
// only if no newer request has started since.
type Flow struct {
	id     string
	deps   Deps
	agg    *availability.Aggregator
	logger *logging.Logger

	mu         sync.Mutex
	state      *State
	menus      map[string]*catalog.Menu
	session    *checkout.Session
	stopTicker context.CancelFunc
	lastActive time.Time

	optionsFence availability.Fence
	datesFence   availability.Fence
	timesFence   availability.Fence
	cartFence    availability.Fence
}

// NewFlow starts a flow at the service step.
func NewFlow(id string, deps Deps) *Flow {
	deps = withDefaults(deps)
	f := newFlow(id, deps)
	f.state = NewState(deps.DefaultLocation)
	return f
}

// RestoreFlow rebuilds a flow from an exported state. A cart whose hold has
// lapsed is dropped and the flow lands on the date/time step.
func RestoreFlow(id string, data []byte, deps Deps) (*Flow, error) {
	deps = withDefaults(deps)
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("booking: decode state: %w", err)
	}
	f := newFlow(id, deps)
	f.state = &st

	switch {
	case st.Cart != nil && st.Cart.Expired(deps.Now()):
		st.DropCart(msgCartExpire)
		st.Times = nil
		st.Step = StepDateTime
		deps.Metrics.ObserveCartExpired()
	case st.Cart != nil && st.Time != nil && st.Confirmation == nil:
		f.startSession(*st.Cart, *st.Time)
		st.Step = StepCheckout
	case st.Cart == nil && st.Step == StepCheckout:
		st.Step = StepDateTime
	}
	return f, nil
}

func withDefaults(deps Deps) Deps {
	if deps.Catalog == nil {
		panic("booking: catalog cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Tracker == nil {
		deps.Tracker = events.NopSink{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.WindowDays <= 0 {
		deps.WindowDays = defaultWindowDays
	}
	return deps
}

func newFlow(id string, deps Deps) *Flow {
	logger := deps.Logger.With("flow_id", id)
	return &Flow{
		id:         id,
		deps:       deps,
		agg:        availability.NewAggregator(deps.Catalog, deps.Locations, logger),
		logger:     logger,
		menus:      map[string]*catalog.Menu{},
		lastActive: deps.Now(),
	}
}

// ID returns the flow id.
func (f *Flow) ID() string { return f.id }

// LastActive is when the flow was last used.
func (f *Flow) LastActive() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastActive
}

func (f *Flow) lock() {
	f.mu.Lock()
	f.lastActive = f.deps.Now()
}

// Export serializes the selection state for persistence.
func (f *Flow) Export() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := json.Marshal(f.state)
	if err != nil {
		return nil, fmt.Errorf("booking: encode state: %w", err)
	}
	return data, nil
}

// Close stops the checkout countdown, if any.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeSessionLocked()
}

// Menu returns the service menu for the flow's location and provider. A
// failed lookup yields an empty menu.
func (f *Flow) Menu(ctx context.Context) *catalog.Menu {
	f.lock()
	loc := f.catalogLocationLocked()
	provider := f.state.ProviderID
	key := loc + "|" + provider
	if m, ok := f.menus[key]; ok {
		f.mu.Unlock()
		return m
	}
	f.mu.Unlock()

	menu, err := f.deps.Catalog.GetMenu(ctx, loc, provider)
	if err != nil {
		f.logger.Warn("menu lookup failed", "location", loc, "error", err)
		return &catalog.Menu{}
	}
	f.mu.Lock()
	f.menus[key] = menu
	f.mu.Unlock()
	return menu
}

// SelectService picks a catalog item as the primary service.
func (f *Flow) SelectService(ctx context.Context, serviceID string) error {
	item, cat, ok := findServiceRef(f.Menu(ctx), serviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, serviceID)
	}
	sel := selectionFromItem(item, cat, SourceCatalogItem)
	return f.applySelection(ctx, sel, func(s *State) {
		if s.PendingCategory != cat.ID {
			s.PendingCategory = ""
		}
		s.Bundle = nil
		s.Specialty = ""
	})
}

// SelectCategory picks a menu category. A single-item category selects its
// item; otherwise the flow asks for a sub-choice.
func (f *Flow) SelectCategory(ctx context.Context, categoryID string) error {
	menu := f.Menu(ctx)
	cat, ok := menu.FindCategory(categoryID)
	if !ok || len(cat.Items) == 0 {
		return fmt.Errorf("%w: category %s", ErrUnknownService, categoryID)
	}
	if len(cat.Items) == 1 {
		return f.SelectService(ctx, cat.Items[0].ID)
	}
	f.lock()
	defer f.mu.Unlock()
	f.state.PendingCategory = cat.ID
	f.state.Bundle = nil
	f.state.Specialty = ""
	f.setStepLocked(StepMenuItem)
	return nil
}

// SelectSpecialty picks the catalog item a specialty maps to.
func (f *Flow) SelectSpecialty(ctx context.Context, slug string) error {
	sp, ok := f.deps.Directory.Specialty(slug)
	if !ok {
		return fmt.Errorf("%w: specialty %s", ErrUnknownService, slug)
	}
	item, cat, ok := f.Menu(ctx).FindItemByName(sp.ServiceName)
	if !ok {
		return fmt.Errorf("%w: specialty %s has no catalog item", ErrUnknownService, slug)
	}
	sel := selectionFromItem(item, cat, SourceSpecialty)
	sel.Slug = sp.Slug
	return f.applySelection(ctx, sel, func(s *State) {
		s.Specialty = sp.Slug
		s.Bundle = nil
		s.PendingCategory = ""
	})
}

// SelectBundle activates a bundle; the visitor then picks one of its items.
func (f *Flow) SelectBundle(slug string) error {
	b, ok := f.deps.Directory.Bundle(slug)
	if !ok {
		return fmt.Errorf("%w: bundle %s", ErrUnknownService, slug)
	}
	f.lock()
	defer f.mu.Unlock()
	f.state.Bundle = &b
	f.state.PendingCategory = ""
	f.state.Specialty = ""
	f.setStepLocked(StepBundleItem)
	return nil
}

// PickBundleItem selects one item of the active bundle as the primary service.
func (f *Flow) PickBundleItem(ctx context.Context, itemSlug string) error {
	f.lock()
	bundle := f.state.Bundle
	f.mu.Unlock()
	if bundle == nil {
		return fmt.Errorf("%w: no bundle active", ErrUnknownStep)
	}
	it, ok := bundle.Item(itemSlug)
	if !ok {
		return fmt.Errorf("%w: bundle item %s", ErrUnknownService, itemSlug)
	}
	item, cat, ok := f.Menu(ctx).FindItemByName(it.ServiceName)
	if !ok {
		return fmt.Errorf("%w: bundle item %s has no catalog item", ErrUnknownService, itemSlug)
	}
	sel := selectionFromItem(item, cat, SourceBundle)
	sel.Slug = it.Slug
	return f.applySelection(ctx, sel, func(s *State) {
		s.PendingCategory = ""
		s.Specialty = ""
	})
}

// selectionStep is the step a primary selection is made on.
func selectionStep(s *State) string {
	switch {
	case s.Bundle != nil:
		return StepBundleItem
	case s.PendingCategory != "":
		return StepMenuItem
	default:
		return StepService
	}
}

func selectionFromItem(item catalog.MenuItem, cat catalog.MenuCategory, source SelectionSource) ServiceSelection {
	return ServiceSelection{
		ID:              item.ID,
		Name:            item.Name,
		CategoryName:    cat.Name,
		Source:          source,
		PriceCents:      item.PriceCents,
		DurationMinutes: item.DurationMinutes,
	}
}

func (f *Flow) applySelection(ctx context.Context, sel ServiceSelection, mutate func(*State)) error {
	f.lock()
	mutate(f.state)
	f.state.SelectService(sel)
	f.invalidateAvailabilityLocked()
	f.closeSessionLocked()
	ticket := f.optionsFence.Begin(sel.ID)
	location := f.state.Location
	f.setStepLocked(selectionStep(f.state))
	f.mu.Unlock()

	f.deps.Tracker.Track(ctx, events.New(events.ServiceSelected, f.id, map[string]any{
		"service_id":   sel.ID,
		"service_name": sel.Name,
		"source":       string(sel.Source),
		"location":     location,
	}))
	return f.advance(ctx, ticket)
}

// advance loads the primary service's options and lands on the options step
// or skips to date/time. It does nothing until a location is known. A failed
// or empty lookup counts as no options.
func (f *Flow) advance(ctx context.Context, ticket availability.Ticket) error {
	f.mu.Lock()
	if f.state.Service == nil || f.state.Location == "" {
		f.mu.Unlock()
		return nil
	}
	loc := f.catalogLocationLocked()
	itemID := f.state.Service.ID
	provider := f.state.ProviderID
	f.mu.Unlock()

	opts, err := f.deps.Catalog.GetServiceOptions(ctx, loc, itemID, provider)
	if err != nil {
		f.logger.Warn("options lookup failed, continuing without options", "service_item_id", itemID, "error", err)
		opts = nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.optionsFence.Valid(ticket) || f.state.Service == nil || f.state.Service.ID != itemID {
		f.logger.Debug("discarding stale options result", "service_item_id", itemID)
		return nil
	}
	f.state.ApplyServiceOptions(opts)
	if f.state.HasOptions() {
		f.setStepLocked(StepOptions)
	} else {
		f.setStepLocked(StepDateTime)
	}
	return nil
}

// SelectLocation sets a concrete location key or availability.AnyLocation.
func (f *Flow) SelectLocation(ctx context.Context, key string) error {
	if !f.knownLocation(key) {
		return fmt.Errorf("%w: %s", ErrUnknownLocation, key)
	}
	f.lock()
	if f.state.Location == key {
		f.mu.Unlock()
		return nil
	}
	f.state.SelectLocation(key)
	f.invalidateAvailabilityLocked()
	needsOptions := f.state.Service != nil && !f.state.OptionsLoaded
	var ticket availability.Ticket
	if needsOptions {
		ticket = f.optionsFence.Begin(f.state.Service.ID)
	}
	f.settleStepLocked()
	f.mu.Unlock()

	if needsOptions {
		return f.advance(ctx, ticket)
	}
	return nil
}

func (f *Flow) knownLocation(key string) bool {
	if key == availability.AnyLocation {
		return len(f.deps.Locations) > 0
	}
	for _, l := range f.deps.Locations {
		if l.Key == key {
			return true
		}
	}
	return false
}

// SelectProvider restricts availability to one provider; empty clears it.
func (f *Flow) SelectProvider(ctx context.Context, providerID string) {
	f.lock()
	if f.state.ProviderID == providerID {
		f.mu.Unlock()
		return
	}
	f.state.SelectProvider(providerID)
	f.invalidateAvailabilityLocked()
	f.settleStepLocked()
	f.mu.Unlock()

	f.deps.Tracker.Track(ctx, events.New(events.ProviderSelected, f.id, map[string]any{"provider_id": providerID}))
}

// ToggleOption toggles one option of the primary service.
func (f *Flow) ToggleOption(groupID, optionID string) error {
	f.lock()
	defer f.mu.Unlock()
	if f.state.Service == nil {
		return ErrNoService
	}
	changed, err := f.state.ToggleOption(groupID, optionID)
	if err != nil {
		return err
	}
	if changed {
		f.invalidateAvailabilityLocked()
		f.settleStepLocked()
	}
	return nil
}

// CompatibleAddons lists candidate add-ons for the current primary service.
func (f *Flow) CompatibleAddons(ctx context.Context) (AddonChoices, error) {
	menu := f.Menu(ctx)
	f.lock()
	defer f.mu.Unlock()
	if f.state.Service == nil {
		return AddonChoices{}, ErrNoService
	}
	return CompatibleAddons(f.state, f.deps.Directory, menu), nil
}

// AddAddon attaches a compatible add-on after loading its options. A failed
// options lookup attaches it without options.
func (f *Flow) AddAddon(ctx context.Context, ref AddonRef) error {
	menu := f.Menu(ctx)

	f.lock()
	if f.state.Service == nil {
		f.mu.Unlock()
		return ErrNoService
	}
	if f.state.duplicatesSelection(ref.Slug, ref.CatalogID, ref.ServiceItemID) {
		f.mu.Unlock()
		return ErrDuplicateAddon
	}
	primaryID := f.state.Service.ID
	choices := CompatibleAddons(f.state, f.deps.Directory, menu)
	cand, item, ok := findAddonCandidate(choices, menu, ref)
	if !ok {
		f.mu.Unlock()
		return fmt.Errorf("%w: %+v", ErrUnknownAddon, ref)
	}
	if f.state.duplicatesSelection(cand.Slug, cand.CatalogID, cand.ServiceItemID) {
		f.mu.Unlock()
		return ErrDuplicateAddon
	}
	loc := f.catalogLocationLocked()
	provider := f.state.ProviderID
	f.mu.Unlock()

	opts, err := f.deps.Catalog.GetServiceOptions(ctx, loc, cand.ServiceItemID, provider)
	if err != nil {
		f.logger.Warn("add-on options lookup failed, adding without options", "service_item_id", cand.ServiceItemID, "error", err)
		opts = nil
	}
	addon := AddonService{
		Slug:            cand.Slug,
		CatalogID:       cand.CatalogID,
		Title:           cand.Title,
		ServiceItemID:   cand.ServiceItemID,
		PriceCents:      item.PriceCents,
		DurationMinutes: item.DurationMinutes,
	}
	if opts != nil {
		if opts.DurationMinutes > 0 {
			addon.DurationMinutes = opts.DurationMinutes
		}
		addon.OptionGroups = opts.OptionGroups
		addon.HasOptions = opts.HasOptions()
	}
	addon.OptionsConfigured = !addon.HasOptions

	f.lock()
	defer f.mu.Unlock()
	if f.state.Service == nil || f.state.Service.ID != primaryID {
		return ErrSuperseded
	}
	if err := f.state.AddAddon(addon); err != nil {
		return err
	}
	f.invalidateAvailabilityLocked()
	if addon.HasOptions {
		f.setStepLocked(AddonOptionsStep(addon.Key()))
	}
	f.settleStepLocked()
	return nil
}

// SelectAddonCategory browses a menu category for an add-on. A single-item
// category adds its item directly.
func (f *Flow) SelectAddonCategory(ctx context.Context, categoryID string) error {
	cat, ok := f.Menu(ctx).FindCategory(categoryID)
	if !ok || len(cat.Items) == 0 {
		return fmt.Errorf("%w: category %s", ErrUnknownAddon, categoryID)
	}
	if len(cat.Items) == 1 {
		return f.AddAddon(ctx, AddonRef{ServiceItemID: cat.Items[0].ID})
	}
	f.lock()
	defer f.mu.Unlock()
	if f.state.Service == nil {
		return ErrNoService
	}
	f.state.PendingAddonCategory = cat.ID
	f.setStepLocked(StepAddonMenuItem)
	return nil
}

// RemoveAddon detaches an add-on.
func (f *Flow) RemoveAddon(key string) error {
	f.lock()
	defer f.mu.Unlock()
	if err := f.state.RemoveAddon(key); err != nil {
		return err
	}
	f.invalidateAvailabilityLocked()
	f.settleStepLocked()
	return nil
}

// ToggleAddonOption toggles one option of an add-on.
func (f *Flow) ToggleAddonOption(key, groupID, optionID string) error {
	f.lock()
	defer f.mu.Unlock()
	changed, err := f.state.ToggleAddonOption(key, groupID, optionID)
	if err != nil {
		return err
	}
	if changed {
		f.invalidateAvailabilityLocked()
		f.settleStepLocked()
	}
	return nil
}

// Continue validates the current step and advances.
func (f *Flow) Continue() error {
	f.lock()
	defer f.mu.Unlock()
	if err := f.state.Continue(); err != nil {
		return err
	}
	f.deps.Metrics.ObserveStep(f.state.Step)
	return nil
}

// Back steps backwards. On the first step it invokes the exit callback and
// reports true.
func (f *Flow) Back() bool {
	f.lock()
	leaving := f.state.Step
	exit := f.state.Back()
	if !exit {
		if leaving == StepCheckout || leaving == StepDateTime {
			f.closeSessionLocked()
			f.invalidateAvailabilityLocked()
		}
		f.deps.Metrics.ObserveStep(f.state.Step)
	}
	f.mu.Unlock()

	if exit && f.deps.OnExit != nil {
		f.deps.OnExit(f.id)
	}
	return exit
}

// Dates loads bookable dates for the current selection. A lookup failure
// yields no dates. The first date is chosen automatically only when no date
// was picked yet, so user and deep-linked dates are never overridden.
func (f *Flow) Dates(ctx context.Context) (*availability.Dates, error) {
	f.lock()
	if f.state.Service == nil {
		f.mu.Unlock()
		return nil, ErrNoService
	}
	if f.state.Location == "" {
		f.mu.Unlock()
		return nil, ErrNoLocation
	}
	start := f.deps.Now()
	q := availability.DatesQuery{
		Query:     f.queryLocked(),
		StartDate: start.Format(catalog.DateLayout),
		EndDate:   start.AddDate(0, 0, f.deps.WindowDays).Format(catalog.DateLayout),
	}
	ticket := f.datesFence.Begin(q.Key())
	f.mu.Unlock()

	dates, err := f.agg.FetchDates(ctx, q)
	if err != nil {
		f.logger.Warn("dates lookup failed", "error", err)
		dates = &availability.Dates{}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.datesFence.Valid(ticket) {
		return nil, ErrSuperseded
	}
	f.state.Dates = dates
	if f.state.DateSource == DateNone && !dates.Empty() {
		f.state.SelectDate(dates.Dates[0], DateAuto)
	}
	return dates, nil
}

// SelectDate picks a calendar date.
func (f *Flow) SelectDate(ctx context.Context, date string) error {
	if _, err := time.Parse(catalog.DateLayout, date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	f.lock()
	if f.state.Service == nil {
		f.mu.Unlock()
		return ErrNoService
	}
	f.state.SelectDate(date, DateUser)
	f.timesFence.Invalidate()
	f.cartFence.Invalidate()
	f.settleStepLocked()
	f.mu.Unlock()

	f.deps.Tracker.Track(ctx, events.New(events.DateSelected, f.id, map[string]any{"date": date}))
	return nil
}

// Times loads start times for the chosen date. A lookup failure yields none.
func (f *Flow) Times(ctx context.Context) ([]availability.Slot, error) {
	f.lock()
	if f.state.Service == nil {
		f.mu.Unlock()
		return nil, ErrNoService
	}
	if f.state.Date == "" {
		f.mu.Unlock()
		return nil, ErrNoDate
	}
	q := availability.TimesQuery{Query: f.queryLocked(), Date: f.state.Date}
	ticket := f.timesFence.Begin(q.Key())
	f.mu.Unlock()

	slots, err := f.agg.FetchTimes(ctx, q)
	if err != nil {
		f.logger.Warn("times lookup failed", "date", q.Date, "error", err)
		slots = nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.timesFence.Valid(ticket) {
		return nil, ErrSuperseded
	}
	f.state.Times = slots
	return slots, nil
}

// SelectTime reserves a slot. A slot taken in the meantime is reported on
// the date/time step rather than as an error.
func (f *Flow) SelectTime(ctx context.Context, slotID, locationKey string) error {
	f.lock()
	slot, ok := f.findSlotLocked(slotID, locationKey)
	if !ok {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSlot, slotID)
	}
	f.closeSessionLocked()
	f.state.SelectTime(slot)
	cartLocation := slot.LocationKey
	if cartLocation == "" || cartLocation == availability.AnyLocation {
		cartLocation = f.catalogLocationLocked()
	}
	req := catalog.CartRequest{
		LocationKey:       cartLocation,
		ServiceItemID:     f.state.Service.ID,
		StaffProviderID:   f.state.ProviderID,
		Date:              f.state.Date,
		StartTime:         slot.StartTime,
		SelectedOptionIDs: f.state.SelectedOptionIDs(),
		AdditionalItems:   f.state.AdditionalItems(),
	}
	ticket := f.cartFence.Begin(cartLocation + "|" + slot.ID)
	f.setStepLocked(StepDateTime)
	f.mu.Unlock()

	f.deps.Tracker.Track(ctx, events.New(events.TimeSelected, f.id, map[string]any{
		"slot_id":    slot.ID,
		"start_time": slot.StartTime,
		"location":   cartLocation,
	}))

	cart, err := f.deps.Catalog.CreateCart(ctx, req)

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.cartFence.Valid(ticket) {
		return ErrSuperseded
	}
	if err != nil {
		f.state.Time = nil
		if errors.Is(err, catalog.ErrSlotUnavailable) {
			f.state.ReservationError = msgSlotTaken
			f.dropSlotLocked(slot)
		} else {
			f.logger.Warn("cart create failed", "slot_id", slot.ID, "error", err)
			f.state.ReservationError = msgHoldFailed
		}
		return nil
	}
	f.state.SetCart(cart)
	f.startSession(*cart, slot)
	f.setStepLocked(StepCheckout)
	return nil
}

func (f *Flow) findSlotLocked(id, locationKey string) (availability.Slot, bool) {
	for _, s := range f.state.Times {
		if s.ID == id && (locationKey == "" || s.LocationKey == locationKey) {
			return s, true
		}
	}
	return availability.Slot{}, false
}

func (f *Flow) dropSlotLocked(slot availability.Slot) {
	out := f.state.Times[:0:0]
	for _, s := range f.state.Times {
		if s.ID == slot.ID && s.LocationKey == slot.LocationKey {
			continue
		}
		out = append(out, s)
	}
	f.state.Times = out
}

// Checkout returns the active checkout session.
func (f *Flow) Checkout() (*checkout.Session, error) {
	f.lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil, ErrNoCheckout
	}
	return f.session, nil
}

// Reset discards every selection.
func (f *Flow) Reset() {
	f.lock()
	defer f.mu.Unlock()
	f.closeSessionLocked()
	f.optionsFence.Invalidate()
	f.invalidateAvailabilityLocked()
	f.state.Reset(f.deps.DefaultLocation)
	f.deps.Metrics.ObserveStep(StepService)
}

// ApplyDeepLink applies location, provider, service and date in that order.
// A deep-linked date is kept even if it is not the first available one.
func (f *Flow) ApplyDeepLink(ctx context.Context, link DeepLink) error {
	if link.Location != "" {
		if err := f.SelectLocation(ctx, link.Location); err != nil {
			return err
		}
	}
	if link.Provider != "" {
		f.SelectProvider(ctx, link.Provider)
	}
	switch {
	case link.Specialty != "":
		if err := f.SelectSpecialty(ctx, link.Specialty); err != nil {
			return err
		}
	case link.Service != "":
		if err := f.SelectService(ctx, link.Service); err != nil {
			return err
		}
	}
	if link.Date == "" {
		return nil
	}
	f.lock()
	defer f.mu.Unlock()
	if f.state.Service == nil {
		return nil
	}
	f.state.SelectDate(link.Date, DateDeepLink)
	return nil
}

func (f *Flow) startSession(cart catalog.Cart, slot availability.Slot) {
	f.session = checkout.NewSession(f.deps.Catalog, cart, checkout.Slot{Date: f.state.Date, StartTime: slot.StartTime}, checkout.Config{
		FlowID:         f.id,
		ResendCooldown: f.deps.ResendCooldown,
		Now:            f.deps.Now,
		Logger:         f.logger,
		Tracker:        f.deps.Tracker,
		Metrics:        f.deps.Metrics,
		Ledger:         f.deps.Ledger,
	}, checkout.Callbacks{
		OnExpired:   f.handleExpiry,
		OnConfirmed: f.handleConfirmed,
	})
	ctx, cancel := context.WithCancel(context.Background())
	f.stopTicker = cancel
	go f.session.Run(ctx)
}

// handleExpiry runs at most once per cart and only for the current cart.
func (f *Flow) handleExpiry(cartID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Cart == nil || f.state.Cart.ID != cartID {
		return
	}
	f.detachSessionLocked()
	f.state.DropCart(msgCartExpire)
	f.state.Times = nil
	f.setStepLocked(StepDateTime)
	f.logger.Info("reservation expired", "cart_id", cartID)
}

func (f *Flow) handleConfirmed(cartID string, conf catalog.Confirmation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Cart == nil || f.state.Cart.ID != cartID {
		return
	}
	f.state.Confirmation = &conf
	f.logger.Info("booking confirmed", "cart_id", cartID, "booking_id", conf.BookingID)
}

func (f *Flow) closeSessionLocked() {
	if f.session != nil {
		f.session.Close()
	}
	f.detachSessionLocked()
}

func (f *Flow) detachSessionLocked() {
	if f.stopTicker != nil {
		f.stopTicker()
		f.stopTicker = nil
	}
	f.session = nil
}

func (f *Flow) invalidateAvailabilityLocked() {
	f.datesFence.Invalidate()
	f.timesFence.Invalidate()
	f.cartFence.Invalidate()
}

// settleStepLocked keeps the current step valid after a mutation: a flow
// without a cart cannot sit on checkout, and a step that disappeared falls
// back to date/time (or service when nothing is selected).
func (f *Flow) settleStepLocked() {
	if f.state.Cart == nil && f.session != nil {
		f.closeSessionLocked()
	}
	steps := Steps(f.state)
	if f.state.Step == StepCheckout && f.state.Cart == nil {
		f.setStepLocked(StepDateTime)
		return
	}
	if StepIndex(steps, f.state.Step) >= 0 {
		return
	}
	if f.state.Service == nil {
		f.setStepLocked(StepService)
		return
	}
	f.setStepLocked(StepDateTime)
}

func (f *Flow) setStepLocked(step string) {
	if f.state.Step == step {
		return
	}
	f.state.Step = step
	f.deps.Metrics.ObserveStep(step)
}

func (f *Flow) queryLocked() availability.Query {
	return availability.Query{
		LocationKey:       f.state.Location,
		ServiceItemID:     f.state.Service.ID,
		ProviderID:        f.state.ProviderID,
		SelectedOptionIDs: f.state.SelectedOptionIDs(),
		DurationMinutes:   f.state.TotalDuration(),
		AdditionalItems:   f.state.AdditionalItems(),
	}
}

// catalogLocationLocked is the concrete location used for menu, options and
// cart calls. Under "any" it is the default location, else the first one.
func (f *Flow) catalogLocationLocked() string {
	if loc := f.state.Location; loc != "" && loc != availability.AnyLocation {
		return loc
	}
	if f.deps.DefaultLocation != "" && f.deps.DefaultLocation != availability.AnyLocation {
		return f.deps.DefaultLocation
	}
	if len(f.deps.Locations) > 0 {
		return f.deps.Locations[0].Key
	}
	return ""
}
