package booking

import (
	"github.com/reluxe-code/reluxe-booking/internal/availability"
	"github.com/reluxe-code/reluxe-booking/internal/catalog"
)

// SelectionSource records how the primary service was chosen.
type SelectionSource string

const (
	SourceCatalogItem SelectionSource = "catalog_item"
	SourceSpecialty   SelectionSource = "specialty"
	SourceBundle      SelectionSource = "bundle"
)

// DateSource records who chose the current date.
type DateSource string

const (
	DateNone     DateSource = ""
	DateAuto     DateSource = "auto"
	DateUser     DateSource = "user"
	DateDeepLink DateSource = "deeplink"
)

// ServiceSelection is the primary bookable item.
type ServiceSelection struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	CategoryName    string          `json:"categoryName,omitempty"`
	Slug            string          `json:"slug,omitempty"`
	Source          SelectionSource `json:"source"`
	PriceCents      *int            `json:"priceCents,omitempty"`
	DurationMinutes int             `json:"durationMinutes,omitempty"`
}

// SelectedOption is a chosen option tagged with its group.
type SelectedOption struct {
	GroupID string `json:"groupId"`
	catalog.Option
}

// AddonService is a supplementary service with its own option workflow.
type AddonService struct {
	Slug              string                `json:"slug,omitempty"`
	CatalogID         string                `json:"catalogId,omitempty"`
	Title             string                `json:"title"`
	ServiceItemID     string                `json:"serviceItemId"`
	PriceCents        *int                  `json:"priceCents,omitempty"`
	DurationMinutes   int                   `json:"durationMinutes"`
	OptionGroups      []catalog.OptionGroup `json:"optionGroups,omitempty"`
	SelectedOptions   []SelectedOption      `json:"selectedOptions,omitempty"`
	HasOptions        bool                  `json:"hasOptions"`
	OptionsConfigured bool                  `json:"optionsConfigured"`
}

// Key identifies the add-on within a flow.
func (a AddonService) Key() string {
	switch {
	case a.Slug != "":
		return a.Slug
	case a.CatalogID != "":
		return a.CatalogID
	default:
		return a.ServiceItemID
	}
}

// State is the single selection record of one booking flow. Transitions are
// methods; each one documents the downstream fields it invalidates.
type State struct {
	Step string `json:"step"`

	Service              *ServiceSelection `json:"service,omitempty"`
	Specialty            string            `json:"specialty,omitempty"`
	Bundle               *Bundle           `json:"bundle,omitempty"`
	PendingCategory      string            `json:"pendingCategory,omitempty"`
	PendingAddonCategory string            `json:"pendingAddonCategory,omitempty"`

	OptionsLoaded   bool                  `json:"optionsLoaded"`
	OptionGroups    []catalog.OptionGroup `json:"optionGroups,omitempty"`
	SelectedOptions []SelectedOption      `json:"selectedOptions,omitempty"`
	Addons          []AddonService        `json:"addons,omitempty"`

	Location   string `json:"location,omitempty"`
	ProviderID string `json:"providerId,omitempty"`

	Date       string              `json:"date,omitempty"`
	DateSource DateSource          `json:"dateSource,omitempty"`
	Dates      *availability.Dates `json:"dates,omitempty"`
	Times      []availability.Slot `json:"times,omitempty"`
	Time       *availability.Slot  `json:"time,omitempty"`

	Cart             *catalog.Cart         `json:"cart,omitempty"`
	ReservationError string                `json:"reservationError,omitempty"`
	Confirmation     *catalog.Confirmation `json:"confirmation,omitempty"`
}

// NewState returns the initial state at the service step.
func NewState(location string) *State {
	return &State{Step: StepService, Location: location}
}

// Reset returns the state to its initial step, keeping only the location.
func (s *State) Reset(location string) {
	*s = *NewState(location)
}

// SelectService replaces the primary service. Options, add-ons, date, time,
// cart and any reservation error are cleared.
func (s *State) SelectService(sel ServiceSelection) {
	s.Service = &sel
	s.OptionsLoaded = false
	s.OptionGroups = nil
	s.SelectedOptions = nil
	s.Addons = nil
	s.PendingAddonCategory = ""
	s.Confirmation = nil
	s.clearAvailability()
}

// ApplyServiceOptions records the option groups of the primary service.
func (s *State) ApplyServiceOptions(opts *catalog.ServiceOptions) {
	s.OptionsLoaded = true
	s.OptionGroups = nil
	if opts == nil {
		return
	}
	s.OptionGroups = opts.OptionGroups
	if s.Service != nil && opts.DurationMinutes > 0 {
		s.Service.DurationMinutes = opts.DurationMinutes
	}
}

// HasOptions reports whether the primary service has a configurable group.
func (s *State) HasOptions() bool {
	return groupsHaveOptions(s.OptionGroups)
}

// SelectLocation clears date, time and cart.
func (s *State) SelectLocation(key string) {
	s.Location = key
	s.clearAvailability()
}

// SelectProvider clears date, time and cart.
func (s *State) SelectProvider(id string) {
	s.ProviderID = id
	s.clearAvailability()
}

// ToggleOption toggles a primary option. A change alters the availability
// query, so it drops loaded availability like ToggleAddonOption does.
func (s *State) ToggleOption(groupID, optionID string) (bool, error) {
	next, changed, err := toggleOption(s.OptionGroups, s.SelectedOptions, groupID, optionID)
	if err != nil {
		return false, err
	}
	s.SelectedOptions = next
	if changed {
		s.selectionResized()
	}
	return changed, nil
}

// AddAddon appends an add-on, rejecting duplicates of the primary or of an
// existing add-on. Date, time and cart are cleared.
func (s *State) AddAddon(a AddonService) error {
	if s.Service == nil {
		return ErrNoService
	}
	if s.duplicatesSelection(a.Slug, a.CatalogID, a.ServiceItemID) {
		return ErrDuplicateAddon
	}
	s.Addons = append(s.Addons, a)
	s.PendingAddonCategory = ""
	s.clearAvailability()
	return nil
}

// RemoveAddon drops an add-on by key. Date, time and cart are cleared.
func (s *State) RemoveAddon(key string) error {
	i := s.addonIndex(key)
	if i < 0 {
		return ErrUnknownAddon
	}
	s.Addons = append(s.Addons[:i:i], s.Addons[i+1:]...)
	s.clearAvailability()
	return nil
}

// ToggleAddonOption toggles one add-on option. A change alters the combined
// availability query, so loaded availability is dropped.
func (s *State) ToggleAddonOption(key, groupID, optionID string) (bool, error) {
	i := s.addonIndex(key)
	if i < 0 {
		return false, ErrUnknownAddon
	}
	a := &s.Addons[i]
	next, changed, err := toggleOption(a.OptionGroups, a.SelectedOptions, groupID, optionID)
	if err != nil {
		return false, err
	}
	a.SelectedOptions = next
	if changed {
		s.selectionResized()
	}
	return changed, nil
}

// SelectDate clears time and cart.
func (s *State) SelectDate(date string, source DateSource) {
	s.Date = date
	s.DateSource = source
	s.Times = nil
	s.ReservationError = ""
	s.clearSlot()
}

// SelectTime clears cart and any reservation error.
func (s *State) SelectTime(slot availability.Slot) {
	s.Time = &slot
	s.Cart = nil
	s.ReservationError = ""
}

// SetCart records the held reservation.
func (s *State) SetCart(c *catalog.Cart) {
	s.Cart = c
}

// DropCart discards the cart and its time with a user-visible reason.
func (s *State) DropCart(message string) {
	s.Cart = nil
	s.Time = nil
	s.ReservationError = message
}

// Addon returns the add-on with key.
func (s *State) Addon(key string) (*AddonService, bool) {
	i := s.addonIndex(key)
	if i < 0 {
		return nil, false
	}
	return &s.Addons[i], true
}

// AdditionalItems are the add-ons in catalog request form.
func (s *State) AdditionalItems() []catalog.AdditionalItem {
	if len(s.Addons) == 0 {
		return nil
	}
	out := make([]catalog.AdditionalItem, 0, len(s.Addons))
	for _, a := range s.Addons {
		out = append(out, catalog.AdditionalItem{ServiceItemID: a.ServiceItemID, SelectedOptionIDs: optionIDs(a.SelectedOptions)})
	}
	return out
}

// SelectedOptionIDs are the primary option ids.
func (s *State) SelectedOptionIDs() []string {
	return optionIDs(s.SelectedOptions)
}

// TotalDuration is the primary duration plus every add-on duration plus the
// duration delta of every selected option.
func (s *State) TotalDuration() int {
	total := 0
	if s.Service != nil {
		total += s.Service.DurationMinutes
	}
	for _, o := range s.SelectedOptions {
		total += o.DurationDelta
	}
	for _, a := range s.Addons {
		total += a.DurationMinutes
		for _, o := range a.SelectedOptions {
			total += o.DurationDelta
		}
	}
	return total
}

func (s *State) duplicatesSelection(slug, catalogID, itemID string) bool {
	if s.Service != nil {
		if (itemID != "" && s.Service.ID == itemID) || (slug != "" && s.Service.Slug == slug) {
			return true
		}
	}
	for _, a := range s.Addons {
		if (slug != "" && a.Slug == slug) ||
			(catalogID != "" && a.CatalogID == catalogID) ||
			(itemID != "" && a.ServiceItemID == itemID) {
			return true
		}
	}
	return false
}

func (s *State) addonIndex(key string) int {
	for i, a := range s.Addons {
		if a.Key() == key {
			return i
		}
	}
	return -1
}

func (s *State) clearAvailability() {
	s.Date = ""
	s.DateSource = DateNone
	s.Dates = nil
	s.Times = nil
	s.ReservationError = ""
	s.clearSlot()
}

// selectionResized drops dates, times, the chosen time and the cart. An
// automatically picked date goes too; a user or deep-linked date is kept.
func (s *State) selectionResized() {
	s.Dates = nil
	s.Times = nil
	if s.DateSource == DateAuto {
		s.Date = ""
		s.DateSource = DateNone
	}
	s.clearSlot()
}

func (s *State) clearSlot() {
	s.Time = nil
	s.Cart = nil
}

func optionIDs(selected []SelectedOption) []string {
	if len(selected) == 0 {
		return nil
	}
	ids := make([]string, 0, len(selected))
	for _, o := range selected {
		ids = append(ids, o.ID)
	}
	return ids
}
