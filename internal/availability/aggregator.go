// Package availability fetches bookable dates and times for a service and
// merges calendars when the visitor has no location preference.
package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reluxe-code/reluxe-booking/internal/catalog"
	"github.com/reluxe-code/reluxe-booking/pkg/logging"
)

// AnyLocation aggregates across every configured location.
const AnyLocation = "any"

// Location is a configured location.
type Location struct {
	Key   string
	Label string
}

// Source is the subset of the catalog client the aggregator needs.
type Source interface {
	GetAvailableDates(ctx context.Context, req catalog.DatesRequest) ([]string, error)
	GetAvailableTimes(ctx context.Context, req catalog.TimesRequest) ([]catalog.TimeSlot, error)
}

// Query is the identity shared by date and time lookups. DurationMinutes is
// the combined length of service, add-ons and every selected option.
type Query struct {
	LocationKey       string
	ServiceItemID     string
	ProviderID        string
	SelectedOptionIDs []string
	DurationMinutes   int
	AdditionalItems   []catalog.AdditionalItem
}

func (q Query) key() string {
	addons := make([]string, 0, len(q.AdditionalItems))
	for _, a := range q.AdditionalItems {
		opts := append([]string(nil), a.SelectedOptionIDs...)
		sort.Strings(opts)
		addons = append(addons, a.ServiceItemID+"("+strings.Join(opts, ",")+")")
	}
	opts := append([]string(nil), q.SelectedOptionIDs...)
	sort.Strings(opts)
	return strings.Join([]string{
		q.LocationKey,
		q.ServiceItemID + "(" + strings.Join(opts, ",") + ")",
		strings.Join(addons, "+"),
		q.ProviderID,
		strconv.Itoa(q.DurationMinutes),
	}, "|")
}

// DatesQuery asks for dates in [StartDate, EndDate].
type DatesQuery struct {
	Query
	StartDate string
	EndDate   string
}

// Key is the fencing key for the query.
func (q DatesQuery) Key() string {
	return "dates|" + q.Query.key() + "|" + q.StartDate + ".." + q.EndDate
}

// TimesQuery asks for start times on Date.
type TimesQuery struct {
	Query
	Date string
}

// Key is the fencing key for the query.
func (q TimesQuery) Key() string {
	return "times|" + q.Query.key() + "|" + q.Date
}

// Dates is a set of bookable dates. Locations is only populated under
// AnyLocation and maps each date to the location keys offering it.
type Dates struct {
	Dates     []string            `json:"dates"`
	Locations map[string][]string `json:"locations,omitempty"`
}

// Empty reports no availability.
func (d *Dates) Empty() bool { return d == nil || len(d.Dates) == 0 }

// Has reports whether date is bookable.
func (d *Dates) Has(date string) bool {
	if d == nil {
		return false
	}
	for _, v := range d.Dates {
		if v == date {
			return true
		}
	}
	return false
}

// Slot is a bookable time tagged with the location it resolved to.
type Slot struct {
	ID            string    `json:"id"`
	StartTime     time.Time `json:"startTime"`
	LocationKey   string    `json:"locationKey,omitempty"`
	LocationLabel string    `json:"locationLabel,omitempty"`
}

// Aggregator performs single-location and merged lookups.
type Aggregator struct {
	source    Source
	locations []Location
	logger    *logging.Logger
}

// NewAggregator creates an aggregator over the configured locations.
func NewAggregator(source Source, locations []Location, logger *logging.Logger) *Aggregator {
	if source == nil {
		panic("availability: source cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Aggregator{source: source, locations: locations, logger: logger}
}

// Locations returns the configured locations.
func (a *Aggregator) Locations() []Location {
	return append([]Location(nil), a.locations...)
}

// Label returns the display label for a location key.
func (a *Aggregator) Label(key string) string {
	for _, l := range a.locations {
		if l.Key == key {
			return l.Label
		}
	}
	return key
}

// FetchDates returns bookable dates. Under AnyLocation a date is available
// when at least one location offers it.
func (a *Aggregator) FetchDates(ctx context.Context, q DatesQuery) (*Dates, error) {
	if q.LocationKey != AnyLocation {
		dates, err := a.source.GetAvailableDates(ctx, q.request(q.LocationKey))
		if err != nil {
			return nil, fmt.Errorf("availability: dates for %s: %w", q.LocationKey, err)
		}
		return &Dates{Dates: dates}, nil
	}

	perLocation := make([][]string, len(a.locations))
	err := a.fanOut(ctx, "dates", func(ctx context.Context, i int, loc Location) error {
		dates, err := a.source.GetAvailableDates(ctx, q.request(loc.Key))
		perLocation[i] = dates
		return err
	})
	if err != nil {
		return nil, err
	}
	return mergeDates(a.locations, perLocation), nil
}

// FetchTimes returns bookable times. Under AnyLocation the result is every
// location's slots merged and ordered by start time.
func (a *Aggregator) FetchTimes(ctx context.Context, q TimesQuery) ([]Slot, error) {
	if q.LocationKey != AnyLocation {
		slots, err := a.source.GetAvailableTimes(ctx, q.request(q.LocationKey))
		if err != nil {
			return nil, fmt.Errorf("availability: times for %s: %w", q.LocationKey, err)
		}
		out := make([]Slot, 0, len(slots))
		for _, s := range slots {
			out = append(out, Slot{ID: s.ID, StartTime: s.StartTime, LocationKey: q.LocationKey, LocationLabel: a.Label(q.LocationKey)})
		}
		return out, nil
	}

	perLocation := make([][]catalog.TimeSlot, len(a.locations))
	err := a.fanOut(ctx, "times", func(ctx context.Context, i int, loc Location) error {
		slots, err := a.source.GetAvailableTimes(ctx, q.request(loc.Key))
		perLocation[i] = slots
		return err
	})
	if err != nil {
		return nil, err
	}
	return mergeSlots(a.locations, perLocation), nil
}

// fanOut queries every location in parallel. A failing location is logged
// and contributes nothing; only a total failure is returned.
func (a *Aggregator) fanOut(ctx context.Context, kind string, fn func(ctx context.Context, i int, loc Location) error) error {
	if len(a.locations) == 0 {
		return fmt.Errorf("availability: no locations configured")
	}
	errs := make([]error, len(a.locations))
	var g errgroup.Group
	for i, loc := range a.locations {
		i, loc := i, loc
		g.Go(func() error {
			if err := fn(ctx, i, loc); err != nil {
				a.logger.Warn("availability lookup failed for location", "kind", kind, "location", loc.Key, "error", err)
				errs[i] = fmt.Errorf("%s: %w", loc.Key, err)
			}
			return nil
		})
	}
	// the goroutines never fail the group; per-location errors are kept in
	// errs, so Wait only joins them
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(a.locations) {
		return fmt.Errorf("availability: %s lookup failed everywhere: %w", kind, errors.Join(errs...))
	}
	return nil
}

func (q DatesQuery) request(locationKey string) catalog.DatesRequest {
	return catalog.DatesRequest{
		LocationKey:       locationKey,
		ServiceItemID:     q.ServiceItemID,
		StaffProviderID:   q.ProviderID,
		StartDate:         q.StartDate,
		EndDate:           q.EndDate,
		SelectedOptionIDs: q.SelectedOptionIDs,
		DurationMinutes:   q.DurationMinutes,
		AdditionalItems:   q.AdditionalItems,
	}
}

func (q TimesQuery) request(locationKey string) catalog.TimesRequest {
	return catalog.TimesRequest{
		LocationKey:       locationKey,
		ServiceItemID:     q.ServiceItemID,
		StaffProviderID:   q.ProviderID,
		Date:              q.Date,
		SelectedOptionIDs: q.SelectedOptionIDs,
		DurationMinutes:   q.DurationMinutes,
		AdditionalItems:   q.AdditionalItems,
	}
}

func mergeDates(locations []Location, perLocation [][]string) *Dates {
	out := &Dates{Locations: map[string][]string{}}
	for i, dates := range perLocation {
		key := locations[i].Key
		for _, d := range dates {
			tags := out.Locations[d]
			if containsString(tags, key) {
				continue
			}
			if len(tags) == 0 {
				out.Dates = append(out.Dates, d)
			}
			out.Locations[d] = append(tags, key)
		}
	}
	sort.Strings(out.Dates)
	return out
}

func mergeSlots(locations []Location, perLocation [][]catalog.TimeSlot) []Slot {
	var out []Slot
	for i, slots := range perLocation {
		for _, s := range slots {
			out = append(out, Slot{
				ID:            s.ID,
				StartTime:     s.StartTime,
				LocationKey:   locations[i].Key,
				LocationLabel: locations[i].Label,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
