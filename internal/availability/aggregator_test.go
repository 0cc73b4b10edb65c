package availability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reluxe-code/reluxe-booking/internal/catalog"
)

type stubSource struct {
	mu       sync.Mutex
	dates    map[string][]string
	times    map[string][]catalog.TimeSlot
	fail     map[string]error
	requests []string
}

func (s *stubSource) GetAvailableDates(_ context.Context, req catalog.DatesRequest) ([]string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, "dates:"+req.LocationKey)
	s.mu.Unlock()
	if err := s.fail[req.LocationKey]; err != nil {
		return nil, err
	}
	return s.dates[req.LocationKey], nil
}

func (s *stubSource) GetAvailableTimes(_ context.Context, req catalog.TimesRequest) ([]catalog.TimeSlot, error) {
	s.mu.Lock()
	s.requests = append(s.requests, "times:"+req.LocationKey)
	s.mu.Unlock()
	if err := s.fail[req.LocationKey]; err != nil {
		return nil, err
	}
	return s.times[req.LocationKey], nil
}

var testLocations = []Location{{Key: "carmel", Label: "Carmel"}, {Key: "westfield", Label: "Westfield"}}

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 14, hour, minute, 0, 0, time.UTC)
}

func TestFetchDatesSingleLocation(t *testing.T) {
	src := &stubSource{dates: map[string][]string{"carmel": {"2025-03-14"}}}
	agg := NewAggregator(src, testLocations, nil)

	got, err := agg.FetchDates(context.Background(), DatesQuery{Query: Query{LocationKey: "carmel", ServiceItemID: "svc"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-14"}, got.Dates)
	assert.Nil(t, got.Locations)
	assert.Equal(t, []string{"dates:carmel"}, src.requests)
}

func TestFetchDatesAnyLocationUnion(t *testing.T) {
	src := &stubSource{dates: map[string][]string{
		"carmel":    {"2025-03-16", "2025-03-14"},
		"westfield": {"2025-03-15", "2025-03-14"},
	}}
	agg := NewAggregator(src, testLocations, nil)

	got, err := agg.FetchDates(context.Background(), DatesQuery{Query: Query{LocationKey: AnyLocation}})
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-14", "2025-03-15", "2025-03-16"}, got.Dates)
	assert.ElementsMatch(t, []string{"carmel", "westfield"}, got.Locations["2025-03-14"])
	assert.Equal(t, []string{"westfield"}, got.Locations["2025-03-15"])
	assert.True(t, got.Has("2025-03-16"))
	assert.False(t, got.Has("2025-03-17"))
}

func TestFetchTimesAnyLocationMergesAndSorts(t *testing.T) {
	src := &stubSource{times: map[string][]catalog.TimeSlot{
		"carmel":    {{ID: "c1", StartTime: at(9, 0)}, {ID: "c2", StartTime: at(13, 0)}},
		"westfield": {{ID: "w1", StartTime: at(10, 30)}},
	}}
	agg := NewAggregator(src, testLocations, nil)

	got, err := agg.FetchTimes(context.Background(), TimesQuery{Query: Query{LocationKey: AnyLocation}, Date: "2025-03-14"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, "w1", got[1].ID)
	assert.Equal(t, "Westfield", got[1].LocationLabel)
	assert.Equal(t, "c2", got[2].ID)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].StartTime.Before(got[i-1].StartTime))
	}
}

func TestFetchTimesSingleLocationTagsSlots(t *testing.T) {
	src := &stubSource{times: map[string][]catalog.TimeSlot{"westfield": {{ID: "w1", StartTime: at(10, 0)}}}}
	agg := NewAggregator(src, testLocations, nil)

	got, err := agg.FetchTimes(context.Background(), TimesQuery{Query: Query{LocationKey: "westfield"}, Date: "2025-03-14"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "westfield", got[0].LocationKey)
	assert.Equal(t, "Westfield", got[0].LocationLabel)
}

func TestAnyLocationPartialFailureUsesSurvivors(t *testing.T) {
	src := &stubSource{
		dates: map[string][]string{"westfield": {"2025-03-15"}},
		fail:  map[string]error{"carmel": errors.New("boom")},
	}
	agg := NewAggregator(src, testLocations, nil)

	got, err := agg.FetchDates(context.Background(), DatesQuery{Query: Query{LocationKey: AnyLocation}})
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-15"}, got.Dates)
}

func TestAnyLocationTotalFailure(t *testing.T) {
	boom := errors.New("boom")
	src := &stubSource{fail: map[string]error{"carmel": boom, "westfield": boom}}
	agg := NewAggregator(src, testLocations, nil)

	_, err := agg.FetchTimes(context.Background(), TimesQuery{Query: Query{LocationKey: AnyLocation}})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestSingleLocationErrorWrapped(t *testing.T) {
	src := &stubSource{fail: map[string]error{"carmel": catalog.ErrNotFound}}
	agg := NewAggregator(src, testLocations, nil)

	_, err := agg.FetchDates(context.Background(), DatesQuery{Query: Query{LocationKey: "carmel"}})
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestQueryKeysDistinguishInputs(t *testing.T) {
	base := DatesQuery{Query: Query{LocationKey: "carmel", ServiceItemID: "svc"}, StartDate: "2025-03-01", EndDate: "2025-04-30"}

	withAddon := base
	withAddon.AdditionalItems = []catalog.AdditionalItem{{ServiceItemID: "dermaplane"}}
	otherLocation := base
	otherLocation.LocationKey = "westfield"
	otherProvider := base
	otherProvider.ProviderID = "p1"
	otherWindow := base
	otherWindow.EndDate = "2025-05-01"
	withOption := base
	withOption.SelectedOptionIDs = []string{"crows"}
	longer := base
	longer.DurationMinutes = 40

	keys := map[string]bool{base.Key(): true}
	for _, q := range []DatesQuery{withAddon, otherLocation, otherProvider, otherWindow, withOption, longer} {
		assert.False(t, keys[q.Key()], "key collision for %+v", q)
		keys[q.Key()] = true
	}

	times := TimesQuery{Query: base.Query, Date: "2025-03-14"}
	assert.NotEqual(t, base.Key(), times.Key())

	reordered := base
	reordered.AdditionalItems = []catalog.AdditionalItem{{ServiceItemID: "a", SelectedOptionIDs: []string{"y", "x"}}}
	sorted := base
	sorted.AdditionalItems = []catalog.AdditionalItem{{ServiceItemID: "a", SelectedOptionIDs: []string{"x", "y"}}}
	assert.Equal(t, sorted.Key(), reordered.Key())
}
