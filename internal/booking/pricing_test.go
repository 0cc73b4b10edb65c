package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reluxe-code/reluxe-booking/internal/catalog"
)

func TestPriceRange(t *testing.T) {
	area := catalog.OptionGroup{ID: "area", MinSelections: 1, MaxSelections: 1, Options: []catalog.Option{
		{ID: "small", PriceDelta: 1000}, {ID: "large", PriceDelta: 4000},
	}}
	extra := catalog.OptionGroup{ID: "extra", Options: []catalog.Option{{ID: "mask", PriceDelta: 2500}}}

	tests := []struct {
		name      string
		state     *State
		low, high int
		ok        bool
	}{
		{name: "no service", state: &State{}},
		{name: "unpriced service", state: &State{Service: &ServiceSelection{ID: "x"}}},
		{
			name:  "base only",
			state: &State{Service: &ServiceSelection{PriceCents: cents(9900)}},
			low:   9900, high: 9900, ok: true,
		},
		{
			name: "required group unresolved",
			state: &State{
				Service:      &ServiceSelection{PriceCents: cents(10000)},
				OptionGroups: []catalog.OptionGroup{area},
			},
			low: 11000, high: 14000, ok: true,
		},
		{
			name: "required group chosen and optional open",
			state: &State{
				Service:         &ServiceSelection{PriceCents: cents(10000)},
				OptionGroups:    []catalog.OptionGroup{area, extra},
				SelectedOptions: []SelectedOption{{GroupID: "area", Option: catalog.Option{ID: "large", PriceDelta: 4000}}},
			},
			low: 14000, high: 16500, ok: true,
		},
		{
			name: "add-ons are additive",
			state: &State{
				Service: &ServiceSelection{PriceCents: cents(10000)},
				Addons: []AddonService{{
					PriceCents:      cents(5000),
					OptionGroups:    []catalog.OptionGroup{extra},
					SelectedOptions: []SelectedOption{{GroupID: "extra", Option: catalog.Option{ID: "mask", PriceDelta: 2500}}},
				}},
			},
			low: 17500, high: 17500, ok: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			low, high, ok := PriceRange(tt.state)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.low, low)
			assert.Equal(t, tt.high, high)
		})
	}
}

func TestFormatPriceRange(t *testing.T) {
	assert.Equal(t, "$150", FormatPriceRange(15000, 15000))
	assert.Equal(t, "$110–$140", FormatPriceRange(11000, 14000))
	assert.Equal(t, "$12.50", FormatPriceRange(1250, 0))
	assert.Equal(t, "-$5", formatCents(-500))
}
