package booking

import (
	"fmt"
	"sort"

	"github.com/reluxe-code/reluxe-booking/internal/catalog"
)

// PriceRange estimates the total in cents. Prices combine additively: base
// prices of the primary and every add-on, plus the delta of every selected
// option. Groups still short of their minimum contribute their cheapest and
// dearest remaining options to low and high; optional groups with nothing
// chosen can only raise high. ok is false without a priced primary service.
func PriceRange(s *State) (low, high int, ok bool) {
	if s.Service == nil || s.Service.PriceCents == nil {
		return 0, 0, false
	}
	low = *s.Service.PriceCents
	high = low

	lo, hi := groupsRange(s.OptionGroups, s.SelectedOptions)
	low += lo
	high += hi
	for _, a := range s.Addons {
		if a.PriceCents != nil {
			low += *a.PriceCents
			high += *a.PriceCents
		}
		lo, hi := groupsRange(a.OptionGroups, a.SelectedOptions)
		low += lo
		high += hi
	}
	return low, high, true
}

func groupsRange(groups []catalog.OptionGroup, selected []SelectedOption) (low, high int) {
	for _, o := range selected {
		low += o.PriceDelta
		high += o.PriceDelta
	}
	for _, g := range groups {
		chosen := countInGroup(selected, g.ID)
		var remaining []int
		for _, o := range g.Options {
			if !isSelected(selected, g.ID, o.ID) {
				remaining = append(remaining, o.PriceDelta)
			}
		}
		if len(remaining) == 0 {
			continue
		}
		sort.Ints(remaining)
		if need := g.MinSelections - chosen; need > 0 {
			if need > len(remaining) {
				need = len(remaining)
			}
			for i := 0; i < need; i++ {
				low += remaining[i]
				high += remaining[len(remaining)-1-i]
			}
			continue
		}
		if chosen == 0 && remaining[len(remaining)-1] > 0 {
			high += remaining[len(remaining)-1]
		}
	}
	return low, high
}

func isSelected(selected []SelectedOption, groupID, optionID string) bool {
	for _, o := range selected {
		if o.GroupID == groupID && o.ID == optionID {
			return true
		}
	}
	return false
}

// FormatPriceRange renders "$X" or "$X–$Y".
func FormatPriceRange(low, high int) string {
	if high <= low {
		return formatCents(low)
	}
	return formatCents(low) + "–" + formatCents(high)
}

func formatCents(c int) string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	if c%100 == 0 {
		return fmt.Sprintf("%s$%d", sign, c/100)
	}
	return fmt.Sprintf("%s$%d.%02d", sign, c/100, c%100)
}
