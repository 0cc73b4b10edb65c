package booking

import "github.com/reluxe-code/reluxe-booking/internal/catalog"

// toggleOption applies one click to an option. In a single-choice group the
// clicked option replaces any sibling, and clicking the selected option
// clears it. In a multi-choice group deselecting always works and selecting
// at the group's cap is a no-op.
func toggleOption(groups []catalog.OptionGroup, selected []SelectedOption, groupID, optionID string) ([]SelectedOption, bool, error) {
	group, ok := findGroup(groups, groupID)
	if !ok {
		return selected, false, ErrUnknownOption
	}
	opt, ok := group.FindOption(optionID)
	if !ok {
		return selected, false, ErrUnknownOption
	}

	wasSelected := false
	inGroup := 0
	for _, o := range selected {
		if o.GroupID != groupID {
			continue
		}
		inGroup++
		if o.ID == optionID {
			wasSelected = true
		}
	}

	if group.SingleChoice() {
		out := make([]SelectedOption, 0, len(selected)+1)
		for _, o := range selected {
			if o.GroupID != groupID {
				out = append(out, o)
			}
		}
		if !wasSelected {
			out = append(out, SelectedOption{GroupID: groupID, Option: opt})
		}
		return out, true, nil
	}

	if wasSelected {
		out := make([]SelectedOption, 0, len(selected))
		for _, o := range selected {
			if o.GroupID == groupID && o.ID == optionID {
				continue
			}
			out = append(out, o)
		}
		return out, true, nil
	}
	if group.MaxSelections > 0 && inGroup >= group.MaxSelections {
		return selected, false, nil
	}
	out := append(append([]SelectedOption(nil), selected...), SelectedOption{GroupID: groupID, Option: opt})
	return out, true, nil
}

// requiredGroupsSatisfied reports whether every group meets its minimum.
func requiredGroupsSatisfied(groups []catalog.OptionGroup, selected []SelectedOption) bool {
	for _, g := range groups {
		if !g.Required() || len(g.Options) == 0 {
			continue
		}
		if countInGroup(selected, g.ID) < g.MinSelections {
			return false
		}
	}
	return true
}

func countInGroup(selected []SelectedOption, groupID string) int {
	n := 0
	for _, o := range selected {
		if o.GroupID == groupID {
			n++
		}
	}
	return n
}

func findGroup(groups []catalog.OptionGroup, id string) (catalog.OptionGroup, bool) {
	for _, g := range groups {
		if g.ID == id {
			return g, true
		}
	}
	return catalog.OptionGroup{}, false
}

func groupsHaveOptions(groups []catalog.OptionGroup) bool {
	for _, g := range groups {
		if len(g.Options) > 0 {
			return true
		}
	}
	return false
}
