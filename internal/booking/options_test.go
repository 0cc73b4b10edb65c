package booking

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reluxe-code/reluxe-booking/internal/catalog"
)

func multiGroup(limit int) catalog.OptionGroup {
	return catalog.OptionGroup{ID: "g", MinSelections: 1, MaxSelections: limit, Options: []catalog.Option{
		{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"},
	}}
}

func TestToggleSingleChoice(t *testing.T) {
	groups := []catalog.OptionGroup{multiGroup(1)}

	sel, changed, err := toggleOption(groups, nil, "g", "a")
	require.NoError(t, err)
	assert.True(t, changed)
	sel, _, _ = toggleOption(groups, sel, "g", "b")
	require.Len(t, sel, 1)
	assert.Equal(t, "b", sel[0].ID)

	sel, changed, _ = toggleOption(groups, sel, "g", "b")
	assert.True(t, changed)
	assert.Empty(t, sel)
}

func TestToggleUnknownOption(t *testing.T) {
	groups := []catalog.OptionGroup{multiGroup(2)}
	_, _, err := toggleOption(groups, nil, "g", "z")
	assert.ErrorIs(t, err, ErrUnknownOption)
	_, _, err = toggleOption(groups, nil, "nope", "a")
	assert.ErrorIs(t, err, ErrUnknownOption)
}

func TestToggleMultiChoiceNeverExceedsCap(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	for limit := 0; limit <= 3; limit++ {
		groups := []catalog.OptionGroup{multiGroup(limit)}
		rng := rand.New(rand.NewSource(int64(42 + limit)))
		var sel []SelectedOption
		for i := 0; i < 200; i++ {
			id := ids[rng.Intn(len(ids))]
			before := isSelected(sel, "g", id)
			next, changed, err := toggleOption(groups, sel, "g", id)
			require.NoError(t, err)

			if limit == 1 {
				assert.LessOrEqual(t, len(next), 1)
			} else if limit > 1 {
				assert.LessOrEqual(t, countInGroup(next, "g"), limit)
			}
			if before {
				assert.True(t, changed, "deselect always works")
				assert.False(t, isSelected(next, "g", id))
			}
			sel = next
		}
	}
}

func TestToggleKeepsOtherGroups(t *testing.T) {
	groups := []catalog.OptionGroup{
		multiGroup(1),
		{ID: "h", MaxSelections: 2, Options: []catalog.Option{{ID: "x"}}},
	}
	sel, _, _ := toggleOption(groups, nil, "h", "x")
	sel, _, _ = toggleOption(groups, sel, "g", "a")
	sel, _, _ = toggleOption(groups, sel, "g", "c")
	require.Len(t, sel, 2)
	assert.True(t, isSelected(sel, "h", "x"))
	assert.True(t, isSelected(sel, "g", "c"))
}

func TestRequiredGroupsSatisfied(t *testing.T) {
	groups := []catalog.OptionGroup{
		{ID: "g", MinSelections: 2, Options: []catalog.Option{{ID: "a"}, {ID: "b"}}},
		{ID: "empty", MinSelections: 1},
		{ID: "opt", Options: []catalog.Option{{ID: "z"}}},
	}
	assert.False(t, requiredGroupsSatisfied(groups, []SelectedOption{{GroupID: "g", Option: catalog.Option{ID: "a"}}}))
	assert.True(t, requiredGroupsSatisfied(groups, []SelectedOption{
		{GroupID: "g", Option: catalog.Option{ID: "a"}},
		{GroupID: "g", Option: catalog.Option{ID: "b"}},
	}))
	assert.True(t, requiredGroupsSatisfied(nil, nil))
}
