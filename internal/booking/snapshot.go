package booking

import (
	"encoding/json"

	"github.com/reluxe-code/reluxe-booking/internal/checkout"
)

// Snapshot is a consistent, detached view of a flow for rendering.
type Snapshot struct {
	ID              string         `json:"id"`
	Step            string         `json:"step"`
	StepIndex       int            `json:"stepIndex"`
	Steps           []Step         `json:"steps"`
	CanContinue     bool           `json:"canContinue"`
	CanGoBack       bool           `json:"canGoBack"`
	State           *State         `json:"state"`
	DurationMinutes int            `json:"durationMinutes"`
	Price           string         `json:"price,omitempty"`
	NoAvailability  bool           `json:"noAvailability"`
	Checkout        *checkout.View `json:"checkout,omitempty"`
}

// Snapshot captures the flow under its lock. The returned state is a deep
// copy and safe to use after further mutations.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	steps, idx := Position(f.state)
	snap := Snapshot{
		ID:              f.id,
		Step:            steps[idx].Key,
		StepIndex:       idx,
		Steps:           steps,
		CanContinue:     CanContinue(f.state),
		CanGoBack:       idx > 0,
		State:           f.state.Clone(),
		DurationMinutes: f.state.TotalDuration(),
		NoAvailability:  f.state.Dates != nil && f.state.Dates.Empty(),
	}
	if low, high, ok := PriceRange(f.state); ok {
		snap.Price = FormatPriceRange(low, high)
	}
	if f.session != nil {
		v := f.session.View()
		snap.Checkout = &v
	}
	return snap
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	data, err := json.Marshal(s)
	if err != nil {
		panic("booking: state is not serializable: " + err.Error())
	}
	var out State
	if err := json.Unmarshal(data, &out); err != nil {
		panic("booking: state is not serializable: " + err.Error())
	}
	return &out
}
