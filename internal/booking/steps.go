package booking

import "strings"

// Step keys in display order.
const (
	StepService       = "service"
	StepBundleItem    = "bundle-item"
	StepMenuItem      = "menu-item"
	StepAddonMenuItem = "addon-menu-item"
	StepOptions       = "options"
	StepDateTime      = "datetime"
	StepCheckout      = "checkout"

	addonOptionsPrefix = "addon-options:"
)

// Step is one visible step.
type Step struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// AddonOptionsStep is the step key for configuring one add-on.
func AddonOptionsStep(addonKey string) string {
	return addonOptionsPrefix + addonKey
}

func addonKeyOf(step string) (string, bool) {
	if !strings.HasPrefix(step, addonOptionsPrefix) {
		return "", false
	}
	return strings.TrimPrefix(step, addonOptionsPrefix), true
}

// Steps derives the visible steps from state. Nothing about the list is
// stored; it is recomputed on every call.
func Steps(s *State) []Step {
	steps := []Step{{Key: StepService, Label: "Service"}}
	if s.Bundle != nil {
		steps = append(steps, Step{Key: StepBundleItem, Label: "Choose Treatment"})
	}
	if s.PendingCategory != "" {
		steps = append(steps, Step{Key: StepMenuItem, Label: "Choose Service"})
	}
	if s.PendingAddonCategory != "" {
		steps = append(steps, Step{Key: StepAddonMenuItem, Label: "Choose Add-on"})
	}
	if s.Service != nil && s.HasOptions() {
		steps = append(steps, Step{Key: StepOptions, Label: "Options"})
	}
	for _, a := range s.Addons {
		if a.HasOptions {
			steps = append(steps, Step{Key: AddonOptionsStep(a.Key()), Label: a.Title + " Options"})
		}
	}
	return append(steps,
		Step{Key: StepDateTime, Label: "Date & Time"},
		Step{Key: StepCheckout, Label: "Checkout"},
	)
}

// StepIndex returns the position of key in steps, or -1.
func StepIndex(steps []Step, key string) int {
	for i, st := range steps {
		if st.Key == key {
			return i
		}
	}
	return -1
}

// Position returns the visible steps and the index of the current one. A
// current step that no longer exists resolves to the first step.
func Position(s *State) ([]Step, int) {
	steps := Steps(s)
	idx := StepIndex(steps, s.Step)
	if idx < 0 {
		idx = 0
	}
	return steps, idx
}

// CanContinue reports whether Continue would succeed from the current step.
func CanContinue(s *State) bool {
	return continueCheck(s) == nil
}

func continueCheck(s *State) error {
	steps, idx := Position(s)
	key := steps[idx].Key
	if idx == len(steps)-1 {
		return ErrLastStep
	}
	switch {
	case key == StepService, key == StepBundleItem, key == StepMenuItem:
		if s.Service == nil {
			return ErrNoService
		}
		if s.Location == "" {
			return ErrNoLocation
		}
	case key == StepOptions:
		if !requiredGroupsSatisfied(s.OptionGroups, s.SelectedOptions) {
			return ErrOptionsIncomplete
		}
	case key == StepDateTime:
		if s.Cart == nil {
			return ErrNoCheckout
		}
	default:
		if addonKey, ok := addonKeyOf(key); ok {
			a, found := s.Addon(addonKey)
			if !found {
				return ErrUnknownAddon
			}
			if !requiredGroupsSatisfied(a.OptionGroups, a.SelectedOptions) {
				return ErrOptionsIncomplete
			}
		}
	}
	return nil
}

// Continue validates the current step and moves to the next one.
func (s *State) Continue() error {
	if err := continueCheck(s); err != nil {
		return err
	}
	steps, idx := Position(s)
	current := steps[idx].Key
	next := steps[idx+1].Key

	if addonKey, ok := addonKeyOf(current); ok {
		a, _ := s.Addon(addonKey)
		a.OptionsConfigured = true
	}
	if current == StepAddonMenuItem {
		s.PendingAddonCategory = ""
	}
	s.Step = next
	return nil
}

// Back moves to the previous visible step after cleaning up the step being
// left. At the first step it reports exit instead.
func (s *State) Back() (exit bool) {
	steps, idx := Position(s)
	if idx == 0 {
		return true
	}
	prev := steps[idx-1].Key
	s.leave(steps[idx].Key)
	s.Step = prev
	return false
}

func (s *State) leave(key string) {
	switch key {
	case StepDateTime:
		s.Date = ""
		s.DateSource = DateNone
		s.Times = nil
		s.ReservationError = ""
		s.clearSlot()
	case StepCheckout:
		s.clearSlot()
	case StepOptions:
		if s.Service != nil && s.Service.Source == SourceCatalogItem {
			s.SelectedOptions = nil
		}
	case StepMenuItem:
		s.PendingCategory = ""
	case StepBundleItem:
		s.Bundle = nil
	case StepAddonMenuItem:
		s.PendingAddonCategory = ""
	default:
		if addonKey, ok := addonKeyOf(key); ok {
			if a, found := s.Addon(addonKey); found && !a.OptionsConfigured {
				_ = s.RemoveAddon(addonKey)
			}
		}
	}
}
