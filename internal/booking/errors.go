package booking

import "errors"

var (
	ErrNoService         = errors.New("booking: no service selected")
	ErrNoLocation        = errors.New("booking: no location selected")
	ErrUnknownService    = errors.New("booking: unknown service")
	ErrUnknownLocation   = errors.New("booking: unknown location")
	ErrUnknownOption     = errors.New("booking: unknown option")
	ErrOptionsIncomplete = errors.New("booking: required options not selected")
	ErrDuplicateAddon    = errors.New("booking: add-on already selected")
	ErrUnknownAddon      = errors.New("booking: unknown add-on")
	ErrUnknownStep       = errors.New("booking: step not available")
	ErrUnknownSlot       = errors.New("booking: unknown time slot")
	ErrNoDate            = errors.New("booking: no date selected")
	ErrInvalidDate       = errors.New("booking: invalid date")
	ErrNoCheckout        = errors.New("booking: no active reservation")
	ErrLastStep          = errors.New("booking: already at the last step")
	ErrSuperseded        = errors.New("booking: request superseded by a newer selection")
)
