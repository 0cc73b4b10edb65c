package checkout

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrInvalidPhone   = errors.New("checkout: phone must be 10 US digits")
	ErrInvalidCode    = errors.New("checkout: code must be 6 digits")
	ErrCodeRejected   = errors.New("checkout: verification code rejected")
	ErrInvalidDetails = errors.New("checkout: invalid details")
	ErrResendCooldown = errors.New("checkout: resend is cooling down")
	ErrResendInFlight = errors.New("checkout: resend already in progress")
	ErrWrongStage     = errors.New("checkout: action not allowed at this stage")
	ErrSessionClosed  = errors.New("checkout: session closed")
	ErrCheckoutFailed = errors.New("checkout: checkout failed")
	ErrSendCodeFailed = errors.New("checkout: could not send verification code")
)

// DetailsError lists the invalid fields of a details submission.
type DetailsError struct {
	Fields map[string]string
}

func (e *DetailsError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return ErrInvalidDetails.Error() + ": " + strings.Join(keys, ", ")
}

func (e *DetailsError) Unwrap() error { return ErrInvalidDetails }
