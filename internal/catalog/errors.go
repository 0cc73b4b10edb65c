package catalog

import (
	"errors"
	"fmt"
)

// Backend error codes carried in GraphQL error extensions.
const (
	CodeSlotUnavailable    = "SLOT_UNAVAILABLE"
	CodeCartExpired        = "CART_EXPIRED"
	CodeGone               = "GONE"
	CodeClientInfoRequired = "CLIENT_INFO_REQUIRED"
	CodeNotFound           = "NOT_FOUND"
)

var (
	// ErrSlotUnavailable means the requested time was taken before it could be held.
	ErrSlotUnavailable = errors.New("catalog: slot no longer available")
	// ErrCartExpired means the reservation is gone.
	ErrCartExpired = errors.New("catalog: cart expired")
	// ErrNotFound means the referenced catalog entity does not exist.
	ErrNotFound = errors.New("catalog: not found")
	// ErrClientInfoRequired means checkout needs a client profile.
	ErrClientInfoRequired = errors.New("catalog: client info required")
)

// Error is a classified backend error.
type Error struct {
	Operation string
	Code      string
	Message   string
	Client    *ClientProfile
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("catalog: %s: %s (%s)", e.Operation, e.Message, e.Code)
	}
	return fmt.Sprintf("catalog: %s: %s", e.Operation, e.Message)
}

// Is lets errors.Is match the sentinel for the error's code.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrSlotUnavailable:
		return e.Code == CodeSlotUnavailable
	case ErrCartExpired:
		return e.Code == CodeCartExpired || e.Code == CodeGone
	case ErrNotFound:
		return e.Code == CodeNotFound
	case ErrClientInfoRequired:
		return e.Code == CodeClientInfoRequired
	}
	return false
}

func errorFromGraphQL(operation string, errs []graphQLError) error {
	if len(errs) == 0 {
		return nil
	}
	first := errs[0]
	// Prefer a classified error if any entry carries a code.
	for _, e := range errs {
		if e.Extensions.Code != "" {
			first = e
			break
		}
	}
	return &Error{
		Operation: operation,
		Code:      first.Extensions.Code,
		Message:   first.Message,
		Client:    first.Extensions.Client,
	}
}
