package checkout

import (
	"math"
	"time"

	"github.com/reluxe-code/reluxe-booking/internal/catalog"
)

// View is a point-in-time rendering of the session.
type View struct {
	Stage            Stage                 `json:"stage"`
	CartID           string                `json:"cartId"`
	ExpiresAt        time.Time             `json:"expiresAt"`
	RemainingSeconds int                   `json:"remainingSeconds"`
	Summary          catalog.CartSummary   `json:"summary"`
	Phone            string                `json:"phone,omitempty"`
	CodeDigits       int                   `json:"codeDigits"`
	ResendInSeconds  int                   `json:"resendInSeconds"`
	CanResend        bool                  `json:"canResend"`
	Details          Details               `json:"details"`
	FieldErrors      map[string]string     `json:"fieldErrors,omitempty"`
	Message          string                `json:"message,omitempty"`
	Confirmation     *catalog.Confirmation `json:"confirmation,omitempty"`
}

// View renders the session at the session clock.
func (s *Session) View() View {
	now := s.cfg.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Stage:        s.stage,
		CartID:       s.cart.ID,
		ExpiresAt:    s.cart.ExpiresAt,
		Summary:      s.cart.Summary,
		Phone:        FormatPhone(s.phone),
		CodeDigits:   len(s.code),
		Details:      s.details,
		Message:      s.message,
		Confirmation: s.confirmation,
	}
	if len(s.fieldErrors) > 0 {
		v.FieldErrors = make(map[string]string, len(s.fieldErrors))
		for k, msg := range s.fieldErrors {
			v.FieldErrors[k] = msg
		}
	}
	v.RemainingSeconds = ceilSeconds(s.cart.ExpiresAt.Sub(now))
	if s.stage == StageVerify {
		v.ResendInSeconds = ceilSeconds(s.resendAt.Sub(now))
		v.CanResend = v.ResendInSeconds == 0 && !s.resending
	}
	return v
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
