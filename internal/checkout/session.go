// Package checkout runs the reservation-to-confirmation sub-flow for one cart:
// phone capture, code verification, optimistic checkout for returning
// clients, the details fallback and the hold countdown.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/reluxe-code/reluxe-booking/internal/catalog"
	"github.com/reluxe-code/reluxe-booking/internal/events"
	"github.com/reluxe-code/reluxe-booking/internal/observability/metrics"
	"github.com/reluxe-code/reluxe-booking/pkg/logging"
)

// Stage is a checkout sub-flow state.
type Stage string

const (
	StagePhone      Stage = "phone"
	StageVerify     Stage = "verify"
	StageConfirming Stage = "confirming"
	StageDetails    Stage = "details"
	StageDone       Stage = "done"
	StageExpired    Stage = "expired"
)

const (
	// CodeLength is the verification code length; entry auto-submits at it.
	CodeLength = 6

	DefaultResendCooldown = 30 * time.Second
)

// Backend is the slice of the catalog client checkout uses.
type Backend interface {
	SendVerificationCode(ctx context.Context, cartID, phone string) (*catalog.CodeChallenge, error)
	VerifyCode(ctx context.Context, req catalog.VerifyRequest) (*catalog.VerifyResult, error)
	Checkout(ctx context.Context, cartID string, in catalog.CheckoutInput) (*catalog.CheckoutResult, error)
}

// Ledger remembers carts that already checked out.
type Ledger interface {
	Lookup(ctx context.Context, cartID string) (string, bool, error)
	Record(ctx context.Context, cartID, bookingID string) (bool, error)
}

// Config tunes a session. Zero values get defaults.
type Config struct {
	FlowID         string
	ResendCooldown time.Duration
	Now            func() time.Time
	Logger         *logging.Logger
	Tracker        events.Sink
	Metrics        *metrics.BookingMetrics
	Ledger         Ledger
}

// Callbacks notify the owning flow. They are never invoked with the session
// lock held.
type Callbacks struct {
	OnExpired   func(cartID string)
	OnConfirmed func(cartID string, conf catalog.Confirmation)
}

// Slot identifies the reserved appointment for code verification.
type Slot struct {
	Date      string
	StartTime time.Time
}

// Session is the checkout state machine for one cart.
type Session struct {
	backend Backend
	cart    catalog.Cart
	slot    Slot
	cfg     Config
	cb      Callbacks
	logger  *logging.Logger

	mu           sync.Mutex
	stage        Stage
	phone        string
	codeID       string
	code         string
	verified     bool
	resendAt     time.Time
	resending    bool
	details      Details
	fieldErrors  map[string]string
	message      string
	confirmation *catalog.Confirmation
	closed       bool

	flight     singleflight.Group
	expireOnce sync.Once
}

// NewSession starts a session at the phone stage.
func NewSession(backend Backend, cart catalog.Cart, slot Slot, cfg Config, cb Callbacks) *Session {
	if backend == nil {
		panic("checkout: backend cannot be nil")
	}
	if cfg.ResendCooldown <= 0 {
		cfg.ResendCooldown = DefaultResendCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Tracker == nil {
		cfg.Tracker = events.NopSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Session{
		backend: backend,
		cart:    cart,
		slot:    slot,
		cfg:     cfg,
		cb:      cb,
		logger:  logger.With("cart_id", cart.ID),
		stage:   StagePhone,
	}
}

// CartID returns the cart this session checks out.
func (s *Session) CartID() string { return s.cart.ID }

// Stage returns the current stage.
func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// SubmitPhone validates the number and requests a verification code.
func (s *Session) SubmitPhone(ctx context.Context, raw string) error {
	s.mu.Lock()
	if err := s.usableLocked(StagePhone); err != nil {
		s.mu.Unlock()
		return err
	}
	digits, err := NormalizePhone(raw)
	if err != nil {
		s.message = "Enter a 10-digit US phone number."
		s.mu.Unlock()
		return err
	}
	s.message = ""
	s.mu.Unlock()

	_, err, _ = s.flight.Do("phone", func() (any, error) {
		return nil, s.sendCode(ctx, digits, false)
	})
	return err
}

// Resend requests a new code. It is refused during the cooldown and while
// another resend is in flight.
func (s *Session) Resend(ctx context.Context) error {
	s.mu.Lock()
	if err := s.usableLocked(StageVerify); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.resending {
		s.mu.Unlock()
		return ErrResendInFlight
	}
	if s.cfg.Now().Before(s.resendAt) {
		s.mu.Unlock()
		return ErrResendCooldown
	}
	s.resending = true
	phone := s.phone
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.resending = false
		s.mu.Unlock()
	}()
	return s.sendCode(ctx, phone, true)
}

func (s *Session) sendCode(ctx context.Context, digits string, resend bool) error {
	challenge, err := s.backend.SendVerificationCode(ctx, s.cart.ID, E164(digits))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if err != nil {
		if errors.Is(err, catalog.ErrCartExpired) {
			s.mu.Unlock()
			s.expire()
			return nil
		}
		s.message = "We couldn't send a code. Please try again."
		s.mu.Unlock()
		s.logger.Warn("send verification code failed", "resend", resend, "error", err)
		return fmt.Errorf("%w: %w", ErrSendCodeFailed, err)
	}

	s.phone = digits
	s.code = ""
	s.message = ""
	skip := challenge.SkipVerification
	if skip {
		s.stage = StageDetails
	} else {
		s.codeID = challenge.CodeID
		s.stage = StageVerify
		s.resendAt = s.cfg.Now().Add(s.cfg.ResendCooldown)
	}
	s.mu.Unlock()

	if !resend {
		s.cfg.Tracker.Track(ctx, events.New(events.ContactProvided, s.cfg.FlowID, map[string]any{
			"cart_id":           s.cart.ID,
			"channel":           "phone",
			"skip_verification": skip,
		}))
	}
	return nil
}

// EnterCode records code entry. Once CodeLength digits are present the code
// is verified and checkout is attempted immediately.
func (s *Session) EnterCode(ctx context.Context, raw string) error {
	s.mu.Lock()
	if err := s.usableLocked(StageVerify); err != nil {
		s.mu.Unlock()
		return err
	}
	digits := onlyDigits(raw)
	if len(digits) > CodeLength {
		s.message = "The code is 6 digits."
		s.mu.Unlock()
		return ErrInvalidCode
	}
	s.code = digits
	s.message = ""
	codeID := s.codeID
	s.mu.Unlock()

	if len(digits) < CodeLength {
		return nil
	}
	_, err, _ := s.flight.Do("verify:"+codeID+":"+digits, func() (any, error) {
		return nil, s.verify(ctx, codeID, digits)
	})
	return err
}

func (s *Session) verify(ctx context.Context, codeID, code string) error {
	start := s.slot.StartTime
	res, err := s.backend.VerifyCode(ctx, catalog.VerifyRequest{
		CartID:    s.cart.ID,
		CodeID:    codeID,
		Code:      code,
		Date:      s.slot.Date,
		StartTime: &start,
	})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.stage != StageVerify || s.codeID != codeID {
		// superseded by a resend
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		if errors.Is(err, catalog.ErrCartExpired) {
			s.mu.Unlock()
			s.expire()
			return nil
		}
		s.code = ""
		s.message = "That code didn't work. Try again or resend."
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrCodeRejected, err)
	}
	s.verified = true
	if res != nil {
		s.details.prefill(profileDetails(res.Client))
	}
	s.stage = StageConfirming
	s.mu.Unlock()

	return s.checkout(ctx, catalog.CheckoutInput{OwnershipVerified: true})
}

// SubmitDetails validates the form and checks out with the full payload.
// Validation and server errors leave the session in the details stage.
func (s *Session) SubmitDetails(ctx context.Context, in Details) error {
	in = in.normalized()

	s.mu.Lock()
	if err := s.usableLocked(StageDetails); err != nil {
		s.mu.Unlock()
		return err
	}
	s.details = in
	if err := in.Validate(); err != nil {
		var derr *DetailsError
		if errors.As(err, &derr) {
			s.fieldErrors = derr.Fields
		}
		s.message = "Please fix the highlighted fields."
		s.mu.Unlock()
		return err
	}
	s.fieldErrors = nil
	s.message = ""
	input := catalog.CheckoutInput{
		OwnershipVerified: s.verified,
		FirstName:         in.FirstName,
		LastName:          in.LastName,
		Email:             in.Email,
		ReferralCode:      in.ReferralCode,
	}
	if s.phone != "" {
		input.Phone = E164(s.phone)
	}
	s.mu.Unlock()

	return s.checkout(ctx, input)
}

// checkout is single-flight per cart: a submission made while another is
// pending waits for it and shares its result.
func (s *Session) checkout(ctx context.Context, input catalog.CheckoutInput) error {
	_, err, _ := s.flight.Do("checkout:"+s.cart.ID, func() (any, error) {
		return nil, s.runCheckout(ctx, input)
	})
	return err
}

func (s *Session) runCheckout(ctx context.Context, input catalog.CheckoutInput) error {
	if s.cfg.Ledger != nil {
		bookingID, found, err := s.cfg.Ledger.Lookup(ctx, s.cart.ID)
		switch {
		case err != nil:
			s.logger.Warn("checkout ledger lookup failed", "error", err)
		case found:
			s.logger.Info("cart already checked out", "booking_id", bookingID)
			s.succeed(ctx, &catalog.Confirmation{BookingID: bookingID, Status: "confirmed"}, false)
			return nil
		}
	}

	res, err := s.backend.Checkout(ctx, s.cart.ID, input)
	if err != nil {
		if errors.Is(err, catalog.ErrCartExpired) {
			s.expire()
			return nil
		}
		s.cfg.Metrics.ObserveCheckout("error")
		s.mu.Lock()
		if s.stage == StageConfirming {
			s.stage = StageDetails
		}
		s.message = "We couldn't complete your booking. Please try again."
		s.mu.Unlock()
		s.logger.Warn("checkout failed", "error", err)
		return fmt.Errorf("%w: %w", ErrCheckoutFailed, err)
	}

	switch res.Outcome {
	case catalog.CheckoutSucceeded:
		s.succeed(ctx, res.Confirmation, true)
	case catalog.CheckoutExpired:
		s.expire()
	case catalog.CheckoutNeedsClientInfo:
		s.cfg.Metrics.ObserveCheckout(res.Outcome.String())
		s.mu.Lock()
		if !s.closed {
			s.details.prefill(profileDetails(res.Client))
			s.stage = StageDetails
			s.message = ""
		}
		s.mu.Unlock()
	}
	return nil
}

func (s *Session) succeed(ctx context.Context, conf *catalog.Confirmation, record bool) {
	if conf == nil {
		conf = &catalog.Confirmation{}
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.stage = StageDone
	s.confirmation = conf
	s.message = ""
	s.mu.Unlock()

	s.cfg.Metrics.ObserveCheckout(catalog.CheckoutSucceeded.String())
	if record && s.cfg.Ledger != nil {
		if _, err := s.cfg.Ledger.Record(ctx, s.cart.ID, conf.BookingID); err != nil {
			s.logger.Error("checkout ledger record failed", "error", err, "booking_id", conf.BookingID)
		}
	}
	if s.cb.OnConfirmed != nil {
		s.cb.OnConfirmed(s.cart.ID, *conf)
	}
}

// Tick reports the hold time left at now and expires the session once it
// reaches zero.
func (s *Session) Tick(now time.Time) time.Duration {
	remaining := s.cart.ExpiresAt.Sub(now)
	if remaining <= 0 {
		s.expire()
		return 0
	}
	return remaining
}

// Remaining is Tick at the session clock.
func (s *Session) Remaining() time.Duration {
	return s.Tick(s.cfg.Now())
}

// Run ticks the countdown every second until the session ends or ctx is done.
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.Remaining() <= 0 || s.finished() {
				return
			}
		}
	}
}

// Close detaches the session; later calls fail with ErrSessionClosed and the
// expiry callback can no longer fire.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Session) expire() {
	s.expireOnce.Do(func() {
		s.mu.Lock()
		if s.closed || s.stage == StageDone {
			s.mu.Unlock()
			return
		}
		s.stage = StageExpired
		s.mu.Unlock()

		s.cfg.Metrics.ObserveCartExpired()
		s.cfg.Metrics.ObserveCheckout(catalog.CheckoutExpired.String())
		s.logger.Info("cart hold expired")
		if s.cb.OnExpired != nil {
			s.cb.OnExpired(s.cart.ID)
		}
	})
}

func (s *Session) finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed || s.stage == StageDone || s.stage == StageExpired
}

func (s *Session) usableLocked(want Stage) error {
	if s.closed || s.stage == StageExpired {
		return ErrSessionClosed
	}
	if s.stage != want {
		return fmt.Errorf("%w: in %s, need %s", ErrWrongStage, s.stage, want)
	}
	return nil
}

func profileDetails(p *catalog.ClientProfile) *Details {
	if p.Empty() {
		return nil
	}
	return &Details{FirstName: p.FirstName, LastName: p.LastName, Email: p.Email}
}
