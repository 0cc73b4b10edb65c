package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/reluxe-code/reluxe-booking/internal/booking"
	"github.com/reluxe-code/reluxe-booking/internal/checkout"
	"github.com/reluxe-code/reluxe-booking/internal/session"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeBody reads a JSON body into dst. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// statusFor maps engine errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrInvalidDetails),
		errors.Is(err, checkout.ErrCodeRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, booking.ErrUnknownService),
		errors.Is(err, booking.ErrUnknownLocation),
		errors.Is(err, booking.ErrUnknownOption),
		errors.Is(err, booking.ErrUnknownAddon),
		errors.Is(err, booking.ErrUnknownSlot),
		errors.Is(err, booking.ErrUnknownStep),
		errors.Is(err, booking.ErrInvalidDate),
		errors.Is(err, checkout.ErrInvalidPhone),
		errors.Is(err, checkout.ErrInvalidCode):
		return http.StatusBadRequest
	case errors.Is(err, checkout.ErrResendCooldown):
		return http.StatusTooManyRequests
	case errors.Is(err, booking.ErrNoService),
		errors.Is(err, booking.ErrNoLocation),
		errors.Is(err, booking.ErrNoDate),
		errors.Is(err, booking.ErrOptionsIncomplete),
		errors.Is(err, booking.ErrNoCheckout),
		errors.Is(err, booking.ErrLastStep),
		errors.Is(err, booking.ErrDuplicateAddon),
		errors.Is(err, booking.ErrSuperseded),
		errors.Is(err, checkout.ErrWrongStage),
		errors.Is(err, checkout.ErrSessionClosed),
		errors.Is(err, checkout.ErrResendInFlight):
		return http.StatusConflict
	case errors.Is(err, checkout.ErrCheckoutFailed),
		errors.Is(err, checkout.ErrSendCodeFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	if status == http.StatusInternalServerError {
		resp.Error = "internal error"
	}
	var derr *checkout.DetailsError
	if errors.As(err, &derr) {
		resp.Fields = derr.Fields
	}
	writeJSON(w, status, resp)
}
