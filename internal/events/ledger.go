package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CheckoutLedger records carts that already completed checkout.
type CheckoutLedger struct {
	pool rowQuerier
}

func NewCheckoutLedger(pool *pgxpool.Pool) *CheckoutLedger {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &CheckoutLedger{pool: pool}
}

func newCheckoutLedgerWithExec(exec rowQuerier) *CheckoutLedger {
	if exec == nil {
		panic("events: exec required")
	}
	return &CheckoutLedger{pool: exec}
}

// Lookup returns the booking id recorded for cartID, if any.
func (l *CheckoutLedger) Lookup(ctx context.Context, cartID string) (string, bool, error) {
	query := `SELECT booking_id FROM checkout_ledger WHERE cart_id = $1`
	var bookingID string
	if err := l.pool.QueryRow(ctx, query, cartID).Scan(&bookingID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("events: lookup checkout: %w", err)
	}
	return bookingID, true, nil
}

// Record stores a confirmed cart, returning false if it was already recorded.
func (l *CheckoutLedger) Record(ctx context.Context, cartID, bookingID string) (bool, error) {
	query := `
		INSERT INTO checkout_ledger (cart_id, booking_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := l.pool.Exec(ctx, query, cartID, bookingID)
	if err != nil {
		return false, fmt.Errorf("events: record checkout: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
