package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound reports that a referenced entity no longer exists. Handlers
// treat it as a permanent failure.
var ErrNotFound = errors.New("store: not found")

// Booking is the flattened read model a notification needs: the booking
// row joined with its guest, property, and host. Handlers always re-fetch
// this instead of trusting payload snapshots.
type Booking struct {
	ID            string
	Status        string
	StartDate     time.Time
	EndDate       time.Time
	TotalPrice    string
	Currency      string
	GuestName     string
	GuestEmail    string
	PropertyName  string
	Location      string
	HostName      string
	HostEmail     string
	HostPhone     string
}

// Payment is the payment row joined with its booking's guest.
type Payment struct {
	ID            string
	BookingID     string
	TxRef         string
	TransactionID string
	Status        string
	Amount        string
	Currency      string
	PaidAt        *time.Time
	GuestName     string
	GuestEmail    string
}

// Store reads and updates booking/payment state in Postgres. Connections
// are checked out of the pool per call, never held across executions.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetBooking(ctx context.Context, bookingID string) (Booking, error) {
	var b Booking
	err := s.pool.QueryRow(ctx, `
		SELECT b.id, b.status, b.start_date, b.end_date, b.total_price::text, b.currency,
		       g.first_name || ' ' || g.last_name, g.email,
		       p.name, p.location,
		       h.first_name || ' ' || h.last_name, h.email, COALESCE(h.phone_number, '')
		FROM bookings b
		JOIN users g ON g.id = b.user_id
		JOIN properties p ON p.id = b.property_id
		JOIN users h ON h.id = p.host_id
		WHERE b.id = $1`, bookingID,
	).Scan(&b.ID, &b.Status, &b.StartDate, &b.EndDate, &b.TotalPrice, &b.Currency,
		&b.GuestName, &b.GuestEmail,
		&b.PropertyName, &b.Location,
		&b.HostName, &b.HostEmail, &b.HostPhone)
	if errors.Is(err, pgx.ErrNoRows) {
		return Booking{}, fmt.Errorf("%w: booking %s", ErrNotFound, bookingID)
	}
	if err != nil {
		return Booking{}, fmt.Errorf("get booking %s: %w", bookingID, err)
	}
	return b, nil
}

func (s *Store) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	return s.getPayment(ctx, "pm.id", paymentID)
}

func (s *Store) GetPaymentByTxRef(ctx context.Context, txRef string) (Payment, error) {
	return s.getPayment(ctx, "pm.tx_ref", txRef)
}

func (s *Store) getPayment(ctx context.Context, column, key string) (Payment, error) {
	var p Payment
	err := s.pool.QueryRow(ctx, `
		SELECT pm.id, pm.booking_id, pm.tx_ref, COALESCE(pm.transaction_id, ''), pm.status,
		       pm.amount::text, pm.currency, pm.paid_at,
		       g.first_name || ' ' || g.last_name, g.email
		FROM payments pm
		JOIN bookings b ON b.id = pm.booking_id
		JOIN users g ON g.id = b.user_id
		WHERE `+column+` = $1`, key,
	).Scan(&p.ID, &p.BookingID, &p.TxRef, &p.TransactionID, &p.Status,
		&p.Amount, &p.Currency, &p.PaidAt,
		&p.GuestName, &p.GuestEmail)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, fmt.Errorf("%w: payment %s", ErrNotFound, key)
	}
	if err != nil {
		return Payment{}, fmt.Errorf("get payment %s: %w", key, err)
	}
	return p, nil
}

// SetPaymentStatus records the terminal provider status and transaction id
// for a payment.
func (s *Store) SetPaymentStatus(ctx context.Context, txRef, status, transactionID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payments
		SET status = $2, transaction_id = NULLIF($3, ''), paid_at = CASE WHEN $2 = 'completed' THEN now() ELSE paid_at END, updated_at = now()
		WHERE tx_ref = $1`, txRef, status, transactionID)
	if err != nil {
		return fmt.Errorf("set payment status %s: %w", txRef, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: payment %s", ErrNotFound, txRef)
	}
	return nil
}

// MarkNotified upserts the per-transaction notified marker and reports
// whether this call inserted it. Only the inserting caller enqueues the
// notification task, so repeated webhook delivery or re-verification
// enqueues at most one task per terminal transition.
func (s *Store) MarkNotified(ctx context.Context, txRef, status string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO payment_reconciliations(tx_ref, status, verified_at)
		VALUES ($1, $2, now())
		ON CONFLICT (tx_ref) DO NOTHING`, txRef, status)
	if err != nil {
		return false, fmt.Errorf("mark notified %s: %w", txRef, err)
	}
	return tag.RowsAffected() == 1, nil
}
