package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ken-Obieze/travel-tasks/internal/logging"
	"github.com/Ken-Obieze/travel-tasks/internal/mailer"
	"github.com/Ken-Obieze/travel-tasks/internal/metrics"
	"github.com/Ken-Obieze/travel-tasks/internal/store"
	"github.com/Ken-Obieze/travel-tasks/internal/task"
)

// Task names and their routing queue. The names are the public contract
// between dispatching callers and the worker registry.
const (
	TaskBookingConfirmation = "send_booking_confirmation_email"
	TaskPaymentConfirmation = "send_payment_confirmation_email"
	TaskPaymentFailed       = "send_payment_failed_email"

	QueueEmails = "emails"
)

// BookingReader re-fetches booking state from the system of record.
type BookingReader interface {
	GetBooking(ctx context.Context, bookingID string) (store.Booking, error)
}

// PaymentReader re-fetches payment state from the system of record.
type PaymentReader interface {
	GetPayment(ctx context.Context, paymentID string) (store.Payment, error)
}

// Handlers holds the notification task implementations. Each handler
// re-reads authoritative state by id, builds the message, and sends it:
// payload snapshots are never trusted for fields that may have changed.
// Sending the same email twice is tolerated; handlers have no side effect
// beyond the email itself, so re-running them is safe.
type Handlers struct {
	Bookings BookingReader
	Payments PaymentReader
	Mail     mailer.Sender
	Log      *logging.Logger
}

// Register binds all notification tasks on the emails queue with the given
// retry policy.
func (h *Handlers) Register(reg *task.Registry, policy task.RetryPolicy) error {
	for name, fn := range map[string]task.HandlerFunc{
		TaskBookingConfirmation: h.BookingConfirmation,
		TaskPaymentConfirmation: h.PaymentConfirmation,
		TaskPaymentFailed:       h.PaymentFailed,
	} {
		if err := reg.Register(name, QueueEmails, fn, policy); err != nil {
			return err
		}
	}
	return nil
}

// DeclareTasks declares the notification task names, queue, and policy on
// a registry without binding handlers, for dispatch-only processes.
func DeclareTasks(reg *task.Registry, policy task.RetryPolicy) error {
	for _, name := range []string{TaskBookingConfirmation, TaskPaymentConfirmation, TaskPaymentFailed} {
		if err := reg.Declare(name, QueueEmails, policy); err != nil {
			return err
		}
	}
	return nil
}

// BookingConfirmation emails the guest after a host confirms their booking.
func (h *Handlers) BookingConfirmation(ctx context.Context, env task.Envelope) task.Outcome {
	bookingID := env.String("booking_id")
	if bookingID == "" {
		return task.Fatal("missing booking_id")
	}
	booking, err := h.Bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return classifyFetch(err)
	}

	msg := mailer.Message{
		To:      booking.GuestEmail,
		Subject: fmt.Sprintf("Booking Confirmed - %s", booking.PropertyName),
		Body:    bookingConfirmationBody(booking),
	}
	if out := h.send(ctx, msg); out.Status != task.StatusSuccess {
		return out
	}
	metrics.RecordEmailSent("booking_confirmation")
	h.Log.WithContext(ctx).WithBooking(bookingID).WithField("to", booking.GuestEmail).Info("booking confirmation sent")
	return task.Success()
}

// PaymentConfirmation emails the guest after their payment is confirmed.
func (h *Handlers) PaymentConfirmation(ctx context.Context, env task.Envelope) task.Outcome {
	paymentID := env.String("payment_id")
	if paymentID == "" {
		return task.Fatal("missing payment_id")
	}
	payment, err := h.Payments.GetPayment(ctx, paymentID)
	if err != nil {
		return classifyFetch(err)
	}
	booking, err := h.Bookings.GetBooking(ctx, payment.BookingID)
	if err != nil {
		return classifyFetch(err)
	}

	msg := mailer.Message{
		To:      payment.GuestEmail,
		Subject: fmt.Sprintf("Payment Confirmation - Booking #%s", payment.BookingID),
		Body:    paymentConfirmationBody(payment, booking),
	}
	if out := h.send(ctx, msg); out.Status != task.StatusSuccess {
		return out
	}
	metrics.RecordEmailSent("payment_confirmation")
	h.Log.WithContext(ctx).WithBooking(payment.BookingID).WithTxRef(payment.TxRef).Info("payment confirmation sent")
	return task.Success()
}

// PaymentFailed emails the guest when their payment could not be processed.
func (h *Handlers) PaymentFailed(ctx context.Context, env task.Envelope) task.Outcome {
	paymentID := env.String("payment_id")
	if paymentID == "" {
		return task.Fatal("missing payment_id")
	}
	payment, err := h.Payments.GetPayment(ctx, paymentID)
	if err != nil {
		return classifyFetch(err)
	}

	msg := mailer.Message{
		To:      payment.GuestEmail,
		Subject: "Payment Failed - Action Required",
		Body:    paymentFailedBody(payment),
	}
	if out := h.send(ctx, msg); out.Status != task.StatusSuccess {
		return out
	}
	metrics.RecordEmailSent("payment_failed")
	h.Log.WithContext(ctx).WithBooking(payment.BookingID).WithTxRef(payment.TxRef).Info("payment failed notice sent")
	return task.Success()
}

func (h *Handlers) send(ctx context.Context, msg mailer.Message) task.Outcome {
	if err := h.Mail.Send(ctx, msg); err != nil {
		if mailer.IsPermanent(err) {
			return task.Fatal(err.Error())
		}
		return task.Retry(err.Error())
	}
	return task.Success()
}

// classifyFetch maps a system-of-record error to an outcome: a missing
// entity will never appear by retrying, everything else might.
func classifyFetch(err error) task.Outcome {
	if errors.Is(err, store.ErrNotFound) {
		return task.Fatal(err.Error())
	}
	return task.Retry(err.Error())
}
