package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Ken-Obieze/travel-tasks/internal/logging"
	"github.com/Ken-Obieze/travel-tasks/internal/mailer"
	"github.com/Ken-Obieze/travel-tasks/internal/store"
	"github.com/Ken-Obieze/travel-tasks/internal/task"
)

type fakeBookings struct {
	bookings map[string]store.Booking
	err      error
}

func (f *fakeBookings) GetBooking(ctx context.Context, id string) (store.Booking, error) {
	if f.err != nil {
		return store.Booking{}, f.err
	}
	b, ok := f.bookings[id]
	if !ok {
		return store.Booking{}, fmt.Errorf("%w: booking %s", store.ErrNotFound, id)
	}
	return b, nil
}

type fakePayments struct {
	payments map[string]store.Payment
	err      error
}

func (f *fakePayments) GetPayment(ctx context.Context, id string) (store.Payment, error) {
	if f.err != nil {
		return store.Payment{}, f.err
	}
	p, ok := f.payments[id]
	if !ok {
		return store.Payment{}, fmt.Errorf("%w: payment %s", store.ErrNotFound, id)
	}
	return p, nil
}

type fakeSender struct {
	sent []mailer.Message
	err  error
}

func (f *fakeSender) Send(ctx context.Context, msg mailer.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func testBooking() store.Booking {
	return store.Booking{
		ID:           "b1",
		Status:       "confirmed",
		StartDate:    time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
		TotalPrice:   "400.00",
		Currency:     "ETB",
		GuestName:    "Abel Tesfaye",
		GuestEmail:   "abel@example.com",
		PropertyName: "Lakeside Villa",
		Location:     "Bahir Dar",
		HostName:     "Hanna Girma",
		HostEmail:    "hanna@example.com",
	}
}

func testPayment() store.Payment {
	return store.Payment{
		ID:            "p1",
		BookingID:     "b1",
		TxRef:         "tx-123",
		TransactionID: "CH-9f2",
		Status:        "completed",
		Amount:        "400.00",
		Currency:      "ETB",
		GuestName:     "Abel Tesfaye",
		GuestEmail:    "abel@example.com",
	}
}

func newHandlers(bookings *fakeBookings, payments *fakePayments, mail *fakeSender) *Handlers {
	return &Handlers{
		Bookings: bookings,
		Payments: payments,
		Mail:     mail,
		Log:      logging.New("notify-test"),
	}
}

func envelope(name string, payload map[string]any) task.Envelope {
	return task.NewEnvelope(name, QueueEmails, payload, 3)
}

func TestBookingConfirmation(t *testing.T) {
	mail := &fakeSender{}
	h := newHandlers(
		&fakeBookings{bookings: map[string]store.Booking{"b1": testBooking()}},
		&fakePayments{},
		mail,
	)

	out := h.BookingConfirmation(context.Background(), envelope(TaskBookingConfirmation, map[string]any{"booking_id": "b1"}))
	if out.Status != task.StatusSuccess {
		t.Fatalf("BookingConfirmation() = %+v, want success", out)
	}
	if len(mail.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(mail.sent))
	}

	msg := mail.sent[0]
	if msg.To != "abel@example.com" {
		t.Errorf("To = %q, want guest email", msg.To)
	}
	if !strings.Contains(msg.Subject, "Lakeside Villa") {
		t.Errorf("Subject = %q, want property name", msg.Subject)
	}
	for _, want := range []string{"Lakeside Villa", "Bahir Dar", "2026-09-10", "2026-09-14", "ETB 400.00", "Hanna Girma"} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if !strings.Contains(msg.Body, "Phone: N/A") {
		t.Errorf("body missing phone fallback, got:\n%s", msg.Body)
	}
}

func TestPaymentConfirmation(t *testing.T) {
	mail := &fakeSender{}
	h := newHandlers(
		&fakeBookings{bookings: map[string]store.Booking{"b1": testBooking()}},
		&fakePayments{payments: map[string]store.Payment{"p1": testPayment()}},
		mail,
	)

	out := h.PaymentConfirmation(context.Background(), envelope(TaskPaymentConfirmation, map[string]any{"payment_id": "p1"}))
	if out.Status != task.StatusSuccess {
		t.Fatalf("PaymentConfirmation() = %+v, want success", out)
	}
	if len(mail.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(mail.sent))
	}

	msg := mail.sent[0]
	if !strings.Contains(msg.Subject, "b1") {
		t.Errorf("Subject = %q, want booking id", msg.Subject)
	}
	for _, want := range []string{"CH-9f2", "ETB 400.00", "Lakeside Villa", "4 nights"} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestPaymentFailed(t *testing.T) {
	mail := &fakeSender{}
	h := newHandlers(
		&fakeBookings{},
		&fakePayments{payments: map[string]store.Payment{"p1": testPayment()}},
		mail,
	)

	out := h.PaymentFailed(context.Background(), envelope(TaskPaymentFailed, map[string]any{"payment_id": "p1"}))
	if out.Status != task.StatusSuccess {
		t.Fatalf("PaymentFailed() = %+v, want success", out)
	}
	if len(mail.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(mail.sent))
	}
	if !strings.Contains(mail.sent[0].Body, "Booking Reference: b1") {
		t.Errorf("body missing booking reference")
	}
}

func TestHandlersMissingPayloadKey(t *testing.T) {
	h := newHandlers(&fakeBookings{}, &fakePayments{}, &fakeSender{})

	tests := []struct {
		name string
		run  func() task.Outcome
	}{
		{name: "booking confirmation", run: func() task.Outcome {
			return h.BookingConfirmation(context.Background(), envelope(TaskBookingConfirmation, nil))
		}},
		{name: "payment confirmation", run: func() task.Outcome {
			return h.PaymentConfirmation(context.Background(), envelope(TaskPaymentConfirmation, nil))
		}},
		{name: "payment failed", run: func() task.Outcome {
			return h.PaymentFailed(context.Background(), envelope(TaskPaymentFailed, nil))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if out := tt.run(); out.Status != task.StatusFatal {
				t.Errorf("outcome = %+v, want fatal for missing payload key", out)
			}
		})
	}
}

func TestHandlersFetchClassification(t *testing.T) {
	t.Run("missing entity is fatal", func(t *testing.T) {
		h := newHandlers(&fakeBookings{}, &fakePayments{}, &fakeSender{})
		out := h.BookingConfirmation(context.Background(), envelope(TaskBookingConfirmation, map[string]any{"booking_id": "gone"}))
		if out.Status != task.StatusFatal {
			t.Errorf("outcome = %+v, want fatal for missing booking", out)
		}
	})

	t.Run("store outage is retryable", func(t *testing.T) {
		h := newHandlers(&fakeBookings{err: errors.New("connection refused")}, &fakePayments{}, &fakeSender{})
		out := h.BookingConfirmation(context.Background(), envelope(TaskBookingConfirmation, map[string]any{"booking_id": "b1"}))
		if out.Status != task.StatusRetryable {
			t.Errorf("outcome = %+v, want retryable for store outage", out)
		}
	})
}

func TestHandlersSendClassification(t *testing.T) {
	bookings := &fakeBookings{bookings: map[string]store.Booking{"b1": testBooking()}}

	t.Run("transient send failure is retryable", func(t *testing.T) {
		h := newHandlers(bookings, &fakePayments{}, &fakeSender{err: errors.New("dial tcp: i/o timeout")})
		out := h.BookingConfirmation(context.Background(), envelope(TaskBookingConfirmation, map[string]any{"booking_id": "b1"}))
		if out.Status != task.StatusRetryable {
			t.Errorf("outcome = %+v, want retryable", out)
		}
	})

	t.Run("permanent send failure is fatal", func(t *testing.T) {
		h := newHandlers(bookings, &fakePayments{}, &fakeSender{err: mailer.Permanent(errors.New("550 no such user"))})
		out := h.BookingConfirmation(context.Background(), envelope(TaskBookingConfirmation, map[string]any{"booking_id": "b1"}))
		if out.Status != task.StatusFatal {
			t.Errorf("outcome = %+v, want fatal", out)
		}
	})
}

func TestRegisterBindsAllTasks(t *testing.T) {
	h := newHandlers(&fakeBookings{}, &fakePayments{}, &fakeSender{})
	reg := task.NewRegistry()
	if err := h.Register(reg, task.RetryPolicy{MaxRetries: 3}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := reg.ValidateNames(TaskBookingConfirmation, TaskPaymentConfirmation, TaskPaymentFailed); err != nil {
		t.Errorf("ValidateNames() error: %v", err)
	}
	for _, name := range []string{TaskBookingConfirmation, TaskPaymentConfirmation, TaskPaymentFailed} {
		q, err := reg.Queue(name)
		if err != nil {
			t.Fatalf("Queue(%s) error: %v", name, err)
		}
		if q != QueueEmails {
			t.Errorf("Queue(%s) = %q, want %q", name, q, QueueEmails)
		}
	}
}

func TestDeclareTasks(t *testing.T) {
	reg := task.NewRegistry()
	if err := DeclareTasks(reg, task.RetryPolicy{MaxRetries: 3}); err != nil {
		t.Fatalf("DeclareTasks() error: %v", err)
	}
	for _, name := range []string{TaskBookingConfirmation, TaskPaymentConfirmation, TaskPaymentFailed} {
		if _, err := reg.Policy(name); err != nil {
			t.Errorf("Policy(%s) error: %v", name, err)
		}
		if _, err := reg.Resolve(name); !errors.Is(err, task.ErrNotRegistered) {
			t.Errorf("Resolve(%s) = %v, want ErrNotRegistered", name, err)
		}
	}
}
