package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Ken-Obieze/travel-tasks/internal/dispatch"
	"github.com/Ken-Obieze/travel-tasks/internal/logging"
	"github.com/Ken-Obieze/travel-tasks/internal/metrics"
	"github.com/Ken-Obieze/travel-tasks/internal/notify"
	"github.com/Ken-Obieze/travel-tasks/internal/store"
	"github.com/Ken-Obieze/travel-tasks/internal/tracing"
)

// ErrUnknownTransaction reports a tx_ref with no matching payment row.
var ErrUnknownTransaction = errors.New("payments: unknown transaction reference")

// Verifier is the outbound provider verification capability.
type Verifier interface {
	Verify(ctx context.Context, txRef string) (VerifyResult, error)
}

// PaymentStore is the slice of the system of record the reconciler needs.
type PaymentStore interface {
	GetPaymentByTxRef(ctx context.Context, txRef string) (store.Payment, error)
	SetPaymentStatus(ctx context.Context, txRef, status, transactionID string) error
	MarkNotified(ctx context.Context, txRef, status string) (bool, error)
}

// Enqueuer dispatches a notification task, fire-and-forget. Satisfied by
// *dispatch.Dispatcher.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload map[string]any, opts ...dispatch.Option) error
}

// Result is one reconciliation of a transaction reference against the
// provider. Notified is true only for the call that performed the terminal
// transition; repeated webhooks and re-verifications see false.
type Result struct {
	TxRef      string
	BookingID  string
	PaymentID  string
	Status     Status
	VerifiedAt time.Time
	Notified   bool
}

// Reconciler drives each transaction reference through the
// Pending -> {Confirmed, Failed} state machine exactly once, no matter how
// many times the provider calls back.
type Reconciler struct {
	gateway  Verifier
	store    PaymentStore
	enqueuer Enqueuer
	log      *logging.Logger
}

func NewReconciler(gateway Verifier, st PaymentStore, enq Enqueuer, log *logging.Logger) *Reconciler {
	return &Reconciler{gateway: gateway, store: st, enqueuer: enq, log: log}
}

// Reconcile verifies txRef with the provider and, on a terminal status,
// records it and enqueues at most one notification task per reference.
// The notified marker is upserted before the enqueue: a duplicate webhook
// racing this call loses the upsert and enqueues nothing.
func (r *Reconciler) Reconcile(ctx context.Context, txRef string) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "payments.reconcile",
		attribute.String("tx_ref", txRef),
	)
	defer span.End()

	vr, err := r.gateway.Verify(ctx, txRef)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return Result{}, err
	}
	span.SetAttributes(attribute.String("status", string(vr.Status)))

	payment, err := r.store.GetPaymentByTxRef(ctx, txRef)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownTransaction, txRef)
		}
		return Result{}, err
	}

	result := Result{
		TxRef:      txRef,
		BookingID:  payment.BookingID,
		PaymentID:  payment.ID,
		Status:     vr.Status,
		VerifiedAt: vr.VerifiedAt,
	}
	if vr.Status == StatusPending {
		// Not terminal yet; nothing to record, the provider will call again.
		return result, nil
	}

	if err := r.store.SetPaymentStatus(ctx, txRef, paymentRowStatus(vr.Status), vr.TransactionID); err != nil {
		tracing.SetSpanError(ctx, err)
		return Result{}, err
	}

	first, err := r.store.MarkNotified(ctx, txRef, string(vr.Status))
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return Result{}, err
	}
	if !first {
		r.log.WithContext(ctx).WithTxRef(txRef).Info("already reconciled, skipping notification")
		return result, nil
	}

	metrics.RecordReconciliation(string(vr.Status))
	taskName := notify.TaskPaymentConfirmation
	if vr.Status == StatusFailed {
		taskName = notify.TaskPaymentFailed
	}
	payload := map[string]any{
		"payment_id": payment.ID,
		"booking_id": payment.BookingID,
	}
	if err := r.enqueuer.Enqueue(ctx, taskName, payload); err != nil {
		// The marker is already set, so this notification is lost unless
		// re-driven manually; surface it loudly.
		tracing.SetSpanError(ctx, err)
		r.log.WithContext(ctx).WithTxRef(txRef).WithError(err).Error("reconciled but notification enqueue failed")
		return result, err
	}
	result.Notified = true
	r.log.WithContext(ctx).WithTxRef(txRef).WithBooking(payment.BookingID).
		WithField("status", string(vr.Status)).Info("payment reconciled")
	return result, nil
}

// HandleWebhook processes one provider callback: parse, then reconcile.
// The webhook's own status field is advisory; Reconcile re-verifies with
// the provider before any state change.
func (r *Reconciler) HandleWebhook(ctx context.Context, body []byte) (Result, error) {
	ev, err := ParseWebhook(body)
	if err != nil {
		return Result{}, err
	}
	r.log.WithContext(ctx).WithTxRef(ev.TxRef).WithField("webhook_status", ev.Status).Info("webhook received")
	return r.Reconcile(ctx, ev.TxRef)
}

// paymentRowStatus maps a terminal reconciliation status onto the payment
// row vocabulary.
func paymentRowStatus(s Status) string {
	if s == StatusConfirmed {
		return "completed"
	}
	return "failed"
}
