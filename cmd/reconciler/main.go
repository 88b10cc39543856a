package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ken-Obieze/travel-tasks/internal/broker"
	"github.com/Ken-Obieze/travel-tasks/internal/config"
	"github.com/Ken-Obieze/travel-tasks/internal/db"
	"github.com/Ken-Obieze/travel-tasks/internal/dispatch"
	"github.com/Ken-Obieze/travel-tasks/internal/health"
	"github.com/Ken-Obieze/travel-tasks/internal/logging"
	"github.com/Ken-Obieze/travel-tasks/internal/metrics"
	"github.com/Ken-Obieze/travel-tasks/internal/notify"
	"github.com/Ken-Obieze/travel-tasks/internal/payments"
	"github.com/Ken-Obieze/travel-tasks/internal/store"
	"github.com/Ken-Obieze/travel-tasks/internal/task"
	"github.com/Ken-Obieze/travel-tasks/internal/tracing"
)

// server holds the reconciler service's wired dependencies.
type server struct {
	cfg        config.Config
	log        *logging.Logger
	dispatcher *dispatch.Dispatcher
	reconciler *payments.Reconciler
	gateway    *payments.Client
}

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New("traveltasks-reconciler")

	shutdownTracing, err := tracing.Init(ctx, "traveltasks-reconciler")
	if err != nil {
		logger.Plain().WithError(err).Fatal("tracing init failed")
	}
	defer shutdownTracing()

	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	pub, err := broker.NewNSQPublisher(cfg.NSQ.NsqdTCPAddr)
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq producer failed")
	}
	defer pub.Stop()

	// Dispatch-side registry: names and policies only, handlers live in
	// the worker. Fails fast on duplicate or missing names.
	registry := task.NewRegistry()
	policy := task.RetryPolicy{
		MaxRetries:   cfg.Worker.MaxRetries,
		BaseDelay:    cfg.Worker.BaseDelay,
		Backoff:      task.BackoffExponential,
		DelayCeiling: cfg.Worker.DelayCeiling,
	}
	if err := notify.DeclareTasks(registry, policy); err != nil {
		logger.Plain().WithError(err).Fatal("task declaration failed")
	}

	dispatcher := dispatch.New(registry, pub, logger)
	gateway := payments.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey, cfg.Gateway.Timeout)
	reconciler := payments.NewReconciler(gateway, store.New(pool), dispatcher, logger)

	s := &server{cfg: cfg, log: logger, dispatcher: dispatcher, reconciler: reconciler, gateway: gateway}

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/payments/initiate", s.handleInitiate)
	r.Post("/payments/webhook", s.handleWebhook)
	r.Get("/payments/verify/{txRef}", s.handleVerify)
	r.Post("/tasks", s.handleEnqueue)
	r.Get("/healthz", health.HTTPHandler(pool, cfg.NSQ.NsqdHTTPAddr))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	go func() {
		logger.Plain().WithField("addr", srv.Addr).Info("reconciler HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("reconciler HTTP server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down reconciler service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Plain().Info("reconciler service stopped")
}

type initiateRequest struct {
	TxRef     string `json:"tx_ref,omitempty"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency,omitempty"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// handleInitiate creates a hosted checkout with the provider. The tx_ref
// minted here is the key the webhook and verify flows reconcile on later.
func (s *server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if req.Amount == "" || req.Email == "" {
		http.Error(w, "amount and email are required", http.StatusBadRequest)
		return
	}
	if req.TxRef == "" {
		req.TxRef = "tx-" + uuid.NewString()
	}
	if req.Currency == "" {
		req.Currency = "ETB"
	}

	result, err := s.gateway.Initialize(r.Context(), payments.InitializeRequest{
		Amount:    req.Amount,
		Currency:  req.Currency,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		TxRef:     req.TxRef,
		Callback:  s.cfg.Gateway.CallbackURL,
	})
	switch {
	case errors.Is(err, broker.ErrUnavailable):
		http.Error(w, "provider unavailable", http.StatusServiceUnavailable)
		return
	case err != nil:
		s.log.WithContext(r.Context()).WithError(err).Error("checkout initialize failed")
		http.Error(w, "initialize failed", http.StatusInternalServerError)
		return
	}
	s.log.WithContext(r.Context()).WithField("tx_ref", result.TxRef).Info("checkout created")
	writeJSON(w, http.StatusCreated, map[string]any{
		"tx_ref":       result.TxRef,
		"checkout_url": result.CheckoutURL,
	})
}

// handleWebhook is the provider callback sink. The response is always fast
// and the triggering request never fails because an email failed: enqueue
// errors are surfaced through logs and metrics only.
func (s *server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if !payments.VerifySignature(s.cfg.Gateway.WebhookSecret, body, r.Header.Get(payments.SignatureHeader)) {
		s.log.WithContext(r.Context()).Warn("webhook signature mismatch")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	result, err := s.reconciler.HandleWebhook(r.Context(), body)
	switch {
	case errors.Is(err, payments.ErrUnknownTransaction):
		http.Error(w, "unknown transaction", http.StatusNotFound)
		return
	case errors.Is(err, broker.ErrUnavailable):
		// Ask the provider to redeliver; reconciliation is idempotent.
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
		return
	case err != nil:
		s.log.WithContext(r.Context()).WithError(err).Error("webhook processing failed")
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tx_ref":   result.TxRef,
		"status":   string(result.Status),
		"notified": result.Notified,
	})
}

// handleVerify triggers a reconciliation for a transaction reference, the
// pull-side twin of the webhook push.
func (s *server) handleVerify(w http.ResponseWriter, r *http.Request) {
	txRef := chi.URLParam(r, "txRef")
	result, err := s.reconciler.Reconcile(r.Context(), txRef)
	switch {
	case errors.Is(err, payments.ErrUnknownTransaction):
		http.Error(w, "unknown transaction", http.StatusNotFound)
		return
	case errors.Is(err, broker.ErrUnavailable):
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
		return
	case err != nil:
		s.log.WithContext(r.Context()).WithError(err).Error("verification failed")
		http.Error(w, "verification failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tx_ref":      result.TxRef,
		"booking_id":  result.BookingID,
		"status":      string(result.Status),
		"verified_at": result.VerifiedAt.Format(time.RFC3339),
		"notified":    result.Notified,
	})
}

type enqueueRequest struct {
	Task    string         `json:"task"`
	Payload map[string]any `json:"payload"`
	Queue   string         `json:"queue,omitempty"`
}

// handleEnqueue lets callers (and taskctl) enqueue a registered task.
func (s *server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if req.Task == "" {
		http.Error(w, "task is required", http.StatusBadRequest)
		return
	}
	var opts []dispatch.Option
	if req.Queue != "" {
		opts = append(opts, dispatch.ToQueue(req.Queue))
	}
	err := s.dispatcher.Enqueue(r.Context(), req.Task, req.Payload, opts...)
	switch {
	case errors.Is(err, task.ErrNotRegistered):
		http.Error(w, "unknown task name", http.StatusNotFound)
		return
	case errors.Is(err, broker.ErrUnavailable):
		http.Error(w, "broker unavailable", http.StatusServiceUnavailable)
		return
	case err != nil:
		http.Error(w, "enqueue failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
