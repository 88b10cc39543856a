package main

// TODO: Integration coverage that needs real infrastructure lives outside
// this package: webhook reconciliation against Postgres and a live provider,
// and end-to-end enqueue-to-email delivery through nsqd.

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Ken-Obieze/travel-tasks/internal/broker"
	"github.com/Ken-Obieze/travel-tasks/internal/config"
	"github.com/Ken-Obieze/travel-tasks/internal/dispatch"
	"github.com/Ken-Obieze/travel-tasks/internal/logging"
	"github.com/Ken-Obieze/travel-tasks/internal/notify"
	"github.com/Ken-Obieze/travel-tasks/internal/payments"
	"github.com/Ken-Obieze/travel-tasks/internal/task"
)

func newTestServer(t *testing.T, b *broker.Memory) *server {
	t.Helper()
	logger := logging.New("reconciler-test")
	registry := task.NewRegistry()
	if err := notify.DeclareTasks(registry, task.RetryPolicy{MaxRetries: 3, BaseDelay: time.Minute}); err != nil {
		t.Fatalf("DeclareTasks() error: %v", err)
	}
	cfg := config.FromEnv()
	cfg.Gateway.WebhookSecret = "whsec_test"
	return &server{
		cfg:        cfg,
		log:        logger,
		dispatcher: dispatch.New(registry, b, logger),
	}
}

func TestHandleEnqueue(t *testing.T) {
	b := broker.NewMemory()
	defer b.Stop()
	s := newTestServer(t, b)

	body := `{"task":"send_booking_confirmation_email","payload":{"booking_id":"b1"}}`
	rec := httptest.NewRecorder()
	s.handleEnqueue(rec, httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["queued"] != true {
		t.Errorf("response = %v, want queued=true", resp)
	}
	if depth := b.Depth("emails"); depth != 1 {
		t.Errorf("emails queue depth = %d, want 1", depth)
	}
}

func TestHandleEnqueueErrors(t *testing.T) {
	b := broker.NewMemory()
	defer b.Stop()
	s := newTestServer(t, b)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "bad json", body: "{", want: http.StatusBadRequest},
		{name: "missing task", body: `{"payload":{}}`, want: http.StatusBadRequest},
		{name: "unknown task", body: `{"task":"no_such_task"}`, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.handleEnqueue(rec, httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandleEnqueueQueueOverride(t *testing.T) {
	b := broker.NewMemory()
	defer b.Stop()
	s := newTestServer(t, b)

	body := `{"task":"send_payment_failed_email","payload":{"payment_id":"p1"},"queue":"priority_emails"}`
	rec := httptest.NewRecorder()
	s.handleEnqueue(rec, httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if depth := b.Depth("priority_emails"); depth != 1 {
		t.Errorf("priority_emails depth = %d, want 1", depth)
	}
	if depth := b.Depth("emails"); depth != 0 {
		t.Errorf("emails depth = %d, want 0", depth)
	}
}

func TestHandleWebhookSignature(t *testing.T) {
	b := broker.NewMemory()
	defer b.Stop()
	s := newTestServer(t, b)

	body := `{"tx_ref":"tx-1","status":"success"}`

	t.Run("missing signature rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.handleWebhook(rec, httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(body)))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("bogus signature rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/payments/webhook", strings.NewReader(body))
		req.Header.Set(payments.SignatureHeader, "deadbeef")
		rec := httptest.NewRecorder()
		s.handleWebhook(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestHandleInitiate(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/initialize" {
			t.Errorf("path = %q, want /transaction/initialize", r.URL.Path)
		}
		var req payments.InitializeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode provider request: %v", err)
		}
		if req.TxRef == "" {
			t.Error("provider received empty tx_ref")
		}
		if req.Currency != "ETB" {
			t.Errorf("currency = %q, want ETB default", req.Currency)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"checkout_url":"https://checkout.example/` + req.TxRef + `"}}`))
	}))
	defer provider.Close()

	b := broker.NewMemory()
	defer b.Stop()
	s := newTestServer(t, b)
	s.gateway = payments.NewClient(provider.URL, "sk_test", time.Second)

	body := `{"amount":"400.00","email":"guest@example.com","first_name":"Ada"}`
	rec := httptest.NewRecorder()
	s.handleInitiate(rec, httptest.NewRequest(http.MethodPost, "/payments/initiate", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		TxRef       string `json:"tx_ref"`
		CheckoutURL string `json:"checkout_url"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(resp.TxRef, "tx-") {
		t.Errorf("tx_ref = %q, want generated tx- prefix", resp.TxRef)
	}
	if !strings.HasSuffix(resp.CheckoutURL, resp.TxRef) {
		t.Errorf("checkout_url = %q does not reference %q", resp.CheckoutURL, resp.TxRef)
	}
}

func TestHandleInitiateErrors(t *testing.T) {
	// Closed before use so provider calls surface as unavailability.
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	provider.Close()

	b := broker.NewMemory()
	defer b.Stop()
	s := newTestServer(t, b)
	s.gateway = payments.NewClient(provider.URL, "sk_test", time.Second)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "bad json", body: "{", want: http.StatusBadRequest},
		{name: "missing amount", body: `{"email":"guest@example.com"}`, want: http.StatusBadRequest},
		{name: "missing email", body: `{"amount":"400.00"}`, want: http.StatusBadRequest},
		{name: "provider down", body: `{"amount":"400.00","email":"guest@example.com"}`, want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.handleInitiate(rec, httptest.NewRequest(http.MethodPost, "/payments/initiate", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusAccepted, map[string]any{"queued": true})

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	var decoded map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["queued"] != true {
		t.Errorf("body = %v", decoded)
	}
}
