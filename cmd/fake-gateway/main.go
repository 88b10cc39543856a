package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Ken-Obieze/travel-tasks/internal/payments"
)

// fake-gateway simulates a Chapa-style payment provider for local testing:
// it answers verification requests and, when a callback URL is configured,
// delivers signed webhooks (twice, to exercise duplicate handling).

// Handlers run on concurrent goroutines, so the counters are atomic.
var (
	failFirstN    atomic.Int64
	reqCount      atomic.Int64
	webhookSecret = ""
	callbackURL   = ""
	webhookDelay  = 2 * time.Second
)

func main() {
	if v := os.Getenv("FAIL_FIRST_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			failFirstN.Store(int64(n))
		}
	}
	webhookSecret = os.Getenv("GATEWAY_WEBHOOK_SECRET")
	callbackURL = os.Getenv("CALLBACK_URL")
	if v := os.Getenv("WEBHOOK_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			webhookDelay = d
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/transaction/initialize", handleInitialize)
	mux.HandleFunc("/transaction/verify/", handleVerify)

	addr := ":" + getEnv("PORT", "8090")
	log.Printf("fake-gateway listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TxRef string `json:"tx_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TxRef == "" {
		http.Error(w, "tx_ref required", http.StatusBadRequest)
		return
	}
	log.Printf("fake-gateway initialize %s", req.TxRef)

	// Simulate the customer completing checkout: deliver the webhook
	// twice, the way real providers redeliver.
	if callbackURL != "" {
		go func(txRef string) {
			time.Sleep(webhookDelay)
			postWebhook(txRef)
			time.Sleep(webhookDelay)
			postWebhook(txRef)
		}(req.TxRef)
	}

	writeJSON(w, map[string]any{
		"status":  "success",
		"message": "Hosted Link",
		"data": map[string]any{
			"checkout_url": "http://localhost:8090/checkout/" + req.TxRef,
		},
	})
}

func handleVerify(w http.ResponseWriter, r *http.Request) {
	n := reqCount.Add(1)
	txRef := strings.TrimPrefix(r.URL.Path, "/transaction/verify/")
	if txRef == "" {
		http.Error(w, "tx_ref required", http.StatusBadRequest)
		return
	}

	// Simulate flakiness: first N requests -> 500
	if n <= failFirstN.Load() {
		log.Printf("FAILING (%d/%d) verify %s", n, failFirstN.Load(), txRef)
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	status := outcomeFor(txRef)
	log.Printf("fake-gateway verify %s -> %s", txRef, status)
	writeJSON(w, map[string]any{
		"status":  "success",
		"message": "Payment details",
		"data": map[string]any{
			"status":    status,
			"reference": "FG-" + txRef,
			"amount":    1000,
			"currency":  "ETB",
		},
	})
}

// outcomeFor derives the simulated terminal status from the reference so
// test scenarios are reproducible: refs containing "fail" fail, refs
// containing "pending" stay pending, everything else succeeds.
func outcomeFor(txRef string) string {
	switch {
	case strings.Contains(txRef, "fail"):
		return "failed"
	case strings.Contains(txRef, "pending"):
		return "pending"
	default:
		return "success"
	}
}

func postWebhook(txRef string) {
	body, _ := json.Marshal(map[string]any{
		"tx_ref":    txRef,
		"status":    outcomeFor(txRef),
		"reference": "FG-" + txRef,
	})
	req, err := http.NewRequest(http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		log.Printf("webhook build failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if webhookSecret != "" {
		req.Header.Set(payments.SignatureHeader, payments.Sign(webhookSecret, body))
	}
	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		log.Printf("webhook post failed: %v", err)
		return
	}
	defer resp.Body.Close()
	log.Printf("webhook delivered for %s: %s", txRef, resp.Status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, "encode response:", err)
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
