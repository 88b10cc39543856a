package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Ken-Obieze/travel-tasks/internal/broker"
)

// Status is a transaction's reconciliation state. Pending is the only
// non-terminal state; Confirmed and Failed are terminal and a reference
// re-verified after reaching one deterministically yields the same result.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// VerifyResult is the provider's answer for one transaction reference.
type VerifyResult struct {
	TxRef         string
	Status        Status
	TransactionID string
	Amount        string
	Currency      string
	VerifiedAt    time.Time
}

// Client talks to a Chapa-style payment provider API.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		http:      &http.Client{Timeout: timeout},
	}
}

type verifyResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    any    `json:"amount"`
		Currency  string `json:"currency"`
	} `json:"data"`
}

// Verify asks the provider for the authoritative status of a transaction
// reference. Connectivity failures wrap broker-style unavailability so
// callers can distinguish "provider unreachable" from "transaction failed".
func (c *Client) Verify(ctx context.Context, txRef string) (VerifyResult, error) {
	url := fmt.Sprintf("%s/transaction/verify/%s", c.baseURL, txRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("verify %s: %w", txRef, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("verify %s: %w: %v", txRef, broker.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return VerifyResult{}, fmt.Errorf("verify %s: provider returned %s", txRef, resp.Status)
	}

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return VerifyResult{}, fmt.Errorf("verify %s: decode: %w", txRef, err)
	}

	return VerifyResult{
		TxRef:         txRef,
		Status:        mapProviderStatus(body.Data.Status),
		TransactionID: body.Data.Reference,
		Amount:        fmt.Sprint(body.Data.Amount),
		Currency:      body.Data.Currency,
		VerifiedAt:    time.Now().UTC(),
	}, nil
}

// mapProviderStatus folds the provider's vocabulary into ours. Anything
// unrecognized stays pending rather than guessing a terminal state.
func mapProviderStatus(s string) Status {
	switch s {
	case "success", "completed", "confirmed":
		return StatusConfirmed
	case "failed", "cancelled", "canceled":
		return StatusFailed
	default:
		return StatusPending
	}
}

// InitializeRequest creates a checkout with the provider.
type InitializeRequest struct {
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	TxRef     string `json:"tx_ref"`
	Callback  string `json:"callback_url"`
	ReturnURL string `json:"return_url"`
}

// InitializeResult carries the provider's checkout handle.
type InitializeResult struct {
	TxRef       string
	CheckoutURL string
}

// Initialize creates a hosted-checkout transaction with the provider. The
// redirect flow itself is outside this core; the tx_ref is what comes back
// through webhooks and verification.
func (c *Client) Initialize(ctx context.Context, reqBody InitializeRequest) (InitializeResult, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return InitializeResult{}, fmt.Errorf("initialize %s: %w", reqBody.TxRef, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(payload))
	if err != nil {
		return InitializeResult{}, fmt.Errorf("initialize %s: %w", reqBody.TxRef, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return InitializeResult{}, fmt.Errorf("initialize %s: %w: %v", reqBody.TxRef, broker.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return InitializeResult{}, fmt.Errorf("initialize %s: provider returned %s", reqBody.TxRef, resp.Status)
	}

	var body struct {
		Data struct {
			CheckoutURL string `json:"checkout_url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return InitializeResult{}, fmt.Errorf("initialize %s: decode: %w", reqBody.TxRef, err)
	}
	return InitializeResult{TxRef: reqBody.TxRef, CheckoutURL: body.Data.CheckoutURL}, nil
}
