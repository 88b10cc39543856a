package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// SignatureHeader carries the provider's HMAC over the raw webhook body.
const SignatureHeader = "Chapa-Signature"

// WebhookEvent is the provider's callback payload. Providers deliver
// webhooks more than once; only tx_ref is trusted, the carried status is
// re-verified against the provider before any state change.
type WebhookEvent struct {
	TxRef     string `json:"tx_ref"`
	Status    string `json:"status"`
	Reference string `json:"reference"`
}

// ParseWebhook decodes a webhook body.
func ParseWebhook(body []byte) (WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return WebhookEvent{}, fmt.Errorf("parse webhook: %w", err)
	}
	if ev.TxRef == "" {
		return WebhookEvent{}, fmt.Errorf("parse webhook: missing tx_ref")
	}
	return ev, nil
}

// Sign computes the hex HMAC-SHA256 of body with the webhook secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook signature in constant time. An empty
// secret disables verification (local development only).
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" {
		return true
	}
	return hmac.Equal([]byte(signature), []byte(Sign(secret, body)))
}
