package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ContentType is the declared content type for envelope bodies on the wire.
const ContentType = "application/json"

// MaxPayloadBytes bounds the serialized envelope size. Task payloads carry
// entity ids and small snapshots, never documents; anything larger is a
// caller bug surfaced at enqueue time.
const MaxPayloadBytes = 16 * 1024

var ErrPayloadTooLarge = errors.New("task: payload exceeds size bound")

// Envelope is a single unit of deferred work placed on the broker.
// Attempt travels inside the envelope so a crashed worker's retry history
// is not lost; it increments exactly once per redelivery cycle. All other
// fields are immutable after creation.
type Envelope struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Queue        string            `json:"queue"`
	Payload      map[string]any    `json:"payload"`
	Attempt      int               `json:"attempt"`
	MaxRetries   int               `json:"max_retries"`
	CreatedAt    time.Time         `json:"created_at"`
	TraceHeaders map[string]string `json:"trace_headers,omitempty"`
}

// NewEnvelope builds a first-attempt envelope for the named task.
func NewEnvelope(name, queue string, payload map[string]any, maxRetries int) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Name:       name,
		Queue:      queue,
		Payload:    payload,
		Attempt:    0,
		MaxRetries: maxRetries,
		CreatedAt:  time.Now().UTC(),
	}
}

// NextAttempt returns a copy of the envelope with the attempt count
// incremented, for deferred re-publish after a retryable failure.
func (e Envelope) NextAttempt() Envelope {
	e.Attempt++
	return e
}

// String returns a payload argument as a string, or "" when absent.
func (e Envelope) String(key string) string {
	if v, ok := e.Payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Encode serializes the envelope for the broker, enforcing the payload bound.
func (e Envelope) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope %s: %w", e.Name, err)
	}
	if len(b) > MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(b), MaxPayloadBytes)
	}
	return b, nil
}

// Decode parses an envelope from a broker message body. Unknown fields are
// ignored so additive payload schema changes stay compatible.
func Decode(body []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if e.ID == "" || e.Name == "" {
		return Envelope{}, errors.New("decode envelope: missing id or name")
	}
	return e, nil
}
