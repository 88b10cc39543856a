package task

import "time"

// Backoff selects how the redelivery delay grows across attempts.
type Backoff int

const (
	BackoffFixed Backoff = iota
	BackoffExponential
)

// DefaultDelayCeiling caps redelivery delay regardless of strategy.
const DefaultDelayCeiling = 10 * time.Minute

// RetryPolicy governs redelivery for one task name. Attached at
// registration and never mutated afterwards. MaxRetries is the total
// attempt budget: MaxRetries = 0 means exactly one attempt, no retry.
type RetryPolicy struct {
	MaxRetries   int
	BaseDelay    time.Duration
	Backoff      Backoff
	DelayCeiling time.Duration
}

// Delay returns the redelivery delay after a retryable failure on the
// given zero-based attempt: base*(attempt+1) for fixed, base*2^attempt
// for exponential, capped at the ceiling.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	ceiling := p.DelayCeiling
	if ceiling <= 0 {
		ceiling = DefaultDelayCeiling
	}
	var d time.Duration
	switch p.Backoff {
	case BackoffExponential:
		d = p.BaseDelay
		for i := 0; i < attempt; i++ {
			d *= 2
			if d >= ceiling {
				return ceiling
			}
		}
	default:
		d = p.BaseDelay * time.Duration(attempt+1)
	}
	if d > ceiling {
		return ceiling
	}
	return d
}
