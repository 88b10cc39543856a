package task

// Status classifies the result of a single execution attempt.
type Status int

const (
	StatusSuccess Status = iota
	StatusRetryable
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusRetryable:
		return "retryable_failure"
	case StatusFatal:
		return "fatal_failure"
	default:
		return "unknown"
	}
}

// Outcome is produced exactly once per execution attempt. Retry decisions
// are made from this value, never from handler control flow.
type Outcome struct {
	Status Status
	Reason string
}

// Success reports a completed execution; the delivery will be acknowledged.
func Success() Outcome {
	return Outcome{Status: StatusSuccess}
}

// Retry reports a transient failure (network timeout, rate limit); the
// scheduler decides whether redelivery is still within policy.
func Retry(reason string) Outcome {
	return Outcome{Status: StatusRetryable, Reason: reason}
}

// Fatal reports a permanent failure (missing entity, invalid recipient);
// the delivery is removed from the queue and never resurrected.
func Fatal(reason string) Outcome {
	return Outcome{Status: StatusFatal, Reason: reason}
}
