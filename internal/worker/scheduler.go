package worker

import (
	"time"

	"github.com/Ken-Obieze/travel-tasks/internal/task"
)

// Action is what the pool does with a settled delivery.
type Action int

const (
	// ActionAck acknowledges the delivery; the task is done.
	ActionAck Action = iota
	// ActionRetry re-enqueues a copy of the envelope with the attempt
	// count incremented, after Delay, then acknowledges the original.
	ActionRetry
	// ActionDead acknowledges the delivery and emits exactly one
	// dead-letter record; the task is never redelivered.
	ActionDead
)

func (a Action) String() string {
	switch a {
	case ActionAck:
		return "ack"
	case ActionRetry:
		return "retry"
	case ActionDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Decision is the scheduler's verdict for one execution attempt.
type Decision struct {
	Action      Action
	Delay       time.Duration // redelivery delay, ActionRetry only
	NextAttempt int           // attempt count for the re-enqueued copy
	Reason      string        // dead-letter reason, ActionDead only
}

// Decide maps an execution outcome to a scheduling decision. It is a pure
// function over (outcome, attempt, policy) so retry behavior is testable
// without a live broker. The envelope's own MaxRetries is the attempt
// budget: a retryable failure on the last budgeted attempt is fatal.
func Decide(outcome task.Outcome, env task.Envelope, policy task.RetryPolicy) Decision {
	switch outcome.Status {
	case task.StatusSuccess:
		return Decision{Action: ActionAck}
	case task.StatusFatal:
		return Decision{Action: ActionDead, Reason: outcome.Reason}
	}

	// Retryable failure. MaxRetries = 0 means exactly one attempt.
	if env.Attempt+1 >= env.MaxRetries {
		reason := outcome.Reason
		if reason == "" {
			reason = "retries exhausted"
		} else {
			reason = "retries exhausted: " + reason
		}
		return Decision{Action: ActionDead, Reason: reason}
	}
	return Decision{
		Action:      ActionRetry,
		Delay:       policy.Delay(env.Attempt),
		NextAttempt: env.Attempt + 1,
	}
}
