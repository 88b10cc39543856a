package worker

import (
	"time"

	"github.com/Ken-Obieze/travel-tasks/internal/task"
)

const DeadLetterType = "task.dead"

// DeadLetter is the permanent-failure record published to a queue's
// dead-letter queue. It exists for observability and manual replay; the
// task itself is removed from the live queue.
type DeadLetter struct {
	Type     string        `json:"type"`    // "task.dead"
	Version  string        `json:"version"` // schema version
	At       string        `json:"at"`      // RFC3339 time the record was emitted
	Reason   string        `json:"reason"`  // human/debug text
	Attempt  int           `json:"attempt"` // attempt count at failure
	Envelope task.Envelope `json:"envelope"`
}

func NewDeadLetter(env task.Envelope, reason string) DeadLetter {
	return DeadLetter{
		Type:     DeadLetterType,
		Version:  "v1",
		At:       time.Now().UTC().Format(time.RFC3339Nano),
		Reason:   reason,
		Attempt:  env.Attempt,
		Envelope: env,
	}
}
