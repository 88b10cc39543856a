package worker

import (
	"strings"
	"testing"
	"time"

	"github.com/Ken-Obieze/travel-tasks/internal/task"
)

func TestDecide(t *testing.T) {
	policy := task.RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Minute,
		Backoff:    task.BackoffExponential,
	}

	tests := []struct {
		name        string
		outcome     task.Outcome
		attempt     int
		maxRetries  int
		wantAction  Action
		wantDelay   time.Duration
		wantAttempt int
	}{
		{
			name:       "success acks",
			outcome:    task.Success(),
			attempt:    0,
			maxRetries: 3,
			wantAction: ActionAck,
		},
		{
			name:       "success acks on last attempt too",
			outcome:    task.Success(),
			attempt:    2,
			maxRetries: 3,
			wantAction: ActionAck,
		},
		{
			name:       "fatal dead-letters immediately",
			outcome:    task.Fatal("booking not found"),
			attempt:    0,
			maxRetries: 3,
			wantAction: ActionDead,
		},
		{
			name:        "first retryable failure retries",
			outcome:     task.Retry("smtp timeout"),
			attempt:     0,
			maxRetries:  3,
			wantAction:  ActionRetry,
			wantDelay:   time.Minute,
			wantAttempt: 1,
		},
		{
			name:        "second retryable failure doubles delay",
			outcome:     task.Retry("smtp timeout"),
			attempt:     1,
			maxRetries:  3,
			wantAction:  ActionRetry,
			wantDelay:   2 * time.Minute,
			wantAttempt: 2,
		},
		{
			name:       "retryable failure on last budgeted attempt is dead",
			outcome:    task.Retry("smtp timeout"),
			attempt:    2,
			maxRetries: 3,
			wantAction: ActionDead,
		},
		{
			name:       "zero retry budget means one attempt",
			outcome:    task.Retry("smtp timeout"),
			attempt:    0,
			maxRetries: 0,
			wantAction: ActionDead,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := task.Envelope{ID: "e1", Name: "t", Attempt: tt.attempt, MaxRetries: tt.maxRetries}
			d := Decide(tt.outcome, env, policy)
			if d.Action != tt.wantAction {
				t.Errorf("Decide() Action = %v, want %v", d.Action, tt.wantAction)
			}
			if d.Action == ActionRetry {
				if d.Delay != tt.wantDelay {
					t.Errorf("Decide() Delay = %v, want %v", d.Delay, tt.wantDelay)
				}
				if d.NextAttempt != tt.wantAttempt {
					t.Errorf("Decide() NextAttempt = %d, want %d", d.NextAttempt, tt.wantAttempt)
				}
			}
		})
	}
}

func TestDecideExhaustionReason(t *testing.T) {
	env := task.Envelope{ID: "e1", Name: "t", Attempt: 2, MaxRetries: 3}

	d := Decide(task.Retry("smtp timeout"), env, task.RetryPolicy{})
	if d.Reason != "retries exhausted: smtp timeout" {
		t.Errorf("Decide() Reason = %q, want exhaustion prefix with cause", d.Reason)
	}

	d = Decide(task.Retry(""), env, task.RetryPolicy{})
	if d.Reason != "retries exhausted" {
		t.Errorf("Decide() Reason = %q, want %q", d.Reason, "retries exhausted")
	}

	d = Decide(task.Fatal("bad payload"), env, task.RetryPolicy{})
	if d.Reason != "bad payload" {
		t.Errorf("Decide() fatal Reason = %q, want %q", d.Reason, "bad payload")
	}
}

func TestActionString(t *testing.T) {
	tests := []struct {
		action Action
		want   string
	}{
		{action: ActionAck, want: "ack"},
		{action: ActionRetry, want: "retry"},
		{action: ActionDead, want: "dead"},
		{action: Action(99), want: "unknown"},
	}
	for _, tt := range tests {
		if got := tt.action.String(); got != tt.want {
			t.Errorf("Action(%d).String() = %q, want %q", tt.action, got, tt.want)
		}
	}
}

func TestNewDeadLetter(t *testing.T) {
	env := task.NewEnvelope("send_payment_failed_email", "emails", map[string]any{"payment_id": "p1"}, 3)
	env.Attempt = 2

	dl := NewDeadLetter(env, "retries exhausted: smtp timeout")
	if dl.Type != DeadLetterType {
		t.Errorf("NewDeadLetter() Type = %q, want %q", dl.Type, DeadLetterType)
	}
	if dl.Version != "v1" {
		t.Errorf("NewDeadLetter() Version = %q, want v1", dl.Version)
	}
	if dl.Attempt != 2 {
		t.Errorf("NewDeadLetter() Attempt = %d, want 2", dl.Attempt)
	}
	if dl.Envelope.ID != env.ID {
		t.Errorf("NewDeadLetter() Envelope.ID = %q, want %q", dl.Envelope.ID, env.ID)
	}
	if !strings.HasPrefix(dl.Reason, "retries exhausted") {
		t.Errorf("NewDeadLetter() Reason = %q", dl.Reason)
	}
	if _, err := time.Parse(time.RFC3339Nano, dl.At); err != nil {
		t.Errorf("NewDeadLetter() At = %q is not RFC3339Nano: %v", dl.At, err)
	}
}
