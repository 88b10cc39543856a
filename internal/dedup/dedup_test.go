package dedup

import (
	"context"
	"testing"
	"time"
)

func TestNoneNeverSeen(t *testing.T) {
	var d Deduper = None{}
	for i := 0; i < 3; i++ {
		if err := d.Mark(context.Background(), "e1"); err != nil {
			t.Fatalf("Mark() error: %v", err)
		}
		seen, err := d.Seen(context.Background(), "e1")
		if err != nil {
			t.Fatalf("Seen() error: %v", err)
		}
		if seen {
			t.Error("None reported an id as seen")
		}
	}
}

func TestRedisSeenUnreachable(t *testing.T) {
	// No server on this port; Seen must return an error, not a false
	// duplicate, so the caller can degrade to processing the delivery.
	r := NewRedis("localhost:1", time.Minute)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	seen, err := r.Seen(ctx, "e1")
	if err == nil {
		t.Error("Seen() against unreachable redis succeeded")
	}
	if seen {
		t.Error("Seen() = true on error")
	}
	if err := r.Mark(ctx, "e1"); err == nil {
		t.Error("Mark() against unreachable redis succeeded")
	}
}
