package eventbus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: TypeLoadCreated, Data: "ld-1"})

	select {
	case e := <-ch:
		if e.Type != TypeLoadCreated {
			t.Fatalf("Type = %q, want %q", e.Type, TypeLoadCreated)
		}
		if e.Time.IsZero() {
			t.Fatalf("Time not stamped")
		}
	case <-time.After(time.Second):
		t.Fatalf("no event delivered")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()

	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		// Overflow the single-slot buffer; Publish must drop, not block.
		for i := 0; i < 50; i++ {
			b.Publish(Event{Type: TypePosition})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Publish blocked on full subscriber")
	}

	if st, ok := StatsOf(b); !ok || st.Dropped == 0 {
		t.Fatalf("StatsOf = %+v, %v; want dropped > 0", st, ok)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	t.Parallel()

	b := New()
	_, unsub := b.Subscribe(1)
	unsub()
	unsub() // second call must not panic

	// Publishing after unsubscribe must not panic either.
	b.Publish(Event{Type: TypeBidSubmitted})

	if st, ok := StatsOf(b); !ok || st.Subscribers != 0 {
		t.Fatalf("Subscribers = %d, want 0", st.Subscribers)
	}
}
