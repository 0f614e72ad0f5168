package eventbus

import (
	"testing"
	"time"

	"postpilot/internal/post"
)

func TestPublishSubscribe(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: TypeScheduled, PostID: "p1", Platform: post.Twitter, Status: post.StatusScheduled})

	select {
	case e := <-ch:
		if e.Type != TypeScheduled || e.PostID != "p1" {
			t.Fatalf("unexpected event: %+v", e)
		}
		if e.Time.IsZero() {
			t.Fatal("Publish should stamp a time")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		// Nobody reads; the buffer fills after one event.
		for i := 0; i < 100; i++ {
			b.Publish(Event{Type: TypePosted, PostID: "p"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	if b.Dropped() == 0 {
		t.Fatal("expected dropped events to be counted")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub() // idempotent

	b.Publish(Event{Type: TypeFailed, PostID: "p1"})

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
}
