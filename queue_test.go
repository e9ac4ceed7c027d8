package rpc

import (
	"context"
	"testing"
	"time"
)

func TestEventQueue_FIFOOrder(t *testing.T) {
	q := newEventQueue()
	defer q.Close()

	for i := 0; i < 5; i++ {
		q.Offer(subQueueItem{kind: subEventData, id: string(rune('a' + i))})
	}

	for i := 0; i < 5; i++ {
		item, ok := q.Take(context.Background())
		if !ok {
			t.Fatalf("Take(%d) ok = false", i)
		}
		if want := string(rune('a' + i)); item.id != want {
			t.Errorf("Take(%d) id = %q, want %q", i, item.id, want)
		}
	}
}

func TestEventQueue_OfferNeverBlocks(t *testing.T) {
	q := newEventQueue()
	defer q.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			q.Offer(subQueueItem{kind: subEventData})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Offer blocked with no consumer draining")
	}
}

func TestEventQueue_TakeCancelledByContext(t *testing.T) {
	q := newEventQueue()
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.Take(ctx)
	if ok {
		t.Error("Take with cancelled context should return ok=false")
	}
}

func TestEventQueue_CloseDrainsBufferedItems(t *testing.T) {
	q := newEventQueue()
	q.Offer(subQueueItem{kind: subEventData, id: "1"})
	q.Offer(subQueueItem{kind: subEventData, id: "2"})
	// Give the relay a moment to buffer both offers before Close.
	time.Sleep(20 * time.Millisecond)
	q.Close()

	first, ok := q.Take(context.Background())
	if !ok || first.id != "1" {
		t.Fatalf("first = %+v, ok=%v", first, ok)
	}
	second, ok := q.Take(context.Background())
	if !ok || second.id != "2" {
		t.Fatalf("second = %+v, ok=%v", second, ok)
	}
	_, ok = q.Take(context.Background())
	if ok {
		t.Error("Take after drained+closed queue should return ok=false")
	}
}
