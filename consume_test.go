package rpc_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	rpc "github.com/nugget/bridgerpc"
	"github.com/nugget/bridgerpc/transport/mem"
)

func TestConsumeEventIterator_CompletesAfterEvents(t *testing.T) {
	host := mem.NewHost()
	host.RegisterSubscription("ticks", func(ctx context.Context, input json.RawMessage, lastEventID string, emit mem.Emitter) {
		emit.Data(1, "")
		emit.Data(2, "")
		emit.Complete()
	})

	client := rpc.NewClient(host.Transport())
	defer client.Close()

	proc := rpc.NewProc[struct{}, int](client, "ticks", rpc.KindSubscription)
	it, err := proc.Subscribe(context.Background(), struct{}{})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var mu sync.Mutex
	var events []int
	var completed bool
	var finished string
	done := make(chan struct{})

	cancel := rpc.ConsumeEventIterator(context.Background(), it, rpc.ConsumeCallbacks[int]{
		OnEvent: func(v int) {
			mu.Lock()
			events = append(events, v)
			mu.Unlock()
		},
		OnComplete: func() {
			mu.Lock()
			completed = true
			mu.Unlock()
		},
		OnFinish: func(reason string) {
			mu.Lock()
			finished = reason
			mu.Unlock()
			close(done)
		},
	})
	defer cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnFinish never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0] != 1 || events[1] != 2 {
		t.Errorf("events = %v, want [1 2]", events)
	}
	if !completed {
		t.Error("OnComplete never fired")
	}
	if finished != "success" {
		t.Errorf("finish reason = %q, want success", finished)
	}
}

func TestConsumeEventIterator_CancelStopsConsumption(t *testing.T) {
	host := mem.NewHost()
	host.RegisterSubscription("ticks", func(ctx context.Context, input json.RawMessage, lastEventID string, emit mem.Emitter) {
		<-ctx.Done()
	})

	client := rpc.NewClient(host.Transport())
	defer client.Close()

	proc := rpc.NewProc[struct{}, int](client, "ticks", rpc.KindSubscription)
	it, err := proc.Subscribe(context.Background(), struct{}{})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	finishedCh := make(chan string, 1)
	cancel := rpc.ConsumeEventIterator(context.Background(), it, rpc.ConsumeCallbacks[int]{
		OnFinish: func(reason string) { finishedCh <- reason },
	})

	cancel()

	select {
	case <-finishedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("OnFinish never fired after cancel")
	}
}
