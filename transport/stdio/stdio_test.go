package stdio

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

// TestTransport_InvokeRoundTripsThroughCat exercises the wire format
// against the real "cat" binary, which echoes each newline-delimited
// frame straight back: the echoed request frame carries the same
// non-zero ID that Invoke assigned, so dispatch resolves the pending
// call with it as the response.
func TestTransport_InvokeRoundTripsThroughCat(t *testing.T) {
	tr := New(Config{Command: "cat"})
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := tr.Invoke(ctx, "rpc_call", map[string]any{"path": "health", "input": nil})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
}

func TestTransport_ListenRegistersAndUnregisters(t *testing.T) {
	tr := New(Config{Command: "cat"})
	defer tr.Close()

	received := make(chan json.RawMessage, 1)
	unlisten := tr.Listen("rpc:subscription:sub_1", func(payload json.RawMessage) {
		received <- payload
	})

	tr.dispatch(frame{Channel: "rpc:subscription:sub_1", Payload: json.RawMessage(`{"hello":"world"}`)})

	select {
	case payload := <-received:
		if string(payload) != `{"hello":"world"}` {
			t.Errorf("payload = %s", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	unlisten()
	tr.dispatch(frame{Channel: "rpc:subscription:sub_1", Payload: json.RawMessage(`{"again":true}`)})

	select {
	case payload := <-received:
		t.Errorf("handler invoked after unlisten: %s", payload)
	case <-time.After(100 * time.Millisecond):
		// expected: no further delivery
	}
}

func TestTransport_CloseKillsUnresponsiveProcess(t *testing.T) {
	tr := New(Config{Command: "sleep", Args: []string{"100"}, ShutdownGrace: 50 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Force the subprocess to start without waiting on a real Invoke
	// round trip (sleep never replies to stdin).
	if err := tr.ensureStarted(); err != nil {
		t.Fatalf("ensureStarted: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- tr.Close() }()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("Close did not return; ShutdownGrace kill path did not fire")
	}
}

func TestTransport_InvokeFailsAfterClose(t *testing.T) {
	tr := New(Config{Command: "cat"})
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, err := tr.Invoke(context.Background(), "rpc_call", nil)
	if err == nil {
		t.Fatal("expected error invoking a closed transport")
	}
}
