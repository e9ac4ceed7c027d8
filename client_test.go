package rpc_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	rpc "github.com/nugget/bridgerpc"
	"github.com/nugget/bridgerpc/transport/mem"
)

func TestClient_Call_SimpleRoundTrip(t *testing.T) {
	host := mem.NewHost()
	host.Register("health", func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(map[string]string{"status": "ok", "version": "1.0"})
	})

	client := rpc.NewClient(host.Transport())
	defer client.Close()

	type healthResult struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	health := rpc.NewProc[struct{}, healthResult](client, "health", rpc.KindQuery)

	got, err := health.Call(context.Background(), struct{}{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got.Status != "ok" || got.Version != "1.0" {
		t.Errorf("got = %+v", got)
	}
}

func TestClient_Call_HostErrorNormalized(t *testing.T) {
	host := mem.NewHost()
	host.Register("boom", func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		return nil, &rpc.CallError{Code: "NOT_FOUND", Message: "no such thing"}
	})

	client := rpc.NewClient(host.Transport())
	defer client.Close()

	proc := rpc.NewProc[struct{}, struct{}](client, "boom", rpc.KindQuery)
	_, err := proc.Call(context.Background(), struct{}{})
	if err == nil {
		t.Fatal("expected error")
	}

	var rpcErr *rpc.Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("err = %v, want *rpc.Error", err)
	}
	if rpcErr.Code != "NOT_FOUND" {
		t.Errorf("code = %q, want NOT_FOUND", rpcErr.Code)
	}
}

func TestClient_Close_TerminatesOpenSubscriptions(t *testing.T) {
	host := mem.NewHost()
	host.RegisterSubscription("ticks", func(ctx context.Context, input json.RawMessage, lastEventID string, emit mem.Emitter) {
		<-ctx.Done()
	})

	client := rpc.NewClient(host.Transport())

	proc := rpc.NewProc[struct{}, int](client, "ticks", rpc.KindSubscription)
	it, err := proc.Subscribe(context.Background(), struct{}{})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := it.Next(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Errorf("Next() after Close() = %v, want io.EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next() did not unblock after client.Close()")
	}
}
