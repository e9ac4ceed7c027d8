package rpc_test

import (
	"context"
	"encoding/json"
	"testing"

	rpc "github.com/nugget/bridgerpc"
	"github.com/nugget/bridgerpc/transport/mem"
)

func newTestClient(t *testing.T, opts ...rpc.ClientOption) (*rpc.Client, *mem.Host) {
	t.Helper()
	host := mem.NewHost()
	host.Register("health", func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(map[string]string{"status": "ok"})
	})
	client := rpc.NewClient(host.Transport(), opts...)
	t.Cleanup(func() { _ = client.Close() })
	return client, host
}

func TestClient_ListProcedures(t *testing.T) {
	client, _ := newTestClient(t)

	paths, err := client.ListProcedures(context.Background())
	if err != nil {
		t.Fatalf("ListProcedures: %v", err)
	}
	if len(paths) != 1 || paths[0] != "health" {
		t.Errorf("paths = %v, want [health]", paths)
	}
}

func TestClient_SubscriptionCount(t *testing.T) {
	client, host := newTestClient(t)

	host.RegisterSubscription("ticks", func(ctx context.Context, input json.RawMessage, lastEventID string, emit mem.Emitter) {
		<-ctx.Done()
	})

	count, err := client.SubscriptionCount(context.Background())
	if err != nil {
		t.Fatalf("SubscriptionCount: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 before any subscribe", count)
	}

	ticks := rpc.NewProc[struct{}, int](client, "ticks", rpc.KindSubscription)
	it, err := ticks.Subscribe(context.Background(), struct{}{})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer it.Close()

	count, err = client.SubscriptionCount(context.Background())
	if err != nil {
		t.Fatalf("SubscriptionCount after subscribe: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 after subscribe", count)
	}
}

func TestClient_ListProcedures_EmptyHost(t *testing.T) {
	host := mem.NewHost()
	client := rpc.NewClient(host.Transport())
	defer client.Close()

	// rpc_procedures is registered by NewHost, so a host with no
	// procedures registered returns an empty list, not an error.
	paths, err := client.ListProcedures(context.Background())
	if err != nil {
		t.Fatalf("ListProcedures: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("paths = %v, want empty", paths)
	}
}
