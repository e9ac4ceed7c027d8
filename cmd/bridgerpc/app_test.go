package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	rpc "github.com/nugget/bridgerpc"
	"github.com/nugget/bridgerpc/transport/mem"
)

func TestParseInput_AbsentStaysNil(t *testing.T) {
	v, err := parseInput(nil)
	if err != nil {
		t.Fatalf("parseInput: %v", err)
	}
	if v != nil {
		t.Errorf("expected nil input, got %v", v)
	}
}

func TestParseInput_JSONObject(t *testing.T) {
	v, err := parseInput([]string{`{"id":1}`})
	if err != nil {
		t.Fatalf("parseInput: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok || m["id"] != float64(1) {
		t.Errorf("unexpected parse result: %#v", v)
	}
}

func TestParseInput_RejectsMalformedJSON(t *testing.T) {
	if _, err := parseInput([]string{`{nope`}); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func testApp(t *testing.T) (*app, *mem.Host) {
	t.Helper()
	host := mem.NewHost()
	a := &app{
		client: rpc.NewClient(host.Transport()),
		logger: slog.Default(),
	}
	t.Cleanup(a.Close)
	return a, host
}

func TestRunCall_RoundTrip(t *testing.T) {
	a, host := testApp(t)
	host.Register("health", func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"status":"ok"}`), nil
	})

	if err := a.runCall(context.Background(), "health", nil); err != nil {
		t.Fatalf("runCall: %v", err)
	}
}

func TestRunBatch_MixedOutcome(t *testing.T) {
	a, host := testApp(t)
	host.Register("health", func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"status":"ok"}`), nil
	})

	in := strings.NewReader(`[
		{"id":"a","path":"health"},
		{"id":"b","path":"user.get","input":{"id":999}}
	]`)
	if err := a.runBatch(context.Background(), in); err != nil {
		t.Fatalf("runBatch: %v", err)
	}
}

func TestRunBatch_RejectsNonArrayInput(t *testing.T) {
	a, _ := testApp(t)
	if err := a.runBatch(context.Background(), strings.NewReader(`{"id":"a"}`)); err == nil {
		t.Error("expected error for non-array batch input")
	}
}
