package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	rpc "github.com/nugget/bridgerpc"
)

func newTestRecorder() *Recorder {
	return New(prometheus.NewRegistry())
}

func TestRecorder_CountsCallsAndErrors(t *testing.T) {
	r := newTestRecorder()
	hooks := r.Hooks()

	rc := &rpc.RequestContext{Path: "user.get", Kind: rpc.KindQuery, Meta: map[string]any{}}
	hooks.OnRequest(rc)
	hooks.OnResponse(rc, nil)

	rc2 := &rpc.RequestContext{Path: "user.get", Kind: rpc.KindQuery, Meta: map[string]any{}}
	hooks.OnRequest(rc2)
	hooks.OnError(rc2, &rpc.Error{Code: rpc.CodeTimeout, Message: "deadline"})

	if got := testutil.ToFloat64(r.calls.WithLabelValues("user.get", "query")); got != 2 {
		t.Errorf("calls_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.errors.WithLabelValues("user.get", rpc.CodeTimeout)); got != 1 {
		t.Errorf("call_errors_total = %v, want 1", got)
	}
}

func TestRecorder_LatencyRequiresStartMarker(t *testing.T) {
	r := newTestRecorder()
	hooks := r.Hooks()

	// A context that never went through OnRequest has no start marker;
	// OnResponse must not record a bogus observation for it.
	rc := &rpc.RequestContext{Path: "health", Kind: rpc.KindQuery, Meta: map[string]any{}}
	hooks.OnResponse(rc, nil)

	if got := testutil.CollectAndCount(r.latency); got != 0 {
		t.Errorf("latency series = %d, want 0", got)
	}

	hooks.OnRequest(rc)
	hooks.OnResponse(rc, nil)
	if got := testutil.CollectAndCount(r.latency); got != 1 {
		t.Errorf("latency series = %d, want 1", got)
	}
}

func TestRecorder_SubscriptionGaugeFollowsLifecycle(t *testing.T) {
	r := newTestRecorder()
	hooks := r.Hooks()

	hooks.OnSubscriptionState("stream.chat", rpc.StateConnecting, rpc.StateOpen)
	if got := testutil.ToFloat64(r.subscriptions); got != 1 {
		t.Fatalf("gauge after open = %v, want 1", got)
	}

	// A reconnect cycle leaves the gauge untouched but counts the
	// attempt.
	hooks.OnSubscriptionState("stream.chat", rpc.StateOpen, rpc.StateReconnecting)
	hooks.OnSubscriptionState("stream.chat", rpc.StateReconnecting, rpc.StateOpen)
	if got := testutil.ToFloat64(r.subscriptions); got != 1 {
		t.Errorf("gauge after reconnect = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.reconnects.WithLabelValues("stream.chat")); got != 1 {
		t.Errorf("reconnects_total = %v, want 1", got)
	}

	hooks.OnSubscriptionState("stream.chat", rpc.StateOpen, rpc.StateClosed)
	if got := testutil.ToFloat64(r.subscriptions); got != 0 {
		t.Errorf("gauge after close = %v, want 0", got)
	}
}
