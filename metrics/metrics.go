// Package metrics exposes a client-side Prometheus view of bridgerpc
// traffic: call counts and latency by path, error counts by code, and
// a gauge of open subscriptions that mirrors, from this process's
// perspective, what the host reports via rpc_subscription_count.
//
// The Recorder plugs into the rpc engine through its lifecycle hooks;
// the engine itself knows nothing about Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	rpc "github.com/nugget/bridgerpc"
)

// metaStartKey is the RequestContext.Meta key under which OnRequest
// stashes the call's start time for OnResponse/OnError to read.
const metaStartKey = "metrics.start"

// Recorder collects client-side RPC metrics. Construct with New and
// install via Hooks (see the Hooks method).
type Recorder struct {
	calls         *prometheus.CounterVec
	errors        *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	subscriptions prometheus.Gauge
	reconnects    *prometheus.CounterVec
}

// New creates a Recorder and registers its collectors with reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry, or a
// fresh prometheus.NewRegistry in tests.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridgerpc_calls_total",
			Help: "Unary calls issued, by procedure path and kind.",
		}, []string{"path", "kind"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridgerpc_call_errors_total",
			Help: "Calls that returned an error, by path and public error code.",
		}, []string{"path", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridgerpc_call_duration_seconds",
			Help:    "Wall-clock duration of unary calls, by path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridgerpc_subscriptions_active",
			Help: "Subscriptions currently open from this client.",
		}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridgerpc_subscription_reconnects_total",
			Help: "Reconnect attempts entered, by subscription path.",
		}, []string{"path"}),
	}
	reg.MustRegister(r.calls, r.errors, r.latency, r.subscriptions, r.reconnects)
	return r
}

// Hooks returns the rpc.Hooks that feed this Recorder. Merge manually
// if the client also needs its own hooks; the engine holds a single
// Hooks value.
func (r *Recorder) Hooks() rpc.Hooks {
	return rpc.Hooks{
		OnRequest:           r.onRequest,
		OnResponse:          r.onResponse,
		OnError:             r.onError,
		OnSubscriptionState: r.onSubscriptionState,
	}
}

func (r *Recorder) onRequest(rc *rpc.RequestContext) {
	rc.Meta[metaStartKey] = time.Now()
	r.calls.WithLabelValues(rc.Path, string(rc.Kind)).Inc()
}

func (r *Recorder) onResponse(rc *rpc.RequestContext, _ any) {
	r.observeLatency(rc)
}

func (r *Recorder) onError(rc *rpc.RequestContext, err *rpc.Error) {
	r.observeLatency(rc)
	r.errors.WithLabelValues(rc.Path, err.Code).Inc()
}

func (r *Recorder) observeLatency(rc *rpc.RequestContext) {
	start, ok := rc.Meta[metaStartKey].(time.Time)
	if !ok {
		return
	}
	r.latency.WithLabelValues(rc.Path).Observe(time.Since(start).Seconds())
}

func (r *Recorder) onSubscriptionState(path string, from, to rpc.SubscriptionState) {
	switch {
	case to == rpc.StateOpen && from == rpc.StateConnecting:
		r.subscriptions.Inc()
	case to == rpc.StateReconnecting:
		r.reconnects.WithLabelValues(path).Inc()
	case to == rpc.StateClosed && from != rpc.StateConnecting:
		r.subscriptions.Dec()
	}
}
