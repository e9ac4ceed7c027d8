package rpc

import (
	"log/slog"
	"time"
)

// Hooks are fired by the call engine around every unary call, and by
// the subscription engine on state transitions. Any hook left nil is
// skipped.
type Hooks struct {
	OnRequest  func(rc *RequestContext)
	OnResponse func(rc *RequestContext, data any)
	OnError    func(rc *RequestContext, err *Error)

	// OnSubscriptionState fires whenever a subscription moves between
	// states (Connecting -> Open -> (Reconnecting <-> Open)* ->
	// Closed). It runs on the goroutine driving the transition and
	// must not block.
	OnSubscriptionState func(path string, from, to SubscriptionState)
}

// ClientOption configures a Client at construction time.
type ClientOption func(*clientConfig)

type clientConfig struct {
	logger            *slog.Logger
	interceptors      []Interceptor
	subscriptionPaths map[string]bool
	defaultTimeout    time.Duration
	pathRules         PathRules
	hooks             Hooks
	reconnect         ReconnectPolicy
}

// ReconnectPolicy is the default subscription reconnect schedule,
// overridable per-call via CallOption.
type ReconnectPolicy struct {
	AutoReconnect bool
	MaxReconnects int
	BaseDelay     time.Duration
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{
		logger:            slog.Default(),
		subscriptionPaths: make(map[string]bool),
		defaultTimeout:    0,
		reconnect: ReconnectPolicy{
			AutoReconnect: true,
			MaxReconnects: 5,
			BaseDelay:     500 * time.Millisecond,
		},
	}
}

// WithLogger sets the logger used for client-level diagnostics
// (connection state changes, reconnect attempts). Defaults to
// slog.Default() if never set or passed nil.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithInterceptors appends interceptors to the chain run for every
// call, in the order given.
func WithInterceptors(interceptors ...Interceptor) ClientOption {
	return func(c *clientConfig) {
		c.interceptors = append(c.interceptors, interceptors...)
	}
}

// WithSubscriptionPaths marks the given paths as subscriptions. Client.Call
// and Proc.Call refuse a marked path with a VALIDATION_ERROR; it must be
// opened through Subscribe.
func WithSubscriptionPaths(paths ...string) ClientOption {
	return func(c *clientConfig) {
		for _, p := range paths {
			c.subscriptionPaths[p] = true
		}
	}
}

// WithDefaultTimeout sets the timeout applied to calls that don't
// specify a per-call override. Zero means no timeout.
func WithDefaultTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.defaultTimeout = d }
}

// WithPathRules sets additional path validation constraints beyond the
// baseline syntax check.
func WithPathRules(rules PathRules) ClientOption {
	return func(c *clientConfig) { c.pathRules = rules }
}

// WithHooks installs lifecycle hooks fired around every call.
func WithHooks(hooks Hooks) ClientOption {
	return func(c *clientConfig) { c.hooks = hooks }
}

// WithReconnectPolicy sets the default subscription reconnect
// schedule. Individual subscriptions may override it via CallOption.
func WithReconnectPolicy(policy ReconnectPolicy) ClientOption {
	return func(c *clientConfig) { c.reconnect = policy }
}

// CallOption configures a single call or subscription, overriding the
// client's defaults for that invocation only.
type CallOption func(*callConfig)

type callConfig struct {
	meta    map[string]any
	timeout time.Duration
	retry   *RetryConfig
	dedup   bool

	// Subscription-only overrides.
	lastEventID    string
	autoReconnect  *bool
	reconnectDelay *time.Duration
	maxReconnects  *int
}

func defaultCallConfig() *callConfig {
	return &callConfig{}
}

// WithMeta merges key/value pairs into the call's RequestContext.Meta
// before the interceptor chain runs.
func WithMeta(meta map[string]any) CallOption {
	return func(c *callConfig) {
		if c.meta == nil {
			c.meta = make(map[string]any, len(meta))
		}
		for k, v := range meta {
			c.meta[k] = v
		}
	}
}

// WithTimeout overrides the effective timeout for this call only.
func WithTimeout(d time.Duration) CallOption {
	return func(c *callConfig) { c.timeout = d }
}

// WithRetry re-issues this call on retryable error codes per cfg.
// Only use it on idempotent procedures; the engine does not know
// whether a mutation is safe to repeat.
func WithRetry(cfg RetryConfig) CallOption {
	return func(c *callConfig) { c.retry = &cfg }
}

// WithDeduplication collapses concurrent identical calls (same path,
// deep-equal input up to key order) into a single transport
// invocation; all callers share its outcome. The dedup table entry is
// removed when the shared call settles, so a later identical call
// executes afresh.
func WithDeduplication() CallOption {
	return func(c *callConfig) { c.dedup = true }
}

// WithLastEventID resumes a subscription from the given event id,
// passed through to rpc_subscribe on (re)connect.
func WithLastEventID(id string) CallOption {
	return func(c *callConfig) { c.lastEventID = id }
}

// WithAutoReconnect overrides the subscription's auto-reconnect
// behavior for this call only.
func WithAutoReconnect(enabled bool) CallOption {
	return func(c *callConfig) { c.autoReconnect = &enabled }
}

// WithReconnectDelay overrides the base reconnect delay for this
// subscription only.
func WithReconnectDelay(d time.Duration) CallOption {
	return func(c *callConfig) { c.reconnectDelay = &d }
}

// WithMaxReconnects overrides the reconnect budget for this
// subscription only.
func WithMaxReconnects(n int) CallOption {
	return func(c *callConfig) { c.maxReconnects = &n }
}
