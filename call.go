package rpc

import (
	"context"
	"encoding/json"
	"time"
)

// call executes a single query or mutation against path with input,
// returning the raw result payload or a normalized public *Error.
//
// Steps: validate path; build the request context; fire OnRequest;
// enter the interceptor chain; at the base, invoke rpc_call under the
// effective timeout (per-call override > client default > none). A
// timeout is implemented as an internally derived context deadline; on
// expiry the base reports *TimeoutError, distinguishing it from an
// externally cancelled context, which reports *CancelledError. On
// success, fire OnResponse and return. Any error is normalized, fires
// OnError, and is returned as the public *Error; callers never see
// internal variants.
//
// WithRetry and WithDeduplication wrap the whole attempt: retry
// re-runs the interceptor chain per attempt, and deduplicated callers
// share a single execution (hooks fire once for the shared call).
func (c *Client) call(ctx context.Context, path string, input any, kind Kind, opts ...CallOption) (json.RawMessage, error) {
	cfg := defaultCallConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := validatePath(path, c.config.pathRules); err != nil {
		return nil, normalizeError(err)
	}

	exec := func(ctx context.Context) (json.RawMessage, error) {
		return c.doCall(ctx, path, input, kind, cfg)
	}
	if cfg.retry != nil {
		retryCfg := *cfg.retry
		inner := exec
		exec = func(ctx context.Context) (json.RawMessage, error) {
			return withRetry(ctx, retryCfg, inner)
		}
	}
	if cfg.dedup {
		key, err := deduplicationKey(path, input)
		if err != nil {
			return nil, normalizeError(&CallError{Code: CodeInternalError, Message: "deriving deduplication key: " + err.Error()})
		}
		return withDedup(c, key, func() (json.RawMessage, error) { return exec(ctx) })
	}
	return exec(ctx)
}

// doCall runs one attempt: request context, hooks, interceptor chain,
// transport invoke.
func (c *Client) doCall(ctx context.Context, path string, input any, kind Kind, cfg *callConfig) (json.RawMessage, error) {
	rc := newRequestContext(path, input, kind, cfg.meta)

	timeout := c.config.defaultTimeout
	if cfg.timeout > 0 {
		timeout = cfg.timeout
	}
	if timeout > 0 {
		rc.Timeout = timeout.Milliseconds()
	}

	if c.config.hooks.OnRequest != nil {
		c.config.hooks.OnRequest(rc)
	}

	base := func(ctx context.Context, rc *RequestContext) (any, error) {
		return c.invokeCall(ctx, rc, timeout)
	}

	next := chain(c.config.interceptors, base)
	result, err := next(ctx, rc)
	if err != nil {
		publicErr := normalizeError(err)
		if c.config.hooks.OnError != nil {
			c.config.hooks.OnError(rc, publicErr)
		}
		return nil, publicErr
	}

	if c.config.hooks.OnResponse != nil {
		c.config.hooks.OnResponse(rc, result)
	}

	raw, ok := result.(json.RawMessage)
	if !ok {
		return nil, normalizeError(&CallError{Code: CodeInternalError, Message: "unexpected result type from transport"})
	}
	return raw, nil
}

// invokeCall is the terminal step of the interceptor chain: it applies
// the effective timeout and calls the transport.
func (c *Client) invokeCall(ctx context.Context, rc *RequestContext, timeout time.Duration) (any, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	raw, err := c.transport.Invoke(callCtx, "rpc_call", rpcCallParams{Path: rc.Path, Input: rc.Input})
	if err != nil {
		return nil, classifyInvokeError(callCtx, ctx, rc.Path, timeout, err)
	}
	return raw, nil
}

// classifyInvokeError distinguishes an internally triggered timeout
// from an externally cancelled context and from an ordinary transport
// failure, per the abort-signal classification rule: if callCtx's
// deadline (derived from timeout) elapsed, report *TimeoutError; if
// the caller's own ctx was cancelled, report *CancelledError;
// otherwise wrap as *NetworkError.
func classifyInvokeError(callCtx, callerCtx context.Context, path string, timeout time.Duration, err error) error {
	if callCtx.Err() == context.DeadlineExceeded && timeout > 0 {
		return &TimeoutError{Path: path, TimeoutMs: timeout.Milliseconds()}
	}
	if callerCtx.Err() == context.Canceled {
		return &CancelledError{Path: path}
	}
	if isInternalErrorVariant(err) {
		return err
	}
	return &NetworkError{Path: path, Original: err}
}
