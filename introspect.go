package rpc

import (
	"context"
	"encoding/json"
)

// introspect runs method (rpc_procedures, rpc_subscription_count)
// through the same request context, interceptor chain, and hook
// lifecycle as call, but with no path to validate and no input — these
// calls carry no special-cased behavior of their own.
func (c *Client) introspect(ctx context.Context, method string) (json.RawMessage, error) {
	rc := newRequestContext(method, nil, KindQuery, nil)

	if c.config.hooks.OnRequest != nil {
		c.config.hooks.OnRequest(rc)
	}

	base := func(ctx context.Context, rc *RequestContext) (any, error) {
		raw, err := c.transport.Invoke(ctx, method, nil)
		if err != nil {
			return nil, classifyInvokeError(ctx, ctx, rc.Path, 0, err)
		}
		return raw, nil
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

// ListProcedures returns the host's registered procedure paths via the
// rpc_procedures introspection call.
func (c *Client) ListProcedures(ctx context.Context) ([]string, error) {
	raw, err := c.introspect(ctx, "rpc_procedures")
	if err != nil {
		return nil, err
	}
	var paths []string
	if err := json.Unmarshal(raw, &paths); err != nil {
		return nil, normalizeError(&CallError{Code: CodeInternalError, Message: "decoding rpc_procedures response: " + err.Error()})
	}
	return paths, nil
}

// SubscriptionCount returns the host's live subscription count via the
// rpc_subscription_count introspection call.
func (c *Client) SubscriptionCount(ctx context.Context) (int, error) {
	raw, err := c.introspect(ctx, "rpc_subscription_count")
	if err != nil {
		return 0, err
	}
	var count int
	if err := json.Unmarshal(raw, &count); err != nil {
		return 0, normalizeError(&CallError{Code: CodeInternalError, Message: "decoding rpc_subscription_count response: " + err.Error()})
	}
	return count, nil
}
