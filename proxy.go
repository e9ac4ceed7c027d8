package rpc

import (
	"context"
	"encoding/json"
)

// This file is the untyped facade underneath the typed Proc handles:
// a dynamic client surface keyed by dot-joined path strings, for
// callers that don't have (or don't want) a generated contract, such
// as CLI tooling and tests. Dispatch between the call engine and the
// subscription engine happens here, at call time, against the
// client's registered subscription path set.

// IsSubscriptionPath reports whether path is currently registered as
// a subscription via WithSubscriptionPaths. Membership is consulted
// at call time by both the typed and untyped surfaces.
func (c *Client) IsSubscriptionPath(path string) bool {
	return c.config.subscriptionPaths[path]
}

// Call invokes a unary procedure at path and returns the raw result
// payload. If path is registered as a subscription, Call refuses with
// a VALIDATION_ERROR; the two engines have incompatible result
// shapes, so the dispatch the contract tree performs by procedure
// kind surfaces here as an explicit guard.
func (c *Client) Call(ctx context.Context, path string, input any, opts ...CallOption) (json.RawMessage, error) {
	if c.IsSubscriptionPath(path) {
		return nil, normalizeError(&ValidationError{Path: path, Issues: []string{
			"path is registered as a subscription; use Subscribe",
		}})
	}
	return c.call(ctx, path, input, KindQuery, opts...)
}

// Subscribe opens a reconnecting, resumable event stream for the
// procedure at path. The returned iterator yields raw payloads; use
// Proc.Subscribe for decoded values.
func (c *Client) Subscribe(ctx context.Context, path string, input any, opts ...CallOption) (*EventIterator[json.RawMessage], error) {
	sub, err := c.subscribe(ctx, path, input, opts...)
	if err != nil {
		return nil, err
	}
	return newEventIterator[json.RawMessage](sub), nil
}

// Batch returns a fresh TypedBatchBuilder bound to this client.
func (c *Client) Batch() *TypedBatchBuilder {
	return NewBatch(c)
}

// ExecuteBatch validates, normalizes, and sends requests as one
// rpc_call_batch invocation, returning per-entry results in request
// order. Partial failure does not produce an error; each entry
// carries its own data or error.
func (c *Client) ExecuteBatch(ctx context.Context, requests []BatchRequest, opts ...CallOption) (*BatchResponse, error) {
	return c.executeBatch(ctx, requests, opts...)
}
