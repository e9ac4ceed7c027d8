package rpc

import (
	"context"
	"encoding/json"
)

// Transport is the wire abstraction the call and subscription engines
// are built on. Implementations carry two operations: a unary
// request/response call, and an event bus a subscription can listen
// on. transport/mem, transport/ws, transport/stdio, and
// transport/httprpc each implement this for a different wire.
type Transport interface {
	// Invoke performs a single request/response round trip against
	// method, with args as the request payload, and returns the raw
	// result payload or an error. Implementations should return a
	// *NetworkError (or an error classifiable by normalizeError) on
	// transport-level failure rather than a bare error.
	Invoke(ctx context.Context, method string, args any) (json.RawMessage, error)

	// Listen registers handler to receive payloads published on
	// channel, returning an unlisten function. Handlers receive the
	// raw JSON payload; callers unmarshal into the shape they expect.
	Listen(channel string, handler func(payload json.RawMessage)) Unlisten

	// Close releases any resources held by the transport (open
	// connections, background goroutines). After Close, Invoke and
	// Listen may fail.
	Close() error
}

// Unlisten releases a single Listen registration. Calling it more than
// once is a no-op.
type Unlisten func()

// rpcCallParams is the params payload for the rpc_call method.
type rpcCallParams struct {
	Path  string `json:"path"`
	Input any    `json:"input"`
}

// batchRequestWire is a single entry in an rpc_call_batch request.
type batchRequestWire struct {
	ID    string `json:"id"`
	Path  string `json:"path"`
	Input any    `json:"input"`
}

// rpcCallBatchParams is the params payload for the rpc_call_batch
// method.
type rpcCallBatchParams struct {
	Batch struct {
		Requests []batchRequestWire `json:"requests"`
	} `json:"batch"`
}

// batchResultWire is a single entry in an rpc_call_batch response.
// Exactly one of Data/Error is populated.
type batchResultWire struct {
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// batchResponseWire is the full rpc_call_batch response.
type batchResponseWire struct {
	Results []batchResultWire `json:"results"`
}

// subscribeRequest is the params payload for the rpc_subscribe method,
// nested under "request" per the wire contract.
type subscribeRequest struct {
	Request subscribeRequestInner `json:"request"`
}

type subscribeRequestInner struct {
	ID          string `json:"id"`
	Path        string `json:"path"`
	Input       any    `json:"input"`
	LastEventID string `json:"lastEventId,omitempty"`
}

// subscriptionEventPayload mirrors the event channel payload schema:
// exactly one of the type-specific fields is populated for a given
// Type.
type subscriptionEventPayload struct {
	Type    string                  `json:"type"`
	Payload subscriptionDataOrError `json:"payload,omitempty"`
}

// subscriptionDataOrError holds the union of a "data" event's payload
// and an "error" event's payload. Data/ID/Retry are set for type
// "data"; Code/Message/Details are set for type "error".
type subscriptionDataOrError struct {
	Data  json.RawMessage `json:"data,omitempty"`
	ID    string          `json:"id,omitempty"`
	Retry *int64          `json:"retry,omitempty"`

	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// subscriptionChannel returns the event bus channel name a
// subscription with the given id listens on.
func subscriptionChannel(id string) string {
	return "rpc:subscription:sub_" + id
}

// SubscriptionChannel returns the wire channel name a subscription
// with the given id is published on. Transport implementations that
// need to construct or recognize subscription channel names outside
// this package (e.g. a test double's host simulation) should use this
// rather than reconstructing the "rpc:subscription:sub_" prefix
// themselves.
func SubscriptionChannel(id string) string {
	return subscriptionChannel(id)
}

// SubscriptionID extracts the subscription id from a wire channel name
// produced by SubscriptionChannel, returning ok=false if channel does
// not have the expected shape.
func SubscriptionID(channel string) (id string, ok bool) {
	const prefix = "rpc:subscription:sub_"
	if len(channel) <= len(prefix) || channel[:len(prefix)] != prefix {
		return "", false
	}
	return channel[len(prefix):], true
}
