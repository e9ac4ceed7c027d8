package rpc

import (
	"context"
	"encoding/json"
)

// Proc is a typed handle to a single procedure in a Contract. Go has
// no runtime property-access proxies, so where the source model builds
// a callable tree by walking a contract object at runtime, here each
// leaf is instead a concrete, generated Proc value with the path baked
// in; the contract itself stays declarative as a plain Go value
// composed of Procs.
//
// TIn and TOut are the procedure's input and output types. Call
// marshals TIn to JSON for the wire and unmarshals the result into
// TOut; a TIn of struct{} represents a void input.
type Proc[TIn, TOut any] struct {
	client *Client
	path   string
	kind   Kind
}

// NewProc declares a procedure at path with the given kind, bound to
// client. Whether path is treated as a subscription at call time is
// governed by the client's WithSubscriptionPaths configuration, not by
// kind. Neither Call nor Subscribe checks kind; Call passes it on as
// the RequestContext's Kind.
func NewProc[TIn, TOut any](client *Client, path string, kind Kind) *Proc[TIn, TOut] {
	return &Proc[TIn, TOut]{client: client, path: path, kind: kind}
}

// Query declares a query procedure at path.
func Query[TIn, TOut any](client *Client, path string) *Proc[TIn, TOut] {
	return NewProc[TIn, TOut](client, path, KindQuery)
}

// Mutation declares a mutation procedure at path.
func Mutation[TIn, TOut any](client *Client, path string) *Proc[TIn, TOut] {
	return NewProc[TIn, TOut](client, path, KindMutation)
}

// Subscription declares a subscription procedure at path.
func Subscription[TIn, TOut any](client *Client, path string) *Proc[TIn, TOut] {
	return NewProc[TIn, TOut](client, path, KindSubscription)
}

// Path returns the procedure's dot-joined path.
func (p *Proc[TIn, TOut]) Path() string { return p.path }

// Call invokes a query or mutation procedure and decodes its result
// into TOut. Membership in the client's subscription path set is
// checked at call time, not by the Proc's kind, so a path registered
// via WithSubscriptionPaths is refused here whatever kind the Proc was
// declared with, and must go through Subscribe.
func (p *Proc[TIn, TOut]) Call(ctx context.Context, input TIn, opts ...CallOption) (TOut, error) {
	var out TOut
	if p.client.IsSubscriptionPath(p.path) {
		return out, normalizeError(&ValidationError{Path: p.path, Issues: []string{
			"path is registered as a subscription; use Subscribe",
		}})
	}
	raw, err := p.client.call(ctx, p.path, input, p.kind, opts...)
	if err != nil {
		return out, err
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, normalizeError(&CallError{
			Code:    CodeInternalError,
			Message: "decoding result for " + p.path + ": " + err.Error(),
		})
	}
	return out, nil
}

// Subscribe opens a reconnecting, resumable event stream for a
// subscription procedure and returns an EventIterator over TOut
// values. The returned iterator must be closed (via its Close method
// or context cancellation) to release the underlying event bus
// listener and goroutines.
func (p *Proc[TIn, TOut]) Subscribe(ctx context.Context, input TIn, opts ...CallOption) (*EventIterator[TOut], error) {
	sub, err := p.client.subscribe(ctx, p.path, input, opts...)
	if err != nil {
		return nil, err
	}
	return newEventIterator[TOut](sub), nil
}
