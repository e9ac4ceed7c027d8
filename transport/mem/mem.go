// Package mem implements an in-process rpc.Transport backed by a
// method dispatch table and a channel-keyed event bus. It exists for
// unit tests and examples that need a working host process without a
// real network hop.
package mem

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	rpc "github.com/nugget/bridgerpc"
	"github.com/nugget/bridgerpc/internal/eventbus"
)

var _ rpc.Transport = (*Transport)(nil)

// Handler answers a single rpc.Transport.Invoke call for one method.
type Handler func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Transport is an in-process rpc.Transport. The zero value is not
// usable; construct with New.
type Transport struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	bus      *eventbus.Bus
	closed   bool
}

// New creates an in-memory transport with no handlers registered.
// Most callers want NewHost instead, which wires up the standard
// rpc_call/rpc_call_batch/rpc_subscribe/rpc_unsubscribe/rpc_procedures
// methods over a procedure registry.
func New() *Transport {
	return &Transport{
		handlers: make(map[string]Handler),
		bus:      eventbus.New(),
	}
}

// RegisterHandler installs the handler invoked for method.
func (t *Transport) RegisterHandler(method string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[method] = h
}

// Invoke marshals args to JSON and dispatches to the handler
// registered for method.
func (t *Transport) Invoke(ctx context.Context, method string, args any) (json.RawMessage, error) {
	t.mu.RLock()
	closed := t.closed
	h, ok := t.handlers[method]
	t.mu.RUnlock()

	if closed {
		return nil, fmt.Errorf("transport closed")
	}
	if !ok {
		return nil, fmt.Errorf("no handler registered for method %q", method)
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args for %q: %w", method, err)
	}
	return h(ctx, raw)
}

// Listen registers handler on channel via the underlying event bus.
func (t *Transport) Listen(channel string, handler func(payload json.RawMessage)) rpc.Unlisten {
	return rpc.Unlisten(t.bus.Listen(channel, func(payload any) {
		raw, ok := payload.(json.RawMessage)
		if !ok {
			b, err := json.Marshal(payload)
			if err != nil {
				return
			}
			raw = b
		}
		handler(raw)
	}))
}

// Publish pushes payload to every listener on channel. Test code and
// Host use this to simulate host-originated subscription events.
func (t *Transport) Publish(channel string, payload any) {
	t.bus.Publish(channel, payload)
}

// Close marks the transport closed; subsequent Invoke calls fail.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}
