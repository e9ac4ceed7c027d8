package mem

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	rpc "github.com/nugget/bridgerpc"
)

// ProcedureFunc answers a single rpc_call for one registered path.
type ProcedureFunc func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// Emitter is handed to a SubscriptionFunc to push events to the
// subscriber. Every call publishes one event on the subscription's
// channel; calls made after Complete or Fail are published as well,
// not suppressed.
type Emitter interface {
	// Data pushes a value event. eventID, if non-empty, becomes the
	// lastEventId a reconnecting client will resume from.
	Data(value any, eventID string)
	// Fail pushes a terminal error event.
	Fail(code, message string)
	// Complete pushes a terminal normal-completion event.
	Complete()
}

// SubscriptionFunc serves one rpc_subscribe connection (including each
// reconnect attempt, which arrives as a fresh call carrying the id of
// the last data event the client saw, or "" if none carried an id). It should run until ctx is cancelled (unsubscribe) or
// it calls Fail/Complete on emit.
type SubscriptionFunc func(ctx context.Context, input json.RawMessage, lastEventID string, emit Emitter)

// Host is an in-memory stand-in for the native host process: a
// registry of query/mutation procedures and subscription streams,
// wired to a Transport's standard rpc_* methods.
type Host struct {
	transport *Transport

	mu            sync.RWMutex
	procedures    map[string]ProcedureFunc
	subscriptions map[string]SubscriptionFunc

	subsMu   sync.Mutex
	liveSubs map[string]context.CancelFunc
}

// NewHost creates a Host with its own Transport, ready for procedures
// and subscriptions to be registered.
func NewHost() *Host {
	h := &Host{
		transport:     New(),
		procedures:    make(map[string]ProcedureFunc),
		subscriptions: make(map[string]SubscriptionFunc),
		liveSubs:      make(map[string]context.CancelFunc),
	}
	h.transport.RegisterHandler("rpc_call", h.handleCall)
	h.transport.RegisterHandler("rpc_call_batch", h.handleCallBatch)
	h.transport.RegisterHandler("rpc_subscribe", h.handleSubscribe)
	h.transport.RegisterHandler("rpc_unsubscribe", h.handleUnsubscribe)
	h.transport.RegisterHandler("rpc_procedures", h.handleProcedures)
	h.transport.RegisterHandler("rpc_subscription_count", h.handleSubscriptionCount)
	return h
}

// Transport returns the Host's backing rpc.Transport.
func (h *Host) Transport() *Transport { return h.transport }

// Register installs fn as the handler for a query/mutation path.
func (h *Host) Register(path string, fn ProcedureFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.procedures[path] = fn
}

// RegisterSubscription installs fn as the handler for a subscription
// path.
func (h *Host) RegisterSubscription(path string, fn SubscriptionFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscriptions[path] = fn
}

type callParams struct {
	Path  string          `json:"path"`
	Input json.RawMessage `json:"input"`
}

func (h *Host) handleCall(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var params callParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &rpc.CallError{Code: "VALIDATION_ERROR", Message: "malformed rpc_call params: " + err.Error()}
	}

	h.mu.RLock()
	fn, ok := h.procedures[params.Path]
	h.mu.RUnlock()
	if !ok {
		return nil, &rpc.CallError{Code: "NOT_FOUND", Message: "no procedure registered for path " + params.Path}
	}

	return fn(ctx, params.Input)
}

type batchRequestWire struct {
	ID    string          `json:"id"`
	Path  string          `json:"path"`
	Input json.RawMessage `json:"input"`
}

type batchParams struct {
	Batch struct {
		Requests []batchRequestWire `json:"requests"`
	} `json:"batch"`
}

type wireErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type batchResultWire struct {
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *wireErrorShape `json:"error,omitempty"`
}

func (h *Host) handleCallBatch(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var params batchParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &rpc.CallError{Code: "VALIDATION_ERROR", Message: "malformed rpc_call_batch params: " + err.Error()}
	}

	results := make([]batchResultWire, len(params.Batch.Requests))
	for i, req := range params.Batch.Requests {
		h.mu.RLock()
		fn, ok := h.procedures[req.Path]
		h.mu.RUnlock()

		if !ok {
			results[i] = batchResultWire{ID: req.ID, Error: &wireErrorShape{Code: "NOT_FOUND", Message: "no procedure registered for path " + req.Path}}
			continue
		}

		data, err := fn(ctx, req.Input)
		var callErr *rpc.CallError
		if errors.As(err, &callErr) {
			results[i] = batchResultWire{ID: req.ID, Error: &wireErrorShape{Code: callErr.Code, Message: callErr.Message, Details: callErr.Details}}
			continue
		}
		if err != nil {
			results[i] = batchResultWire{ID: req.ID, Error: &wireErrorShape{Code: "INTERNAL_ERROR", Message: err.Error()}}
			continue
		}
		results[i] = batchResultWire{ID: req.ID, Data: data}
	}

	return json.Marshal(struct {
		Results []batchResultWire `json:"results"`
	}{Results: results})
}

type subscribeParams struct {
	Request struct {
		ID          string          `json:"id"`
		Path        string          `json:"path"`
		Input       json.RawMessage `json:"input"`
		LastEventID string          `json:"lastEventId"`
	} `json:"request"`
}

func (h *Host) handleSubscribe(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var params subscribeParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &rpc.CallError{Code: "VALIDATION_ERROR", Message: "malformed rpc_subscribe params: " + err.Error()}
	}

	h.mu.RLock()
	fn, ok := h.subscriptions[params.Request.Path]
	h.mu.RUnlock()
	if !ok {
		return nil, &rpc.CallError{Code: "NOT_FOUND", Message: "no subscription registered for path " + params.Request.Path}
	}

	subCtx, cancel := context.WithCancel(context.Background())
	label := "sub_" + params.Request.ID
	h.subsMu.Lock()
	h.liveSubs[label] = cancel
	h.subsMu.Unlock()

	channel := "rpc:subscription:sub_" + params.Request.ID
	emitter := &hostEmitter{transport: h.transport, channel: channel}

	go fn(subCtx, params.Request.Input, params.Request.LastEventID, emitter)

	return json.Marshal(nil)
}

func (h *Host) handleUnsubscribe(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &rpc.CallError{Code: "VALIDATION_ERROR", Message: "malformed rpc_unsubscribe params: " + err.Error()}
	}

	h.subsMu.Lock()
	cancel, ok := h.liveSubs[params.ID]
	delete(h.liveSubs, params.ID)
	h.subsMu.Unlock()

	if ok {
		cancel()
	}
	return json.Marshal(nil)
}

func (h *Host) handleProcedures(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	paths := make([]string, 0, len(h.procedures)+len(h.subscriptions))
	for p := range h.procedures {
		paths = append(paths, p)
	}
	for p := range h.subscriptions {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return json.Marshal(paths)
}

func (h *Host) handleSubscriptionCount(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	h.subsMu.Lock()
	count := len(h.liveSubs)
	h.subsMu.Unlock()
	return json.Marshal(count)
}

// hostEmitter implements Emitter over the host's transport.
type hostEmitter struct {
	transport *Transport
	channel   string
}

func (e *hostEmitter) Data(value any, eventID string) {
	data, err := json.Marshal(value)
	if err != nil {
		e.Fail("INTERNAL_ERROR", "encoding event data: "+err.Error())
		return
	}
	payload := map[string]any{
		"type": "data",
		"payload": map[string]any{
			"data": json.RawMessage(data),
			"id":   eventID,
		},
	}
	raw, _ := json.Marshal(payload)
	e.transport.Publish(e.channel, json.RawMessage(raw))
}

func (e *hostEmitter) Fail(code, message string) {
	payload := map[string]any{
		"type": "error",
		"payload": map[string]any{
			"code":    code,
			"message": message,
		},
	}
	raw, _ := json.Marshal(payload)
	e.transport.Publish(e.channel, json.RawMessage(raw))
}

func (e *hostEmitter) Complete() {
	payload := map[string]any{"type": "completed"}
	raw, _ := json.Marshal(payload)
	e.transport.Publish(e.channel, json.RawMessage(raw))
}
