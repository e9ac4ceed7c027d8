package rpc

import (
	"context"
	"encoding/json"
)

// BatchRequest is a single entry submitted to executeBatch.
type BatchRequest struct {
	ID    string
	Path  string
	Input any
}

// BatchResult is a single entry in a BatchResponse. Exactly one of
// Data/Error is populated.
type BatchResult struct {
	ID    string
	Data  json.RawMessage
	Error *Error
}

// BatchResponse is the result of executeBatch: one BatchResult per
// request, in request order.
type BatchResponse struct {
	Results []BatchResult
}

// executeBatch validates every request's path, normalizes nil inputs
// to an explicit null placeholder, and issues a single rpc_call_batch
// round trip. It does not return an error for partial failure — each
// entry carries its own outcome.
func (c *Client) executeBatch(ctx context.Context, requests []BatchRequest, opts ...CallOption) (*BatchResponse, error) {
	cfg := defaultCallConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	wireRequests := make([]batchRequestWire, len(requests))
	for i, r := range requests {
		if err := validatePath(r.Path, c.config.pathRules); err != nil {
			return nil, normalizeError(err)
		}
		// A nil Input marshals to JSON null, matching the wire
		// contract's normalization of an absent input.
		wireRequests[i] = batchRequestWire{ID: r.ID, Path: r.Path, Input: r.Input}
	}

	callCtx := ctx
	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	var params rpcCallBatchParams
	params.Batch.Requests = wireRequests

	raw, err := c.transport.Invoke(callCtx, "rpc_call_batch", params)
	if err != nil {
		return nil, normalizeError(classifyInvokeError(callCtx, ctx, "rpc_call_batch", cfg.timeout, err))
	}

	var wireResponse batchResponseWire
	if err := json.Unmarshal(raw, &wireResponse); err != nil {
		return nil, normalizeError(&CallError{Code: CodeInternalError, Message: "decoding batch response: " + err.Error()})
	}

	results := make([]BatchResult, len(wireResponse.Results))
	for i, r := range wireResponse.Results {
		results[i] = BatchResult{ID: r.ID, Data: r.Data, Error: r.Error}
	}
	return &BatchResponse{Results: results}, nil
}

// TypedBatchBuilder accumulates typed entries keyed by a caller-chosen
// id, executes them as a single batch, and offers typed lookup helpers
// over the response.
type TypedBatchBuilder struct {
	client *Client
	ids    []string
	reqs   []BatchRequest
}

// NewBatch creates a batch builder bound to client. The typed proxy's
// root batch() factory is the idiomatic entry point; this constructor
// exists for callers that don't go through a Proc tree.
func NewBatch(client *Client) *TypedBatchBuilder {
	return &TypedBatchBuilder{client: client}
}

// Add registers a request under id. If id is already used, the later
// Add overwrites the earlier one's path/input for that id.
func (b *TypedBatchBuilder) Add(id, path string, input any) *TypedBatchBuilder {
	for i, existing := range b.ids {
		if existing == id {
			b.reqs[i] = BatchRequest{ID: id, Path: path, Input: input}
			return b
		}
	}
	b.ids = append(b.ids, id)
	b.reqs = append(b.reqs, BatchRequest{ID: id, Path: path, Input: input})
	return b
}

// Execute issues the accumulated requests as one batch and returns a
// BatchResultSet for typed lookup.
func (b *TypedBatchBuilder) Execute(ctx context.Context, opts ...CallOption) (*BatchResultSet, error) {
	resp, err := b.client.executeBatch(ctx, b.reqs, opts...)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]BatchResult, len(resp.Results))
	for _, r := range resp.Results {
		byID[r.ID] = r
	}
	return &BatchResultSet{byID: byID, ids: b.ids}, nil
}

// BatchResultSet wraps a completed batch's results for id-keyed
// lookup. Ids the caller added but that are absent from the response
// resolve to a synthetic NOT_FOUND error.
type BatchResultSet struct {
	byID map[string]BatchResult
	ids  []string
}

// GetResult returns the raw result entry for id.
func (s *BatchResultSet) GetResult(id string) BatchResult {
	if r, ok := s.byID[id]; ok {
		return r
	}
	return BatchResult{ID: id, Error: &Error{Code: CodeNotFound, Message: "no batch result for id " + id}}
}

// IsSuccess reports whether id's result has no error.
func (s *BatchResultSet) IsSuccess(id string) bool {
	return s.GetResult(id).Error == nil
}

// GetSuccessful returns every result (in the order ids were added)
// whose entry succeeded.
func (s *BatchResultSet) GetSuccessful() []BatchResult {
	var out []BatchResult
	for _, id := range s.ids {
		r := s.GetResult(id)
		if r.Error == nil {
			out = append(out, r)
		}
	}
	return out
}

// GetFailed returns every result (in the order ids were added) whose
// entry failed.
func (s *BatchResultSet) GetFailed() []BatchResult {
	var out []BatchResult
	for _, id := range s.ids {
		r := s.GetResult(id)
		if r.Error != nil {
			out = append(out, r)
		}
	}
	return out
}

// SuccessCount returns the number of added ids whose result succeeded.
func (s *BatchResultSet) SuccessCount() int { return len(s.GetSuccessful()) }

// ErrorCount returns the number of added ids whose result failed.
func (s *BatchResultSet) ErrorCount() int { return len(s.GetFailed()) }

// GetTyped decodes id's successful result data into T. If the result
// failed, it returns the zero value and the failure's error.
func GetTyped[T any](s *BatchResultSet, id string) (T, error) {
	var zero T
	r := s.GetResult(id)
	if r.Error != nil {
		return zero, r.Error
	}
	if len(r.Data) == 0 {
		return zero, nil
	}
	if err := json.Unmarshal(r.Data, &zero); err != nil {
		return zero, &Error{Code: CodeInternalError, Message: "decoding batch result for " + id + ": " + err.Error()}
	}
	return zero, nil
}
