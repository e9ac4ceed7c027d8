// Package httprpc implements a unary-only rpc.Transport over plain
// HTTP POST, for host processes that expose queries/mutations but no
// push channel. Subscriptions are unsupported: Invoke on the subscribe
// control method fails with a *rpc.NetworkError and Listen hands back
// a no-op release.
//
// Built atop the shared internal/httpkit client (timeouts,
// retry-on-transient-error, connection pooling).
package httprpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	rpc "github.com/nugget/bridgerpc"
	"github.com/nugget/bridgerpc/internal/httpkit"
)

// requestEnvelope is the POST body for a single unary call.
type requestEnvelope struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type responseEnvelope struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Config configures a Transport.
type Config struct {
	// URL is the host endpoint, called with one POST per Invoke.
	URL string
	// Headers are sent with every request (auth, etc).
	Headers map[string]string
	// RetryCount enables httpkit's transient-error retry when positive.
	RetryCount int
	// RetryDelay is the wait between retries. Defaults to 500ms.
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// Transport is a unary-only rpc.Transport over HTTP POST. Listen is
// unsupported: Invoke of rpc_subscribe fails with a NetworkError
// without sending any HTTP request.
type Transport struct {
	url     string
	headers map[string]string
	client  *http.Client
	logger  *slog.Logger

	mu        sync.RWMutex
	sessionID string
}

var _ rpc.Transport = (*Transport)(nil)

// New builds an HTTP transport for cfg.
func New(cfg Config) *Transport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := []httpkit.ClientOption{httpkit.WithLogger(logger)}
	if cfg.RetryCount > 0 {
		delay := cfg.RetryDelay
		if delay <= 0 {
			delay = 500 * time.Millisecond
		}
		opts = append(opts, httpkit.WithRetry(cfg.RetryCount, delay))
	}

	return &Transport{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  httpkit.NewClient(opts...),
		logger:  logger,
	}
}

// Invoke POSTs {method, params} to the configured URL and decodes the
// {result} | {error} response envelope.
func (t *Transport) Invoke(ctx context.Context, method string, args any) (json.RawMessage, error) {
	if method == "rpc_subscribe" {
		return nil, &rpc.NetworkError{Path: method, Original: fmt.Errorf("subscriptions are not supported over the unary-only HTTP transport")}
	}

	body, err := json.Marshal(requestEnvelope{Method: method, Params: args})
	if err != nil {
		return nil, fmt.Errorf("marshal request for %q: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request for %q: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	t.mu.RLock()
	if t.sessionID != "" {
		req.Header.Set("X-Rpc-Session", t.sessionID)
	}
	t.mu.RUnlock()

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &rpc.NetworkError{Path: method, Original: err}
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if sid := resp.Header.Get("X-Rpc-Session"); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 1<<20)
		return nil, &rpc.NetworkError{Path: method, Original: fmt.Errorf("host returned %d: %s", resp.StatusCode, errBody)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &rpc.NetworkError{Path: method, Original: fmt.Errorf("read response body: %w", err)}
	}

	var env responseEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &rpc.NetworkError{Path: method, Original: fmt.Errorf("decode response envelope: %w", err)}
	}
	if env.Error != nil {
		return nil, &rpc.CallError{Code: env.Error.Code, Message: env.Error.Message, Details: env.Error.Details}
	}
	return env.Result, nil
}

// Listen registers nothing: a plain request/response HTTP transport has
// no mechanism to push server-initiated events. It logs a warning and
// returns a no-op Unlisten; handler is never called.
func (t *Transport) Listen(channel string, handler func(payload json.RawMessage)) rpc.Unlisten {
	t.logger.Warn("subscription attempted over unary-only HTTP transport", "channel", channel)
	return func() {}
}

// Close releases the underlying HTTP client's idle connections.
func (t *Transport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
