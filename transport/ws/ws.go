// Package ws implements an rpc.Transport over a single gorilla/websocket
// connection, multiplexing unary invoke calls and channel-keyed event
// delivery on one physical socket.
//
// A monotonic message id correlates outbound calls with inbound
// responses through a pending-response map; a background readLoop
// demultiplexes every inbound frame by shape — a correlated response
// carries "id", a pushed event carries "channel".
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	rpc "github.com/nugget/bridgerpc"
)

// frame is the single wire shape multiplexed over the connection.
// Outbound calls populate ID/Method/Params. Inbound responses populate
// ID plus exactly one of Result/Error. Inbound pushed events populate
// Channel/Payload and carry no ID.
type frame struct {
	ID      int64           `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type pendingCall struct {
	result json.RawMessage
	err    *wireError
}

// Config configures a Transport.
type Config struct {
	// URL is the host endpoint (ws:// or wss://).
	URL string
	// Headers are sent with the initial upgrade request (e.g. auth).
	Headers map[string]string
	// ReadBufferSize/WriteBufferSize size the dialer's I/O buffers.
	ReadBufferSize, WriteBufferSize int
	// HandshakeTimeout bounds the initial dial+upgrade.
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

// Transport is an rpc.Transport backed by one websocket connection.
// The zero value is not usable; construct with Dial.
type Transport struct {
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	msgID atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan pendingCall

	listenersMu  sync.RWMutex
	listeners    map[string]map[int]func(json.RawMessage)
	nextListener int

	closed   atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
}

var _ rpc.Transport = (*Transport)(nil)

// Dial connects to cfg.URL and starts the background read loop.
func Dial(ctx context.Context, cfg Config) (*Transport, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}

	dialer := websocket.Dialer{
		ReadBufferSize:   cfg.ReadBufferSize,
		WriteBufferSize:  cfg.WriteBufferSize,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}

	header := make(map[string][]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		header[k] = []string{v}
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial websocket %s: %w", u.Redacted(), err)
	}

	t := &Transport{
		logger:    logger,
		conn:      conn,
		pending:   make(map[int64]chan pendingCall),
		listeners: make(map[string]map[int]func(json.RawMessage)),
		done:      make(chan struct{}),
	}

	go t.readLoop()
	return t, nil
}

// Invoke sends method/args as a correlated request and blocks for the
// matching response, or until ctx is done.
func (t *Transport) Invoke(ctx context.Context, method string, args any) (json.RawMessage, error) {
	if t.closed.Load() {
		return nil, fmt.Errorf("websocket transport closed")
	}

	id := t.msgID.Add(1)
	respCh := make(chan pendingCall, 1)

	t.pendingMu.Lock()
	t.pending[id] = respCh
	t.pendingMu.Unlock()

	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	t.connMu.Lock()
	err := t.conn.WriteJSON(frame{ID: id, Method: method, Params: args})
	t.connMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write websocket frame for %q: %w", method, err)
	}

	select {
	case resp := <-respCh:
		if resp.err != nil {
			return nil, &rpc.CallError{Code: resp.err.Code, Message: resp.err.Message, Details: resp.err.Details}
		}
		return resp.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, fmt.Errorf("websocket transport closed while waiting for %q", method)
	}
}

// Listen registers handler to receive frames pushed on channel.
func (t *Transport) Listen(channel string, handler func(payload json.RawMessage)) rpc.Unlisten {
	t.listenersMu.Lock()
	id := t.nextListener
	t.nextListener++
	if t.listeners[channel] == nil {
		t.listeners[channel] = make(map[int]func(json.RawMessage))
	}
	t.listeners[channel][id] = handler
	t.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.listenersMu.Lock()
			defer t.listenersMu.Unlock()
			if m, ok := t.listeners[channel]; ok {
				delete(m, id)
				if len(m) == 0 {
					delete(t.listeners, channel)
				}
			}
		})
	}
}

// Close terminates the connection and unblocks any pending Invoke calls.
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.connMu.Lock()
	err := t.conn.Close()
	t.connMu.Unlock()
	t.closeDone()
	return err
}

func (t *Transport) closeDone() {
	t.doneOnce.Do(func() { close(t.done) })
}

// readLoop demultiplexes inbound frames: those carrying a non-zero ID
// resolve a pending Invoke; those carrying a Channel are fanned out to
// that channel's listeners.
func (t *Transport) readLoop() {
	defer t.closeDone()
	for {
		var f frame
		t.connMu.Lock()
		conn := t.conn
		t.connMu.Unlock()
		if conn == nil {
			return
		}

		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Info("websocket closed normally")
			} else if !t.closed.Load() {
				t.logger.Error("websocket read error, connection lost", "error", err)
			}
			t.failAllPending(fmt.Errorf("connection lost: %w", err))
			return
		}

		switch {
		case f.ID != 0:
			t.pendingMu.Lock()
			ch, ok := t.pending[f.ID]
			t.pendingMu.Unlock()
			if ok {
				ch <- pendingCall{result: f.Result, err: f.Error}
			}
		case f.Channel != "":
			t.listenersMu.RLock()
			handlers := make([]func(json.RawMessage), 0, len(t.listeners[f.Channel]))
			for _, h := range t.listeners[f.Channel] {
				handlers = append(handlers, h)
			}
			t.listenersMu.RUnlock()
			for _, h := range handlers {
				h(f.Payload)
			}
		default:
			t.logger.Debug("unhandled websocket frame")
		}
	}
}

func (t *Transport) failAllPending(err error) {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	for id, ch := range t.pending {
		ch <- pendingCall{err: &wireError{Code: "INTERNAL_ERROR", Message: err.Error()}}
		delete(t.pending, id)
	}
}
