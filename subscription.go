package rpc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/bridgerpc/internal/backoff"
)

// SubscriptionState is one position in a subscription's lifecycle:
// Connecting -> Open -> (Reconnecting <-> Open)* -> Closed. Closed is
// terminal. Transitions are reported through Hooks.OnSubscriptionState.
type SubscriptionState int

const (
	StateConnecting SubscriptionState = iota
	StateOpen
	StateReconnecting
	StateClosed
)

func (s SubscriptionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// subEventKind tags an item taken off a subscription's event queue.
type subEventKind int

const (
	subEventData subEventKind = iota
	subEventError
	subEventCompleted
	subEventShutdown
)

type subQueueItem struct {
	kind subEventKind
	data json.RawMessage
	id   string
	err  *Error
}

// subscription is the per-iterator state machine described as the
// subscription engine: it owns the event queue, the event-bus listener,
// and the reconnect loop. States: Connecting -> Open -> (Reconnecting
// <-> Open)* -> Closed.
type subscription struct {
	client *Client
	path   string
	input  any
	policy ReconnectPolicy

	queue *eventQueue

	mu                sync.Mutex
	id                string
	unlisten          Unlisten
	state             SubscriptionState
	completed         bool
	reconnecting      bool
	terminalErr       *Error
	reconnectAttempts int
	lastEventID       string
	pendingConsumers  int

	shutdownOnce sync.Once
}

// setState records a lifecycle transition and reports it through the
// client's OnSubscriptionState hook. Closed is sticky.
func (s *subscription) setState(to SubscriptionState) {
	s.mu.Lock()
	from := s.state
	if from == StateClosed || from == to {
		s.mu.Unlock()
		return
	}
	s.state = to
	s.mu.Unlock()

	if hook := s.client.config.hooks.OnSubscriptionState; hook != nil {
		hook(s.path, from, to)
	}
}

func (c *Client) subscribe(ctx context.Context, path string, input any, opts ...CallOption) (*subscription, error) {
	cfg := defaultCallConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := validatePath(path, c.config.pathRules); err != nil {
		return nil, normalizeError(err)
	}

	policy := c.config.reconnect
	if cfg.autoReconnect != nil {
		policy.AutoReconnect = *cfg.autoReconnect
	}
	if cfg.reconnectDelay != nil {
		policy.BaseDelay = *cfg.reconnectDelay
	}
	if cfg.maxReconnects != nil {
		policy.MaxReconnects = *cfg.maxReconnects
	}

	s := &subscription{
		client:      c,
		path:        path,
		input:       input,
		policy:      policy,
		queue:       newEventQueue(),
		lastEventID: cfg.lastEventID,
	}

	if err := s.connect(ctx, s.lastEventID); err != nil {
		s.queue.Close()
		return nil, normalizeError(err)
	}
	s.setState(StateOpen)

	c.registerSubscription(s)
	return s, nil
}

// connect generates a fresh subscription id, attaches the event bus
// listener, and issues rpc_subscribe. If rpc_subscribe fails, the
// listener is detached before the NetworkError is surfaced.
func (s *subscription) connect(ctx context.Context, lastEventID string) error {
	id := uuid.New().String()
	channel := subscriptionChannel(id)

	unlisten := s.client.transport.Listen(channel, func(payload json.RawMessage) {
		s.onEvent(payload)
	})

	req := subscribeRequest{Request: subscribeRequestInner{
		ID:          id,
		Path:        s.path,
		Input:       s.input,
		LastEventID: lastEventID,
	}}

	if _, err := s.client.transport.Invoke(ctx, "rpc_subscribe", req); err != nil {
		unlisten()
		return &NetworkError{Path: s.path, Original: err}
	}

	s.mu.Lock()
	s.id = id
	s.unlisten = unlisten
	s.completed = false
	s.mu.Unlock()

	return nil
}

// onEvent is the event-bus handler: it decodes the wire payload and
// offers exactly one item to the queue.
func (s *subscription) onEvent(raw json.RawMessage) {
	var evt subscriptionEventPayload
	if err := json.Unmarshal(raw, &evt); err != nil {
		s.queue.Offer(subQueueItem{kind: subEventError, err: &Error{
			Code:    CodeUnknown,
			Message: "malformed subscription event: " + err.Error(),
		}})
		return
	}

	switch evt.Type {
	case "data":
		s.queue.Offer(subQueueItem{kind: subEventData, data: evt.Payload.Data, id: evt.Payload.ID})
	case "error":
		s.queue.Offer(subQueueItem{kind: subEventError, err: &Error{
			Code:    evt.Payload.Code,
			Message: evt.Payload.Message,
			Details: evt.Payload.Details,
		}})
	case "completed":
		s.queue.Offer(subQueueItem{kind: subEventCompleted})
	}
}

// next implements one step of the consume loop. It returns (data, nil,
// false) for a value, (nil, nil, true) for normal completion, or (nil,
// err, true) for a terminal error. A nil/false/false zero value is
// never returned.
func (s *subscription) next(ctx context.Context) (json.RawMessage, *Error, bool) {
	s.mu.Lock()
	// While another consumer drives a reconnect, completed is
	// transiently true; blocking on the queue instead of returning a
	// premature clean end keeps concurrent consumers transparent to
	// the reconnect.
	if s.completed && !s.reconnecting {
		terminal := s.terminalErr
		s.mu.Unlock()
		// A consumer arriving after a terminal failure still observes
		// it, not a clean end.
		if terminal != nil {
			return nil, terminal, true
		}
		return nil, nil, true
	}
	s.pendingConsumers++
	s.mu.Unlock()

	item, ok := s.queue.Take(ctx)

	s.mu.Lock()
	s.pendingConsumers--
	s.mu.Unlock()

	if !ok {
		s.shutdown(nil)
		return nil, normalizeError(&CancelledError{Path: s.path}), true
	}

	switch item.kind {
	case subEventShutdown:
		return nil, nil, true

	case subEventCompleted:
		// Host-signaled completion is terminal in every state, so run
		// the full teardown: it releases the listener and abandons any
		// reconnect that may be pending on another consumer.
		s.shutdown(ctx)
		return nil, nil, true

	case subEventData:
		s.mu.Lock()
		if item.id != "" {
			s.lastEventID = item.id
		}
		// Data flowing is what proves a reconnected connection
		// healthy. Resetting on the subscribe call alone would let a
		// host that accepts the subscription and then immediately
		// errors burn the budget forever.
		s.reconnectAttempts = 0
		s.mu.Unlock()
		return item.data, nil, false

	case subEventError:
		// Synthetic items from an earlier broadcast are terminal as-is;
		// feeding them back into the reconnect loop would broadcast
		// again for every consumer that drains one.
		s.mu.Lock()
		if terminal := s.terminalErr; terminal != nil {
			s.completed = true
			s.mu.Unlock()
			return nil, terminal, true
		}
		s.completed = true
		autoReconnect := s.policy.AutoReconnect
		if autoReconnect {
			s.reconnecting = true
		}
		s.mu.Unlock()

		if autoReconnect {
			rerr := s.reconnect(ctx)
			s.mu.Lock()
			s.reconnecting = false
			terminal := s.terminalErr
			stragglers := s.pendingConsumers
			s.mu.Unlock()
			// A consumer that blocked between the failure broadcast
			// and this point would otherwise wait forever.
			if terminal != nil && stragglers > 0 {
				s.broadcastError(terminal)
			}
			if rerr != nil {
				return nil, rerr, true
			}
			return s.next(ctx)
		}
		s.failTerminal(item.err)
		return nil, item.err, true

	default:
		return nil, normalizeError(&CallError{Code: CodeInternalError, Message: "unreachable subscription queue item"}), true
	}
}

// reconnect runs the backoff-and-reissue loop, returning nil once a
// new connection is established. The attempt counter is not reset
// here; only a data event on the new connection resets it. On
// exhausting the reconnect budget it broadcasts
// MAX_RECONNECTS_EXCEEDED to every pending consumer and returns that
// error. On a connect failure short of the budget, it recurses.
func (s *subscription) reconnect(ctx context.Context) *Error {
	// The connection that errored is dead either way; release its
	// listener before deciding whether another attempt is allowed, so
	// the handle is invoked exactly once no matter how the attempt
	// ends.
	s.mu.Lock()
	unlisten := s.unlisten
	s.unlisten = nil
	s.mu.Unlock()
	if unlisten != nil {
		unlisten()
	}

	s.mu.Lock()
	if s.reconnectAttempts >= s.policy.MaxReconnects {
		attempts := s.reconnectAttempts
		s.mu.Unlock()

		maxErr := &Error{
			Code:    CodeMaxReconnectsExceeded,
			Message: "exceeded maximum subscription reconnect attempts",
			Details: map[string]any{
				"attempts":      attempts,
				"maxReconnects": s.policy.MaxReconnects,
				"path":          s.path,
			},
		}
		s.failTerminal(maxErr)

		s.mu.Lock()
		s.completed = true
		s.mu.Unlock()
		s.setState(StateClosed)
		return maxErr
	}

	s.reconnectAttempts++
	attempt := s.reconnectAttempts
	lastEventID := s.lastEventID
	s.mu.Unlock()
	s.setState(StateReconnecting)

	baseDelay := s.policy.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	delay := backoff.Delay(attempt-1, backoff.Config{Base: baseDelay, Max: 30 * time.Second, Jitter: true})
	if err := backoff.Sleep(ctx, delay); err != nil {
		return normalizeError(&CancelledError{Path: s.path, Reason: "reconnect wait cancelled"})
	}

	if err := s.connect(ctx, lastEventID); err != nil {
		return s.reconnect(ctx)
	}

	s.setState(StateOpen)
	return nil
}

// failTerminal records err as the subscription's terminal failure and
// broadcasts it. Recording it first means consumers draining the
// broadcast items (and consumers that arrive later) surface it without
// re-entering the reconnect or broadcast paths. First failure wins.
func (s *subscription) failTerminal(err *Error) {
	s.mu.Lock()
	if s.terminalErr != nil {
		s.mu.Unlock()
		return
	}
	s.terminalErr = err
	s.mu.Unlock()
	s.broadcastError(err)
}

// broadcastError enqueues err as max(1, pendingConsumers+1) synthetic
// error items so every currently blocked consumer observes it, and any
// consumer that hasn't started awaiting yet still finds it on its next
// call (pendingConsumers is always >= 0, so this count is always >= 1).
func (s *subscription) broadcastError(err *Error) {
	s.mu.Lock()
	n := s.pendingConsumers + 1
	s.mu.Unlock()

	for i := 0; i < n; i++ {
		s.queue.Offer(subQueueItem{kind: subEventError, err: err})
	}
}

// shutdown is the return()/abort path: unlisten first so no further
// payloads enter the queue during teardown, mark completed, fill the
// queue with shutdown sentinels so every blocked and future next()
// call observes termination, then best-effort unsubscribe. Idempotent.
func (s *subscription) shutdown(ctx context.Context) {
	s.shutdownOnce.Do(func() {
		s.setState(StateClosed)

		s.mu.Lock()
		unlisten := s.unlisten
		s.unlisten = nil
		s.completed = true
		n := s.pendingConsumers + 1
		id := s.id
		s.mu.Unlock()

		if unlisten != nil {
			unlisten()
		}

		for i := 0; i < n; i++ {
			s.queue.Offer(subQueueItem{kind: subEventShutdown})
		}

		if ctx == nil {
			ctx = context.Background()
		}
		unsubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, _ = s.client.transport.Invoke(unsubCtx, "rpc_unsubscribe", map[string]any{"id": "sub_" + id})

		s.client.unregisterSubscription(id)
		s.queue.Close()
	})
}

// Close terminates the subscription: the public return() equivalent.
func (s *subscription) Close() error {
	s.shutdown(context.Background())
	return nil
}
