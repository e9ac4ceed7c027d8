package rpc

import "sync"

// Client dispatches calls, batches, and subscriptions against a
// Transport according to a Contract. Construct one Client per
// connection to a host process; it is safe for concurrent use.
type Client struct {
	transport Transport
	config    *clientConfig

	dedupMu sync.Mutex
	dedup   map[string]*dedupEntry

	subsMu sync.Mutex
	subs   map[string]*subscription
}

// NewClient creates a Client bound to transport, applying opts over
// the default configuration (no interceptors, no default timeout, a
// reconnect policy of up to 5 attempts with a 500ms base delay).
func NewClient(transport Transport, opts ...ClientOption) *Client {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Client{
		transport: transport,
		config:    cfg,
		dedup:     make(map[string]*dedupEntry),
		subs:      make(map[string]*subscription),
	}
}

// Close releases the underlying transport and terminates any open
// subscriptions.
func (c *Client) Close() error {
	c.subsMu.Lock()
	subs := make([]*subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.subsMu.Unlock()

	for _, s := range subs {
		s.shutdown(nil)
	}

	return c.transport.Close()
}

func (c *Client) registerSubscription(s *subscription) {
	c.subsMu.Lock()
	c.subs[s.id] = s
	c.subsMu.Unlock()
}

func (c *Client) unregisterSubscription(id string) {
	c.subsMu.Lock()
	delete(c.subs, id)
	c.subsMu.Unlock()
}
