// Package eventbus implements the channel-keyed publish/subscribe bus
// backing the in-memory transport's event delivery. Unlike a
// broadcast-to-all bus, each publish targets exactly one named channel
// (e.g. "rpc:subscription:sub_<id>"); only listeners registered on that
// channel receive it.
//
// The bus is nil-safe: calling Publish on a nil *Bus is a no-op, so
// callers that hold an optional bus reference do not need guard checks.
package eventbus

import "sync"

// Handler receives a payload published on a channel it listened to.
type Handler func(payload any)

// Bus is a channel-keyed publish/subscribe bus. Handlers
// run synchronously on the publishing goroutine; a slow or blocking
// handler delays Publish for that channel's other listeners, so
// handlers that need to do real work should hand off to their own
// goroutine or queue.
type Bus struct {
	mu       sync.RWMutex
	channels map[string]map[int]Handler
	nextID   int
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{channels: make(map[string]map[int]Handler)}
}

// Unlisten removes a single listener registration.
type Unlisten func()

// Listen registers handler to receive payloads published on channel.
// It returns an Unlisten function that removes the registration; safe
// to call more than once.
func (b *Bus) Listen(channel string, handler Handler) Unlisten {
	if b == nil || handler == nil {
		return func() {}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.channels[channel] == nil {
		b.channels[channel] = make(map[int]Handler)
	}
	b.channels[channel][id] = handler
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if listeners, ok := b.channels[channel]; ok {
				delete(listeners, id)
				if len(listeners) == 0 {
					delete(b.channels, channel)
				}
			}
		})
	}
}

// Publish delivers payload to every listener currently registered on
// channel. Safe to call on a nil receiver (no-op) and safe to call with
// no listeners registered on channel.
func (b *Bus) Publish(channel string, payload any) {
	if b == nil {
		return
	}
	b.mu.RLock()
	listeners := make([]Handler, 0, len(b.channels[channel]))
	for _, h := range b.channels[channel] {
		listeners = append(listeners, h)
	}
	b.mu.RUnlock()

	for _, h := range listeners {
		h(payload)
	}
}

// ListenerCount returns the number of active listeners on channel.
func (b *Bus) ListenerCount(channel string) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[channel])
}

// ChannelCount returns the number of channels with at least one
// listener.
func (b *Bus) ChannelCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels)
}
