package rpc

import (
	"context"
	"encoding/json"
	"io"
)

// EventIterator is the pull-style stand-in for the source's async
// iterator: Go has no native async generator syntax, so callers drive
// the stream explicitly with Next instead of `for await`. Next blocks
// until a value, the stream's normal end, or an error is available.
type EventIterator[T any] struct {
	sub *subscription
}

func newEventIterator[T any](sub *subscription) *EventIterator[T] {
	return &EventIterator[T]{sub: sub}
}

// Next returns the next decoded value. It returns io.EOF when the
// subscription has ended normally (host-signaled completion or
// explicit Close), and a *Error for any failure termination, such as
// a host error with auto-reconnect disabled or an exhausted reconnect
// budget.
func (it *EventIterator[T]) Next(ctx context.Context) (T, error) {
	var zero T
	raw, perr, done := it.sub.next(ctx)
	if perr != nil {
		return zero, perr
	}
	if done {
		return zero, io.EOF
	}
	if len(raw) == 0 {
		return zero, nil
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return zero, normalizeError(&CallError{
			Code:    CodeInternalError,
			Message: "decoding subscription event: " + err.Error(),
		})
	}
	return value, nil
}

// Close terminates the subscription. Safe to call more than once and
// safe to call concurrently with a blocked Next (Next will return
// io.EOF).
func (it *EventIterator[T]) Close() error {
	return it.sub.Close()
}

// ConsumeCallbacks adapts the pull-based EventIterator to a push-style
// callback driver, mirroring consumeEventIterator: onEvent fires per
// value, onError fires at most once on terminal error, onComplete
// fires on normal end, and onFinish always fires last with the
// terminal reason.
type ConsumeCallbacks[T any] struct {
	OnEvent    func(T)
	OnError    func(*Error)
	OnComplete func()
	OnFinish   func(reason string)
}

// ConsumeEventIterator drains it on a new goroutine, invoking the
// callbacks in cb as each event arrives, until the stream ends or ctx
// is cancelled. It returns a cancel function that stops consumption
// and closes the underlying subscription.
func ConsumeEventIterator[T any](ctx context.Context, it *EventIterator[T], cb ConsumeCallbacks[T]) (cancel func()) {
	ctx, cancelCtx := context.WithCancel(ctx)

	go func() {
		reason := "success"
		for {
			value, err := it.Next(ctx)
			if err != nil {
				if err == io.EOF {
					if cb.OnComplete != nil {
						cb.OnComplete()
					}
					reason = "success"
				} else {
					var publicErr *Error
					if pe, ok := err.(*Error); ok {
						publicErr = pe
					} else {
						publicErr = normalizeError(err)
					}
					if cb.OnError != nil {
						cb.OnError(publicErr)
					}
					reason = "error"
					if publicErr.Code == CodeCancelled {
						reason = "cancelled"
					}
				}
				break
			}
			if cb.OnEvent != nil {
				cb.OnEvent(value)
			}
		}
		if cb.OnFinish != nil {
			cb.OnFinish(reason)
		}
	}()

	return func() {
		cancelCtx()
		it.Close()
	}
}
