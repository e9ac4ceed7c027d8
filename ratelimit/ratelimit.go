// Package ratelimit wraps golang.org/x/time/rate as an rpc.Interceptor
// that rejects calls exceeding a token-bucket budget with the
// well-known RATE_LIMITED code, before they ever reach the transport.
//
// A limiter is just another Interceptor, composed into the chain like
// any other middleware rather than special-cased by the call engine.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	rpc "github.com/nugget/bridgerpc"
)

// Limiter produces an rpc.Interceptor enforcing a token-bucket rate
// limit, optionally partitioned per procedure path.
type Limiter struct {
	rate    rate.Limit
	burst   int
	perPath bool

	mu       sync.Mutex
	global   *rate.Limiter
	limiters map[string]*rate.Limiter
}

// New creates a Limiter allowing r events per second with burst b,
// shared across every path.
func New(r float64, b int) *Limiter {
	return &Limiter{
		rate:   rate.Limit(r),
		burst:  b,
		global: rate.NewLimiter(rate.Limit(r), b),
	}
}

// NewPerPath creates a Limiter with an independent token bucket per
// procedure path, each allowing r events per second with burst b.
func NewPerPath(r float64, b int) *Limiter {
	return &Limiter{
		rate:     rate.Limit(r),
		burst:    b,
		perPath:  true,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *Limiter) limiterFor(path string) *rate.Limiter {
	if !l.perPath {
		return l.global
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[path]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[path] = lim
	}
	return lim
}

// Interceptor returns the rpc.Interceptor enforcing this Limiter's
// budget. A call that would exceed the budget is rejected immediately
// (Allow, not Wait) with a RATE_LIMITED *rpc.CallError carrying
// {retry_after_ms, retry_after_secs} details, the same shape a host
// uses for its own rate-limit responses.
func (l *Limiter) Interceptor() rpc.Interceptor {
	return func(ctx context.Context, rc *rpc.RequestContext, next rpc.Next) (any, error) {
		lim := l.limiterFor(rc.Path)
		reservation := lim.Reserve()
		if !reservation.OK() {
			return nil, &rpc.CallError{
				Code:    rpc.CodeRateLimited,
				Message: "rate limit exceeded for " + rc.Path,
			}
		}

		delay := reservation.Delay()
		if delay <= 0 {
			return next(ctx, rc)
		}

		reservation.Cancel()
		return nil, &rpc.CallError{
			Code:    rpc.CodeRateLimited,
			Message: "rate limit exceeded for " + rc.Path,
			Details: map[string]any{
				"retry_after_ms":   delay.Milliseconds(),
				"retry_after_secs": delay.Seconds(),
			},
		}
	}
}

// RetryAfter computes the details a caller can surface alongside a
// RATE_LIMITED error for the given wait duration, matching the wire
// convention exactly.
func RetryAfter(d time.Duration) map[string]any {
	return map[string]any{
		"retry_after_ms":   d.Milliseconds(),
		"retry_after_secs": d.Seconds(),
	}
}
