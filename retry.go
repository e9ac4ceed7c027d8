package rpc

import (
	"context"
	"time"

	"github.com/nugget/bridgerpc/internal/backoff"
)

// RetryConfig controls withRetry's behavior.
type RetryConfig struct {
	// RetryableCodes lists the public error codes eligible for retry.
	// Defaults to INTERNAL_ERROR, TIMEOUT, UNAVAILABLE if empty.
	RetryableCodes []string
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Jitter         bool
}

func (c RetryConfig) retryableCodes() []string {
	if len(c.RetryableCodes) > 0 {
		return c.RetryableCodes
	}
	return []string{CodeInternalError, CodeTimeout, "UNAVAILABLE"}
}

// withRetry runs fn, retrying up to cfg.MaxRetries additional times
// when the normalized error's code is in cfg.RetryableCodes. The delay
// before attempt n+1 is min(baseDelay*2^n, maxDelay), optionally
// jittered by a uniform factor in [0.5, 1.0].
func withRetry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		publicErr := normalizeError(err)
		if !codeIn(publicErr.Code, cfg.retryableCodes()) {
			return zero, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := backoff.Delay(attempt, backoff.Config{Base: cfg.BaseDelay, Max: cfg.MaxDelay, Jitter: cfg.Jitter})
		if sleepErr := backoff.Sleep(ctx, delay); sleepErr != nil {
			return zero, normalizeError(&CancelledError{Reason: "retry wait cancelled"})
		}
	}

	return zero, lastErr
}

func codeIn(code string, codes []string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
