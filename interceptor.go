package rpc

import "context"

// Next invokes the remainder of the interceptor chain (or the base
// call if this is the last interceptor) and returns its result.
type Next func(ctx context.Context, rc *RequestContext) (any, error)

// Interceptor wraps a call. It may inspect or mutate rc.Meta and
// rc.Input, call next to continue the chain, and observe, transform,
// or recover from the result. Returning a non-nil error that is not
// already one of the internal error variants is wrapped as a
// *CallError with code MIDDLEWARE_ERROR before normalization.
type Interceptor func(ctx context.Context, rc *RequestContext, next Next) (any, error)

// chain composes interceptors into a single Next, given the terminal
// base call. Given [i0, i1, ..., in] and base, execution order is: i0
// enters first, then i1, ..., then base, unwinding in reverse.
func chain(interceptors []Interceptor, base Next) Next {
	next := base
	for i := len(interceptors) - 1; i >= 0; i-- {
		interceptor := interceptors[i]
		prevNext := next
		index := i
		next = func(ctx context.Context, rc *RequestContext) (any, error) {
			result, err := interceptor(ctx, rc, prevNext)
			if err != nil && !isInternalErrorVariant(err) {
				return nil, &CallError{
					Code:    CodeMiddlewareError,
					Message: err.Error(),
					Details: map[string]any{"middlewareIndex": index},
				}
			}
			return result, err
		}
	}
	return next
}

// isInternalErrorVariant reports whether err is already one of the
// sum-type variants (or the public Error shape), meaning it should
// pass through the chain unwrapped rather than being coerced into a
// MIDDLEWARE_ERROR.
func isInternalErrorVariant(err error) bool {
	switch err.(type) {
	case *CallError, *TimeoutError, *CancelledError, *ValidationError, *NetworkError, *Error:
		return true
	default:
		return false
	}
}
