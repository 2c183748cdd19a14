package circuitbreaker

import "context"

// Call runs fn through cb: it returns ErrCircuitOpen without calling fn when
// the breaker rejects, otherwise records exactly one outcome for the call.
// isFailure decides which errors count against the breaker; nil counts every error.
//
// Usage:
//
//	val, err := circuitbreaker.Call[int](ctx, cb, nil, func(ctx context.Context) (int, error) {
//	    return 42, nil
//	})
func Call[T any](ctx context.Context, cb CircuitBreaker, isFailure func(error) bool, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !cb.AllowRequest() {
		return zero, ErrCircuitOpen
	}
	v, err := fn(ctx)
	if err != nil && (isFailure == nil || isFailure(err)) {
		cb.RecordFailure()
		return zero, err
	}
	cb.RecordSuccess()
	if err != nil {
		return zero, err
	}
	return v, nil
}
