package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(attempts int) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      false,
	}
}

func TestBackoffRetryer_Success(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func(context.Context) error {
		callCount++
		return nil // 第一次就成功
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount, "应该只调用一次")
}

func TestBackoffRetryer_RetryAndSuccess(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func(context.Context) error {
		callCount++
		if callCount < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func TestBackoffRetryer_ExhaustedAfterMaxAttempts(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	testErr := errors.New("rate limited")
	err := retryer.Do(context.Background(), func(context.Context) error {
		callCount++
		return testErr
	})

	require.Error(t, err)
	assert.Equal(t, 3, callCount, "exactly MaxAttempts invocations")

	var exhausted *RetriesExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Same(t, testErr, exhausted.Last)
	assert.True(t, errors.Is(err, testErr))
	assert.True(t, IsExhausted(err))
}

func TestBackoffRetryer_NonRetryableFailsFast(t *testing.T) {
	retryableErr := errors.New("retryable error")
	nonRetryableErr := errors.New("non-retryable error")

	policy := fastPolicy(3)
	policy.RetryableErrors = []error{retryableErr}
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	t.Run("retryable error", func(t *testing.T) {
		callCount := 0
		err := retryer.Do(context.Background(), func(context.Context) error {
			callCount++
			if callCount < 3 {
				return retryableErr
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, callCount)
	})

	t.Run("non-retryable error", func(t *testing.T) {
		callCount := 0
		err := retryer.Do(context.Background(), func(context.Context) error {
			callCount++
			return nonRetryableErr
		})
		assert.Same(t, nonRetryableErr, err)
		assert.False(t, IsExhausted(err))
		assert.Equal(t, 1, callCount, "不应该重试")
	})
}

func TestBackoffRetryer_RetryIfTakesPrecedence(t *testing.T) {
	policy := fastPolicy(3)
	policy.RetryableErrors = []error{errors.New("never matches")}
	policy.RetryIf = func(err error) bool { return err.Error() == "transient" }
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	calls := 0
	err := retryer.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("transient")
	})
	assert.True(t, IsExhausted(err))
	assert.Equal(t, 3, calls)
}

func TestBackoffRetryer_WrappedRetryableAlwaysRetries(t *testing.T) {
	policy := fastPolicy(2)
	policy.RetryIf = func(error) bool { return false }
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	calls := 0
	err := retryer.Do(context.Background(), func(context.Context) error {
		calls++
		return WrapRetryable(errors.New("x"))
	})
	assert.True(t, IsExhausted(err))
	assert.Equal(t, 2, calls)
}

func TestBackoffRetryer_ContextCanceled(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2.0,
	}
	retryer := NewBackoffRetryer(policy, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	callCount := 0
	err := retryer.Do(ctx, func(context.Context) error {
		callCount++
		return errors.New("error")
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_DelayCalculation(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts: 6,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2.0,
		Jitter:      false,
	}
	retryer := NewBackoffRetryer(policy, zap.NewNop()).(*backoffRetryer)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second}, // 达到最大延迟
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, retryer.calculateDelay(tt.attempt))
	}
}

func TestBackoffRetryer_JitterBounds(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
	retryer := NewBackoffRetryer(policy, zap.NewNop()).(*backoffRetryer)

	for i := 0; i < 200; i++ {
		d := retryer.calculateDelay(2)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}

func TestBackoffRetryer_OnRetryCallback(t *testing.T) {
	var attempts []int
	policy := fastPolicy(3)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	_ = retryer.Do(context.Background(), func(context.Context) error {
		return errors.New("boom")
	})
	assert.Equal(t, []int{1, 2}, attempts, "callback runs before each retry, not after the last failure")
}

func TestBackoffRetryer_PanickingCallbackDoesNotAbort(t *testing.T) {
	policy := fastPolicy(3)
	policy.OnRetry = func(int, error, time.Duration) { panic("observer bug") }
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	calls := 0
	err := retryer.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestNewBackoffRetryer_Defaults(t *testing.T) {
	r := NewBackoffRetryer(&RetryPolicy{}, nil).(*backoffRetryer)
	assert.Equal(t, 1, r.policy.MaxAttempts)
	assert.Equal(t, time.Second, r.policy.BaseDelay)
	assert.Equal(t, 30*time.Second, r.policy.MaxDelay)
	assert.Equal(t, 2.0, r.policy.Multiplier)

	d := NewBackoffRetryer(nil, nil).(*backoffRetryer)
	assert.Equal(t, 3, d.policy.MaxAttempts)
	assert.True(t, d.policy.Jitter)
}

func TestWrapAndTyped(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), nil)

	calls := 0
	fn := Wrap[int](retryer, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("first fails")
		}
		return 42, nil
	})

	v, err := fn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, calls)

	s, err := DoWithResultTyped[string](retryer, context.Background(), func(context.Context) (string, error) {
		return "", errors.New("always")
	})
	assert.Empty(t, s)
	assert.True(t, IsExhausted(err))
}
