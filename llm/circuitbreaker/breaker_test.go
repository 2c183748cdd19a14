package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold int, recovery time.Duration, halfOpen int) (CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(&Config{
		Name:             "test",
		FailureThreshold: threshold,
		RecoveryTimeout:  recovery,
		HalfOpenMaxCalls: halfOpen,
		Now:              clock.Now,
	}, zap.NewNop())
	return cb, clock
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute, 2)

	for i := 0; i < 2; i++ {
		require.True(t, cb.AllowRequest())
		cb.RecordFailure()
		assert.Equal(t, StateClosed, cb.State())
	}

	require.True(t, cb.AllowRequest())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.AllowRequest(), "open breaker rejects")
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute, 2)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State(), "failures are counted consecutively")
}

func TestBreaker_RecoveryToHalfOpen(t *testing.T) {
	cb, clock := newTestBreaker(1, 30*time.Second, 2)

	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(29 * time.Second)
	assert.False(t, cb.AllowRequest())
	assert.Equal(t, StateOpen, cb.State())

	clock.Advance(time.Second)
	assert.True(t, cb.AllowRequest())
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.True(t, cb.AllowRequest())
	assert.False(t, cb.AllowRequest(), "half-open admits at most HalfOpenMaxCalls")
}

func TestBreaker_HalfOpenSuccessesClose(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Second, 2)
	cb.RecordFailure()
	clock.Advance(time.Second)

	require.True(t, cb.AllowRequest())
	cb.RecordSuccess()
	assert.Equal(t, StateHalfOpen, cb.State())

	require.True(t, cb.AllowRequest())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())

	// 恢复后失败计数已清零
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State(), "threshold is 1")
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Second, 3)
	cb.RecordFailure()
	clock.Advance(time.Second)

	require.True(t, cb.AllowRequest())
	cb.RecordSuccess()
	require.True(t, cb.AllowRequest())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.AllowRequest())

	// 再次等待后重新进入半开，成功计数从 0 开始
	clock.Advance(time.Second)
	for i := 0; i < 3; i++ {
		require.True(t, cb.AllowRequest())
		cb.RecordSuccess()
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Hour, 1)
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.AllowRequest())
}

func TestBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(nil, nil).(*breaker)
	assert.Equal(t, 5, cb.config.FailureThreshold)
	assert.Equal(t, 30*time.Second, cb.config.RecoveryTimeout)
	assert.Equal(t, 3, cb.config.HalfOpenMaxCalls)

	cb = NewCircuitBreaker(&Config{Name: "x", FailureThreshold: -1}, nil).(*breaker)
	assert.Equal(t, 5, cb.config.FailureThreshold)
	assert.Equal(t, "x", cb.Name())
}

func TestBreaker_OnStateChange(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	done := make(chan struct{}, 4)

	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := NewCircuitBreaker(&Config{
		Name:             "elevenlabs",
		FailureThreshold: 1,
		RecoveryTimeout:  time.Second,
		HalfOpenMaxCalls: 1,
		Now:              clock.Now,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
			mu.Unlock()
			done <- struct{}{}
		},
	}, nil)

	cb.RecordFailure()
	<-done
	clock.Advance(time.Second)
	cb.AllowRequest()
	<-done
	cb.RecordSuccess()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{
		"elevenlabs:closed->open",
		"elevenlabs:open->half_open",
		"elevenlabs:half_open->closed",
	}, transitions)
}

func TestBreaker_Concurrent(t *testing.T) {
	cb, _ := newTestBreaker(1000, time.Minute, 3)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if cb.AllowRequest() {
					if (i+j)%2 == 0 {
						cb.RecordSuccess()
					} else {
						cb.RecordFailure()
					}
				}
				_ = cb.State()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCall(t *testing.T) {
	errUpstream := errors.New("upstream down")
	errClient := errors.New("bad request")

	t.Run("success", func(t *testing.T) {
		cb, _ := newTestBreaker(1, time.Minute, 1)
		v, err := Call[string](context.Background(), cb, nil, func(context.Context) (string, error) {
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
	})

	t.Run("failure opens and then short-circuits", func(t *testing.T) {
		cb, _ := newTestBreaker(1, time.Minute, 1)
		_, err := Call[int](context.Background(), cb, nil, func(context.Context) (int, error) {
			return 0, errUpstream
		})
		assert.ErrorIs(t, err, errUpstream)

		called := false
		_, err = Call[int](context.Background(), cb, nil, func(context.Context) (int, error) {
			called = true
			return 1, nil
		})
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.False(t, called)
	})

	t.Run("excluded errors do not trip", func(t *testing.T) {
		cb, _ := newTestBreaker(1, time.Minute, 1)
		isFailure := func(err error) bool { return !errors.Is(err, errClient) }
		_, err := Call[int](context.Background(), cb, isFailure, func(context.Context) (int, error) {
			return 0, errClient
		})
		assert.ErrorIs(t, err, errClient)
		assert.Equal(t, StateClosed, cb.State())
	})
}
