package safety

import (
	"errors"
	"sync"
	"testing"
	"time"

	guarderrors "github.com/ducminhle1904/trade-guard/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBreaker(clock *fakeClock) *CircuitBreaker {
	cb := NewCircuitBreaker("broker", CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          10 * time.Second,
	})
	cb.now = clock.Now
	return cb
}

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := newTestBreaker(newFakeClock())

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Call(fail), errBoom)
	}
	assert.Equal(t, StateClosed, cb.GetState(), "one fewer failure than the threshold stays closed")

	assert.ErrorIs(t, cb.Call(fail), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Call(func() error { called = true; return nil })
	assert.False(t, called, "open breaker must not invoke the operation")

	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "broker", openErr.Name)
	assert.Equal(t, 10*time.Second, openErr.RetryAfter)
	assert.ErrorIs(t, err, guarderrors.ErrCircuitOpen)
}

func TestCircuitBreakerSuccessResetsStreak(t *testing.T) {
	cb := newTestBreaker(newFakeClock())

	_ = cb.Call(fail)
	_ = cb.Call(fail)
	require.NoError(t, cb.Call(succeed))
	_ = cb.Call(fail)
	_ = cb.Call(fail)

	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, uint32(2), cb.GetStats().ConsecutiveFailures)
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		_ = cb.Call(fail)
	}
	require.Equal(t, StateOpen, cb.GetState())

	clock.Advance(9 * time.Second)
	assert.ErrorIs(t, cb.Call(succeed), guarderrors.ErrCircuitOpen)

	clock.Advance(time.Second)
	require.NoError(t, cb.Call(succeed))
	assert.Equal(t, StateHalfOpen, cb.GetState())

	require.NoError(t, cb.Call(succeed))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker("broker", CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 5,
		Timeout:          10 * time.Second,
	})
	cb.now = clock.Now

	for i := 0; i < 3; i++ {
		_ = cb.Call(fail)
	}
	clock.Advance(10 * time.Second)

	for i := 0; i < 4; i++ {
		require.NoError(t, cb.Call(succeed))
	}
	require.Equal(t, StateHalfOpen, cb.GetState())

	assert.ErrorIs(t, cb.Call(fail), errBoom)
	assert.Equal(t, StateOpen, cb.GetState(), "a single half-open failure reopens regardless of prior successes")

	stats := cb.GetStats()
	assert.Equal(t, clock.Now().Add(10*time.Second), stats.NextAttemptAt)
}

func TestCircuitBreakerObserver(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(clock)

	var transitions []string
	cb.SetStateObserver(func(name string, from, to CircuitBreakerState) {
		// the breaker must be unlocked while observers run
		_ = cb.GetState()
		transitions = append(transitions, name+":"+from.String()+"->"+to.String())
	})

	for i := 0; i < 3; i++ {
		_ = cb.Call(fail)
	}
	clock.Advance(10 * time.Second)
	_ = cb.Call(succeed)
	_ = cb.Call(succeed)

	assert.Equal(t, []string{
		"broker:CLOSED->OPEN",
		"broker:OPEN->HALF_OPEN",
		"broker:HALF_OPEN->CLOSED",
	}, transitions)
}

func TestCircuitBreakerStats(t *testing.T) {
	cb := newTestBreaker(newFakeClock())

	_ = cb.Call(succeed)
	_ = cb.Call(fail)
	_ = cb.Call(fail)
	_ = cb.Call(fail)
	_ = cb.Call(succeed) // rejected

	stats := cb.GetStats()
	assert.Equal(t, uint64(5), stats.TotalCalls)
	assert.Equal(t, uint64(1), stats.TotalSuccesses)
	assert.Equal(t, uint64(3), stats.TotalFailures)
	assert.Equal(t, uint64(1), stats.TotalRejected)
	assert.InDelta(t, 0.75, stats.FailureRate(), 1e-9)
	assert.False(t, stats.LastTransitionAt.IsZero())
}

func TestExecuteReturnsValue(t *testing.T) {
	cb := newTestBreaker(newFakeClock())

	v, err := Execute(cb, func() (float64, error) { return 101.5, nil })
	require.NoError(t, err)
	assert.Equal(t, 101.5, v)

	v, err = Execute(cb, func() (float64, error) { return 1, errBoom })
	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, v)
}

func TestCircuitBreakerConcurrentFailuresCountOnce(t *testing.T) {
	cb := NewCircuitBreaker("price", CircuitBreakerConfig{FailureThreshold: 1000, SuccessThreshold: 1, Timeout: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = cb.Call(fail)
			}
		}()
	}
	wg.Wait()

	stats := cb.GetStats()
	assert.Equal(t, uint64(500), stats.TotalFailures)
	assert.Equal(t, uint32(500), stats.ConsecutiveFailures)
	assert.Equal(t, StateClosed, stats.State)
}

func TestCircuitBreakerManager(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	mgr := NewCircuitBreakerManager(CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Hour},
		func(name string, from, to CircuitBreakerState) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, name+":"+to.String())
		})

	assert.Equal(t, StateClosed, mgr.GetState("unknown"))
	_, ok := mgr.GetStats("unknown")
	assert.False(t, ok)

	_ = mgr.Call("bybit", fail)
	_ = mgr.Call("bybit", fail)
	require.NoError(t, mgr.Call("portfolio", succeed))

	assert.Equal(t, StateOpen, mgr.GetState("bybit"))
	assert.Equal(t, []string{"bybit"}, mgr.OpenCircuits())
	assert.True(t, mgr.HasOpenCircuits())
	assert.Same(t, mgr.GetOrCreate("bybit"), mgr.GetOrCreate("bybit"))

	stats, ok := mgr.GetStats("portfolio")
	require.True(t, ok)
	assert.Equal(t, uint64(1), stats.TotalSuccesses)

	all := mgr.AllStats()
	require.Len(t, all, 2)
	assert.Equal(t, "bybit", all[0].Name)

	mgr.Reset()
	assert.False(t, mgr.HasOpenCircuits())
	assert.Equal(t, []string{"bybit:OPEN", "bybit:CLOSED"}, seen)
}

func TestCircuitBreakerForceOpen(t *testing.T) {
	cb := newTestBreaker(newFakeClock())
	cb.ForceOpen()
	assert.ErrorIs(t, cb.Call(succeed), guarderrors.ErrCircuitOpen)
	cb.Reset()
	assert.NoError(t, cb.Call(succeed))
}
