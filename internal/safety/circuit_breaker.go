package safety

import (
	"fmt"
	"sort"
	"sync"
	"time"

	guarderrors "github.com/ducminhle1904/trade-guard/internal/errors"
)

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of the circuit breaker state
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state name in JSON payloads
func (s CircuitBreakerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	FailureThreshold uint32        // Consecutive failures in CLOSED before opening
	SuccessThreshold uint32        // Consecutive successes in HALF_OPEN before closing
	Timeout          time.Duration // Cooldown in OPEN before a trial call is allowed
}

// DefaultCircuitBreakerConfig returns the defaults used for zero config fields
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		Timeout:          30 * time.Second,
	}
}

// StateObserver is notified of every state transition.
// It runs on the calling goroutine after the breaker lock is released.
type StateObserver func(name string, from, to CircuitBreakerState)

// CircuitOpenError is returned when a call is rejected without being attempted
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %s is open (retry in %s)", e.Name, e.RetryAfter.Round(time.Millisecond))
}

// Unwrap lets errors.Is match ErrCircuitOpen
func (e *CircuitOpenError) Unwrap() error {
	return guarderrors.ErrCircuitOpen
}

type transition struct {
	from, to CircuitBreakerState
}

// CircuitBreaker implements the circuit breaker pattern for preventing cascading failures
type CircuitBreaker struct {
	config   CircuitBreakerConfig
	name     string
	observer StateObserver
	now      func() time.Time

	mutex                sync.Mutex
	state                CircuitBreakerState
	consecutiveFailures  uint32
	consecutiveSuccesses uint32
	lastFailure          time.Time
	lastTransition       time.Time
	nextAttempt          time.Time

	calls     uint64
	successes uint64
	failures  uint64
	rejected  uint64
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	defaults := DefaultCircuitBreakerConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = defaults.SuccessThreshold
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}

	return &CircuitBreaker{
		config:         config,
		state:          StateClosed,
		name:           name,
		now:            time.Now,
		lastTransition: time.Now(),
	}
}

// SetStateObserver sets the transition observer
func (cb *CircuitBreaker) SetStateObserver(observer StateObserver) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.observer = observer
}

// Name returns the breaker name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Call executes fn with circuit breaker protection. It never retries: when the
// circuit is open and cooling down, fn is not invoked and a *CircuitOpenError is returned.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}

	err := fn()
	cb.after(err)
	return err
}

// Execute runs fn through cb and returns its value
func Execute[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var result T
	err := cb.Call(func() error {
		var callErr error
		result, callErr = fn()
		return callErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// before admits or rejects a call, moving OPEN to HALF_OPEN once the cooldown elapsed
func (cb *CircuitBreaker) before() error {
	cb.mutex.Lock()
	cb.calls++

	var pending []transition
	now := cb.now()
	if cb.state == StateOpen {
		if now.Before(cb.nextAttempt) {
			cb.rejected++
			retryAfter := cb.nextAttempt.Sub(now)
			cb.mutex.Unlock()
			return &CircuitOpenError{Name: cb.name, RetryAfter: retryAfter}
		}
		pending = append(pending, cb.setState(StateHalfOpen, now))
		cb.consecutiveSuccesses = 0
	}
	observer := cb.observer
	cb.mutex.Unlock()

	cb.notify(observer, pending)
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mutex.Lock()
	now := cb.now()
	var pending []transition

	if err != nil {
		cb.failures++
		cb.consecutiveFailures++
		cb.consecutiveSuccesses = 0
		cb.lastFailure = now

		switch cb.state {
		case StateClosed:
			if cb.consecutiveFailures >= cb.config.FailureThreshold {
				pending = append(pending, cb.open(now))
			}
		case StateHalfOpen:
			pending = append(pending, cb.open(now))
		case StateOpen:
			// a call admitted before another goroutine reopened the circuit
			cb.nextAttempt = now.Add(cb.config.Timeout)
		}
	} else {
		cb.successes++
		cb.consecutiveFailures = 0

		switch cb.state {
		case StateHalfOpen:
			cb.consecutiveSuccesses++
			if cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
				pending = append(pending, cb.close(now))
			}
		case StateClosed:
			cb.consecutiveSuccesses++
		}
	}

	observer := cb.observer
	cb.mutex.Unlock()
	cb.notify(observer, pending)
}

// open, close and setState must be called with the mutex held
func (cb *CircuitBreaker) open(now time.Time) transition {
	t := cb.setState(StateOpen, now)
	cb.nextAttempt = now.Add(cb.config.Timeout)
	cb.consecutiveSuccesses = 0
	return t
}

func (cb *CircuitBreaker) close(now time.Time) transition {
	t := cb.setState(StateClosed, now)
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	return t
}

func (cb *CircuitBreaker) setState(to CircuitBreakerState, now time.Time) transition {
	t := transition{from: cb.state, to: to}
	cb.state = to
	if t.from != t.to {
		cb.lastTransition = now
	}
	return t
}

func (cb *CircuitBreaker) notify(observer StateObserver, pending []transition) {
	if observer == nil {
		return
	}
	for _, t := range pending {
		if t.from != t.to {
			observer(cb.name, t.from, t.to)
		}
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// CircuitBreakerStats is a read-only snapshot of a breaker
type CircuitBreakerStats struct {
	Name                 string              `json:"name"`
	State                CircuitBreakerState `json:"state"`
	ConsecutiveFailures  uint32              `json:"consecutive_failures"`
	ConsecutiveSuccesses uint32              `json:"consecutive_successes"`
	LastFailureAt        time.Time           `json:"last_failure_at"`
	LastTransitionAt     time.Time           `json:"last_transition_at"`
	NextAttemptAt        time.Time           `json:"next_attempt_at"`
	TotalCalls           uint64              `json:"total_calls"`
	TotalSuccesses       uint64              `json:"total_successes"`
	TotalFailures        uint64              `json:"total_failures"`
	TotalRejected        uint64              `json:"total_rejected"`
}

// FailureRate is failures / attempted calls, 0 when nothing was attempted
func (s CircuitBreakerStats) FailureRate() float64 {
	attempted := s.TotalSuccesses + s.TotalFailures
	if attempted == 0 {
		return 0
	}
	return float64(s.TotalFailures) / float64(attempted)
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() CircuitBreakerStats {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return CircuitBreakerStats{
		Name:                 cb.name,
		State:                cb.state,
		ConsecutiveFailures:  cb.consecutiveFailures,
		ConsecutiveSuccesses: cb.consecutiveSuccesses,
		LastFailureAt:        cb.lastFailure,
		LastTransitionAt:     cb.lastTransition,
		NextAttemptAt:        cb.nextAttempt,
		TotalCalls:           cb.calls,
		TotalSuccesses:       cb.successes,
		TotalFailures:        cb.failures,
		TotalRejected:        cb.rejected,
	}
}

// Reset resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	t := cb.close(cb.now())
	observer := cb.observer
	cb.mutex.Unlock()
	cb.notify(observer, []transition{t})
}

// ForceOpen forces the circuit breaker to open state
func (cb *CircuitBreaker) ForceOpen() {
	cb.mutex.Lock()
	t := cb.open(cb.now())
	observer := cb.observer
	cb.mutex.Unlock()
	cb.notify(observer, []transition{t})
}

// CircuitBreakerManager owns one breaker per named dependency
type CircuitBreakerManager struct {
	config   CircuitBreakerConfig
	observer StateObserver
	breakers map[string]*CircuitBreaker
	mutex    sync.RWMutex
}

// NewCircuitBreakerManager creates a manager whose breakers share config and observer
func NewCircuitBreakerManager(config CircuitBreakerConfig, observer StateObserver) *CircuitBreakerManager {
	return &CircuitBreakerManager{
		config:   config,
		observer: observer,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// GetOrCreate gets an existing circuit breaker or creates one with the manager config
func (cbm *CircuitBreakerManager) GetOrCreate(name string) *CircuitBreaker {
	cbm.mutex.RLock()
	if cb, exists := cbm.breakers[name]; exists {
		cbm.mutex.RUnlock()
		return cb
	}
	cbm.mutex.RUnlock()

	cbm.mutex.Lock()
	defer cbm.mutex.Unlock()

	// Double-check after acquiring write lock
	if cb, exists := cbm.breakers[name]; exists {
		return cb
	}

	cb := NewCircuitBreaker(name, cbm.config)
	cb.observer = cbm.observer
	cbm.breakers[name] = cb
	return cb
}

// Get gets an existing circuit breaker
func (cbm *CircuitBreakerManager) Get(name string) (*CircuitBreaker, bool) {
	cbm.mutex.RLock()
	defer cbm.mutex.RUnlock()

	cb, exists := cbm.breakers[name]
	return cb, exists
}

// Call runs fn through the breaker for name
func (cbm *CircuitBreakerManager) Call(name string, fn func() error) error {
	return cbm.GetOrCreate(name).Call(fn)
}

// GetState returns the state of a named breaker; unknown names report CLOSED
func (cbm *CircuitBreakerManager) GetState(name string) CircuitBreakerState {
	if cb, ok := cbm.Get(name); ok {
		return cb.GetState()
	}
	return StateClosed
}

// GetStats returns statistics for a named breaker
func (cbm *CircuitBreakerManager) GetStats(name string) (CircuitBreakerStats, bool) {
	cb, ok := cbm.Get(name)
	if !ok {
		return CircuitBreakerStats{}, false
	}
	return cb.GetStats(), true
}

// AllStats returns statistics for all breakers sorted by name
func (cbm *CircuitBreakerManager) AllStats() []CircuitBreakerStats {
	cbm.mutex.RLock()
	breakers := make([]*CircuitBreaker, 0, len(cbm.breakers))
	for _, cb := range cbm.breakers {
		breakers = append(breakers, cb)
	}
	cbm.mutex.RUnlock()

	stats := make([]CircuitBreakerStats, 0, len(breakers))
	for _, cb := range breakers {
		stats = append(stats, cb.GetStats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Reset resets all circuit breakers
func (cbm *CircuitBreakerManager) Reset() {
	cbm.mutex.RLock()
	breakers := make([]*CircuitBreaker, 0, len(cbm.breakers))
	for _, cb := range cbm.breakers {
		breakers = append(breakers, cb)
	}
	cbm.mutex.RUnlock()

	for _, cb := range breakers {
		cb.Reset()
	}
}

// HasOpenCircuits returns true if any circuit breakers are open
func (cbm *CircuitBreakerManager) HasOpenCircuits() bool {
	return len(cbm.OpenCircuits()) > 0
}

// OpenCircuits returns the sorted names of open breakers
func (cbm *CircuitBreakerManager) OpenCircuits() []string {
	var open []string
	for _, s := range cbm.AllStats() {
		if s.State == StateOpen {
			open = append(open, s.Name)
		}
	}
	return open
}
