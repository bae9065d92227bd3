package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrCircuitBreakerOpen    = errors.New("circuit breaker is open")
	ErrCircuitBreakerTimeout = errors.New("circuit breaker operation timeout")
)

// CircuitBreakerState represents the state of a circuit breaker
type CircuitBreakerState int32

const (
	StateClosed CircuitBreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig defines configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// MaxFailures is the maximum number of failures before opening the circuit
	MaxFailures int

	// Timeout is how long to wait before transitioning from Open to Half-Open
	Timeout time.Duration

	// MaxConcurrentRequests is the max requests allowed in Half-Open state
	MaxConcurrentRequests int

	// SuccessThreshold is the number of consecutive successes needed in Half-Open to go to Closed
	SuccessThreshold int

	// RequestTimeout is the maximum time to wait for a single request
	RequestTimeout time.Duration
}

// DefaultCircuitBreakerConfig returns a default configuration
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:           5,
		Timeout:               30 * time.Second,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      3,
		RequestTimeout:        10 * time.Second,
	}
}

// CircuitBreaker guards the upstream origin so a dead network fails fast into
// the offline fallback paths instead of stalling every request.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	state           atomic.Int32 // CircuitBreakerState
	failures        atomic.Int32
	successes       atomic.Int32
	requests        atomic.Int32
	lastFailureTime atomic.Int64 // Unix nano

	mu sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{config: config}
}

// Do wraps a function call with circuit breaker logic. The function receives
// a context bounded by RequestTimeout when one is configured. On success that
// context stays alive until its deadline: the operation's result may hold
// resources bound to it (a response body still being streamed), so it must
// not be cancelled the moment Do returns.
func (cb *CircuitBreaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	defer cb.afterRequest()

	var cancel context.CancelFunc
	if cb.config.RequestTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, cb.config.RequestTimeout)
	}

	err := fn(ctx)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		cb.onFailure()
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrCircuitBreakerTimeout
		}
		return err
	}
	if cancel != nil {
		time.AfterFunc(cb.config.RequestTimeout, cancel)
	}
	cb.onSuccess()
	return nil
}

// beforeRequest checks if the request should be allowed
func (cb *CircuitBreaker) beforeRequest() error {
	switch CircuitBreakerState(cb.state.Load()) {
	case StateClosed:
		return nil

	case StateOpen:
		if cb.shouldAttemptReset() {
			cb.transitionToHalfOpen()
			return nil
		}
		return ErrCircuitBreakerOpen

	case StateHalfOpen:
		// Limit concurrent requests in half-open state
		if cb.requests.Load() >= int32(cb.config.MaxConcurrentRequests) {
			return ErrCircuitBreakerOpen
		}
		cb.requests.Add(1)
		return nil

	default:
		return ErrCircuitBreakerOpen
	}
}

func (cb *CircuitBreaker) afterRequest() {
	if CircuitBreakerState(cb.state.Load()) == StateHalfOpen {
		cb.requests.Add(-1)
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch CircuitBreakerState(cb.state.Load()) {
	case StateClosed:
		cb.failures.Store(0)

	case StateHalfOpen:
		if int(cb.successes.Add(1)) >= cb.config.SuccessThreshold {
			cb.transitionToClosed()
		}
	}
}

func (cb *CircuitBreaker) onFailure() {
	failures := cb.failures.Add(1)
	cb.lastFailureTime.Store(time.Now().UnixNano())

	switch CircuitBreakerState(cb.state.Load()) {
	case StateClosed:
		if int(failures) >= cb.config.MaxFailures {
			cb.transitionToOpen()
		}

	case StateHalfOpen:
		cb.transitionToOpen()
	}
}

// shouldAttemptReset checks if enough time has passed to attempt a reset
func (cb *CircuitBreaker) shouldAttemptReset() bool {
	return time.Since(time.Unix(0, cb.lastFailureTime.Load())) >= cb.config.Timeout
}

func (cb *CircuitBreaker) transitionToClosed() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state.Store(int32(StateClosed))
	cb.failures.Store(0)
	cb.successes.Store(0)
	cb.requests.Store(0)
}

func (cb *CircuitBreaker) transitionToOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state.Store(int32(StateOpen))
	cb.lastFailureTime.Store(time.Now().UnixNano())
}

func (cb *CircuitBreaker) transitionToHalfOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state.Store(int32(StateHalfOpen))
	cb.successes.Store(0)
	cb.requests.Store(0)
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitBreakerState {
	return CircuitBreakerState(cb.state.Load())
}

// Failures returns the current failure count
func (cb *CircuitBreaker) Failures() int {
	return int(cb.failures.Load())
}

// Reset manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.transitionToClosed()
}
