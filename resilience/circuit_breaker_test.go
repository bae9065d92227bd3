package resilience

import (
	"context"
	"testing"
	"time"

	cerrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:           3,
		Timeout:               20 * time.Millisecond,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      2,
	}
}

func failing(_ context.Context) error {
	return cerrors.New("upstream down")
}

func succeeding(_ context.Context) error {
	return nil
}

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())

	for i := 0; i < 3; i++ {
		require.Error(t, cb.Do(context.Background(), failing))
	}
	assert.Equal(t, StateOpen, cb.State())

	// While open, calls fail fast without reaching the function.
	called := false
	err := cb.Do(context.Background(), func(_ context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.False(t, called)
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())

	require.Error(t, cb.Do(context.Background(), failing))
	require.Error(t, cb.Do(context.Background(), failing))
	require.NoError(t, cb.Do(context.Background(), succeeding))
	assert.Equal(t, 0, cb.Failures())

	require.Error(t, cb.Do(context.Background(), failing))
	require.Error(t, cb.Do(context.Background(), failing))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())

	for i := 0; i < 3; i++ {
		require.Error(t, cb.Do(context.Background(), failing))
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(25 * time.Millisecond)

	// First call after the timeout runs in half-open.
	require.NoError(t, cb.Do(context.Background(), succeeding))
	assert.Equal(t, StateHalfOpen, cb.State())

	// SuccessThreshold of 2 closes the circuit on the next success.
	require.NoError(t, cb.Do(context.Background(), succeeding))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())

	for i := 0; i < 3; i++ {
		require.Error(t, cb.Do(context.Background(), failing))
	}
	time.Sleep(25 * time.Millisecond)

	require.Error(t, cb.Do(context.Background(), failing))
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerRequestTimeout(t *testing.T) {
	config := testBreakerConfig()
	config.RequestTimeout = 10 * time.Millisecond
	cb := NewCircuitBreaker(config)

	err := cb.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, ErrCircuitBreakerTimeout)
}

func TestCircuitBreakerContextOutlivesDo(t *testing.T) {
	config := testBreakerConfig()
	config.RequestTimeout = time.Minute
	cb := NewCircuitBreaker(config)

	var got context.Context
	require.NoError(t, cb.Do(context.Background(), func(ctx context.Context) error {
		got = ctx
		return nil
	}))

	// A successful operation may hand back resources bound to the request
	// context (a streaming response body), so it must still be live here.
	assert.NoError(t, got.Err())
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(testBreakerConfig())
	for i := 0; i < 3; i++ {
		require.Error(t, cb.Do(context.Background(), failing))
	}
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	require.NoError(t, cb.Do(context.Background(), succeeding))
}

func TestCircuitBreakerStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "HALF_OPEN", StateHalfOpen.String())
	assert.Equal(t, "OPEN", StateOpen.String())
}
