package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker("test-open", 3, time.Minute)

	for i := 0; i < 3; i++ {
		err := b.Do(func() error { return errBackend })
		assert.ErrorIs(t, err, errBackend)
	}

	err := b.Do(func() error { return nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreakerRecoversAfterCooldown(t *testing.T) {
	b := NewBreaker("test-recover", 1, 10*time.Millisecond)

	require.Error(t, b.Do(func() error { return errBackend }))
	require.ErrorIs(t, b.Do(func() error { return nil }), ErrOpen)

	time.Sleep(20 * time.Millisecond)

	// Probe succeeds, breaker closes again.
	assert.NoError(t, b.Do(func() error { return nil }))
	assert.NoError(t, b.Do(func() error { return nil }))
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	b := NewBreaker("test-reopen", 1, 10*time.Millisecond)

	require.Error(t, b.Do(func() error { return errBackend }))
	time.Sleep(20 * time.Millisecond)

	assert.ErrorIs(t, b.Do(func() error { return errBackend }), errBackend)
	assert.ErrorIs(t, b.Do(func() error { return nil }), ErrOpen)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("test-reset", 2, time.Minute)

	require.Error(t, b.Do(func() error { return errBackend }))
	require.NoError(t, b.Do(func() error { return nil }))
	require.Error(t, b.Do(func() error { return errBackend }))

	// Still closed: the success in between reset the run of failures.
	assert.NoError(t, b.Do(func() error { return nil }))
}
