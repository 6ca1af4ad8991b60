package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	b := New(Settings{FailureThreshold: 3})
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Execute(func() error { return nil }))
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := New(Settings{FailureThreshold: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		err := b.Execute(func() error { return errBoom })
		assert.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, StateOpen, b.State())

	// While open, calls are rejected without running fn.
	ran := false
	err := b.Execute(func() error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, ran)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := New(Settings{FailureThreshold: 3})

	b.Execute(func() error { return errBoom })
	b.Execute(func() error { return errBoom })
	b.Execute(func() error { return nil })
	b.Execute(func() error { return errBoom })
	b.Execute(func() error { return errBoom })

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	var transitions []State
	b := New(Settings{
		FailureThreshold: 1,
		Cooldown:         10 * time.Millisecond,
		OnStateChange:    func(from, to State) { transitions = append(transitions, to) },
	})

	b.Execute(func() error { return errBoom })
	require.Equal(t, StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	// A failed probe reopens immediately.
	b.Execute(func() error { return errBoom })
	require.Equal(t, StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)
	// A successful probe closes the breaker.
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())

	assert.Equal(t, []State{
		StateOpen, StateHalfOpen, StateOpen, StateHalfOpen, StateClosed,
	}, transitions)
}
