// Package resilience implements a circuit breaker for callers of the debug
// API. A daemon that stops answering trips the breaker, so scripted clients
// fail fast instead of stacking timeouts.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned while the breaker is rejecting calls.
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the breaker. Zero values get usable defaults.
type Settings struct {
	// FailureThreshold is the consecutive failure count that opens the
	// breaker.
	FailureThreshold uint32
	// Cooldown is how long the breaker stays open before probing again.
	Cooldown time.Duration
	// OnStateChange, if set, observes transitions.
	OnStateChange func(from, to State)
}

// Breaker tracks consecutive failures and short-circuits calls while the
// downstream is considered dead.
type Breaker struct {
	settings Settings

	mu       sync.Mutex
	state    State
	failures uint32
	openedAt time.Time
}

// New creates a breaker.
func New(settings Settings) *Breaker {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = 30 * time.Second
	}
	return &Breaker{settings: settings}
}

// State reports the current state, accounting for cooldown expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState(time.Now())
}

// Execute runs fn unless the breaker is open. The fn error passes through
// untouched; a rejected call fails with ErrOpen.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	state := b.currentState(time.Now())
	if state == StateOpen {
		b.mu.Unlock()
		return ErrOpen
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.settings.FailureThreshold {
			b.setState(StateOpen, time.Now())
		}
		return err
	}
	b.failures = 0
	if b.state != StateClosed {
		b.setState(StateClosed, time.Now())
	}
	return nil
}

// currentState must be called with mu held.
func (b *Breaker) currentState(now time.Time) State {
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.settings.Cooldown {
		b.setState(StateHalfOpen, now)
	}
	return b.state
}

// setState must be called with mu held.
func (b *Breaker) setState(s State, now time.Time) {
	if b.state == s {
		return
	}
	prev := b.state
	b.state = s
	if s == StateOpen {
		b.openedAt = now
	}
	if s == StateClosed {
		b.failures = 0
	}
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(prev, s)
	}
}
