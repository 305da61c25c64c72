package barstore

import (
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned while the breaker is rejecting calls.
var ErrBreakerOpen = errors.New("breaker open")

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // normal operation
	BreakerOpen                         // tripped, calls rejected
	BreakerHalfOpen                     // probing with a single call
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker trips after maxFailures consecutive failures and rejects calls
// for cooldown. The first call after the cooldown runs as a probe: success
// closes the breaker, failure reopens it.
type Breaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	maxFailures int
	cooldown    time.Duration
	lastFailure time.Time

	// OnChange, when set, observes state transitions.
	OnChange func(from, to BreakerState)
}

// NewBreaker builds a closed breaker.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		state:       BreakerClosed,
	}
}

// Do runs fn unless the breaker is open inside its cooldown, in which case
// it returns ErrBreakerOpen without calling fn.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if b.state == BreakerOpen {
		if time.Since(b.lastFailure) <= b.cooldown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.transition(BreakerHalfOpen)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		b.lastFailure = time.Now()
		if b.state == BreakerHalfOpen || b.failures >= b.maxFailures {
			b.transition(BreakerOpen)
		}
		return err
	}
	if b.state == BreakerHalfOpen {
		b.transition(BreakerClosed)
	}
	b.failures = 0
	return nil
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transition must be called with the mutex held.
func (b *Breaker) transition(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == BreakerClosed {
		b.failures = 0
	}
	if b.OnChange != nil {
		b.OnChange(from, to)
	}
}
