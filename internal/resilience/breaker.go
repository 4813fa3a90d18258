// Package resilience provides the per-account circuit breaker that
// guards delegation to agents with a streak of bad outcomes.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejecting work.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State of a breaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Breaker tracks consecutive failures for one account and opens when a
// threshold is reached, blocking further delegation until a cooldown
// elapses or an operator reinstates the account.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	now         func() time.Time // for testing
}

// NewBreaker creates a breaker that opens after maxFailures consecutive
// failures and stays open for the given cooldown before half-opening.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	return &Breaker{
		state:       StateClosed,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Allow reports whether new work may be routed through this breaker.
// An open breaker past its cooldown transitions to half-open; a
// half-open breaker allows work until the next recorded outcome closes
// or reopens it.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.state = StateHalfOpen
			return true
		}
		return false
	}
	return false
}

// RecordFailure notes a failed or rejected outcome. A failure while
// half-open reopens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.maxFailures {
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// RecordSuccess notes an accepted outcome and closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = StateClosed
}

// Reset closes the circuit unconditionally (operator reinstatement).
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = StateClosed
	b.openedAt = time.Time{}
}

// Snapshot returns the current state and consecutive failure count.
func (b *Breaker) Snapshot() (State, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.failures
}

// Registry holds one breaker per account.
type Registry struct {
	mu          sync.Mutex
	breakers    map[string]*Breaker
	maxFailures int
	cooldown    time.Duration
}

// NewRegistry creates a Registry with shared breaker settings.
func NewRegistry(maxFailures int, cooldown time.Duration) *Registry {
	return &Registry{
		breakers:    make(map[string]*Breaker),
		maxFailures: maxFailures,
		cooldown:    cooldown,
	}
}

// For returns the breaker for the account, creating it on first use.
func (r *Registry) For(account string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[account]
	if !ok {
		b = NewBreaker(r.maxFailures, r.cooldown)
		r.breakers[account] = b
	}
	return b
}
