// Package circuit implements a circuit breaker for flaky downstream calls.
// After too many consecutive failures the breaker opens and rejects calls
// outright; once the cooldown passes it lets a few probes through and closes
// again when they succeed.
package circuit

import (
	"errors"
	"sync"
	"time"
)

// State is the breaker's position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrOpen rejects a call while the breaker is open.
	ErrOpen = errors.New("circuit is open")
	// ErrTooManyProbes rejects a call when the half-open probe budget is
	// already in use.
	ErrTooManyProbes = errors.New("too many probes in half-open state")
)

// Config holds breaker settings. Zero values fall back to 5 failures, a
// 30 second cooldown, and a single probe.
type Config struct {
	// MaxFailures is the consecutive-failure count that opens the breaker.
	MaxFailures int
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// HalfOpenMax is the number of probes allowed while half-open; that
	// many consecutive successes close the breaker.
	HalfOpenMax int
	// OnStateChange, when set, observes every transition. It runs with
	// the breaker locked and must not call back into it.
	OnStateChange func(from, to State)
}

// Breaker guards a single downstream dependency.
type Breaker struct {
	maxFailures   int
	cooldown      time.Duration
	halfOpenMax   int
	onStateChange func(from, to State)

	mu        sync.Mutex
	state     State
	failures  int
	probes    int
	successes int
	openedAt  time.Time
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	return &Breaker{
		maxFailures:   cfg.MaxFailures,
		cooldown:      cfg.Cooldown,
		halfOpenMax:   cfg.HalfOpenMax,
		onStateChange: cfg.OnStateChange,
		state:         StateClosed,
	}
}

// Execute runs fn unless the breaker rejects it, and feeds the outcome back
// into the state machine. The error from fn is returned as-is.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}

	if err := fn(); err != nil {
		b.recordFailure()
		return err
	}

	b.recordSuccess()
	return nil
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive-failure count while closed.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probes = 0
	b.successes = 0
	b.transitionTo(StateClosed)
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.probes = 0
		b.successes = 0
		b.transitionTo(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if b.probes >= b.halfOpenMax {
			return ErrTooManyProbes
		}
		b.probes++
		return nil
	default:
		return nil
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.maxFailures {
			b.openedAt = time.Now()
			b.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		b.openedAt = time.Now()
		b.transitionTo(StateOpen)
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.probes--
		b.successes++
		if b.successes >= b.halfOpenMax {
			b.transitionTo(StateClosed)
		}
	}
}

// transitionTo must be called with the lock held.
func (b *Breaker) transitionTo(next State) {
	prev := b.state
	if prev == next {
		return
	}

	b.state = next
	b.failures = 0

	if b.onStateChange != nil {
		b.onStateChange(prev, next)
	}
}
