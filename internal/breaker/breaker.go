// Package breaker guards a failure-prone provider from being hammered
// while it is down, with periodic recovery probes.
package breaker

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker is the per-provider availability state machine. Allow is a
// pure query; RecordSuccess and RecordFailure are the only mutators and
// must be called exactly once per completed attempt. Nothing blocks:
// a short-circuited caller falls through to the next provider.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu                  sync.Mutex
	open                bool
	consecutiveFailures int
	openedAt            time.Time
}

func New(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// NewWithClock injects the clock for tests.
func NewWithClock(threshold int, cooldown time.Duration, now func() time.Time) *Breaker {
	return &Breaker{threshold: threshold, cooldown: cooldown, now: now}
}

// State derives the externally visible state: an open breaker whose
// cooldown has elapsed reads as half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Breaker) stateLocked() State {
	if !b.open {
		return StateClosed
	}
	if b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return StateOpen
}

// Allow reports whether a call may proceed. Closed and half-open permit
// execution; half-open callers are the recovery probe. Attempts against
// one provider are sequential inside a resolution pass, so a single
// pass sends exactly one probe. Concurrent sessions hitting the same
// half-open breaker may each probe; that is accepted, since a failed
// probe restarts the cooldown and keeps the exposure window bounded.
func (b *Breaker) Allow() bool {
	return b.State() != StateOpen
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	b.consecutiveFailures = 0
	b.openedAt = time.Time{}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		// Failed probe in half-open; restart the cooldown clock.
		b.openedAt = b.now()
		return
	}
	b.consecutiveFailures++
	if b.consecutiveFailures >= b.threshold {
		b.open = true
		b.openedAt = b.now()
	}
}
