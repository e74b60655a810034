// Package circuitbreaker protects delivery targets from repeated hammering
// while they are down.
package circuitbreaker

import (
	"sync"
	"time"
)

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

type targetState struct {
	state               state
	consecutiveFailures int
	openedAt            time.Time
}

// Breaker tracks failure streaks per delivery target. After threshold
// consecutive failures the target is blocked for the cooldown; then a
// single probe is let through (half-open) and its outcome decides whether
// the circuit closes again.
type Breaker struct {
	mu        sync.Mutex
	targets   map[string]*targetState
	threshold int
	cooldown  time.Duration
	clock     func() time.Time
}

func New(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		targets:   make(map[string]*targetState),
		threshold: threshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

// Allow reports whether a delivery to the target may proceed.
func (b *Breaker) Allow(target string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.targets[target]
	if !ok {
		return true
	}

	switch s.state {
	case stateOpen:
		if b.clock().Sub(s.openedAt) >= b.cooldown {
			s.state = stateHalfOpen
			return true
		}
		return false
	case stateHalfOpen:
		// One probe at a time.
		return false
	default:
		return true
	}
}

func (b *Breaker) ReportSuccess(target string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.targets[target]
	if !ok {
		return
	}
	s.state = stateClosed
	s.consecutiveFailures = 0
}

func (b *Breaker) ReportFailure(target string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.targets[target]
	if !ok {
		s = &targetState{}
		b.targets[target] = s
	}

	s.consecutiveFailures++
	if s.consecutiveFailures >= b.threshold {
		s.state = stateOpen
		s.openedAt = b.clock()
	}
}
