package retry

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Allow while the breaker is refusing calls.
// Callers surface it as a service-unavailable condition.
var ErrCircuitOpen = errors.New("upstream circuit open")

// Breaker is a process-local circuit breaker: after a threshold of
// consecutive transport failures it refuses upstream calls for a cooldown
// window. A single success closes it again. State is per process instance;
// each instance degrades independently.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	openUntil time.Time
	now       func() time.Time
}

// NewBreaker creates a breaker that opens after threshold consecutive
// failures and stays open for cooldown.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed. Returns ErrCircuitOpen while the
// cooldown window is active.
func (breaker *Breaker) Allow() error {
	breaker.mu.Lock()
	defer breaker.mu.Unlock()

	if breaker.openUntil.IsZero() || breaker.now().After(breaker.openUntil) {
		return nil
	}
	return ErrCircuitOpen
}

// RecordSuccess resets the failure counter and closes the breaker.
func (breaker *Breaker) RecordSuccess() {
	breaker.mu.Lock()
	defer breaker.mu.Unlock()
	breaker.failures = 0
	breaker.openUntil = time.Time{}
}

// RecordFailure counts a transport failure, opening the breaker once the
// threshold is reached.
func (breaker *Breaker) RecordFailure() {
	breaker.mu.Lock()
	defer breaker.mu.Unlock()

	breaker.failures++
	if breaker.failures >= breaker.threshold {
		breaker.openUntil = breaker.now().Add(breaker.cooldown)
	}
}
