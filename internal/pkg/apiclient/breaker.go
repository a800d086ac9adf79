package apiclient

import (
	"sync"
	"time"
)

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

var circuitStateNames = [...]string{
	circuitClosed:   "closed",
	circuitOpen:     "open",
	circuitHalfOpen: "half-open",
}

// circuitBreaker stops calls to the storage API after consecutive failures.
// Once the cooldown has passed it lets trial calls through, and enough
// successes in a row close it again. A nil breaker admits everything.
type circuitBreaker struct {
	openAfter  int
	closeAfter int
	cooldown   time.Duration
	now        func() time.Time

	mu       sync.Mutex
	state    circuitState
	failures int
	trials   int
	openedAt time.Time
}

func newCircuitBreaker(openAfter, closeAfter int, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{
		openAfter:  openAfter,
		closeAfter: closeAfter,
		cooldown:   cooldown,
		now:        time.Now,
	}
}

// Allow reports whether a call may go out.
func (cb *circuitBreaker) Allow() bool {
	if cb == nil {
		return true
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == circuitOpen {
		if cb.now().Sub(cb.openedAt) <= cb.cooldown {
			return false
		}
		cb.state, cb.trials = circuitHalfOpen, 0
	}
	return true
}

func (cb *circuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state != circuitHalfOpen {
		return
	}
	if cb.trials++; cb.trials >= cb.closeAfter {
		cb.state = circuitClosed
	}
}

// RecordFailure counts a transport error or server-side failure. A failed
// trial call reopens the circuit at once.
func (cb *circuitBreaker) RecordFailure() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == circuitHalfOpen || cb.failures >= cb.openAfter {
		cb.state, cb.trials = circuitOpen, 0
		cb.openedAt = cb.now()
	}
}

// State names the current state as reported by /api/debug.
func (cb *circuitBreaker) State() string {
	if cb == nil {
		return circuitStateNames[circuitClosed]
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return circuitStateNames[cb.state]
}

// CircuitState reports the breaker state; "closed" when breaking is disabled.
func (c *Client) CircuitState() string {
	return c.circuitBreaker.State()
}
