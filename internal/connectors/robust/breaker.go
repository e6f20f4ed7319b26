package robust

import (
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/ice/internal/interfaces"
)

// ErrCircuitOpen is returned when a host's circuit breaker is open and
// the cooldown has not elapsed yet.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Breaker states
const (
	stateClosed   = "closed"
	stateOpen     = "open"
	stateHalfOpen = "half-open"
)

// CircuitBreaker tracks consecutive failures per host. After
// FailureThreshold consecutive failures the breaker opens and requests
// fail fast until Cooldown elapses; the first request after cooldown
// runs as a half-open trial.
type CircuitBreaker struct {
	FailureThreshold int
	Cooldown         time.Duration

	mu    sync.Mutex
	hosts map[string]*hostState
}

type hostState struct {
	state    string
	failures int
	openedAt time.Time
}

// NewCircuitBreaker creates a breaker with the given threshold and cooldown.
// Zero values fall back to 5 failures / 60s cooldown.
func NewCircuitBreaker(failureThreshold int, cooldown time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &CircuitBreaker{
		FailureThreshold: failureThreshold,
		Cooldown:         cooldown,
		hosts:            make(map[string]*hostState),
	}
}

// Allow reports whether a request to the host may proceed. An open
// breaker past its cooldown transitions to half-open and allows one
// trial request.
func (b *CircuitBreaker) Allow(host string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	hs, ok := b.hosts[host]
	if !ok {
		return nil
	}

	switch hs.state {
	case stateOpen:
		if time.Since(hs.openedAt) >= b.Cooldown {
			hs.state = stateHalfOpen
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

// RecordSuccess resets the host's failure count and closes the breaker.
func (b *CircuitBreaker) RecordSuccess(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if hs, ok := b.hosts[host]; ok {
		hs.state = stateClosed
		hs.failures = 0
	}
}

// RecordFailure increments the host's failure count and opens the
// breaker when the threshold is reached. A failed half-open trial
// reopens immediately.
func (b *CircuitBreaker) RecordFailure(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hs, ok := b.hosts[host]
	if !ok {
		hs = &hostState{state: stateClosed}
		b.hosts[host] = hs
	}

	hs.failures++
	if hs.state == stateHalfOpen || hs.failures >= b.FailureThreshold {
		hs.state = stateOpen
		hs.openedAt = time.Now()
	}
}

// Status returns a snapshot of every tracked host for the status endpoint.
func (b *CircuitBreaker) Status() []interfaces.BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	statuses := make([]interfaces.BreakerStatus, 0, len(b.hosts))
	for host, hs := range b.hosts {
		status := interfaces.BreakerStatus{
			Host:     host,
			State:    hs.state,
			Failures: hs.failures,
		}
		if hs.state != stateClosed {
			status.OpenedAt = hs.openedAt
		}
		statuses = append(statuses, status)
	}
	return statuses
}
