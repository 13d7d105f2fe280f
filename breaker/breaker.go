// Package breaker provides the circuit breaker that the store connectivity
// guard consults before probing the shared store.
//
// States:
//   - Closed: probes flow normally; consecutive failures are counted.
//   - Open: the store is treated as down without probing; after OpenTimeout
//     the breaker moves to HalfOpen.
//   - HalfOpen: probes are let through again; SuccessThreshold consecutive
//     successes close the breaker, any failure reopens it.
package breaker

import (
	"sync"
	"time"
)

// State is the current breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the breaker parameters. Zero fields fall back to the values
// in [DefaultConfig].
type Config struct {
	// FailureThreshold is the number of consecutive failures in Closed
	// state that trips the breaker.
	FailureThreshold int

	// OpenTimeout is how long the breaker stays Open.
	OpenTimeout time.Duration

	// SuccessThreshold is the number of consecutive successes required in
	// HalfOpen state to close the breaker.
	SuccessThreshold int
}

// DefaultConfig trips after five consecutive store failures and retries
// after five seconds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		OpenTimeout:      5 * time.Second,
		SuccessThreshold: 1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = d.OpenTimeout
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	return c
}

// Breaker is safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	cfg Config

	state     State
	failures  int // consecutive failures in Closed
	successes int // consecutive successes in HalfOpen
	openedAt  time.Time
	nowFunc   func() time.Time
}

// New creates a Breaker in the Closed state.
func New(cfg Config) *Breaker {
	return &Breaker{
		cfg:     cfg.withDefaults(),
		state:   Closed,
		nowFunc: time.Now,
	}
}

// State returns the current state, moving Open to HalfOpen first if the
// timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkOpenTimeout()
	return b.state
}

// Allow reports whether a probe may be attempted. It is false only while
// the breaker is Open.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkOpenTimeout()
	return b.state != Open
}

// OnSuccess records a successful probe or store operation.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = Closed
			b.failures = 0
			b.successes = 0
		}
	}
}

// OnFailure records a failed probe or store operation.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkOpenTimeout()
	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.toOpen()
		}
	case HalfOpen:
		b.toOpen()
	}
}

// checkOpenTimeout must be called with b.mu held.
func (b *Breaker) checkOpenTimeout() {
	if b.state == Open && b.nowFunc().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.state = HalfOpen
		b.successes = 0
	}
}

func (b *Breaker) toOpen() {
	b.state = Open
	b.openedAt = b.nowFunc()
	b.failures = 0
	b.successes = 0
}
