package provider

import (
	"sync"
	"time"
)

// CircuitState is the breaker state for one provider.
type CircuitState int

const (
	// CircuitClosed allows requests.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests until the cooldown elapses.
	CircuitOpen
	// CircuitHalfOpen allows a single probe request.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerConfig tunes a CircuitBreaker.
type BreakerConfig struct {
	// FailureThreshold consecutive failures within Window trip the circuit.
	FailureThreshold int
	// Window is the sliding window for counting consecutive failures.
	Window time.Duration
	// Cooldown is the initial open duration; it doubles on every
	// half-open probe failure up to MaxCooldown.
	Cooldown    time.Duration
	MaxCooldown time.Duration
}

// DefaultBreakerConfig returns the standard breaker tuning.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Window:           time.Minute,
		Cooldown:         30 * time.Second,
		MaxCooldown:      10 * time.Minute,
	}
}

// CircuitBreaker guards a failing provider from repeated calls.
// All transitions are serialized under a single mutex; readers take
// snapshots via State().
type CircuitBreaker struct {
	cfg BreakerConfig

	mu           sync.Mutex
	state        CircuitState
	failures     int
	firstFailure time.Time
	openedAt     time.Time
	cooldown     time.Duration
	probing      bool

	now func() time.Time // injectable for tests
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultBreakerConfig().Window
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerConfig().Cooldown
	}
	if cfg.MaxCooldown <= 0 {
		cfg.MaxCooldown = DefaultBreakerConfig().MaxCooldown
	}
	return &CircuitBreaker{
		cfg:      cfg,
		cooldown: cfg.Cooldown,
		now:      time.Now,
	}
}

// Allow reports whether a request may proceed. In the half-open state only
// the first caller gets the probe; concurrent callers are rejected until the
// probe resolves.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.state = CircuitHalfOpen
			b.probing = true
			return true
		}
		return false
	case CircuitHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// RecordSuccess notes a successful call. A half-open probe success closes
// the circuit and resets the cooldown.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	if b.state != CircuitClosed {
		b.state = CircuitClosed
		b.cooldown = b.cfg.Cooldown
	}
}

// RecordFailure notes a failed call. Enough consecutive failures within the
// window trip the circuit; a half-open probe failure re-opens it with a
// doubled cooldown up to the cap.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	if b.state == CircuitHalfOpen {
		b.state = CircuitOpen
		b.openedAt = now
		b.probing = false
		b.cooldown *= 2
		if b.cooldown > b.cfg.MaxCooldown {
			b.cooldown = b.cfg.MaxCooldown
		}
		return
	}

	if b.failures == 0 || now.Sub(b.firstFailure) > b.cfg.Window {
		b.failures = 0
		b.firstFailure = now
	}
	b.failures++

	if b.state == CircuitClosed && b.failures >= b.cfg.FailureThreshold {
		b.state = CircuitOpen
		b.openedAt = now
	}
}

// State returns a snapshot of the current state.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
