package provider

import (
	"testing"
	"time"
)

func newTestBreaker() (*CircuitBreaker, *time.Time) {
	now := time.Now()
	b := NewCircuitBreaker(BreakerConfig{
		FailureThreshold: 3,
		Window:           time.Minute,
		Cooldown:         30 * time.Second,
		MaxCooldown:      2 * time.Minute,
	})
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker()

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if b.State() != CircuitClosed {
			t.Fatalf("tripped early after %d failures", i+1)
		}
	}
	b.RecordFailure()
	if b.State() != CircuitOpen {
		t.Fatal("expected open after threshold failures")
	}
	if b.Allow() {
		t.Error("open circuit must reject")
	}
}

func TestBreakerHalfOpenProbeSuccess(t *testing.T) {
	b, now := newTestBreaker()
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}

	*now = now.Add(31 * time.Second)
	if !b.Allow() {
		t.Fatal("expected probe allowed after cooldown")
	}
	if b.State() != CircuitHalfOpen {
		t.Fatalf("state = %v, want half-open", b.State())
	}
	// Only one probe at a time.
	if b.Allow() {
		t.Error("second concurrent probe must be rejected")
	}

	b.RecordSuccess()
	if b.State() != CircuitClosed {
		t.Errorf("probe success should close, got %v", b.State())
	}
	if !b.Allow() {
		t.Error("closed circuit must allow")
	}
}

func TestBreakerHalfOpenProbeFailureDoublesCooldown(t *testing.T) {
	b, now := newTestBreaker()
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}

	*now = now.Add(31 * time.Second)
	if !b.Allow() {
		t.Fatal("probe should be allowed")
	}
	b.RecordFailure()
	if b.State() != CircuitOpen {
		t.Fatalf("probe failure should re-open, got %v", b.State())
	}

	// Original cooldown has doubled to 60s; 31s later it is still open.
	*now = now.Add(31 * time.Second)
	if b.Allow() {
		t.Error("expected still open inside doubled cooldown")
	}
	*now = now.Add(30 * time.Second)
	if !b.Allow() {
		t.Error("expected half-open probe after doubled cooldown")
	}
}

func TestBreakerCooldownCapped(t *testing.T) {
	b, now := newTestBreaker()
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	// Fail the probe enough times to exceed the cap if uncapped.
	for i := 0; i < 5; i++ {
		*now = now.Add(b.cooldown)
		if !b.Allow() {
			t.Fatalf("probe %d not allowed", i)
		}
		b.RecordFailure()
	}
	if b.cooldown > 2*time.Minute {
		t.Errorf("cooldown %v exceeds cap", b.cooldown)
	}
}

func TestBreakerWindowResetsFailureCount(t *testing.T) {
	b, now := newTestBreaker()
	b.RecordFailure()
	b.RecordFailure()

	// Outside the window the streak starts over.
	*now = now.Add(2 * time.Minute)
	b.RecordFailure()
	b.RecordFailure()
	if b.State() != CircuitClosed {
		t.Error("stale failures must not count toward the threshold")
	}
}
