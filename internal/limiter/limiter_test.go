package limiter

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestLimiter(spacing time.Duration, windowCap int, cooldown time.Duration) (*Limiter, *fakeClock) {
	l := New(spacing, windowCap, cooldown, zap.NewNop())
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l.SetClock(clock.now)
	return l, clock
}

func TestWindowCapRefusesExcessCalls(t *testing.T) {
	l, clock := newTestLimiter(0, 5, time.Minute)

	for i := 0; i < 5; i++ {
		if !l.Allow() {
			t.Fatalf("call %d refused below cap", i+1)
		}
		clock.advance(time.Second)
	}
	// The (cap+1)-th call within the same window must be refused.
	if l.Allow() {
		t.Fatal("call above per-minute cap was allowed")
	}
	if l.Throttled() != 1 {
		t.Errorf("throttled = %d, want 1", l.Throttled())
	}
}

func TestWindowRollover(t *testing.T) {
	l, clock := newTestLimiter(0, 2, time.Minute)

	l.Allow()
	l.Allow()
	if l.Allow() {
		t.Fatal("third call in window allowed")
	}

	clock.advance(time.Minute + time.Second)
	if !l.Allow() {
		t.Fatal("call refused after window rollover")
	}
}

func TestMinSpacing(t *testing.T) {
	l, clock := newTestLimiter(2*time.Second, 100, time.Minute)

	if !l.Allow() {
		t.Fatal("first call refused")
	}
	if l.Allow() {
		t.Fatal("immediate second call allowed despite spacing")
	}
	clock.advance(3 * time.Second)
	if !l.Allow() {
		t.Fatal("call refused after spacing elapsed")
	}
}

func TestCooldownBlocksAllCalls(t *testing.T) {
	l, clock := newTestLimiter(0, 100, 2*time.Minute)

	l.TripCooldown()
	if !l.InCooldown() {
		t.Fatal("expected limiter to be in cooldown")
	}
	if l.Allow() {
		t.Fatal("call allowed during cooldown")
	}

	clock.advance(2*time.Minute + time.Second)
	if l.InCooldown() {
		t.Fatal("cooldown should have expired")
	}
	if !l.Allow() {
		t.Fatal("call refused after cooldown expired")
	}
}

func TestRepeatedTripKeepsFurthestDeadline(t *testing.T) {
	l, clock := newTestLimiter(0, 100, time.Minute)

	l.TripCooldown()
	clock.advance(30 * time.Second)
	l.TripCooldown() // extends to now+60s

	clock.advance(45 * time.Second)
	if !l.InCooldown() {
		t.Fatal("second trip should have extended the cooldown")
	}
}
