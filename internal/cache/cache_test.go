package cache

import (
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(capacity int) (*Cache, *fakeClock) {
	c := New(capacity, zap.NewNop())
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c.SetClock(clock.now)
	return c, clock
}

func TestSetThenGet(t *testing.T) {
	c, _ := newTestCache(8)
	c.Set("k", "v", time.Hour)

	got, ok := c.Get("k")
	if !ok || got.(string) != "v" {
		t.Fatalf("Get = (%v, %v), want (v, true)", got, ok)
	}
}

func TestGetAfterTTLMisses(t *testing.T) {
	c, clock := newTestCache(8)
	c.Set("k", "v", time.Hour)

	clock.advance(time.Hour + time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss after TTL elapsed")
	}
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint([]byte("same payload"))
	b := Fingerprint([]byte("same payload"))
	other := Fingerprint([]byte("different payload"))
	if a != b {
		t.Error("same payload produced different fingerprints")
	}
	if a == other {
		t.Error("different payloads produced the same fingerprint")
	}
}

func TestEvictionExpiryFirst(t *testing.T) {
	c, clock := newTestCache(3)
	c.Set("short", "v", time.Minute)
	c.Set("long1", "v", time.Hour)
	c.Set("long2", "v", time.Hour)

	clock.advance(2 * time.Minute) // "short" is now expired
	c.Set("long3", "v", time.Hour) // overflow triggers eviction

	if _, ok := c.Get("short"); ok {
		t.Error("expired entry survived eviction")
	}
	for _, k := range []string{"long1", "long2", "long3"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("live entry %q was evicted while an expired entry existed", k)
		}
	}
}

func TestEvictionLeastHitWhenNoneExpired(t *testing.T) {
	c, _ := newTestCache(3)
	c.Set("popular", "v", time.Hour)
	c.Set("quiet", "v", time.Hour)
	c.Set("mid", "v", time.Hour)

	for i := 0; i < 5; i++ {
		c.Get("popular")
	}
	c.Get("mid")

	c.Set("new", "v", time.Hour) // overflow, "quiet" has fewest hits

	if _, ok := c.Get("quiet"); ok {
		t.Error("least-hit entry survived overflow eviction")
	}
	if _, ok := c.Get("popular"); !ok {
		t.Error("most-hit entry was evicted")
	}
}

func TestCapacityHeldUnderChurn(t *testing.T) {
	c, _ := newTestCache(10)
	for i := 0; i < 50; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, time.Hour)
	}
	if n := c.Len(); n > 10 {
		t.Errorf("cache holds %d entries, capacity is 10", n)
	}
}
