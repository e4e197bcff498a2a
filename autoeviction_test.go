package corelock

import (
	"testing"
	"time"
)

// TestAutoEviction_SelfArming covers testable property 11: after the
// cache drains to empty, the background timer disarms; the next Get
// re-arms it.
func TestAutoEviction_SelfArming(t *testing.T) {
	clk := newFakeClock(time.Unix(0, 0))
	build := func(k string) (string, error) { return k + ":v", nil }
	cache, err := NewTtlCache[string, string](build,
		WithMinLife[string, string](10*time.Millisecond),
		WithTtlCacheClock[string, string](clk),
	)
	if err != nil {
		t.Fatalf("NewTtlCache: %v", err)
	}
	auto := NewAutoEviction(cache, 20*time.Millisecond)

	if auto.IsArmed() {
		t.Fatal("should not be armed before the first Get")
	}

	if _, err := auto.Get("k"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !auto.IsArmed() {
		t.Fatal("should be armed immediately after the first Get")
	}

	clk.Advance(20 * time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for auto.IsArmed() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if auto.IsArmed() {
		t.Fatal("expected the sweep to disarm once the cache drained to empty")
	}
	if n := auto.Count(); n != 0 {
		t.Fatalf("Count = %d, want 0 after self-eviction", n)
	}

	if _, err := auto.Get("k2"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !auto.IsArmed() {
		t.Fatal("expected Get to re-arm the background sweep")
	}
}

func TestAutoEviction_Delegation(t *testing.T) {
	build := func(k int) (int, error) { return k * 2, nil }
	cache, _ := NewTtlCache[int, int](build, WithMinLife[int, int](time.Hour))
	auto := NewAutoEviction(cache, time.Hour)

	for i := range 10 {
		if v, err := auto.Get(i); err != nil || v != i*2 {
			t.Fatalf("Get(%d) = %d, %v", i, v, err)
		}
	}
	if n := auto.Count(); n != 10 {
		t.Fatalf("Count = %d, want 10", n)
	}

	auto.TrimTo(5)
	if n := auto.Count(); n != 5 {
		t.Fatalf("Count after TrimTo = %d, want 5", n)
	}

	if !auto.Remove(9) {
		t.Fatal("Remove(9) should report true")
	}
	if n := auto.Count(); n != 4 {
		t.Fatalf("Count after Remove = %d, want 4", n)
	}
}
