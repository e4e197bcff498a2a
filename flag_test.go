package corelock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBooleanFlagNoReset_Basic(t *testing.T) {
	var f BooleanFlagNoReset

	if f.IsSet() {
		t.Error("expected unset")
	}

	start := time.Now()
	time.AfterFunc(100*time.Millisecond, func() {
		f.Set()
	})

	f.Wait()
	if dur := time.Since(start); dur < 100*time.Millisecond {
		t.Errorf("Wait returned too early: %v", dur)
	}
	if !f.IsSet() {
		t.Error("expected set")
	}
}

func TestBooleanFlagNoReset_Broadcast(t *testing.T) {
	var f BooleanFlagNoReset
	var count int32
	var wg sync.WaitGroup
	n := 10

	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			f.Wait()
			atomic.AddInt32(&count, 1)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	if c := atomic.LoadInt32(&count); c != 0 {
		t.Errorf("waiters returned before Set: %d", c)
	}

	f.Set()
	wg.Wait()

	if c := atomic.LoadInt32(&count); c != int32(n) {
		t.Errorf("not all waiters woke up: %d / %d", c, n)
	}
}

func TestBooleanFlagNoReset_SetBeforeWait(t *testing.T) {
	var f BooleanFlagNoReset
	f.Set()

	done := make(chan struct{})
	go func() {
		f.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("Wait blocked even though Set was called first")
	}
}

func TestBooleanFlagNoReset_DoubleSet(t *testing.T) {
	var f BooleanFlagNoReset
	f.Set()
	f.Set() // must be a no-op, never panics or double-releases
	f.Wait()
	if !f.IsSet() {
		t.Error("expected set")
	}
}

func TestBooleanFlagNoReset_NeverResets(t *testing.T) {
	var f BooleanFlagNoReset
	f.Set()
	if !f.IsSet() {
		t.Fatal("expected set")
	}
	// No Reset/Close method exists on this type; IsSet must remain true
	// across any further calls to Set or Wait.
	f.Set()
	f.Wait()
	if !f.IsSet() {
		t.Error("flag unexpectedly reset")
	}
}
