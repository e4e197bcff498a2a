package corelock

import (
	"sync"
	"time"
)

// AutoEviction wraps a TtlCache with a self-arming background sweep: the
// first Get after the cache is empty (or after construction) schedules
// a DeleteOld every interval; once a sweep finds the cache empty, the
// timer disarms itself rather than waking up forever for nothing.
type AutoEviction[K comparable, V any] struct {
	_ noCopy

	cache    *TtlCache[K, V]
	interval time.Duration

	mu    sync.Mutex
	timer *time.Timer
	armed bool
}

// NewAutoEviction wraps cache, running DeleteOld every interval while
// the cache is non-empty.
func NewAutoEviction[K comparable, V any](cache *TtlCache[K, V], interval time.Duration) *AutoEviction[K, V] {
	return &AutoEviction[K, V]{cache: cache, interval: interval}
}

// Get delegates to the wrapped cache, arming the background sweep if it
// is not already running.
func (a *AutoEviction[K, V]) Get(key K) (V, error) {
	a.arm()
	return a.cache.Get(key)
}

func (a *AutoEviction[K, V]) arm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.armed {
		return
	}
	a.armed = true
	a.timer = time.AfterFunc(a.interval, a.tick)
}

func (a *AutoEviction[K, V]) tick() {
	a.cache.DeleteOld()
	count := a.cache.Count()

	a.mu.Lock()
	defer a.mu.Unlock()
	if count == 0 {
		a.armed = false
		return
	}
	a.timer.Reset(a.interval)
}

// Remove delegates to the wrapped cache.
func (a *AutoEviction[K, V]) Remove(key K) bool {
	return a.cache.Remove(key)
}

// DeleteOld delegates to the wrapped cache; it does not itself arm or
// disarm the background timer.
func (a *AutoEviction[K, V]) DeleteOld() {
	a.cache.DeleteOld()
}

// TrimTo delegates to the wrapped cache.
func (a *AutoEviction[K, V]) TrimTo(max int) {
	a.cache.TrimTo(max)
}

// Count delegates to the wrapped cache.
func (a *AutoEviction[K, V]) Count() int {
	return a.cache.Count()
}

// IsArmed reports whether the background sweep is currently scheduled.
// Exposed mainly for tests that verify the self-arming/self-disarming
// behavior.
func (a *AutoEviction[K, V]) IsArmed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.armed
}
