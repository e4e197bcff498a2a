package corelock

import (
	"container/list"
	"sync/atomic"
	"time"
)

// ttlEntry is the value stored at each LRU list element. Its key and
// lastAccess fields are mutated only while the owning cache's exclusive
// lock is held, so they need no atomics of their own; done and the
// value/err pair follow the cache's single-flight publication rule —
// written once, then done.Set(), after which they are read-only.
type ttlEntry[K comparable, V any] struct {
	key        K
	value      V
	err        error
	done       BooleanFlagNoReset
	lastAccess time.Time
	elem       *list.Element
}

// TtlCacheOption configures a TtlCache built with [NewTtlCache].
type TtlCacheOption[K comparable, V any] func(*ttlCacheConfig[K, V])

type ttlCacheConfig[K comparable, V any] struct {
	minLife                time.Duration
	anticipateSlowEquality bool
	clock                  Clock
}

func defaultTtlCacheConfig[K comparable, V any]() ttlCacheConfig[K, V] {
	return ttlCacheConfig[K, V]{clock: realClock{}}
}

// WithMinLife sets the minimum time an entry must sit unaccessed before
// DeleteOld is allowed to evict it. The default is zero: DeleteOld may
// evict anything not accessed since the call began.
func WithMinLife[K comparable, V any](d time.Duration) TtlCacheOption[K, V] {
	return func(c *ttlCacheConfig[K, V]) { c.minLife = d }
}

// WithAnticipateSlowEquality makes Get snapshot the stored key under a
// shared lock before doing its real work, rebinding the local key
// variable to the Entry's stored key. This is only worth enabling when
// K's equality is expensive relative to a map lookup and callers
// frequently pass distinct-but-equal key values (e.g. different backing
// arrays of string in the same range).
func WithAnticipateSlowEquality[K comparable, V any](b bool) TtlCacheOption[K, V] {
	return func(c *ttlCacheConfig[K, V]) { c.anticipateSlowEquality = b }
}

// WithTtlCacheClock overrides the clock TtlCache uses for last-access
// timestamps and eviction horizons. Tests use this to make TTL behavior
// deterministic instead of sleeping for real durations.
func WithTtlCacheClock[K comparable, V any](clk Clock) TtlCacheOption[K, V] {
	return func(c *ttlCacheConfig[K, V]) { c.clock = clk }
}

// TtlCache is a concurrent memoizing cache: Get computes build(key) at
// most once per key's Entry lifetime (single-flight), caches the result
// — or the error, if build failed — for at least minLife, and can be
// trimmed to a maximum size by least-recently-used order.
//
// Key equality is Go's native comparable; TtlCache does not support a
// caller-supplied equality relation (see DESIGN.md).
//
// The zero value is not usable; construct with [NewTtlCache].
type TtlCache[K comparable, V any] struct {
	_ noCopy

	build                  func(K) (V, error)
	minLife                time.Duration
	anticipateSlowEquality bool
	clock                  Clock

	rw      SpinlockReaderWriter
	entries map[K]*list.Element
	lru     list.List

	deletionHorizon     atomic.Int64 // UnixNano
	concurrentAccessors atomic.Int32
	deleterLock         SpinlockReaderWriter
}

// NewTtlCache constructs a TtlCache whose misses are computed by build.
// A non-nil error is returned only for invalid configuration.
func NewTtlCache[K comparable, V any](build func(K) (V, error), opts ...TtlCacheOption[K, V]) (*TtlCache[K, V], error) {
	cfg := defaultTtlCacheConfig[K, V]()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.minLife < 0 {
		return nil, ErrInvalidArgument
	}
	c := &TtlCache[K, V]{
		build:                  build,
		minLife:                cfg.minLife,
		anticipateSlowEquality: cfg.anticipateSlowEquality,
		clock:                  cfg.clock,
		entries:                make(map[K]*list.Element),
	}
	c.lru.Init()
	return c, nil
}

// Get returns the cached value for key, computing and caching it first
// if this is the first access. Concurrent callers for the same key
// observe exactly one call to build and share its outcome, including a
// shared error.
func (c *TtlCache[K, V]) Get(key K) (V, error) {
	if c.anticipateSlowEquality {
		var rtaken bool
		c.rw.EnterRead(&rtaken)
		if elem, ok := c.entries[key]; ok {
			key = elem.Value.(*ttlEntry[K, V]).key
		}
		c.rw.ExitRead()
	}

	var wtaken bool
	c.rw.EnterWrite(&wtaken)
	c.concurrentAccessors.Add(1)

	var ent *ttlEntry[K, V]
	needsCompute := false
	if elem, ok := c.entries[key]; ok {
		ent = elem.Value.(*ttlEntry[K, V])
		ent.lastAccess = c.clock.Now()
		c.lru.MoveToBack(elem)
	} else {
		ent = &ttlEntry[K, V]{key: key, lastAccess: c.clock.Now()}
		ent.elem = c.lru.PushBack(ent)
		c.entries[key] = ent.elem
		needsCompute = true
	}

	c.rw.ExitWrite()
	c.concurrentAccessors.Add(-1)

	if needsCompute {
		value, err := c.build(key)
		ent.value = value
		ent.err = err
		ent.done.Set()
		if err != nil {
			return value, &BuildError{Key: key, Err: err}
		}
		return value, nil
	}

	ent.done.Wait()
	if ent.err != nil {
		return ent.value, &BuildError{Key: key, Err: ent.err}
	}
	return ent.value, nil
}

// Remove deletes key's Entry if present, reporting whether anything was
// removed. A pending build already in flight for key is not canceled;
// its eventual result is simply discarded.
func (c *TtlCache[K, V]) Remove(key K) bool {
	var wtaken bool
	c.rw.TryEnterWrite(&wtaken)
	if wtaken {
		removed := c.removeLocked(key)
		c.rw.ExitWrite()
		return removed
	}

	var rtaken bool
	c.rw.EnterRead(&rtaken)
	_, present := c.entries[key]
	c.rw.ExitRead()
	if !present {
		return false
	}

	var wtaken2 bool
	c.rw.EnterWrite(&wtaken2)
	removed := c.removeLocked(key)
	c.rw.ExitWrite()
	return removed
}

func (c *TtlCache[K, V]) removeLocked(key K) bool {
	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	delete(c.entries, key)
	c.lru.Remove(elem)
	return true
}

// DeleteOld evicts every Entry whose last access is at or before
// now-minLife. Concurrent callers collapse onto whichever one currently
// holds the deleter lock: a caller that loses the try-lock race simply
// raises the shared eviction horizon and returns, trusting the
// incumbent evictor to honor it.
func (c *TtlCache[K, V]) DeleteOld() {
	target := c.clock.Now().Add(-c.minLife).UnixNano()
	for {
		cur := c.deletionHorizon.Load()
		if target <= cur {
			break
		}
		if c.deletionHorizon.CompareAndSwap(cur, target) {
			break
		}
	}

	var dtaken bool
	c.deleterLock.TryEnterWrite(&dtaken)
	if !dtaken {
		return
	}
	defer c.deleterLock.ExitWrite()

	for {
		horizon := c.deletionHorizon.Load()

		var spins int
		for c.concurrentAccessors.Load() > 0 {
			delay(&spins)
		}

		var wtaken bool
		c.rw.TryEnterWrite(&wtaken)
		if !wtaken {
			continue
		}
		for c.concurrentAccessors.Load() == 0 {
			front := c.lru.Front()
			if front == nil {
				break
			}
			ent := front.Value.(*ttlEntry[K, V])
			if ent.lastAccess.UnixNano() > horizon {
				break
			}
			c.lru.Remove(front)
			delete(c.entries, ent.key)
		}
		c.rw.ExitWrite()

		if c.deletionHorizon.Load() <= horizon {
			return
		}
	}
}

// TrimTo evicts least-recently-used entries until Count <= max, then
// runs DeleteOld so the minimum-lifetime policy still applies to what
// remains.
func (c *TtlCache[K, V]) TrimTo(max int) {
	var dtaken bool
	c.deleterLock.EnterWrite(&dtaken)
	var wtaken bool
	c.rw.EnterWrite(&wtaken)
	for len(c.entries) > max {
		front := c.lru.Front()
		if front == nil {
			break
		}
		ent := front.Value.(*ttlEntry[K, V])
		c.lru.Remove(front)
		delete(c.entries, ent.key)
	}
	c.rw.ExitWrite()
	c.deleterLock.ExitWrite()

	c.DeleteOld()
}

// Count returns the number of entries currently in the cache, including
// ones whose build is still in flight.
func (c *TtlCache[K, V]) Count() int {
	var rtaken bool
	c.rw.EnterRead(&rtaken)
	defer c.rw.ExitRead()
	return len(c.entries)
}
