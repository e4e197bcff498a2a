// Package corelock provides the synchronization and caching primitives that
// sit underneath higher-level concurrent data structures: a lock-free
// reader/writer spinlock, a one-shot latch with lazy blocking allocation, a
// strictly FIFO non-blocking mutual-exclusion lock keyed on receipt futures,
// and a memoizing TTL/LRU cache built on top of them.
//
// # Primitives
//
// [SpinlockReaderWriter] is a non-reentrant, non-thread-affine reader/writer
// lock packed into a single atomic word. It never blocks the caller; on
// contention it yields to the OS scheduler and retries.
//
// [BooleanFlagNoReset] is a one-shot latch. Its blocking primitive (a Go
// runtime semaphore) is used lazily, only once a goroutine actually contends
// with Set.
//
// [AsyncLock] hands every requester a [Receipt]: a future that completes
// with true on grant, false on timeout/denial, or with an error on
// cancellation. Grants to queued requesters are strictly FIFO.
//
// [TtlCache] memoizes the result of a build function per key with
// single-flight semantics, evicts entries once they are older than a
// minimum lifetime, and can be trimmed to a maximum size by least-recently
// used order. [AutoEviction] wraps a TtlCache with a self-arming background
// sweep that disables itself once the cache drains to empty.
//
// None of these primitives touch the filesystem, the network, or any
// process-external state; they coordinate goroutines within a single
// process only.
package corelock
