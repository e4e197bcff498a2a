package corelock

import "sync/atomic"

// SpinlockReaderWriter is a lock-free, non-reentrant reader/writer lock
// packed into a single atomic 64-bit word:
//
//	bits  0-31: reader count, with the sentinel 0xFFFFFFFF meaning
//	            "exclusive lock held"
//	bits 32-63: nonzero while a reader is mid-acquisition; this blocks a
//	            writer's fast CAS from landing between a reader's two
//	            stores
//
// None of its methods ever put the calling goroutine to sleep on a
// blocking primitive; on contention they only back off (spin, then yield
// the OS thread) and retry. It is not reentrant and has no notion of an
// owning thread.
//
// Readers are implicitly preferred: a writer that observes any reader,
// or any in-flight reader transition, backs off and retries. Writer
// starvation under sustained read pressure is an accepted trade-off, not
// a bug.
//
// The zero value is a free (unlocked) lock.
type SpinlockReaderWriter struct {
	_     noCopy
	state atomic.Uint64
}

const (
	rwExclusive = 0xFFFFFFFF      // low 32 bits when a writer holds the lock
	rwEntering  = uint64(1) << 32 // added to the high 32 bits while a reader transitions
	rwHighMask  = ^uint64(0xFFFFFFFF)
)

// TryEnterWrite makes a single, non-blocking attempt to acquire the
// exclusive lock.
//
// taken must point to a bool already initialized to false; it is set to
// true if and only if the lock was actually acquired. Checking *taken
// after the call, rather than assuming success, is what lets a caller
// release correctly even if a panic unwinds between the decision to
// acquire and the moment this function returns.
func (l *SpinlockReaderWriter) TryEnterWrite(taken *bool) error {
	if *taken {
		return ErrLockAlreadyHeld
	}
	if l.state.Load() != 0 {
		return nil
	}
	if !l.state.CompareAndSwap(0, rwEntering) {
		return nil
	}
	// Between this store and the CAS above, the word reads as "high
	// bits set, low bits zero": no reader can complete an acquisition
	// (TryEnterRead refuses to proceed while high bits are set) and no
	// other writer can pass the CAS above (word != 0).
	l.state.Store(rwExclusive)
	*taken = true
	return nil
}

// EnterWrite acquires the exclusive lock, retrying with backoff until it
// succeeds. There is no bounded spin count; a writer competes
// indefinitely against readers.
func (l *SpinlockReaderWriter) EnterWrite(taken *bool) error {
	if *taken {
		return ErrLockAlreadyHeld
	}
	var spins int
	for {
		if err := l.TryEnterWrite(taken); err != nil {
			return err
		}
		if *taken {
			return nil
		}
		delay(&spins)
	}
}

// ExitWrite releases the exclusive lock.
//
// Calling ExitWrite when the lock is not held in exclusive mode returns
// ErrInvalidRelease and leaves the word untouched. The caller has
// already demonstrated it lost track of the lock's state; this
// primitive cannot repair that bookkeeping, only refuse to make it
// worse.
func (l *SpinlockReaderWriter) ExitWrite() error {
	if !l.state.CompareAndSwap(rwExclusive, 0) {
		return ErrInvalidRelease
	}
	return nil
}

// TryEnterRead makes a single, non-blocking attempt to acquire a shared
// lock, internally retrying CAS races against other readers until it
// either succeeds or observes the lock exclusively held.
//
// taken must point to a bool already initialized to false; it is set to
// true if and only if a read lock was actually acquired.
func (l *SpinlockReaderWriter) TryEnterRead(taken *bool) error {
	if *taken {
		return ErrLockAlreadyHeld
	}
	var spins int
	for {
		cur := l.state.Load()
		if uint32(cur) == rwExclusive {
			return nil
		}
		if cur&rwHighMask != 0 {
			// A writer is mid-claim, or another reader is mid-entry.
			// Refusing to proceed here is what makes the writer's
			// "high bits set, low bits zero" window actually exclude
			// readers, rather than merely discourage them.
			delay(&spins)
			continue
		}
		if l.state.CompareAndSwap(cur, cur+rwEntering) {
			// Commit: add our reader, drop our own entering marker.
			one := uint64(1)
			l.state.Add(one - rwEntering)
			*taken = true
			return nil
		}
		delay(&spins)
	}
}

// EnterRead acquires a shared lock, retrying with backoff while the
// lock is exclusively held.
func (l *SpinlockReaderWriter) EnterRead(taken *bool) error {
	if *taken {
		return ErrLockAlreadyHeld
	}
	var spins int
	for {
		if err := l.TryEnterRead(taken); err != nil {
			return err
		}
		if *taken {
			return nil
		}
		delay(&spins)
	}
}

// ExitRead releases a shared lock.
//
// If the reader count was already zero, the decrement aliases the
// exclusive sentinel (0xFFFFFFFF); ExitRead detects that, restores the
// word, and returns ErrInvalidRelease instead of corrupting the lock.
func (l *SpinlockReaderWriter) ExitRead() error {
	res := l.state.Add(^uint64(0))
	if uint32(res) == rwExclusive {
		l.state.Add(1)
		return ErrInvalidRelease
	}
	return nil
}

// IsReadable reports whether the lock is not currently held exclusively.
// It is a point-in-time snapshot, not a reservation.
func (l *SpinlockReaderWriter) IsReadable() bool {
	return uint32(l.state.Load()) != rwExclusive
}

// IsWritable reports whether the lock is completely free: no readers,
// no writer, no in-flight transition. It is a point-in-time snapshot,
// not a reservation.
func (l *SpinlockReaderWriter) IsWritable() bool {
	return l.state.Load() == 0
}
