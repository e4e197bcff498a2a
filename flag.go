package corelock

import (
	"sync/atomic"

	"github.com/kjhall-dev/corelock/internal/opt"
)

const flagSetBit = uint64(1) << 63

// BooleanFlagNoReset is a one-shot latch: it starts unset, transitions to
// set exactly once, and never transitions back. Set is idempotent; Wait
// blocks until the flag is set, or returns immediately if it already is.
//
// Unlike a sync.WaitGroup or a channel close, the blocking primitive is
// only touched once a goroutine actually calls Wait while the flag is
// still unset: a pure Set/IsSet usage never acquires or releases a
// semaphore. Because the flag never resets, there is no generation
// counter and no risk of a waiter from one "cycle" being woken by a
// release that belongs to another.
//
// The zero value is an unset flag, ready to use.
type BooleanFlagNoReset struct {
	_ noCopy
	// state packs:
	//   bit 63:    set (1 = Set has been called)
	//   bits 0-62: number of goroutines currently parked in Wait
	state atomic.Uint64
	sema  opt.Sema
}

// IsSet reports whether the flag has been set.
func (f *BooleanFlagNoReset) IsSet() bool {
	return f.state.Load()&flagSetBit != 0
}

// Set marks the flag as set and wakes every goroutine currently blocked
// in Wait. Calling Set more than once is a no-op after the first call.
func (f *BooleanFlagNoReset) Set() {
	for {
		s := f.state.Load()
		if s&flagSetBit != 0 {
			return
		}
		cnt := s &^ flagSetBit
		if f.state.CompareAndSwap(s, flagSetBit) {
			for i := uint64(0); i < cnt; i++ {
				f.sema.Release()
			}
			return
		}
	}
}

// Wait blocks until the flag is set. It returns immediately if the flag
// is already set.
func (f *BooleanFlagNoReset) Wait() {
	for {
		s := f.state.Load()
		if s&flagSetBit != 0 {
			return
		}
		if f.state.CompareAndSwap(s, s+1) {
			f.sema.Acquire()
			return
		}
	}
}
