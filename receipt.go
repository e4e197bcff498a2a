package corelock

import (
	"context"
	"sync/atomic"
)

type asyncState uint32

const (
	asyncPending asyncState = iota
	asyncGrantedTrue
	asyncGrantedFalse
	asyncCanceled
	asyncDisposed
)

// Receipt is the future handed back by AsyncLock.Enter*. It completes
// exactly once, with one of: granted (true), denied (false), or an
// error (Canceled, Disposed). A Receipt is also the token that Exit
// uses to identify the holder; its identity, not any thread id, is what
// "holding the lock" means.
type Receipt struct {
	state atomic.Uint32
	done  chan struct{}
	err   error
}

func newPendingReceipt() *Receipt {
	return &Receipt{done: make(chan struct{})}
}

func newSettledReceipt(state asyncState) *Receipt {
	r := &Receipt{done: make(chan struct{})}
	r.state.Store(uint32(state))
	close(r.done)
	return r
}

// transition performs the one-shot Pending -> target move. It reports
// whether this call was the one that settled the receipt.
func (r *Receipt) transition(target asyncState, err error) bool {
	if !r.state.CompareAndSwap(uint32(asyncPending), uint32(target)) {
		return false
	}
	r.err = err
	close(r.done)
	return true
}

// Done returns a channel that is closed once the receipt's outcome is
// decided.
func (r *Receipt) Done() <-chan struct{} {
	return r.done
}

// Pending reports whether the receipt has not yet settled.
func (r *Receipt) Pending() bool {
	return asyncState(r.state.Load()) == asyncPending
}

// Granted blocks until the receipt settles and reports whether the lock
// was granted. A non-nil error means the request was canceled or torn
// down before a grant or denial could be observed.
func (r *Receipt) Granted() (bool, error) {
	<-r.done
	switch asyncState(r.state.Load()) {
	case asyncGrantedTrue:
		return true, nil
	case asyncGrantedFalse:
		return false, nil
	case asyncCanceled:
		return false, ErrCanceled
	default:
		return false, ErrDisposed
	}
}

// Wait blocks until the receipt settles or ctx is done, whichever comes
// first. A context cancellation observed here does not itself settle
// the receipt; the receipt may still be granted later if the
// cancellation lost the race with AsyncLock.Exit (see AsyncLock.Exit).
func (r *Receipt) Wait(ctx context.Context) (bool, error) {
	select {
	case <-r.done:
		return r.Granted()
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
