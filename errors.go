package corelock

import "errors"

// Sentinel errors returned by this package. They are never logged or
// recovered internally; callers decide how to react.
var (
	// ErrInvalidRelease is returned by SpinlockReaderWriter's Exit*
	// methods when they observe a state that does not match the mode
	// being released. For the spinlock this
	// is irrecoverable: the word may already be inconsistent, so the
	// caller must treat it as a programming bug rather than retry.
	ErrInvalidRelease = errors.New("corelock: lock released while not held in that mode")

	// ErrInvalidArgument is returned for malformed configuration: NewTtlCache
	// returns it for a negative minimum lifetime.
	ErrInvalidArgument = errors.New("corelock: invalid argument")

	// ErrLockAlreadyHeld is returned by TryEnter* variants that take an
	// already-true taken flag as input.
	ErrLockAlreadyHeld = errors.New("corelock: taken flag already set on entry")

	// ErrDisposed is returned to a pending AsyncLock waiter that is torn
	// down (e.g. by Close) before being granted or denied.
	ErrDisposed = errors.New("corelock: waiter disposed before completion")

	// ErrCanceled is returned to an AsyncLock waiter whose context was
	// canceled before a grant was observed.
	ErrCanceled = errors.New("corelock: request canceled before grant")
)

// BuildError wraps a cached build failure. TtlCache stores the build's
// own error on the entry, and every Get sharing the failed entry receives
// a BuildError whose Err is that same error value.
type BuildError struct {
	Key any
	Err error
}

func (e *BuildError) Error() string {
	return "corelock: build failed: " + e.Err.Error()
}

func (e *BuildError) Unwrap() error {
	return e.Err
}
