package corelock

import (
	"time"
	_ "unsafe" // for go:linkname
)

// noCopy may be embedded in structs that must not be copied after first
// use. go vet's -copylocks check flags accidental copies.
//
// See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// delay backs off a spinning caller: a few rounds of the runtime's own
// adaptive spin, then a short sleep once spinning stops paying off.
//
//go:nosplit
func delay(spins *int) {
	if runtime_canSpin(*spins) {
		*spins++
		runtime_doSpin()
		return
	}
	*spins = 0
	// ~500us sleeps behave as backoff under real contention without
	// burning a core the way a pure spin loop would.
	time.Sleep(500 * time.Microsecond)
}

//go:linkname runtime_canSpin sync.runtime_canSpin
func runtime_canSpin(i int) bool

//go:linkname runtime_doSpin sync.runtime_doSpin
func runtime_doSpin()
