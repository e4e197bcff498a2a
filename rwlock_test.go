package corelock

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func TestSpinlockReaderWriter_Basic(t *testing.T) {
	var a int
	var rw SpinlockReaderWriter

	var taken bool
	if err := rw.EnterWrite(&taken); err != nil || !taken {
		t.Fatalf("EnterWrite: taken=%v err=%v", taken, err)
	}
	a = 1
	if err := rw.ExitWrite(); err != nil {
		t.Fatalf("ExitWrite: %v", err)
	}

	taken = false
	if err := rw.EnterRead(&taken); err != nil || !taken {
		t.Fatalf("EnterRead: taken=%v err=%v", taken, err)
	}
	_ = a
	if err := rw.ExitRead(); err != nil {
		t.Fatalf("ExitRead: %v", err)
	}
}

// TestSpinlockReaderWriter_ConcurrentReaders exercises the literal
// scenario: two readers acquire concurrently, IsWritable is false while
// either holds the lock, both release, and afterward both IsReadable and
// IsWritable report true.
func TestSpinlockReaderWriter_ConcurrentReaders(t *testing.T) {
	var rw SpinlockReaderWriter

	var t1, t2 bool
	if err := rw.EnterRead(&t1); err != nil || !t1 {
		t.Fatalf("first EnterRead: taken=%v err=%v", t1, err)
	}
	if err := rw.EnterRead(&t2); err != nil || !t2 {
		t.Fatalf("second EnterRead: taken=%v err=%v", t2, err)
	}

	if rw.IsWritable() {
		t.Fatalf("IsWritable true while two readers hold the lock")
	}
	if !rw.IsReadable() {
		t.Fatalf("IsReadable false while only readers hold the lock")
	}

	if err := rw.ExitRead(); err != nil {
		t.Fatalf("first ExitRead: %v", err)
	}
	if err := rw.ExitRead(); err != nil {
		t.Fatalf("second ExitRead: %v", err)
	}

	if !rw.IsReadable() || !rw.IsWritable() {
		t.Fatalf("lock not free after both readers exited")
	}
}

func TestSpinlockReaderWriter_TryEnterWriteBlockedByReader(t *testing.T) {
	var rw SpinlockReaderWriter

	var rtaken bool
	if err := rw.EnterRead(&rtaken); err != nil || !rtaken {
		t.Fatalf("EnterRead: taken=%v err=%v", rtaken, err)
	}

	var wtaken bool
	if err := rw.TryEnterWrite(&wtaken); err != nil {
		t.Fatalf("TryEnterWrite: %v", err)
	}
	if wtaken {
		t.Fatalf("TryEnterWrite succeeded while a reader held the lock")
	}

	if err := rw.ExitRead(); err != nil {
		t.Fatalf("ExitRead: %v", err)
	}
	if err := rw.TryEnterWrite(&wtaken); err != nil || !wtaken {
		t.Fatalf("TryEnterWrite after reader exit: taken=%v err=%v", wtaken, err)
	}
	if err := rw.ExitWrite(); err != nil {
		t.Fatalf("ExitWrite: %v", err)
	}
}

func TestSpinlockReaderWriter_ExitWriteWithoutHolding(t *testing.T) {
	var rw SpinlockReaderWriter
	if err := rw.ExitWrite(); err != ErrInvalidRelease {
		t.Fatalf("ExitWrite on unheld lock: got %v, want ErrInvalidRelease", err)
	}
}

func TestSpinlockReaderWriter_ExitReadWithoutHolding(t *testing.T) {
	var rw SpinlockReaderWriter
	if err := rw.ExitRead(); err != ErrInvalidRelease {
		t.Fatalf("ExitRead on unheld lock: got %v, want ErrInvalidRelease", err)
	}
	if !rw.IsWritable() {
		t.Fatalf("lock state corrupted by invalid ExitRead")
	}
}

func TestSpinlockReaderWriter_EnterWriteTwiceWithSameFlag(t *testing.T) {
	var rw SpinlockReaderWriter
	var taken bool
	if err := rw.EnterWrite(&taken); err != nil || !taken {
		t.Fatalf("EnterWrite: taken=%v err=%v", taken, err)
	}
	if err := rw.EnterWrite(&taken); err != ErrLockAlreadyHeld {
		t.Fatalf("re-entering with taken=true: got %v, want ErrLockAlreadyHeld", err)
	}
}

func TestSpinlockReaderWriter_ReadersAndWriters(t *testing.T) {
	var rw SpinlockReaderWriter
	var readers int32
	var writers int32

	const loops = 1000
	readerN := runtime.GOMAXPROCS(0)
	writerN := 2

	var wg sync.WaitGroup
	wg.Add(readerN + writerN)

	for range readerN {
		go func() {
			defer wg.Done()
			for range loops {
				var taken bool
				if err := rw.EnterRead(&taken); err != nil {
					t.Errorf("EnterRead: %v", err)
					return
				}
				n := atomic.AddInt32(&readers, 1)
				if atomic.LoadInt32(&writers) != 0 {
					t.Errorf("reader observed active writer")
				}
				if n <= 0 {
					t.Errorf("invalid reader count")
				}
				atomic.AddInt32(&readers, -1)
				if err := rw.ExitRead(); err != nil {
					t.Errorf("ExitRead: %v", err)
					return
				}
			}
		}()
	}

	for range writerN {
		go func() {
			defer wg.Done()
			for range loops {
				var taken bool
				if err := rw.EnterWrite(&taken); err != nil {
					t.Errorf("EnterWrite: %v", err)
					return
				}
				if atomic.AddInt32(&writers, 1) != 1 {
					t.Errorf("multiple writers active")
				}
				if atomic.LoadInt32(&readers) != 0 {
					t.Errorf("writer observed active readers")
				}
				atomic.AddInt32(&writers, -1)
				if err := rw.ExitWrite(); err != nil {
					t.Errorf("ExitWrite: %v", err)
					return
				}
			}
		}()
	}

	wg.Wait()
}
