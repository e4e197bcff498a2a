package corelock

import (
	"container/heap"
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kjhall-dev/corelock/internal/opt"
)

const (
	asyncMaxSpinners = 4
	asyncSpinCycles  = 200

	cacheLineSize = opt.CacheLineSize_
)

// asyncWaiter is a queued AsyncLock request. It lives simultaneously in
// three places while pending: the FIFO queue (elem), the receipt-keyed
// index (for O(1) cancel/exit lookup), and, if it carries a deadline,
// the deadline heap — all three removed together under the same lock so
// none can go stale relative to the others.
type asyncWaiter struct {
	receipt  *Receipt
	deadline time.Time // zero means no deadline
	elem     *list.Element
	heapIdx  int // -1 when not present in the deadline heap
}

// waiterHeap is a container/heap min-heap ordered by soonest deadline,
// so sweep always inspects the next waiter due to time out.
type waiterHeap []*asyncWaiter

func (h waiterHeap) Len() int { return len(h) }

func (h waiterHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }

func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *waiterHeap) Push(x any) {
	w := x.(*asyncWaiter)
	w.heapIdx = len(*h)
	*h = append(*h, w)
}

func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.heapIdx = -1
	*h = old[:n-1]
	return w
}

// AsyncLock is a strictly FIFO, suspension-based mutual-exclusion lock.
// Every request receives a [Receipt]: a future that completes with true
// (granted), false (denied by timeout), or an error (canceled or torn
// down while still queued). No caller ever blocks an OS thread on
// contention; a queued request suspends until Exit or a timer grants or
// denies it.
//
// The zero value is not usable; construct with [NewAsyncLock].
type AsyncLock struct {
	_ noCopy

	holder atomic.Pointer[Receipt]
	// pad separates holder, the field every fast-path CAS touches, from
	// queueCount/spinners below so the two hot cache lines don't bounce
	// between cores under mixed Enter/Exit contention.
	_          [cacheLineSize]byte
	queueCount atomic.Int32 // -1 while a fast exit is in flight
	spinners   atomic.Int32

	mu            sync.Mutex
	queue         list.List
	receiptIndex  map[*Receipt]*asyncWaiter
	deadlineHeap  waiterHeap
	timer         *time.Timer
	timerDeadline time.Time

	reuseReceipts bool
	trueReceipt   *Receipt
	falseReceipt  *Receipt

	clock Clock
}

// NewAsyncLock constructs an unheld AsyncLock. When reuseReceipts is
// true, synchronous grants and denials return one of two singleton,
// already-completed receipts instead of allocating a fresh one;
// receipts returned while still pending are always fresh regardless of
// this setting.
func NewAsyncLock(reuseReceipts bool) *AsyncLock {
	l := &AsyncLock{
		reuseReceipts: reuseReceipts,
		receiptIndex:  make(map[*Receipt]*asyncWaiter),
		clock:         realClock{},
	}
	l.queue.Init()
	if reuseReceipts {
		l.trueReceipt = newSettledReceipt(asyncGrantedTrue)
		l.falseReceipt = newSettledReceipt(asyncGrantedFalse)
	}
	return l
}

func (l *AsyncLock) fastGrant() *Receipt {
	if l.reuseReceipts {
		return l.trueReceipt
	}
	return newSettledReceipt(asyncGrantedTrue)
}

func (l *AsyncLock) fastDeny() *Receipt {
	if l.reuseReceipts {
		return l.falseReceipt
	}
	return newSettledReceipt(asyncGrantedFalse)
}

// TryEnterAsync makes a single, non-blocking attempt to acquire the
// lock. It never queues: on contention it returns an already-denied
// receipt rather than waiting.
func (l *AsyncLock) TryEnterAsync() (*Receipt, error) {
	if cand := l.fastGrant(); l.holder.CompareAndSwap(nil, cand) {
		return cand, nil
	}
	return l.fastDeny(), nil
}

// EnterAsync acquires the lock, queuing if necessary. The returned
// receipt completes with true once granted. ctx, if non-nil, may cancel
// a still-queued (not yet granted) request; a cancellation that loses
// the race with a grant is itself overruled — the receipt still
// completes with true.
func (l *AsyncLock) EnterAsync(ctx context.Context) (*Receipt, error) {
	return l.enter(ctx, time.Time{})
}

// enter implements the shared fast/spin/queued protocol behind both
// EnterAsync (deadline is the zero Time, meaning never) and internal
// deadline-bound entry used by tests to exercise sweep/timeout.
func (l *AsyncLock) enter(ctx context.Context, deadline time.Time) (*Receipt, error) {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return newSettledReceipt(asyncCanceled), ctx.Err()
		default:
		}
	}

	if cand := l.fastGrant(); l.holder.CompareAndSwap(nil, cand) {
		return cand, nil
	}

	if l.queueCount.Load() <= 0 {
		if l.spinners.Add(1) <= asyncMaxSpinners {
			for i := 0; i < asyncSpinCycles; i++ {
				if cand := l.fastGrant(); l.holder.CompareAndSwap(nil, cand) {
					l.spinners.Add(-1)
					return cand, nil
				}
				runtime_doSpin()
			}
		}
		l.spinners.Add(-1)
	}

	l.mu.Lock()
	if l.queue.Len() == 0 {
		if cand := l.fastGrant(); l.holder.CompareAndSwap(nil, cand) {
			l.mu.Unlock()
			return cand, nil
		}
	}

	w := &asyncWaiter{receipt: newPendingReceipt(), deadline: deadline, heapIdx: -1}
	w.elem = l.queue.PushBack(w)
	l.receiptIndex[w.receipt] = w
	l.queueCount.Add(1)
	if !deadline.IsZero() {
		heap.Push(&l.deadlineHeap, w)
		l.rescheduleTimerLocked()
	}
	l.mu.Unlock()

	if ctx != nil {
		go l.watchCancel(ctx, w)
	}

	return w.receipt, nil
}

func (l *AsyncLock) watchCancel(ctx context.Context, w *asyncWaiter) {
	select {
	case <-ctx.Done():
		l.cancelWaiter(w)
	case <-w.receipt.Done():
	}
}

func (l *AsyncLock) cancelWaiter(w *asyncWaiter) {
	if !w.receipt.transition(asyncCanceled, nil) {
		// Already settled (granted, denied, or disposed) — the
		// cancellation lost the race and must not override it.
		return
	}
	l.mu.Lock()
	l.removeWaiterLocked(w)
	l.mu.Unlock()
}

// removeWaiterLocked unlinks w from the queue, receipt index, and
// deadline heap. Safe to call more than once for the same waiter: after
// the first call w.elem is nil and every later call is a no-op.
func (l *AsyncLock) removeWaiterLocked(w *asyncWaiter) {
	if w.elem == nil {
		return
	}
	l.queue.Remove(w.elem)
	w.elem = nil
	delete(l.receiptIndex, w.receipt)
	if w.heapIdx >= 0 {
		heap.Remove(&l.deadlineHeap, w.heapIdx)
	}
	l.queueCount.Add(-1)
}

func (l *AsyncLock) rescheduleTimerLocked() {
	if l.deadlineHeap.Len() == 0 {
		return
	}
	next := l.deadlineHeap[0].deadline
	if l.timer == nil {
		l.timer = time.AfterFunc(time.Until(next), l.sweep)
		l.timerDeadline = next
		return
	}
	if l.timerDeadline.IsZero() || next.Before(l.timerDeadline) {
		l.timer.Reset(time.Until(next))
		l.timerDeadline = next
	}
}

// sweep removes and denies every waiter whose deadline has passed, then
// reschedules itself for the next-soonest deadline still outstanding.
func (l *AsyncLock) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	for l.deadlineHeap.Len() > 0 {
		w := l.deadlineHeap[0]
		if w.deadline.After(now) {
			l.timer.Reset(w.deadline.Sub(now))
			l.timerDeadline = w.deadline
			return
		}
		l.removeWaiterLocked(w)
		w.receipt.transition(asyncGrantedFalse, nil)
	}
	// The timer has fired and is not re-armed; the next deadline-bound
	// enter must reschedule it.
	l.timerDeadline = time.Time{}
}

// Exit releases the lock if receipt currently holds it, granting the
// next queued waiter (if any). It reports true iff receipt was in fact
// the holder. Calling Exit with a still-pending (never granted) receipt
// withdraws that request instead, settling it with ErrDisposed.
func (l *AsyncLock) Exit(receipt *Receipt) bool {
	if l.queueCount.CompareAndSwap(0, -1) {
		if l.holder.CompareAndSwap(receipt, nil) {
			l.queueCount.CompareAndSwap(-1, 0)
			return true
		}
		l.queueCount.CompareAndSwap(-1, 0)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.holder.Load() != receipt {
		if w, ok := l.receiptIndex[receipt]; ok {
			l.removeWaiterLocked(w)
			w.receipt.transition(asyncDisposed, nil)
		}
		return false
	}

	for {
		front := l.queue.Front()
		if front == nil {
			l.holder.Store(nil)
			return true
		}
		w := front.Value.(*asyncWaiter)
		l.removeWaiterLocked(w)
		if w.receipt.transition(asyncGrantedTrue, nil) {
			l.holder.Store(w.receipt)
			return true
		}
		// w was already canceled or timed out; its receipt already
		// carries that outcome, so there is nothing further to settle.
	}
}

// Close tears down every waiter still queued, settling each with
// ErrDisposed, and prevents any further grant to a currently queued
// request. A holder already granted the lock is unaffected; its
// eventual Exit still runs (and will simply find nothing left to grant).
func (l *AsyncLock) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for {
		front := l.queue.Front()
		if front == nil {
			return
		}
		w := front.Value.(*asyncWaiter)
		l.removeWaiterLocked(w)
		w.receipt.transition(asyncDisposed, nil)
	}
}

// IsHeld reports whether the lock is currently granted to anyone.
func (l *AsyncLock) IsHeld() bool {
	return l.holder.Load() != nil
}

// IsHeldBy reports whether receipt is the current holder.
func (l *AsyncLock) IsHeldBy(receipt *Receipt) bool {
	return l.holder.Load() == receipt
}

// ReusesReceipts reports the reuseReceipts setting this lock was
// constructed with.
func (l *AsyncLock) ReusesReceipts() bool {
	return l.reuseReceipts
}
