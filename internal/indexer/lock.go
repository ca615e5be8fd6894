package indexer

import "sync/atomic"

// IndexLock is a non-blocking guard that keeps reindex runs from
// overlapping. A second caller gets ErrIndexInProgress instead of queueing.
type IndexLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock. Only the goroutine that acquired it may call it.
func (l *IndexLock) Release() {
	l.state.Store(0)
}
