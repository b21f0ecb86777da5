package indexer

import "sync/atomic"

// IndexLock guards a dataset rescan without blocking the caller.
// A second rescan requested while one is running is rejected, not queued.
type IndexLock struct {
	state atomic.Int32 // 0 = idle, 1 = scanning
}

// TryAcquire attempts to take the lock and reports whether it succeeded
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// Held reports whether a rescan is currently running
func (l *IndexLock) Held() bool {
	return l.state.Load() == 1
}
