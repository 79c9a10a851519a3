// Package frwmutex implements a FIFO-fair reader/writer lock.
//
// spec §5/§9 call for "a fair RW primitive" because compaction (a writer)
// must eventually make progress under sustained read load, and compares the
// requirement directly to tbb::queuing_rw_mutex. Go's sync.RWMutex does not
// document FIFO ordering between queued readers and writers, so this
// package builds the lock on top of golang.org/x/sync/semaphore.Weighted
// instead, whose Acquire is documented to service waiters in FIFO order and
// to block newer, smaller requests behind an older, larger one that cannot
// yet be satisfied - exactly the anti-starvation property spec §9 asks for.
package frwmutex

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// defaultCapacity bounds the number of concurrent readers. It only needs to
// exceed any realistic number of simultaneous callers; a writer always
// acquires the full capacity, so readers above this number simply queue.
const defaultCapacity = 1 << 30

// RWMutex is a FIFO-fair reader/writer lock.
type RWMutex struct {
	sem      *semaphore.Weighted
	capacity int64
}

// New returns a fair RWMutex with a generous default reader capacity.
func New() *RWMutex { return NewWithCapacity(defaultCapacity) }

// NewWithCapacity returns a fair RWMutex that admits at most capacity
// concurrent readers (a writer always excludes all of them).
func NewWithCapacity(capacity int64) *RWMutex {
	return &RWMutex{sem: semaphore.NewWeighted(capacity), capacity: capacity}
}

// RLock acquires the lock for reading. It never returns until acquired;
// background.Context is used because this lock has no cancellation points
// (spec §5: "no in-flight request cancellation").
func (m *RWMutex) RLock() { _ = m.sem.Acquire(context.Background(), 1) }

// RUnlock releases a read lock.
func (m *RWMutex) RUnlock() { m.sem.Release(1) }

// Lock acquires the lock for writing, excluding all readers and other
// writers.
func (m *RWMutex) Lock() { _ = m.sem.Acquire(context.Background(), m.capacity) }

// Unlock releases a write lock.
func (m *RWMutex) Unlock() { m.sem.Release(m.capacity) }

// TryLock attempts to acquire the write lock without blocking.
func (m *RWMutex) TryLock() bool { return m.sem.TryAcquire(m.capacity) }
