// Package refcount implements the shared-ownership handle spec §9 asks for
// in place of the source's intrusive boost::intrusive_ptr refcounting:
// handles are carried by value, counters are plain atomics, and nothing
// holds a raw back-pointer into a segment or store that could outlive it.
package refcount

import "sync/atomic"

// Handle is a value-type shared-ownership wrapper around a resource of
// type T. Copying a Handle does not retain it - call Retain explicitly to
// obtain an owning copy, and Release exactly once per retain (including the
// one returned by New).
type Handle[T any] struct {
	value   T
	count   *int64
	closeFn func(T)
}

// New wraps v in a Handle with an initial reference count of 1. closeFn, if
// non-nil, runs once when the last reference is released.
func New[T any](v T, closeFn func(T)) Handle[T] {
	n := int64(1)
	return Handle[T]{value: v, count: &n, closeFn: closeFn}
}

// Value returns the wrapped resource.
func (h Handle[T]) Value() T { return h.value }

// Retain increments the reference count and returns a handle the caller
// must Release independently of h.
func (h Handle[T]) Retain() Handle[T] {
	atomic.AddInt64(h.count, 1)
	return h
}

// Release decrements the reference count, running closeFn when it reaches
// zero. Calling Release more times than the handle was retained is a bug.
func (h Handle[T]) Release() {
	if atomic.AddInt64(h.count, -1) == 0 && h.closeFn != nil {
		h.closeFn(h.value)
	}
}

// Count reports the current reference count, for tests and diagnostics.
func (h Handle[T]) Count() int64 { return atomic.LoadInt64(h.count) }
