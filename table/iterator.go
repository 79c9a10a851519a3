package table

import (
	"sync/atomic"

	"github.com/erigontech/segstore/internal/refcount"
	"github.com/erigontech/segstore/segment"
	"github.com/erigontech/segstore/store"
)

func entryGetValue(e *segmentEntry, subID store.SubID, ctx store.Context) ([]byte, error) {
	if e.kind == segment.KindWritable {
		return e.wr.GetValue(subID, ctx)
	}
	return e.ro.GetValue(subID, ctx)
}

// RowIterator walks the full table in ascending or descending RowId order
// over a snapshot of the segment set taken at creation (spec §4.6.8): it
// never observes inserts made after it was created, and the writable
// segment's row count is frozen to what it was at that moment.
type RowIterator struct {
	t       *CompositeTable
	handles []refcount.Handle[*segmentEntry]
	entries []*segmentEntry
	base    []int64
	limit   []int64
	ctx     store.Context
	forward bool

	segIdx int
	subID  int64
	closed bool
}

// CreateIterForward snapshots the current segment set under a read lock
// and returns a forward iterator.
func (t *CompositeTable) CreateIterForward(ctx store.Context) *RowIterator {
	return t.createIter(ctx, true)
}

// CreateIterBackward is the descending counterpart.
func (t *CompositeTable) CreateIterBackward(ctx store.Context) *RowIterator {
	return t.createIter(ctx, false)
}

func (t *CompositeTable) createIter(ctx store.Context, forward bool) *RowIterator {
	t.mu.RLock()
	handles := make([]refcount.Handle[*segmentEntry], len(t.segments))
	entries := make([]*segmentEntry, len(t.segments))
	base := make([]int64, len(t.segments))
	limit := make([]int64, len(t.segments))
	for i, h := range t.segments {
		handles[i] = h.Retain()
		entries[i] = h.Value()
		base[i] = t.rowNumVec[i]
		limit[i] = entries[i].numDataRows()
	}
	atomic.AddInt64(&t.tableScanningRefCount, 1)
	t.mu.RUnlock()

	it := &RowIterator{t: t, handles: handles, entries: entries, base: base, limit: limit, ctx: ctx, forward: forward}
	if forward {
		it.segIdx, it.subID = 0, -1
	} else {
		it.segIdx = len(entries) - 1
		if it.segIdx >= 0 {
			it.subID = limit[it.segIdx]
		}
	}
	return it
}

// Next returns the next live row in the snapshot, or ok=false when
// exhausted.
func (it *RowIterator) Next() (id int64, row []byte, ok bool) {
	for {
		if it.segIdx < 0 || it.segIdx >= len(it.entries) {
			return 0, nil, false
		}
		if it.forward {
			it.subID++
			if it.subID >= it.limit[it.segIdx] {
				it.segIdx++
				it.subID = -1
				continue
			}
		} else {
			it.subID--
			if it.subID < 0 {
				it.segIdx--
				if it.segIdx >= 0 {
					it.subID = it.limit[it.segIdx]
				}
				continue
			}
		}
		e := it.entries[it.segIdx]
		if e.kind == segment.KindReadonly && e.ro.IsTombstoned(store.SubID(it.subID)) {
			continue
		}
		body, err := entryGetValue(e, store.SubID(it.subID), it.ctx)
		if err != nil {
			continue // writable-segment tombstone
		}
		return it.base[it.segIdx] + it.subID, body, true
	}
}

// Close releases the iterator's hold on every segment and decrements the
// table's scanning refcount. The last iterator closed on a dropped table
// removes the table directory.
func (it *RowIterator) Close() {
	if it.closed {
		return
	}
	it.closed = true
	for _, h := range it.handles {
		h.Release()
	}
	if atomic.AddInt64(&it.t.tableScanningRefCount, -1) == 0 && atomic.LoadInt32(&it.t.tobeDrop) == 1 {
		_ = it.t.fs.RemoveAll(it.t.dir)
	}
}
