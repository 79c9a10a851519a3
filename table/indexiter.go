package table

import (
	"bytes"
	"container/heap"
	"fmt"
	"strings"

	"github.com/erigontech/segstore/internal/refcount"
	"github.com/erigontech/segstore/segerr"
	"github.com/erigontech/segstore/segment"
	"github.com/erigontech/segstore/store"
)

// indexSource is the minimal per-segment cursor the heap-merge needs,
// satisfied by both store.IndexIterator (readonly segments) and an
// adapter over the writable segment's in-memory ordindex.Index.
type indexSource interface {
	Next() (key []byte, id store.SubID, ok bool)
	Close()
}

type wrIndexAdapter struct {
	inner interface {
		Next() ([]byte, int64, bool)
	}
}

func (a *wrIndexAdapter) Next() ([]byte, store.SubID, bool) {
	k, id, ok := a.inner.Next()
	return k, store.SubID(id), ok
}

func (a *wrIndexAdapter) Close() {}

type indexHeapItem struct {
	key    []byte
	id     store.SubID
	segIdx int
	src    indexSource
}

type indexHeap []indexHeapItem

func (h indexHeap) Len() int { return len(h) }
func (h indexHeap) Less(i, j int) bool {
	if c := bytes.Compare(h[i].key, h[j].key); c != 0 {
		return c < 0
	}
	if h[i].segIdx != h[j].segIdx {
		return h[i].segIdx < h[j].segIdx
	}
	return h[i].id < h[j].id
}
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(indexHeapItem)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// IndexRowIterator merges every segment's per-index cursor in ascending
// key order, breaking ties by (segment index, SubId) per spec §4.6.8.
type IndexRowIterator struct {
	t       *CompositeTable
	handles []refcount.Handle[*segmentEntry]
	entries []*segmentEntry
	h       indexHeap
	indexID int
	ctx     store.Context
}

// CreateIndexIterForward returns an ascending key-ordered iterator over
// every live row's projected key for indexID, merged across all segments.
func (t *CompositeTable) CreateIndexIterForward(indexID int, ctx store.Context) (*IndexRowIterator, error) {
	t.mu.RLock()
	handles := make([]refcount.Handle[*segmentEntry], len(t.segments))
	entries := make([]*segmentEntry, len(t.segments))
	for i, hh := range t.segments {
		handles[i] = hh.Retain()
		entries[i] = hh.Value()
	}
	t.mu.RUnlock()

	it := &IndexRowIterator{t: t, handles: handles, entries: entries, indexID: indexID, ctx: ctx}
	for i, e := range entries {
		src, err := indexSourceFor(e, indexID)
		if err != nil {
			it.Close()
			return nil, err
		}
		if src == nil {
			continue
		}
		if key, id, ok := src.Next(); ok {
			heap.Push(&it.h, indexHeapItem{key: key, id: id, segIdx: i, src: src})
		} else {
			src.Close()
		}
	}
	heap.Init(&it.h)
	return it, nil
}

// IndexIterForward resolves cols to a declared index by matching its full
// column-name set, then delegates to CreateIndexIterForward. It restores
// original_source/db_table.hpp's name-based createIndexIterForward overload
// alongside the id-based one above.
func (t *CompositeTable) IndexIterForward(ctx store.Context, cols ...string) (*IndexRowIterator, error) {
	id, ok := t.indexIDForNames(cols)
	if !ok {
		return nil, segerr.UnsupportedOperation(fmt.Sprintf("table: no index declared for columns %v", cols))
	}
	return t.CreateIndexIterForward(id, ctx)
}

func (t *CompositeTable) indexIDForNames(cols []string) (int, bool) {
	for _, def := range t.sch.Indices() {
		if def.Name == strings.Join(cols, ",") {
			return def.ID, true
		}
	}
	return 0, false
}

func indexSourceFor(e *segmentEntry, indexID int) (indexSource, error) {
	if e.kind == segment.KindWritable {
		ix, ok := e.wr.IndexFor(indexID)
		if !ok {
			return nil, segerr.UnsupportedOperation("table: no such index")
		}
		return &wrIndexAdapter{inner: ix.SeekLowerBound(nil)}, nil
	}
	ix, ok := e.ro.IndexFor(indexID)
	if !ok {
		return nil, segerr.UnsupportedOperation("table: no such index")
	}
	it, err := ix.SeekLowerBound(nil)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// Next returns the next (key, RowId) pair, skipping tombstoned rows.
func (it *IndexRowIterator) Next() (key []byte, id int64, ok bool) {
	for it.h.Len() > 0 {
		top := it.h[0]
		heap.Pop(&it.h)
		if next, nextID, hasNext := top.src.Next(); hasNext {
			heap.Push(&it.h, indexHeapItem{key: next, id: nextID, segIdx: top.segIdx, src: top.src})
		} else {
			top.src.Close()
		}

		e := it.entries[top.segIdx]
		if e.kind == segment.KindReadonly && e.ro.IsTombstoned(top.id) {
			continue
		}
		if e.kind == segment.KindWritable && e.wr.IsTombstoned(top.id) {
			continue
		}
		global := it.rowIDFor(top.segIdx, top.id)
		return top.key, global, true
	}
	return nil, 0, false
}

func (it *IndexRowIterator) rowIDFor(segIdx int, subID store.SubID) int64 {
	it.t.mu.RLock()
	defer it.t.mu.RUnlock()
	if segIdx < len(it.t.rowNumVec)-1 {
		return it.t.rowNumVec[segIdx] + int64(subID)
	}
	return int64(subID)
}

func (it *IndexRowIterator) Close() {
	for _, item := range it.h {
		item.src.Close()
	}
	it.h = nil
	for _, h := range it.handles {
		h.Release()
	}
}
