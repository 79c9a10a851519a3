package store

import (
	"fmt"
	"sort"

	"github.com/erigontech/segstore/segerr"
)

// MultiPartStore concatenates an ordered sequence of child stores into one
// logical row sequence without copying, per spec §4.4. It is built
// in-memory during compaction to present a single Store view over several
// source segments' value stores while the new segment is streamed out.
type MultiPartStore struct {
	children []Store
	rowNumVec []int64 // length len(children)+1, rowNumVec[0] == 0
}

// NewMultiPartStore builds the prefix-sum vector over children's row
// counts, matching the table's own rowNumVec construction (spec §3).
func NewMultiPartStore(children []Store) *MultiPartStore {
	rowNumVec := make([]int64, len(children)+1)
	for i, c := range children {
		rowNumVec[i+1] = rowNumVec[i] + c.NumDataRows()
	}
	return &MultiPartStore{children: append([]Store(nil), children...), rowNumVec: rowNumVec}
}

// resolve maps a global id to (partIdx, local SubID) via upper_bound.
func (m *MultiPartStore) resolve(id SubID) (int, SubID, bool) {
	n := int64(id)
	if n < 0 || n >= m.rowNumVec[len(m.rowNumVec)-1] {
		return 0, 0, false
	}
	// upper_bound(rowNumVec, n) - 1
	k := sort.Search(len(m.rowNumVec), func(i int) bool { return m.rowNumVec[i] > n }) - 1
	return k, SubID(n - m.rowNumVec[k]), true
}

func (m *MultiPartStore) NumDataRows() int64 { return m.rowNumVec[len(m.rowNumVec)-1] }

func (m *MultiPartStore) DataStorageSize() int64 {
	var total int64
	for _, c := range m.children {
		total += c.DataStorageSize()
	}
	return total
}

func (m *MultiPartStore) DataInflateSize() int64 {
	var total int64
	for _, c := range m.children {
		total += c.DataInflateSize()
	}
	return total
}

func (m *MultiPartStore) GetValueAppend(id SubID, out []byte, ctx Context) ([]byte, error) {
	k, local, ok := m.resolve(id)
	if !ok {
		return nil, segerr.OutOfRange(int64(id), m.NumDataRows())
	}
	return m.children[k].GetValueAppend(local, out, ctx)
}

func (m *MultiPartStore) CreateStoreIterForward(ctx Context) Iterator {
	return &multiPartIterator{m: m, ctx: ctx, partIdx: 0, local: -1, forward: true}
}

func (m *MultiPartStore) CreateStoreIterBackward(ctx Context) Iterator {
	it := &multiPartIterator{m: m, ctx: ctx, forward: false}
	it.partIdx = len(m.children) - 1
	if it.partIdx >= 0 {
		it.local = SubID(m.children[it.partIdx].NumDataRows())
	}
	return it
}

// Save serialises each child under base.<NNNN> with a 4-digit zero-padded
// ordinal, per spec §4.4.
func (m *MultiPartStore) Save(fs FS, base string) error {
	for i, c := range m.children {
		if err := c.Save(fs, fmt.Sprintf("%s.%04d", base, i)); err != nil {
			return err
		}
	}
	return nil
}

// Load is never called directly on a MultiPartStore: it is constructed
// in-memory during compaction, and its children are loaded individually
// through the registry (C1). The source aborts the process here; the spec
// promotes that to UnsupportedOperation.
func (m *MultiPartStore) Load(fs FS, path string) error {
	return segerr.UnsupportedOperation("MultiPartStore.Load")
}

func (m *MultiPartStore) AsWritable() (Writable, bool)           { return nil, false }
func (m *MultiPartStore) AsAppendable() (Appendable, bool)       { return nil, false }
func (m *MultiPartStore) AsUpdatable() (Updatable, bool)         { return nil, false }
func (m *MultiPartStore) AsReadableIndex() (ReadableIndex, bool) { return nil, false }

type multiPartIterator struct {
	m       *MultiPartStore
	ctx     Context
	partIdx int
	local   SubID
	forward bool
}

func (it *multiPartIterator) Next() (SubID, []byte, bool) {
	for {
		if it.partIdx < 0 || it.partIdx >= len(it.m.children) {
			return 0, nil, false
		}
		child := it.m.children[it.partIdx]
		n := child.NumDataRows()
		if it.forward {
			it.local++
			if int64(it.local) >= n {
				it.partIdx++
				it.local = -1
				continue
			}
		} else {
			it.local--
			if it.local < 0 {
				it.partIdx--
				if it.partIdx >= 0 {
					it.local = SubID(it.m.children[it.partIdx].NumDataRows())
				}
				continue
			}
		}
		row, err := child.GetValueAppend(it.local, nil, it.ctx)
		if err != nil {
			return 0, nil, false
		}
		global := it.m.rowNumVec[it.partIdx] + int64(it.local)
		return SubID(global), row, true
	}
}

func (it *multiPartIterator) SeekExact(id SubID) ([]byte, bool) {
	k, local, ok := it.m.resolve(id)
	if !ok {
		return nil, false
	}
	row, err := it.m.children[k].GetValueAppend(local, nil, it.ctx)
	if err != nil {
		return nil, false
	}
	it.partIdx, it.local = k, local
	return row, true
}

func (it *multiPartIterator) Close() {}
