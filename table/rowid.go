package table

import "sort"

// resolve maps a global RowId to (segment index, local SubId) via
// upper_bound(rowNumVec, id) - 1, per spec §3/§4.6.2. Callers must hold mu
// in read or write mode.
func (t *CompositeTable) resolve(id int64) (int, int64, bool) {
	last := t.rowNumVec[len(t.rowNumVec)-1]
	if id < 0 || id >= last {
		return 0, 0, false
	}
	k := sort.Search(len(t.rowNumVec), func(i int) bool { return t.rowNumVec[i] > id }) - 1
	return k, id - t.rowNumVec[k], true
}

// nextRowID is the id the next insert into the writable segment will
// receive (spec §4.6.2).
func (t *CompositeTable) nextRowID() int64 {
	return t.rowNumVec[len(t.rowNumVec)-1]
}
