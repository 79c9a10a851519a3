package table

import (
	"github.com/erigontech/segstore/segerr"
	"github.com/erigontech/segstore/segment"
	"github.com/erigontech/segstore/store"
)

// RemoveRow resolves id to its owning segment and deletes it there: an
// in-place removal in the live writable segment, or a delete-bitmap
// tombstone in a readonly segment or a writable one already frozen for
// compaction (spec §4.6.5).
func (t *CompositeTable) RemoveRow(id int64, ctx store.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	k, subID, ok := t.resolve(id)
	if !ok {
		return segerr.OutOfRange(id, t.rowNumVec[len(t.rowNumVec)-1])
	}
	e := t.segments[k].Value()
	if e.kind == segment.KindWritable && !e.wr.Frozen() {
		return e.wr.Remove(store.SubID(subID), ctx)
	}
	if e.kind == segment.KindWritable {
		e.wr.Tombstone(store.SubID(subID))
		return nil
	}
	e.ro.Tombstone(store.SubID(subID))
	return nil
}
