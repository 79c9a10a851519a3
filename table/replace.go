package table

import (
	"go.uber.org/zap"

	"github.com/erigontech/segstore/schema"
	"github.com/erigontech/segstore/segerr"
	"github.com/erigontech/segstore/segment"
	"github.com/erigontech/segstore/store"
)

// ReplaceRow replaces id's body with newRow. When the new unique keys
// collide with nothing but id's own current row, and id lives in the live
// (not yet frozen) writable segment, the row is updated in place and keeps
// its id. Otherwise the old row is tombstoned and the new row is inserted
// as a fresh row in the writable segment (spec §4.6.4).
func (t *CompositeTable) ReplaceRow(id int64, newRow []byte, ctx store.Context) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k, subID, ok := t.resolve(id)
	if !ok {
		return 0, segerr.OutOfRange(id, t.rowNumVec[len(t.rowNumVec)-1])
	}

	for _, def := range t.sch.Indices() {
		if def.Kind != schema.Unique {
			continue
		}
		newKey, err := t.sch.ProjectIndex(newRow, def.ID)
		if err != nil {
			return 0, err
		}
		conflict, err := t.insertCheckSegDupExcluding(def.ID, newKey, k, subID)
		if err != nil {
			return 0, err
		}
		if conflict {
			t.logger.Debug("replace rejected: duplicate key", zap.Int("index", def.ID))
			return 0, segerr.DuplicateKey(def.ID, newKey)
		}
	}

	e := t.segments[k].Value()
	if e.kind == segment.KindWritable && !e.wr.Frozen() {
		if err := e.wr.Replace(store.SubID(subID), newRow, ctx); err != nil {
			return 0, err
		}
		return id, nil
	}

	// A readonly segment, or a writable one already frozen for compaction,
	// cannot be updated in place: tombstone the old row and insert the new
	// one as a fresh row in the live writable segment (spec §4.6.4).
	if e.kind == segment.KindWritable {
		e.wr.Tombstone(store.SubID(subID))
	} else {
		e.ro.Tombstone(store.SubID(subID))
	}
	if err := t.maybeCreateNewSegmentLocked(); err != nil {
		return 0, err
	}
	wrIdx := len(t.segments) - 1
	wr := t.segments[wrIdx].Value().wr
	newSubID, err := wr.Insert(newRow, ctx)
	if err != nil {
		return 0, err
	}
	newID := t.rowNumVec[wrIdx] + int64(newSubID)
	if err := t.advanceRowCountLocked(); err != nil {
		return 0, err
	}
	return newID, nil
}

// insertCheckSegDupExcluding is insertCheckSegDup that treats a hit on
// (skipSeg, skipSubID) as not a conflict - the row being replaced is
// allowed to keep its own key.
func (t *CompositeTable) insertCheckSegDupExcluding(indexID int, key []byte, skipSeg int, skipSubID int64) (bool, error) {
	for i := range t.segments {
		e := t.segments[i].Value()
		var found bool
		var hitID store.SubID
		var err error
		if e.kind == segment.KindWritable {
			hitID, found, err = e.wr.SeekExact(indexID, key)
		} else {
			hitID, found, err = e.ro.SeekExact(indexID, key)
		}
		if err != nil {
			if segerr.IsUnsupportedOperation(err) {
				t.logger.Debug("segment lacks index capability, skipping dup check", zap.Int("segment", i), zap.Int("index", indexID))
				continue
			}
			return false, err
		}
		if found {
			if i == skipSeg && int64(hitID) == skipSubID {
				continue
			}
			return true, nil
		}
	}
	return false, nil
}
