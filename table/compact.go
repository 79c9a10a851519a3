package table

import (
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	internalordindex "github.com/erigontech/segstore/internal/ordindex"
	"github.com/erigontech/segstore/internal/refcount"
	"github.com/erigontech/segstore/schema"
	"github.com/erigontech/segstore/segment"
	"github.com/erigontech/segstore/store"
	storeordindex "github.com/erigontech/segstore/store/ordindex"
	"github.com/erigontech/segstore/store/zipped"
)

// Compact finds the oldest frozen writable segment and converts it into a
// readonly one, skipping tombstones and re-encoding every declared index
// from scratch (spec §4.6.7). It returns nil without doing anything if no
// candidate is frozen. Compaction work after the initial snapshot happens
// without holding the table lock; the catalogue swap re-validates that the
// candidate is still in place before committing.
func (t *CompositeTable) Compact(ctx store.Context) error {
	t.mu.RLock()
	candIdx := -1
	for i, h := range t.segments {
		e := h.Value()
		if e.kind == segment.KindWritable && e.wr.Frozen() {
			candIdx = i
			break
		}
	}
	if candIdx == -1 {
		t.mu.RUnlock()
		return nil
	}
	handle := t.segments[candIdx].Retain()
	entry := handle.Value()
	t.mu.RUnlock()
	defer handle.Release()

	t.logger.Info("compaction starting", zap.Int("segment", entry.index))

	rows, err := drainLiveRows(entry.wr, ctx)
	if err != nil {
		return err
	}

	valueStore, err := zipped.BuildFromIterator(&sliceIterator{rows: rows})
	if err != nil {
		return err
	}
	indices := map[int]store.ReadableIndex{}
	for _, def := range t.sch.Indices() {
		ix := internalordindex.New(def.Kind == schema.Unique)
		for newSubID, row := range rows {
			key, err := t.sch.ProjectIndex(row, def.ID)
			if err != nil {
				return err
			}
			if err := ix.Insert(key, int64(newSubID)); err != nil {
				return err
			}
		}
		indices[def.ID] = storeordindex.FromIndex(def.ID, ix)
	}
	newSeg := segment.NewReadonly(valueStore, indices)

	// Stage the new segment's files under a uniquely-named temp directory
	// before taking the write lock: Save does real disk I/O, which must
	// not happen while readers and the writer-path are blocked.
	stageDir := t.dir + "/tmp-" + uuid.NewString()
	if err := newSeg.Save(t.fs, stageDir, t.sch); err != nil {
		_ = t.fs.RemoveAll(stageDir)
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if candIdx >= len(t.segments) || t.segments[candIdx].Value() != entry {
		// A rollover or another compaction moved the candidate since the
		// snapshot; skip this round, it remains compactable later.
		_ = t.fs.RemoveAll(stageDir)
		return nil
	}

	newIdx := t.nextIndex
	t.nextIndex++
	newDir := segDir(t.dir, segment.KindReadonly, newIdx)
	if err := t.fs.Rename(stageDir, newDir); err != nil {
		_ = t.fs.RemoveAll(stageDir)
		return err
	}

	oldCount := entry.numDataRows()
	newCount := newSeg.NumDataRows()
	delta := newCount - oldCount
	for i := candIdx + 1; i < len(t.rowNumVec); i++ {
		t.rowNumVec[i] += delta
	}

	newEntry := &segmentEntry{kind: segment.KindReadonly, index: newIdx, dir: newDir, ro: newSeg}
	oldHandle := t.segments[candIdx]
	t.segments[candIdx] = refcount.New(newEntry, closeSegmentEntry(t.fs, t.logger))
	// The table gives up its own reference to the old segment; its
	// directory is removed once every iterator retained before the swap
	// has also released it (spec §5: "shared resources").
	oldHandle.Release()

	if err := t.saveCatalogueLocked(); err != nil {
		return err
	}
	atomic.AddInt64(&t.readonlyDataMemSize, newSeg.DataStorageSize())
	t.logger.Info("compaction finished",
		zap.Int("oldSegment", entry.index), zap.Int("newSegment", newIdx),
		zap.Int64("rowsBefore", oldCount), zap.Int64("rowsAfter", newCount))
	return nil
}

func drainLiveRows(wr *segment.Writable, ctx store.Context) ([][]byte, error) {
	it := wr.CreateIterForward(ctx)
	defer it.Close()
	var rows [][]byte
	for {
		_, row, ok := it.Next()
		if !ok {
			break
		}
		rows = append(rows, append([]byte(nil), row...))
	}
	return rows, nil
}

type sliceIterator struct {
	rows [][]byte
	pos  int
}

func (it *sliceIterator) Next() (store.SubID, []byte, bool) {
	if it.pos >= len(it.rows) {
		return 0, nil, false
	}
	row := it.rows[it.pos]
	id := store.SubID(it.pos)
	it.pos++
	return id, row, true
}

func (it *sliceIterator) SeekExact(id store.SubID) ([]byte, bool) {
	if id < 0 || int64(id) >= int64(len(it.rows)) {
		return nil, false
	}
	it.pos = int(id)
	return it.rows[id], true
}

func (it *sliceIterator) Close() {}
