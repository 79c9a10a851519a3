package table

import (
	"go.uber.org/zap"

	"github.com/erigontech/segstore/internal/refcount"
	"github.com/erigontech/segstore/segment"
)

// maybeCreateNewSegmentLocked freezes the current writable segment and
// opens a fresh one once it exceeds the configured size or row threshold
// (spec §4.6.6). Callers must hold mu in write mode.
func (t *CompositeTable) maybeCreateNewSegmentLocked() error {
	if len(t.segments) > 0 {
		last := t.segments[len(t.segments)-1].Value()
		if last.kind == segment.KindWritable && !t.writableFullLocked(last) {
			return nil
		}
		if last.kind == segment.KindWritable {
			last.wr.Freeze()
			t.logger.Info("writable segment frozen for rollover", zap.Int("segment", last.index))
		}
	}

	wr := segment.NewWritable(t.sch)
	idx := t.nextIndex
	t.nextIndex++
	entry := &segmentEntry{kind: segment.KindWritable, index: idx, dir: segDir(t.dir, segment.KindWritable, idx), wr: wr}
	t.segments = append(t.segments, refcount.New(entry, closeSegmentEntry(t.fs, t.logger)))
	t.rowNumVec = append(t.rowNumVec, t.rowNumVec[len(t.rowNumVec)-1])
	t.logger.Info("new writable segment opened", zap.Int("segment", idx))
	return t.saveCatalogueLocked()
}

func (t *CompositeTable) writableFullLocked(e *segmentEntry) bool {
	if e.wr == nil {
		return true
	}
	if t.opts.MaxWritableSegmentRows > 0 && e.wr.NumDataRows() >= t.opts.MaxWritableSegmentRows {
		return true
	}
	if t.opts.MaxWritableSegmentSize > 0 && uint64(e.wr.DataStorageSize()) >= uint64(t.opts.MaxWritableSegmentSize) {
		return true
	}
	return false
}
