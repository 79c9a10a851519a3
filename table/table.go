// Package table implements CompositeTable (spec §4.6, C6): the segment
// catalogue, the global row-id map, and the insert/replace/remove,
// rollover, compaction and iteration operations built on top of the
// segment and store packages.
package table

import (
	"fmt"
	"sort"
	"sync/atomic"

	goccyjson "github.com/goccy/go-json"
	"github.com/gofrs/flock"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/erigontech/segstore/internal/frwmutex"
	"github.com/erigontech/segstore/internal/refcount"
	"github.com/erigontech/segstore/schema"
	"github.com/erigontech/segstore/segerr"
	"github.com/erigontech/segstore/segment"
	"github.com/erigontech/segstore/store"
	_ "github.com/erigontech/segstore/store/fixlen" // registers the ".fixlen" store suffix
	storeordindex "github.com/erigontech/segstore/store/ordindex"
)

// segmentEntry is one catalogue slot: either a readonly or a writable
// segment, never both (spec §3).
type segmentEntry struct {
	kind    segment.Kind
	index   int
	dir     string
	ro      *segment.Readonly
	wr      *segment.Writable
}

func (e *segmentEntry) numDataRows() int64 {
	if e.wr != nil {
		return e.wr.NumDataRows()
	}
	return e.ro.NumDataRows()
}

func (e *segmentEntry) dataStorageSize() int64 {
	if e.wr != nil {
		return e.wr.DataStorageSize()
	}
	return e.ro.DataStorageSize()
}

// CompositeTable is the table proper (spec §4.6.1).
type CompositeTable struct {
	mu  *frwmutex.RWMutex
	fs  store.FS
	dir string
	sch schema.Schema
	opts Options
	logger *zap.Logger
	class string

	dirLock *flock.Flock

	segments  []refcount.Handle[*segmentEntry]
	rowNumVec []int64
	nextIndex int

	tableScanningRefCount int64 // atomic
	tobeDrop              int32 // atomic bool
	readonlyDataMemSize   int64 // atomic
}

func closeSegmentEntry(fs store.FS, logger *zap.Logger) func(*segmentEntry) {
	return func(e *segmentEntry) {
		logger.Info("segment dropped", zap.String("kind", string(e.kind)), zap.Int("index", e.index))
		_ = fs.RemoveAll(e.dir)
	}
}

// dbMeta is the table manifest dbmeta.json (spec §6).
type dbMeta struct {
	Class    string          `json:"class,omitempty"`
	Segments []dbMetaSegment `json:"segments"`
}

type dbMetaSegment struct {
	Kind     segment.Kind `json:"kind"`
	Index    int          `json:"index"`
	RowCount int64        `json:"rowCount"`
}

const dbMetaFileName = "dbmeta.json"
const lockFileName = "LOCK"

// Open opens or creates a table at dir. A directory without dbmeta.json is
// initialised fresh with one empty writable segment.
func Open(fs store.FS, dir string, sch schema.Schema, opts Options, logger *zap.Logger) (*CompositeTable, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, segerr.Io(dir, err)
	}

	t := &CompositeTable{
		mu:     frwmutex.New(),
		fs:     fs,
		dir:    dir,
		sch:    sch,
		opts:   opts,
		logger: logger,
	}

	if err := t.lockDir(); err != nil {
		return nil, err
	}

	exists, err := store.Exists(fs, dir+"/"+dbMetaFileName)
	if err != nil {
		return nil, segerr.Io(dir, err)
	}
	if exists {
		if err := t.loadCatalogue(); err != nil {
			return nil, err
		}
		return t, nil
	}

	wr := segment.NewWritable(sch)
	idx := t.nextIndex
	t.nextIndex++
	entry := &segmentEntry{kind: segment.KindWritable, index: idx, dir: segDir(dir, segment.KindWritable, idx), wr: wr}
	t.segments = []refcount.Handle[*segmentEntry]{refcount.New(entry, closeSegmentEntry(fs, logger))}
	t.rowNumVec = []int64{0, 0}
	if err := t.saveCatalogueLocked(); err != nil {
		return nil, err
	}
	return t, nil
}

func segDir(dir string, kind segment.Kind, index int) string {
	return fmt.Sprintf("%s/%s-%04d", dir, kind, index)
}

// lockDir takes a process-wide advisory lock over dir, guarding against two
// processes opening the same table directory concurrently.
func (t *CompositeTable) lockDir() error {
	if _, ok := t.fs.(*afero.OsFs); !ok {
		return nil // in-memory fs used by tests: no cross-process concern
	}
	l := flock.New(t.dir + "/" + lockFileName)
	locked, err := l.TryLock()
	if err != nil {
		return segerr.Io(t.dir, err)
	}
	if !locked {
		return segerr.InvariantViolated("table: directory already locked by another process: " + t.dir)
	}
	t.dirLock = l
	return nil
}

func (t *CompositeTable) loadCatalogue() error {
	b, err := afero.ReadFile(t.fs, t.dir+"/"+dbMetaFileName)
	if err != nil {
		return segerr.Io(t.dir, err)
	}
	var m dbMeta
	if err := goccyjson.Unmarshal(b, &m); err != nil {
		return segerr.Corruption(t.dir, "dbmeta decode failed: "+err.Error())
	}
	t.class = m.Class

	segments := make([]refcount.Handle[*segmentEntry], 0, len(m.Segments))
	rowNumVec := make([]int64, 1, len(m.Segments)+1)
	maxIndex := -1
	for _, ms := range m.Segments {
		dir := segDir(t.dir, ms.Kind, ms.Index)
		entry := &segmentEntry{kind: ms.Kind, index: ms.Index, dir: dir}
		switch ms.Kind {
		case segment.KindReadonly:
			ro, err := segment.LoadReadonly(t.fs, dir)
			if err != nil {
				return err
			}
			entry.ro = ro
		case segment.KindWritable:
			wr, err := segment.LoadWritable(t.fs, dir, t.sch)
			if err != nil {
				return err
			}
			entry.wr = wr
		default:
			return segerr.Corruption(t.dir, "unknown segment kind "+string(ms.Kind))
		}
		segments = append(segments, refcount.New(entry, closeSegmentEntry(t.fs, t.logger)))
		rowNumVec = append(rowNumVec, rowNumVec[len(rowNumVec)-1]+entry.numDataRows())
		if ms.Index > maxIndex {
			maxIndex = ms.Index
		}
		t.logger.Info("segment loaded", zap.String("kind", string(ms.Kind)), zap.Int("index", ms.Index), zap.Int64("rows", entry.numDataRows()))
	}
	t.segments = segments
	t.rowNumVec = rowNumVec
	t.nextIndex = maxIndex + 1

	var roSize int64
	for _, h := range segments {
		e := h.Value()
		if e.ro != nil {
			roSize += e.dataStorageSize()
		}
	}
	atomic.StoreInt64(&t.readonlyDataMemSize, roSize)
	return nil
}

// saveCatalogueLocked writes dbmeta.json. Callers must hold mu in write
// mode (or be inside Open before any reader can observe t).
func (t *CompositeTable) saveCatalogueLocked() error {
	m := dbMeta{Class: t.class}
	for _, h := range t.segments {
		e := h.Value()
		m.Segments = append(m.Segments, dbMetaSegment{Kind: e.kind, Index: e.index, RowCount: e.numDataRows()})
	}
	b, err := goccyjson.MarshalIndent(m, "", "  ")
	if err != nil {
		return segerr.Io(t.dir, err)
	}
	path := t.dir + "/" + dbMetaFileName
	if err := afero.WriteFile(t.fs, path, b, 0o644); err != nil {
		return segerr.Io(path, err)
	}
	return nil
}

// Drop marks the table for deletion: the directory is removed at once if
// no full-table iterator is open, otherwise when the last one opened
// before Drop is closed (spec §6: "drop() marks the table for deletion").
func (t *CompositeTable) Drop() {
	atomic.StoreInt32(&t.tobeDrop, 1)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dirLock != nil {
		_ = t.dirLock.Unlock()
	}
	if atomic.LoadInt64(&t.tableScanningRefCount) == 0 {
		_ = t.fs.RemoveAll(t.dir)
	}
}

func (t *CompositeTable) WritableSegCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, h := range t.segments {
		if h.Value().kind == segment.KindWritable {
			n++
		}
	}
	return n
}

// IndexStorageSize sums indexID's footprint across every segment - the
// on-disk size of a readonly segment's persisted index file, or the
// in-memory B-tree's approximate size for the live writable segment -
// restoring original_source/db_table.hpp's indexStorageSize.
func (t *CompositeTable) IndexStorageSize(indexID int) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total int64
	for _, h := range t.segments {
		e := h.Value()
		if e.kind == segment.KindWritable {
			if ix, ok := e.wr.IndexFor(indexID); ok {
				total += storeordindex.FromIndex(indexID, ix).StorageSize()
			}
			continue
		}
		if ix, ok := e.ro.IndexFor(indexID); ok {
			total += ix.StorageSize()
		}
	}
	return total
}

// TotalStorageSize sums value-store and index bytes across every segment,
// restoring original_source/db_table.hpp's totalStorageSize.
func (t *CompositeTable) TotalStorageSize() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total int64
	for _, h := range t.segments {
		total += h.Value().dataStorageSize()
	}
	return total
}

// NumDataRows returns the total row count, including tombstones (spec §3:
// rowNumVec.back()).
func (t *CompositeTable) NumDataRows() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rowNumVec[len(t.rowNumVec)-1]
}

// DebugJSON renders row as human-readable text through the configured
// RowFormatter, restoring original_source/db_table.hpp's toJsonStr for
// operational inspection. With no RowFormatter configured it falls back to
// the row's JSON encoding as a byte slice, i.e. a base64 JSON string.
func (t *CompositeTable) DebugJSON(row []byte) (string, error) {
	if t.opts.RowFormatter != nil {
		return t.opts.RowFormatter.FormatRow(row)
	}
	b, err := goccyjson.Marshal(row)
	if err != nil {
		return "", segerr.Io(t.dir, err)
	}
	return string(b), nil
}

// sortedIndices returns an ascending copy of ids; ids itself is left
// unchanged.
func sortedIndices(ids []int) []int {
	cp := append([]int(nil), ids...)
	sort.Ints(cp)
	return cp
}
