package segment_test

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/segstore/schema"
	"github.com/erigontech/segstore/segment"
	"github.com/erigontech/segstore/store"
)

type noopCtx struct{}

func (noopCtx) Scratch() []byte     { return nil }
func (noopCtx) SetScratch([]byte)   {}

func rowFor(key uint64, value string) []byte {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf, key)
	copy(buf[8:], value)
	return buf
}

func testSchema() schema.Schema {
	return schema.NewStatic(
		[]schema.IndexDef{{ID: 0, Name: "pk", Kind: schema.Unique}},
		func(row []byte, indexID int) ([]byte, error) {
			if indexID != 0 {
				return nil, fmt.Errorf("no index %d", indexID)
			}
			return row[:8], nil
		},
	)
}

func TestWritableInsertGetRemove(t *testing.T) {
	sch := testSchema()
	w := segment.NewWritable(sch)
	ctx := noopCtx{}

	id, err := w.Insert(rowFor(1, "a"), ctx)
	require.NoError(t, err)

	row, err := w.GetValue(id, ctx)
	require.NoError(t, err)
	require.Equal(t, "a", string(row[8:]))

	require.NoError(t, w.Remove(id, ctx))
	_, err = w.GetValue(id, ctx)
	require.Error(t, err)
}

func TestWritableSeekExactUsesIndex(t *testing.T) {
	sch := testSchema()
	w := segment.NewWritable(sch)
	ctx := noopCtx{}

	id, err := w.Insert(rowFor(42, "v"), ctx)
	require.NoError(t, err)

	found, ok, err := w.SeekExact(0, rowFor(42, "")[:8])
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id, found)
}

func TestWritableFreezeRejectsMutation(t *testing.T) {
	sch := testSchema()
	w := segment.NewWritable(sch)
	ctx := noopCtx{}
	w.Freeze()

	_, err := w.Insert(rowFor(1, "a"), ctx)
	require.Error(t, err)
}

func TestWritableFrozenRemoveTombstonesInsteadOfErroring(t *testing.T) {
	sch := testSchema()
	w := segment.NewWritable(sch)
	ctx := noopCtx{}

	id, err := w.Insert(rowFor(1, "a"), ctx)
	require.NoError(t, err)
	w.Freeze()

	require.NoError(t, w.Remove(id, ctx))
	require.True(t, w.IsTombstoned(id))
	_, err = w.GetValue(id, ctx)
	require.Error(t, err)

	// The in-memory index still holds the key: a lookup must report a miss,
	// not a stale hit, once the row is frozen-tombstoned.
	_, found, err := w.SeekExact(0, rowFor(1, "")[:8])
	require.NoError(t, err)
	require.False(t, found)
}

func TestWritableFrozenReplaceRejectedAtSegmentLevel(t *testing.T) {
	sch := testSchema()
	w := segment.NewWritable(sch)
	ctx := noopCtx{}

	id, err := w.Insert(rowFor(1, "a"), ctx)
	require.NoError(t, err)
	w.Freeze()

	// Writable.Replace has no way to relocate a row into a different
	// segment; table.ReplaceRow checks Frozen() first and routes this case
	// through Tombstone + insert-elsewhere instead of ever calling Replace.
	err = w.Replace(id, rowFor(1, "b"), ctx)
	require.Error(t, err)
}

func TestWritableIteratorSkipsTombstones(t *testing.T) {
	sch := testSchema()
	w := segment.NewWritable(sch)
	ctx := noopCtx{}

	var ids []store.SubID
	for i := uint64(0); i < 3; i++ {
		id, err := w.Insert(rowFor(i, "v"), ctx)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, w.Remove(ids[1], ctx))

	it := w.CreateIterForward(ctx)
	var seen []store.SubID
	for {
		id, _, ok := it.Next()
		if !ok {
			break
		}
		seen = append(seen, id)
	}
	require.Equal(t, []store.SubID{ids[0], ids[2]}, seen)
}

func TestWritableSaveLoadRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	sch := testSchema()
	w := segment.NewWritable(sch)
	ctx := noopCtx{}
	w.Insert(rowFor(1, "a"), ctx)
	w.Insert(rowFor(2, "b"), ctx)

	require.NoError(t, w.Save(fs, "/seg/wr-0000", sch))

	loaded, err := segment.LoadWritable(fs, "/seg/wr-0000", sch)
	require.NoError(t, err)
	require.Equal(t, int64(2), loaded.NumDataRows())

	id, ok, err := loaded.SeekExact(0, rowFor(2, "")[:8])
	require.NoError(t, err)
	require.True(t, ok)
	row, err := loaded.GetValue(id, ctx)
	require.NoError(t, err)
	require.Equal(t, "b", string(row[8:]))
}

func TestReadonlyTombstoneHidesRow(t *testing.T) {
	fs := afero.NewMemMapFs()
	sch := testSchema()
	w := segment.NewWritable(sch)
	ctx := noopCtx{}
	id, _ := w.Insert(rowFor(1, "a"), ctx)
	w.Insert(rowFor(2, "b"), ctx)
	w.Freeze()

	require.NoError(t, w.Save(fs, "/seg/wr-0000", sch))
	// simulate compaction: drain the writable segment's live rows into a
	// fresh value store and wrap it in a readonly segment with no indices,
	// a reduced form of what table.Compact builds.
	loaded, err := segment.LoadWritable(fs, "/seg/wr-0000", sch)
	require.NoError(t, err)
	_ = loaded
	_ = id

	ro := segment.NewReadonly(mustStoreOf(t, w, ctx), nil)
	ro.Tombstone(0)
	require.True(t, ro.IsTombstoned(0))
	_, err = ro.GetValue(0, ctx)
	require.Error(t, err)
}

// mustStoreOf drains w's live rows into a fresh mock-backed store.Store so
// a Readonly can be built over them without going through the full
// compaction pipeline.
func mustStoreOf(t *testing.T, w *segment.Writable, ctx store.Context) store.Store {
	t.Helper()
	it := w.CreateIterForward(ctx)
	defer it.Close()
	var rows [][]byte
	for {
		_, row, ok := it.Next()
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	return &sliceStore{rows: rows}
}

type sliceStore struct{ rows [][]byte }

func (s *sliceStore) NumDataRows() int64      { return int64(len(s.rows)) }
func (s *sliceStore) DataStorageSize() int64  { return 0 }
func (s *sliceStore) DataInflateSize() int64  { return 0 }
func (s *sliceStore) GetValueAppend(id store.SubID, buf []byte, ctx store.Context) ([]byte, error) {
	if id < 0 || int64(id) >= int64(len(s.rows)) {
		return nil, fmt.Errorf("out of range")
	}
	return append(buf, s.rows[id]...), nil
}
func (s *sliceStore) CreateStoreIterForward(ctx store.Context) store.Iterator  { return &sliceIter{rows: s.rows, pos: -1} }
func (s *sliceStore) CreateStoreIterBackward(ctx store.Context) store.Iterator {
	return &sliceIter{rows: s.rows, pos: len(s.rows)}
}
func (s *sliceStore) Save(fs store.FS, path string) error        { return fmt.Errorf("unsupported") }
func (s *sliceStore) Load(fs store.FS, path string) error        { return fmt.Errorf("unsupported") }
func (s *sliceStore) AsWritable() (store.Writable, bool)         { return nil, false }
func (s *sliceStore) AsAppendable() (store.Appendable, bool)     { return nil, false }
func (s *sliceStore) AsUpdatable() (store.Updatable, bool)       { return nil, false }
func (s *sliceStore) AsReadableIndex() (store.ReadableIndex, bool) { return nil, false }

type sliceIter struct {
	rows [][]byte
	pos  int
}

func (it *sliceIter) Next() (store.SubID, []byte, bool) {
	it.pos++
	if it.pos < 0 || it.pos >= len(it.rows) {
		return 0, nil, false
	}
	return store.SubID(it.pos), it.rows[it.pos], true
}
func (it *sliceIter) SeekExact(id store.SubID) ([]byte, bool) {
	if id < 0 || int64(id) >= int64(len(it.rows)) {
		return nil, false
	}
	it.pos = int(id)
	return it.rows[id], true
}
func (it *sliceIter) Close() {}
