package table_test

import (
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/segstore/segerr"
	"github.com/erigontech/segstore/table"
)

type ctx struct{ scratch []byte }

func (c *ctx) Scratch() []byte        { return c.scratch }
func (c *ctx) SetScratch(b []byte)    { c.scratch = b }

func openTestTable(t *testing.T) *table.CompositeTable {
	t.Helper()
	tbl, err := table.Open(afero.NewMemMapFs(), "/t1", newTestSchema(), table.DefaultOptions(), nil)
	require.NoError(t, err)
	return tbl
}

func TestInsertGetRoundTrip(t *testing.T) {
	tbl := openTestTable(t)
	c := &ctx{}

	id, err := tbl.InsertRow(rowFor(1, "hello"), c)
	require.NoError(t, err)
	require.Equal(t, int64(0), id)

	row, err := tbl.GetValue(id, c)
	require.NoError(t, err)
	require.Equal(t, "hello", valueOf(row))
}

func TestRowIDsAreMonotoneAndNeverRecycled(t *testing.T) {
	tbl := openTestTable(t)
	c := &ctx{}

	var ids []int64
	for i := uint64(0); i < 5; i++ {
		id, err := tbl.InsertRow(rowFor(i, "v"), c)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		require.Greater(t, ids[i], ids[i-1])
	}

	require.NoError(t, tbl.RemoveRow(ids[2], c))
	idAfterRemove, err := tbl.InsertRow(rowFor(99, "w"), c)
	require.NoError(t, err)
	require.Greater(t, idAfterRemove, ids[len(ids)-1], "a removed id must never be reissued")
}

func TestUniqueIndexRejectsDuplicateKey(t *testing.T) {
	tbl := openTestTable(t)
	c := &ctx{}

	_, err := tbl.InsertRow(rowFor(7, "a"), c)
	require.NoError(t, err)

	_, err = tbl.InsertRow(rowFor(7, "b"), c)
	require.Error(t, err)
	require.True(t, segerr.IsDuplicateKey(err))
}

func TestRemoveThenGetFails(t *testing.T) {
	tbl := openTestTable(t)
	c := &ctx{}

	id, err := tbl.InsertRow(rowFor(1, "a"), c)
	require.NoError(t, err)
	require.NoError(t, tbl.RemoveRow(id, c))

	_, err = tbl.GetValue(id, c)
	require.Error(t, err)
}

func TestReplaceInPlaceKeepsID(t *testing.T) {
	tbl := openTestTable(t)
	c := &ctx{}

	id, err := tbl.InsertRow(rowFor(1, "a"), c)
	require.NoError(t, err)

	newID, err := tbl.ReplaceRow(id, rowFor(1, "b"), c)
	require.NoError(t, err)
	require.Equal(t, id, newID, "replacing a row still in the writable segment keeps its id")

	row, err := tbl.GetValue(id, c)
	require.NoError(t, err)
	require.Equal(t, "b", valueOf(row))
}

func TestReplaceRejectsCollisionWithAnotherRow(t *testing.T) {
	tbl := openTestTable(t)
	c := &ctx{}

	id1, err := tbl.InsertRow(rowFor(1, "a"), c)
	require.NoError(t, err)
	_, err = tbl.InsertRow(rowFor(2, "b"), c)
	require.NoError(t, err)

	_, err = tbl.ReplaceRow(id1, rowFor(2, "x"), c)
	require.Error(t, err)
	require.True(t, segerr.IsDuplicateKey(err))
}

func TestOutOfRangeRowID(t *testing.T) {
	tbl := openTestTable(t)
	c := &ctx{}
	_, err := tbl.GetValue(1000, c)
	require.True(t, segerr.IsOutOfRange(err))

	err2 := tbl.RemoveRow(-1, c)
	require.True(t, segerr.IsOutOfRange(err2))
}

func TestFullTableIterationOrderAndSnapshot(t *testing.T) {
	tbl := openTestTable(t)
	c := &ctx{}

	for i := uint64(0); i < 4; i++ {
		_, err := tbl.InsertRow(rowFor(i, "v"), c)
		require.NoError(t, err)
	}

	it := tbl.CreateIterForward(c)
	// An insert after the iterator was created must stay invisible to it
	// (spec: iteration snapshot, §4.6.8).
	_, err := tbl.InsertRow(rowFor(99, "late"), c)
	require.NoError(t, err)

	var seen []uint64
	for {
		_, row, ok := it.Next()
		if !ok {
			break
		}
		seen = append(seen, keyOf(row))
	}
	it.Close()

	require.Equal(t, []uint64{0, 1, 2, 3}, seen)
}

func TestBackwardIterationIsReverseOfForward(t *testing.T) {
	tbl := openTestTable(t)
	c := &ctx{}
	for i := uint64(0); i < 4; i++ {
		_, err := tbl.InsertRow(rowFor(i, "v"), c)
		require.NoError(t, err)
	}

	it := tbl.CreateIterBackward(c)
	var seen []uint64
	for {
		_, row, ok := it.Next()
		if !ok {
			break
		}
		seen = append(seen, keyOf(row))
	}
	it.Close()
	require.Equal(t, []uint64{3, 2, 1, 0}, seen)
}

func TestIterationSkipsTombstonedRows(t *testing.T) {
	tbl := openTestTable(t)
	c := &ctx{}
	var ids []int64
	for i := uint64(0); i < 4; i++ {
		id, err := tbl.InsertRow(rowFor(i, "v"), c)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, tbl.RemoveRow(ids[1], c))

	it := tbl.CreateIterForward(c)
	var seen []uint64
	for {
		_, row, ok := it.Next()
		if !ok {
			break
		}
		seen = append(seen, keyOf(row))
	}
	it.Close()
	require.Equal(t, []uint64{0, 2, 3}, seen)
}

func TestCompactionPreservesLiveRowsAndDropsTombstones(t *testing.T) {
	opts := table.DefaultOptions()
	opts.MaxWritableSegmentRows = 10
	tbl, err := table.Open(afero.NewMemMapFs(), "/tc", newTestSchema(), opts, nil)
	require.NoError(t, err)
	c := &ctx{}

	for i := uint64(0); i < 10; i++ {
		_, err := tbl.InsertRow(rowFor(i, "v"), c)
		require.NoError(t, err)
	}
	require.NoError(t, tbl.RemoveRow(3, c))
	require.NoError(t, tbl.RemoveRow(7, c))

	// One more insert pushes the first segment past its row cap, freezing
	// it and opening a fresh writable segment (spec §4.6.6).
	_, err = tbl.InsertRow(rowFor(10, "v"), c)
	require.NoError(t, err)
	require.NoError(t, tbl.Compact(c))

	it := tbl.CreateIterForward(c)
	var seen []uint64
	for {
		_, row, ok := it.Next()
		if !ok {
			break
		}
		seen = append(seen, keyOf(row))
	}
	it.Close()
	require.Equal(t, []uint64{0, 1, 2, 4, 5, 6, 8, 9, 10}, seen)
}

func TestRemoveAndReplaceOnFrozenWritableSegment(t *testing.T) {
	opts := table.DefaultOptions()
	opts.MaxWritableSegmentRows = 10
	tbl, err := table.Open(afero.NewMemMapFs(), "/tf", newTestSchema(), opts, nil)
	require.NoError(t, err)
	c := &ctx{}

	for i := uint64(0); i < 10; i++ {
		_, err := tbl.InsertRow(rowFor(i, "v"), c)
		require.NoError(t, err)
	}
	// Rows 0-9 now live in the first segment; one more insert pushes it past
	// its row cap, freezing it (without compacting it) and opening a fresh
	// writable segment (spec §4.6.6).
	_, err = tbl.InsertRow(rowFor(10, "v"), c)
	require.NoError(t, err)

	// id 3 lives in the now-frozen first segment, not a readonly one: this
	// must tombstone rather than surface InvariantViolated.
	require.NoError(t, tbl.RemoveRow(3, c))
	_, err = tbl.GetValue(3, c)
	require.Error(t, err)

	newID, err := tbl.ReplaceRow(5, rowFor(5, "updated"), c)
	require.NoError(t, err)
	require.NotEqual(t, int64(5), newID, "replace on a frozen segment must land as a fresh row, not in place")
	row, err := tbl.GetValue(newID, c)
	require.NoError(t, err)
	require.Equal(t, "updated", valueOf(row))
	_, err = tbl.GetValue(5, c)
	require.Error(t, err, "id 5's old slot is tombstoned, not mutated in place")

	it := tbl.CreateIterForward(c)
	var seen []uint64
	for {
		_, row, ok := it.Next()
		if !ok {
			break
		}
		seen = append(seen, keyOf(row))
	}
	it.Close()
	require.NotContains(t, seen, uint64(3))
	require.NoError(t, tbl.Compact(c))
}

func TestSaveLoadCatalogueRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	sch := newTestSchema()

	tbl, err := table.Open(fs, "/t2", sch, table.DefaultOptions(), nil)
	require.NoError(t, err)
	c := &ctx{}
	for i := uint64(0); i < 3; i++ {
		_, err := tbl.InsertRow(rowFor(i, "v"), c)
		require.NoError(t, err)
	}
	require.NoError(t, tbl.Flush())

	reopened, err := table.Open(fs, "/t2", sch, table.DefaultOptions(), nil)
	require.NoError(t, err)
	require.Equal(t, int64(3), reopened.NumDataRows())

	row, err := reopened.GetValue(1, c)
	require.NoError(t, err)
	require.Equal(t, "v", valueOf(row))
}

func TestIndexIterationIsKeyOrdered(t *testing.T) {
	tbl := openTestTable(t)
	c := &ctx{}
	for _, k := range []uint64{5, 1, 3, 2, 4} {
		_, err := tbl.InsertRow(rowFor(k, "v"), c)
		require.NoError(t, err)
	}

	it, err := tbl.CreateIndexIterForward(idxPrimary, c)
	require.NoError(t, err)
	defer it.Close()

	var seen []uint64
	for {
		key, _, ok := it.Next()
		if !ok {
			break
		}
		seen = append(seen, keyOf(key))
	}
	require.Equal(t, []uint64{1, 2, 3, 4, 5}, seen)
}

type jsonRowFormatter struct{}

func (jsonRowFormatter) FormatRow(row []byte) (string, error) {
	return fmt.Sprintf(`{"key":%d,"value":%q}`, keyOf(row), valueOf(row)), nil
}

func TestDebugJSONUsesConfiguredRowFormatter(t *testing.T) {
	opts := table.DefaultOptions()
	opts.RowFormatter = jsonRowFormatter{}
	tbl, err := table.Open(afero.NewMemMapFs(), "/tfmt", newTestSchema(), opts, nil)
	require.NoError(t, err)
	c := &ctx{}

	id, err := tbl.InsertRow(rowFor(7, "hi"), c)
	require.NoError(t, err)
	row, err := tbl.GetValue(id, c)
	require.NoError(t, err)

	out, err := tbl.DebugJSON(row)
	require.NoError(t, err)
	require.Equal(t, `{"key":7,"value":"hi"}`, out)
}

func TestDebugJSONFallsBackToByteDumpWithoutFormatter(t *testing.T) {
	tbl := openTestTable(t)
	c := &ctx{}
	id, err := tbl.InsertRow(rowFor(1, "v"), c)
	require.NoError(t, err)
	row, err := tbl.GetValue(id, c)
	require.NoError(t, err)

	out, err := tbl.DebugJSON(row)
	require.NoError(t, err)
	require.NotEmpty(t, out)
}

func TestIndexStorageSizeGrowsWithInsertsAndIsPerIndex(t *testing.T) {
	tbl := openTestTable(t)
	c := &ctx{}
	require.Equal(t, int64(0), tbl.IndexStorageSize(idxPrimary))

	for _, k := range []uint64{1, 2, 3} {
		_, err := tbl.InsertRow(rowFor(k, "v"), c)
		require.NoError(t, err)
	}
	require.Greater(t, tbl.IndexStorageSize(idxPrimary), int64(0))
	require.Equal(t, int64(0), tbl.IndexStorageSize(idxPrimary+99), "an undeclared index contributes nothing")
}
