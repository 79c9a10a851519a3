package dbcontext_test

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/segstore/dbcontext"
	"github.com/erigontech/segstore/schema"
	"github.com/erigontech/segstore/table"
)

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

func TestDbContextInsertGetRemove(t *testing.T) {
	tbl, err := table.Open(afero.NewMemMapFs(), "/t", testSchema(), table.DefaultOptions(), nil)
	require.NoError(t, err)
	c := dbcontext.New(tbl)
	defer c.Close()

	id, err := c.InsertRow(rowFor(1, "hello"))
	require.NoError(t, err)

	row, err := c.GetValue(id)
	require.NoError(t, err)
	require.Equal(t, "hello", string(row[8:]))

	require.NoError(t, c.RemoveRow(id))
	_, err = c.GetValue(id)
	require.Error(t, err)
}

func TestDbContextScratchBuffer(t *testing.T) {
	tbl, err := table.Open(afero.NewMemMapFs(), "/t2", testSchema(), table.DefaultOptions(), nil)
	require.NoError(t, err)
	c := dbcontext.New(tbl)
	defer c.Close()

	require.Nil(t, c.Scratch())
	buf := []byte{1, 2, 3}
	c.SetScratch(buf)
	require.Equal(t, buf, c.Scratch())
}

func TestDbContextCursorIsCached(t *testing.T) {
	tbl, err := table.Open(afero.NewMemMapFs(), "/t3", testSchema(), table.DefaultOptions(), nil)
	require.NoError(t, err)
	c := dbcontext.New(tbl)
	defer c.Close()

	_, err = c.InsertRow(rowFor(1, "a"))
	require.NoError(t, err)

	cur1, err := c.Cursor(0)
	require.NoError(t, err)
	cur2, err := c.Cursor(0)
	require.NoError(t, err)
	require.Same(t, cur1, cur2, "repeated Cursor calls for the same index must hit the cache")
}
