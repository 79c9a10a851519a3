package ordindex_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/segstore/internal/ordindex"
	"github.com/erigontech/segstore/segerr"
)

func TestUniqueInsertRejectsDuplicateKey(t *testing.T) {
	ix := ordindex.New(true)
	require.NoError(t, ix.Insert([]byte("a"), 1))
	err := ix.Insert([]byte("a"), 2)
	require.Error(t, err)
	require.True(t, segerr.IsDuplicateKey(err))

	// re-inserting the same (key, id) pair is not a conflict
	require.NoError(t, ix.Insert([]byte("a"), 1))
}

func TestMultiIndexAllowsRepeatedKey(t *testing.T) {
	ix := ordindex.New(false)
	require.NoError(t, ix.Insert([]byte("a"), 1))
	require.NoError(t, ix.Insert([]byte("a"), 2))
	require.Equal(t, 2, ix.Len())
}

func TestSeekExactOnMultiIsUnsupported(t *testing.T) {
	ix := ordindex.New(false)
	ix.Insert([]byte("a"), 1)
	_, _, err := ix.SeekExact([]byte("a"))
	require.True(t, segerr.IsUnsupportedOperation(err))
}

func TestSeekLowerBoundAscendingOrder(t *testing.T) {
	ix := ordindex.New(true)
	for _, kv := range []struct {
		k string
		v int64
	}{{"c", 3}, {"a", 1}, {"b", 2}} {
		require.NoError(t, ix.Insert([]byte(kv.k), kv.v))
	}
	it := ix.SeekLowerBound(nil)
	var got []string
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(k))
	}
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestSeekLowerBoundSkipsBelowFrom(t *testing.T) {
	ix := ordindex.New(true)
	ix.Insert([]byte("a"), 1)
	ix.Insert([]byte("b"), 2)
	ix.Insert([]byte("c"), 3)

	it := ix.SeekLowerBound([]byte("b"))
	k, id, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, "b", string(k))
	require.Equal(t, int64(2), id)
}

func TestReplaceMovesKey(t *testing.T) {
	ix := ordindex.New(true)
	ix.Insert([]byte("old"), 1)
	require.NoError(t, ix.Replace([]byte("old"), []byte("new"), 1))

	_, ok, _ := ix.SeekExact([]byte("old"))
	require.False(t, ok)
	id, ok, _ := ix.SeekExact([]byte("new"))
	require.True(t, ok)
	require.Equal(t, int64(1), id)
}

func TestRemoveIsNoOpWhenAbsent(t *testing.T) {
	ix := ordindex.New(true)
	ix.Remove([]byte("missing"), 1) // must not panic
	require.Equal(t, 0, ix.Len())
}
