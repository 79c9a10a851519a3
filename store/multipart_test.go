package store_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/segstore/store"
	"github.com/erigontech/segstore/store/mockstore"
)

type noopCtx struct{}

func (noopCtx) Scratch() []byte   { return nil }
func (noopCtx) SetScratch([]byte) {}

func childOf(values ...string) store.Store {
	s := mockstore.New()
	for _, v := range values {
		s.Append([]byte(v), noopCtx{})
	}
	return s
}

func TestMultiPartStoreConcatenatesChildren(t *testing.T) {
	m := store.NewMultiPartStore([]store.Store{
		childOf("a", "b"),
		childOf(),
		childOf("c"),
		childOf("d", "e", "f"),
	})
	require.Equal(t, int64(6), m.NumDataRows())

	want := []string{"a", "b", "c", "d", "e", "f"}
	for i, w := range want {
		row, err := m.GetValueAppend(store.SubID(i), nil, noopCtx{})
		require.NoError(t, err)
		require.Equal(t, w, string(row))
	}

	_, err := m.GetValueAppend(store.SubID(6), nil, noopCtx{})
	require.Error(t, err)
}

func TestMultiPartStoreForwardIterationMatchesConcatenation(t *testing.T) {
	m := store.NewMultiPartStore([]store.Store{
		childOf("a", "b"),
		childOf("c"),
	})
	it := m.CreateStoreIterForward(noopCtx{})
	var got []string
	var ids []store.SubID
	for {
		id, row, ok := it.Next()
		if !ok {
			break
		}
		ids = append(ids, id)
		got = append(got, string(row))
	}
	require.Equal(t, []string{"a", "b", "c"}, got)
	require.Equal(t, []store.SubID{0, 1, 2}, ids)
}

func TestMultiPartStoreLoadIsUnsupportedAndOffersNoCapabilities(t *testing.T) {
	m := store.NewMultiPartStore(nil)
	err := m.Load(nil, "/x")
	require.Error(t, err)

	_, ok := m.AsWritable()
	require.False(t, ok)
	_, ok = m.AsAppendable()
	require.False(t, ok)
	_, ok = m.AsUpdatable()
	require.False(t, ok)
	_, ok = m.AsReadableIndex()
	require.False(t, ok)
}
