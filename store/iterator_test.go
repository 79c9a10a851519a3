package store_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/segstore/store"
)

type fakeIterable struct{ rows []string }

func (f *fakeIterable) NumDataRows() int64 { return int64(len(f.rows)) }
func (f *fakeIterable) GetValueAppend(id store.SubID, out []byte, ctx store.Context) ([]byte, error) {
	if id < 0 || int64(id) >= int64(len(f.rows)) {
		return nil, fmt.Errorf("out of range")
	}
	return append(out, f.rows[id]...), nil
}

func TestDefaultForwardIteratorWalksInOrder(t *testing.T) {
	f := &fakeIterable{rows: []string{"a", "b", "c"}}
	it := store.CreateDefaultStoreIterForward(f, nil)

	var got []string
	for {
		_, row, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(row))
	}
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestDefaultBackwardIteratorWalksInReverse(t *testing.T) {
	f := &fakeIterable{rows: []string{"a", "b", "c"}}
	it := store.CreateDefaultStoreIterBackward(f, nil)

	var got []string
	for {
		_, row, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(row))
	}
	require.Equal(t, []string{"c", "b", "a"}, got)
}

func TestDefaultIteratorSeekExact(t *testing.T) {
	f := &fakeIterable{rows: []string{"a", "b", "c"}}
	it := store.CreateDefaultStoreIterForward(f, nil)

	row, ok := it.SeekExact(1)
	require.True(t, ok)
	require.Equal(t, "b", string(row))

	// Next after a SeekExact continues from the sought position.
	_, row2, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, "c", string(row2))
}

func TestDefaultIteratorSeekExactOutOfRange(t *testing.T) {
	f := &fakeIterable{rows: []string{"a"}}
	it := store.CreateDefaultStoreIterForward(f, nil)
	_, ok := it.SeekExact(5)
	require.False(t, ok)
}
