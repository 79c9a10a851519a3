// Package ordindex implements the ".nlt" index store: an ordered key ->
// RowId index backed by github.com/google/btree, persisted as a flat
// sorted entry list (spec §4.2, C2). It is a ReadableIndex, never a value
// Store a table column reads rows from directly.
package ordindex

import (
	"encoding/binary"
	"io"

	"github.com/erigontech/segstore/internal/ordindex"
	"github.com/erigontech/segstore/segerr"
	"github.com/erigontech/segstore/store"
)

func init() {
	store.MustRegister("nlt", func() store.Store { return New(0, true) })
}

// Store adapts an internal/ordindex.Index to the store.Store /
// store.ReadableIndex interfaces.
type Store struct {
	indexID int
	ix      *ordindex.Index
}

// New returns an empty ordered index store for indexID. unique selects
// SeekExact support; a multi index only supports range iteration.
func New(indexID int, unique bool) *Store {
	return &Store{indexID: indexID, ix: ordindex.New(unique)}
}

// FromIndex wraps an already-populated internal index, used when
// compaction rebuilds the on-disk index from the writable segment's
// in-memory one.
func FromIndex(indexID int, ix *ordindex.Index) *Store {
	return &Store{indexID: indexID, ix: ix}
}

func (s *Store) NumDataRows() int64     { return int64(s.ix.Len()) }
func (s *Store) DataStorageSize() int64 { return s.approxBytes() }
func (s *Store) DataInflateSize() int64 { return s.approxBytes() }

func (s *Store) approxBytes() int64 {
	var n int64
	for _, e := range s.ix.AscendAll() {
		n += int64(len(e.Key)) + 8
	}
	return n
}

// GetValueAppend has no meaning for an index store; a ReadableIndex is
// addressed by key, not by SubID, so this always reports OutOfRange.
func (s *Store) GetValueAppend(id store.SubID, out []byte, ctx store.Context) ([]byte, error) {
	return nil, segerr.OutOfRange(int64(id), 0)
}

func (s *Store) CreateStoreIterForward(ctx store.Context) store.Iterator {
	return &entryValueIterator{entries: s.ix.AscendAll()}
}

func (s *Store) CreateStoreIterBackward(ctx store.Context) store.Iterator {
	entries := s.ix.AscendAll()
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return &entryValueIterator{entries: entries}
}

func (s *Store) AsWritable() (store.Writable, bool)     { return nil, false }
func (s *Store) AsAppendable() (store.Appendable, bool) { return nil, false }
func (s *Store) AsUpdatable() (store.Updatable, bool)   { return nil, false }
func (s *Store) AsReadableIndex() (store.ReadableIndex, bool) {
	return s, true
}

func (s *Store) IndexID() int { return s.indexID }

func (s *Store) SeekExact(key []byte) (store.SubID, bool, error) {
	id, ok, err := s.ix.SeekExact(key)
	return store.SubID(id), ok, err
}

func (s *Store) SeekLowerBound(from []byte) (store.IndexIterator, error) {
	return &indexIteratorAdapter{it: s.ix.SeekLowerBound(from)}, nil
}

func (s *Store) NumIndexRows() int64 { return int64(s.ix.Len()) }
func (s *Store) StorageSize() int64  { return s.approxBytes() }

// on-disk layout: uint8 unique flag, uint32 n, then n entries of uint32
// keyLen, key bytes, int64 id.
func (s *Store) Save(fs store.FS, path string) error {
	f, err := fs.Create(path)
	if err != nil {
		return segerr.Io(path, err)
	}
	defer f.Close()

	entries := s.ix.AscendAll()
	var hdr [5]byte
	if s.ix.Unique() {
		hdr[0] = 1
	}
	binary.LittleEndian.PutUint32(hdr[1:5], uint32(len(entries)))
	if _, err := f.Write(hdr[:]); err != nil {
		return segerr.Io(path, err)
	}
	for _, e := range entries {
		var buf [12]byte
		binary.LittleEndian.PutUint32(buf[0:4], uint32(len(e.Key)))
		binary.LittleEndian.PutUint64(buf[4:12], uint64(e.ID))
		if _, err := f.Write(buf[:]); err != nil {
			return segerr.Io(path, err)
		}
		if _, err := f.Write(e.Key); err != nil {
			return segerr.Io(path, err)
		}
	}
	return nil
}

func (s *Store) Load(fs store.FS, path string) error {
	f, err := fs.Open(path)
	if err != nil {
		return segerr.Io(path, err)
	}
	defer f.Close()

	var hdr [5]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return segerr.Corruption(path, "truncated header")
	}
	unique := hdr[0] == 1
	n := binary.LittleEndian.Uint32(hdr[1:5])
	ix := ordindex.New(unique)
	for i := uint32(0); i < n; i++ {
		var buf [12]byte
		if _, err := io.ReadFull(f, buf[:]); err != nil {
			return segerr.Corruption(path, "truncated entry header")
		}
		klen := binary.LittleEndian.Uint32(buf[0:4])
		id := int64(binary.LittleEndian.Uint64(buf[4:12]))
		key := make([]byte, klen)
		if _, err := io.ReadFull(f, key); err != nil {
			return segerr.Corruption(path, "truncated key")
		}
		if err := ix.Insert(key, id); err != nil {
			return err
		}
	}
	s.ix = ix
	return nil
}

type entryValueIterator struct {
	entries []ordindex.Entry
	pos     int
}

func (it *entryValueIterator) Next() (store.SubID, []byte, bool) {
	if it.pos >= len(it.entries) {
		return 0, nil, false
	}
	e := it.entries[it.pos]
	it.pos++
	return store.SubID(e.ID), e.Key, true
}

func (it *entryValueIterator) SeekExact(id store.SubID) ([]byte, bool) {
	for _, e := range it.entries {
		if store.SubID(e.ID) == id {
			return e.Key, true
		}
	}
	return nil, false
}

func (it *entryValueIterator) Close() {}

type indexIteratorAdapter struct {
	it *ordindex.Iterator
}

func (a *indexIteratorAdapter) Next() (key []byte, id store.SubID, ok bool) {
	k, i, ok := a.it.Next()
	return k, store.SubID(i), ok
}

func (a *indexIteratorAdapter) Close() { a.it.Close() }
