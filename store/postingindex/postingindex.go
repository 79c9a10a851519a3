// Package postingindex implements two roaring-bitmap-backed stores (spec
// §4.2, C2): ".bitmap", a segment's delete/tombstone set, and ".seq", a
// posting-list index mapping a projected key to the set of row ids sharing
// it. Both are grounded on github.com/RoaringBitmap/roaring/v2, the
// compressed-bitmap library the wider pack reaches for wherever it needs a
// set of integers.
package postingindex

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/erigontech/segstore/segerr"
	"github.com/erigontech/segstore/store"
)

func init() {
	store.MustRegister("bitmap", func() store.Store { return NewBitmapStore() })
	store.MustRegister("seq", func() store.Store { return NewSeqStore(0) })
}

// BitmapStore tracks which SubIDs in a segment's value store are
// tombstoned. A readonly segment carries one per spec §4.5 so compaction
// can skip dead rows without mutating the immutable value stores.
type BitmapStore struct {
	bm *roaring.Bitmap
}

func NewBitmapStore() *BitmapStore { return &BitmapStore{bm: roaring.New()} }

func (b *BitmapStore) IsTombstoned(id store.SubID) bool { return b.bm.Contains(uint32(id)) }

func (b *BitmapStore) Tombstone(id store.SubID) { b.bm.Add(uint32(id)) }

func (b *BitmapStore) Undelete(id store.SubID) { b.bm.Remove(uint32(id)) }

func (b *BitmapStore) Cardinality() int64 { return int64(b.bm.GetCardinality()) }

func (b *BitmapStore) NumDataRows() int64     { return int64(b.bm.GetCardinality()) }
func (b *BitmapStore) DataStorageSize() int64 { return int64(b.bm.GetSerializedSizeInBytes()) }
func (b *BitmapStore) DataInflateSize() int64 { return int64(b.bm.GetSerializedSizeInBytes()) }

func (b *BitmapStore) GetValueAppend(id store.SubID, out []byte, ctx store.Context) ([]byte, error) {
	var flag byte
	if b.IsTombstoned(id) {
		flag = 1
	}
	return append(out, flag), nil
}

func (b *BitmapStore) CreateStoreIterForward(ctx store.Context) store.Iterator {
	it := b.bm.Iterator()
	return &bitmapIterator{it: it}
}

func (b *BitmapStore) CreateStoreIterBackward(ctx store.Context) store.Iterator {
	it := b.bm.ReverseIterator()
	return &bitmapIterator{it: it}
}

func (b *BitmapStore) AsWritable() (store.Writable, bool)           { return nil, false }
func (b *BitmapStore) AsAppendable() (store.Appendable, bool)       { return nil, false }
func (b *BitmapStore) AsUpdatable() (store.Updatable, bool)         { return b, true }
func (b *BitmapStore) AsReadableIndex() (store.ReadableIndex, bool) { return nil, false }

// Update sets or clears the tombstone flag for id; row[0] != 0 tombstones
// it. This exposes the bitmap through the same Updatable capability other
// stores offer (spec §4.2); the table's own remove path calls Tombstone
// directly.
func (b *BitmapStore) Update(id store.SubID, row []byte, ctx store.Context) error {
	if len(row) == 0 {
		return segerr.InvariantViolated("postingindex: empty update row")
	}
	if row[0] != 0 {
		b.Tombstone(id)
	} else {
		b.Undelete(id)
	}
	return nil
}

func (b *BitmapStore) Save(fs store.FS, path string) error {
	f, err := fs.Create(path)
	if err != nil {
		return segerr.Io(path, err)
	}
	defer f.Close()
	if _, err := b.bm.WriteTo(f); err != nil {
		return segerr.Io(path, err)
	}
	return nil
}

func (b *BitmapStore) Load(fs store.FS, path string) error {
	exists, err := store.Exists(fs, path)
	if err != nil {
		return segerr.Io(path, err)
	}
	if !exists {
		b.bm = roaring.New()
		return nil
	}
	f, err := fs.Open(path)
	if err != nil {
		return segerr.Io(path, err)
	}
	defer f.Close()
	bm := roaring.New()
	if _, err := bm.ReadFrom(f); err != nil {
		return segerr.Corruption(path, "roaring decode failed: "+err.Error())
	}
	b.bm = bm
	return nil
}

type bitmapIterator struct {
	it roaring.IntPeekable
}

func (it *bitmapIterator) Next() (store.SubID, []byte, bool) {
	if !it.it.HasNext() {
		return 0, nil, false
	}
	v := it.it.Next()
	return store.SubID(v), []byte{1}, true
}

func (it *bitmapIterator) SeekExact(id store.SubID) ([]byte, bool) { return nil, false }
func (it *bitmapIterator) Close()                                  {}

// SeqStore is a posting-list index: a projected key maps to the sorted set
// of row ids that produced it, for multi-valued secondary indices that
// don't need the full ordering internal/ordindex provides.
type SeqStore struct {
	indexID int
	postings map[string]*roaring.Bitmap
	keys     [][]byte // insertion order kept sorted lazily via Save
}

func NewSeqStore(indexID int) *SeqStore {
	return &SeqStore{indexID: indexID, postings: map[string]*roaring.Bitmap{}}
}

func (s *SeqStore) IndexID() int { return s.indexID }

func (s *SeqStore) Add(key []byte, id store.SubID) {
	bm, ok := s.postings[string(key)]
	if !ok {
		bm = roaring.New()
		s.postings[string(key)] = bm
		s.keys = append(s.keys, append([]byte(nil), key...))
	}
	bm.Add(uint32(id))
}

func (s *SeqStore) Remove(key []byte, id store.SubID) {
	if bm, ok := s.postings[string(key)]; ok {
		bm.Remove(uint32(id))
	}
}

func (s *SeqStore) Posting(key []byte) (*roaring.Bitmap, bool) {
	bm, ok := s.postings[string(key)]
	return bm, ok
}

func (s *SeqStore) NumDataRows() int64 { return int64(len(s.postings)) }

func (s *SeqStore) DataStorageSize() int64 {
	var n int64
	for _, bm := range s.postings {
		n += int64(bm.GetSerializedSizeInBytes())
	}
	return n
}

func (s *SeqStore) DataInflateSize() int64 { return s.DataStorageSize() }

func (s *SeqStore) GetValueAppend(id store.SubID, out []byte, ctx store.Context) ([]byte, error) {
	return nil, segerr.OutOfRange(int64(id), 0)
}

func (s *SeqStore) sortedKeys() [][]byte {
	keys := append([][]byte(nil), s.keys...)
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	return keys
}

func (s *SeqStore) CreateStoreIterForward(ctx store.Context) store.Iterator {
	return &seqIterator{s: s, keys: s.sortedKeys()}
}

func (s *SeqStore) CreateStoreIterBackward(ctx store.Context) store.Iterator {
	keys := s.sortedKeys()
	for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
		keys[i], keys[j] = keys[j], keys[i]
	}
	return &seqIterator{s: s, keys: keys}
}

func (s *SeqStore) AsWritable() (store.Writable, bool)           { return nil, false }
func (s *SeqStore) AsAppendable() (store.Appendable, bool)       { return nil, false }
func (s *SeqStore) AsUpdatable() (store.Updatable, bool)         { return nil, false }
func (s *SeqStore) AsReadableIndex() (store.ReadableIndex, bool) { return nil, false }

func (s *SeqStore) Save(fs store.FS, path string) error {
	f, err := fs.Create(path)
	if err != nil {
		return segerr.Io(path, err)
	}
	defer f.Close()

	keys := s.sortedKeys()
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(keys)))
	if _, err := f.Write(hdr[:]); err != nil {
		return segerr.Io(path, err)
	}
	for _, k := range keys {
		bm := s.postings[string(k)]
		bmBytes, err := bm.ToBytes()
		if err != nil {
			return segerr.Io(path, err)
		}
		var lens [8]byte
		binary.LittleEndian.PutUint32(lens[0:4], uint32(len(k)))
		binary.LittleEndian.PutUint32(lens[4:8], uint32(len(bmBytes)))
		if _, err := f.Write(lens[:]); err != nil {
			return segerr.Io(path, err)
		}
		if _, err := f.Write(k); err != nil {
			return segerr.Io(path, err)
		}
		if _, err := f.Write(bmBytes); err != nil {
			return segerr.Io(path, err)
		}
	}
	return nil
}

func (s *SeqStore) Load(fs store.FS, path string) error {
	exists, err := store.Exists(fs, path)
	if err != nil {
		return segerr.Io(path, err)
	}
	postings := map[string]*roaring.Bitmap{}
	var keys [][]byte
	if !exists {
		s.postings, s.keys = postings, keys
		return nil
	}
	f, err := fs.Open(path)
	if err != nil {
		return segerr.Io(path, err)
	}
	defer f.Close()

	var hdr [4]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return segerr.Corruption(path, "truncated header")
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	for i := uint32(0); i < n; i++ {
		var lens [8]byte
		if _, err := io.ReadFull(f, lens[:]); err != nil {
			return segerr.Corruption(path, "truncated entry header")
		}
		klen := binary.LittleEndian.Uint32(lens[0:4])
		blen := binary.LittleEndian.Uint32(lens[4:8])
		k := make([]byte, klen)
		if _, err := io.ReadFull(f, k); err != nil {
			return segerr.Corruption(path, "truncated key")
		}
		bmBytes := make([]byte, blen)
		if _, err := io.ReadFull(f, bmBytes); err != nil {
			return segerr.Corruption(path, "truncated bitmap")
		}
		bm := roaring.New()
		if err := bm.UnmarshalBinary(bmBytes); err != nil {
			return segerr.Corruption(path, "roaring unmarshal failed: "+err.Error())
		}
		postings[string(k)] = bm
		keys = append(keys, k)
	}
	s.postings, s.keys = postings, keys
	return nil
}

type seqIterator struct {
	s    *SeqStore
	keys [][]byte
	pos  int
}

func (it *seqIterator) Next() (store.SubID, []byte, bool) {
	if it.pos >= len(it.keys) {
		return 0, nil, false
	}
	k := it.keys[it.pos]
	it.pos++
	return store.SubID(it.pos - 1), k, true
}

func (it *seqIterator) SeekExact(id store.SubID) ([]byte, bool) {
	if id < 0 || int64(id) >= int64(len(it.keys)) {
		return nil, false
	}
	return it.keys[id], true
}

func (it *seqIterator) Close() {}
