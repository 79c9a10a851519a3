// Package zipped implements the ".zipped" value store: a readonly,
// whole-block zstd-compressed row container produced by compaction (spec
// §4.2, C2). It never implements Writable/Appendable/Updatable - once
// written it is immutable, matching the readonly segment it belongs to.
package zipped

import (
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/erigontech/segstore/segerr"
	"github.com/erigontech/segstore/store"
)

func init() {
	store.MustRegister("zipped", func() store.Store { return New() })
}

// Store holds every row's bytes concatenated and decompressed in memory,
// addressed by a prefix-sum offsets table. The on-disk form keeps the
// offsets table uncompressed and zstd-compresses only the row bytes, so
// Load never needs to scan the whole block just to find an offset.
type Store struct {
	offsets []int64 // len n+1
	data    []byte  // decompressed, len == offsets[n]
}

// New returns an empty zipped store; use BuildFromIterator to populate one
// from a source store during compaction.
func New() *Store { return &Store{offsets: []int64{0}} }

// BuildFromIterator drains it in forward order and returns a populated
// Store ready for Save. Tombstoned rows (it never yields them) are simply
// absent, so the built store has exactly as many rows as it produced.
func BuildFromIterator(it store.Iterator) (*Store, error) {
	s := &Store{offsets: []int64{0}}
	for {
		_, row, ok := it.Next()
		if !ok {
			break
		}
		s.data = append(s.data, row...)
		s.offsets = append(s.offsets, int64(len(s.data)))
	}
	return s, nil
}

func (s *Store) NumDataRows() int64 { return int64(len(s.offsets) - 1) }

func (s *Store) DataStorageSize() int64 { return int64(len(s.data)) }

func (s *Store) DataInflateSize() int64 { return int64(len(s.data)) }

func (s *Store) GetValueAppend(id store.SubID, out []byte, ctx store.Context) ([]byte, error) {
	n := s.NumDataRows()
	if id < 0 || int64(id) >= n {
		return nil, segerr.OutOfRange(int64(id), n)
	}
	from, to := s.offsets[id], s.offsets[id+1]
	return append(out, s.data[from:to]...), nil
}

func (s *Store) CreateStoreIterForward(ctx store.Context) store.Iterator {
	return store.CreateDefaultStoreIterForward(s, ctx)
}

func (s *Store) CreateStoreIterBackward(ctx store.Context) store.Iterator {
	return store.CreateDefaultStoreIterBackward(s, ctx)
}

func (s *Store) AsWritable() (store.Writable, bool)           { return nil, false }
func (s *Store) AsAppendable() (store.Appendable, bool)       { return nil, false }
func (s *Store) AsUpdatable() (store.Updatable, bool)         { return nil, false }
func (s *Store) AsReadableIndex() (store.ReadableIndex, bool) { return nil, false }

// on-disk layout: uint32 n, (n+1)*uint64 offsets, uint32 compressedLen,
// compressedLen bytes of zstd-compressed row data.
func (s *Store) Save(fs store.FS, path string) error {
	f, err := fs.Create(path)
	if err != nil {
		return segerr.Io(path, err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return segerr.Io(path, err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(s.data, nil)

	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(s.offsets)-1))
	if _, err := f.Write(hdr[:]); err != nil {
		return segerr.Io(path, err)
	}
	offBuf := make([]byte, 8*len(s.offsets))
	for i, o := range s.offsets {
		binary.LittleEndian.PutUint64(offBuf[i*8:], uint64(o))
	}
	if _, err := f.Write(offBuf); err != nil {
		return segerr.Io(path, err)
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(compressed)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		return segerr.Io(path, err)
	}
	if _, err := f.Write(compressed); err != nil {
		return segerr.Io(path, err)
	}
	return nil
}

func (s *Store) Load(fs store.FS, path string) error {
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
	offBuf := make([]byte, 8*(n+1))
	if _, err := io.ReadFull(f, offBuf); err != nil {
		return segerr.Corruption(path, "truncated offsets table")
	}
	offsets := make([]int64, n+1)
	for i := range offsets {
		offsets[i] = int64(binary.LittleEndian.Uint64(offBuf[i*8:]))
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		return segerr.Corruption(path, "truncated compressed length")
	}
	compressed := make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(f, compressed); err != nil {
		return segerr.Corruption(path, "truncated compressed body")
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return segerr.Io(path, err)
	}
	defer dec.Close()
	data, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return segerr.Corruption(path, "zstd decode failed: "+err.Error())
	}

	s.offsets = offsets
	s.data = data
	return nil
}
