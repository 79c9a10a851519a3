// Package fixlen implements the ".fixlen" value store: a fixed-width
// record store that mmaps its backing file when running against a real
// filesystem, and promotes itself to a variable-width in-memory layout the
// first time Update sees a row of a different length (spec §4.2:
// "Updatable ... may promote the underlying layout ... on first
// non-compatible update").
package fixlen

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/spf13/afero"

	"github.com/erigontech/segstore/segerr"
	"github.com/erigontech/segstore/store"
)

func init() {
	store.MustRegister("fixlen", func() store.Store { return New() })
}

// Store is a fixed-width record store that promotes to variable-width rows
// in memory on the first incompatible Update.
type Store struct {
	mu         sync.RWMutex
	recordSize int
	promoted   bool

	fixed    []byte   // recordSize*n bytes, valid while !promoted
	variable [][]byte // valid once promoted; index-aligned with fixed rows at promotion time
	n        int

	mmap mmap.MMap // non-nil when fixed bytes are backed by a real mmap
}

// New returns an empty fixed-width store; its record size is fixed by the
// first Append.
func New() *Store { return &Store{} }

func (s *Store) NumDataRows() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(s.n)
}

func (s *Store) DataStorageSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.promoted {
		return int64(len(s.fixed))
	}
	var total int64
	for _, r := range s.variable {
		total += int64(len(r))
	}
	return total
}

func (s *Store) DataInflateSize() int64 { return s.DataStorageSize() }

func (s *Store) GetValueAppend(id store.SubID, out []byte, ctx store.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || int64(id) >= int64(s.n) {
		return nil, segerr.OutOfRange(int64(id), int64(s.n))
	}
	if s.promoted {
		row := s.variable[id]
		if row == nil {
			return nil, segerr.InvariantViolated("read of tombstoned row")
		}
		return append(out, row...), nil
	}
	off := int(id) * s.recordSize
	return append(out, s.fixed[off:off+s.recordSize]...), nil
}

func (s *Store) Append(row []byte, ctx store.Context) (store.SubID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.promoted {
		s.variable = append(s.variable, append([]byte(nil), row...))
		s.n++
		return store.SubID(s.n - 1), nil
	}
	if s.recordSize == 0 {
		s.recordSize = len(row)
	}
	if len(row) != s.recordSize {
		return 0, segerr.UnsupportedOperation("fixlen: Append with mismatched record size; use Update to promote")
	}
	s.fixed = append(s.fixed, row...)
	s.n++
	return store.SubID(s.n - 1), nil
}

// Update writes row at id, promoting the store to variable-width storage
// the first time row's length differs from the established record size.
func (s *Store) Update(id store.SubID, row []byte, ctx store.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || int64(id) >= int64(s.n) {
		return segerr.OutOfRange(int64(id), int64(s.n))
	}
	if !s.promoted && len(row) == s.recordSize {
		off := int(id) * s.recordSize
		copy(s.fixed[off:off+s.recordSize], row)
		return nil
	}
	s.promote()
	s.variable[id] = append([]byte(nil), row...)
	return nil
}

func (s *Store) promote() {
	if s.promoted {
		return
	}
	s.variable = make([][]byte, s.n)
	for i := 0; i < s.n; i++ {
		off := i * s.recordSize
		s.variable[i] = append([]byte(nil), s.fixed[off:off+s.recordSize]...)
	}
	if s.mmap != nil {
		_ = s.mmap.Unmap()
		s.mmap = nil
	}
	s.fixed = nil
	s.promoted = true
}

func (s *Store) CreateStoreIterForward(ctx store.Context) store.Iterator {
	return store.CreateDefaultStoreIterForward(s, ctx)
}

func (s *Store) CreateStoreIterBackward(ctx store.Context) store.Iterator {
	return store.CreateDefaultStoreIterBackward(s, ctx)
}

func (s *Store) AsWritable() (store.Writable, bool)           { return nil, false }
func (s *Store) AsAppendable() (store.Appendable, bool)       { return s, true }
func (s *Store) AsUpdatable() (store.Updatable, bool)         { return s, true }
func (s *Store) AsReadableIndex() (store.ReadableIndex, bool) { return nil, false }

// on-disk layout: uint8 promoted flag, uint32 recordSize, uint32 n, then
// either n*recordSize raw bytes (fixed) or the mockstore-style
// length-prefixed records (promoted), with 0xFFFFFFFF marking a tombstone.
const tombstoneLen = 0xFFFFFFFF

func (s *Store) Save(fs store.FS, path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, err := fs.Create(path)
	if err != nil {
		return segerr.Io(path, err)
	}
	defer f.Close()

	var hdr [9]byte
	if s.promoted {
		hdr[0] = 1
	}
	binary.LittleEndian.PutUint32(hdr[1:5], uint32(s.recordSize))
	binary.LittleEndian.PutUint32(hdr[5:9], uint32(s.n))
	if _, err := f.Write(hdr[:]); err != nil {
		return segerr.Io(path, err)
	}
	if !s.promoted {
		if _, err := f.Write(s.fixed); err != nil {
			return segerr.Io(path, err)
		}
		return nil
	}
	for _, row := range s.variable {
		var lenBuf [4]byte
		if row == nil {
			binary.LittleEndian.PutUint32(lenBuf[:], tombstoneLen)
			if _, err := f.Write(lenBuf[:]); err != nil {
				return segerr.Io(path, err)
			}
			continue
		}
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(row)))
		if _, err := f.Write(lenBuf[:]); err != nil {
			return segerr.Io(path, err)
		}
		if _, err := f.Write(row); err != nil {
			return segerr.Io(path, err)
		}
	}
	return nil
}

func (s *Store) Load(fs store.FS, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fs.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return segerr.Io(path, err)
	}

	// Prefer a real mmap when running against the OS filesystem and the
	// on-disk layout is fixed-width: the common case for a readonly
	// segment's value store.
	if _, ok := fs.(*afero.OsFs); ok {
		if err := s.loadMmap(path); err == nil {
			return nil
		}
	}
	return s.loadBuffered(fs, path)
}

func (s *Store) loadMmap(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	hdr := make([]byte, 9)
	if _, err := io.ReadFull(f, hdr); err != nil {
		f.Close()
		return err
	}
	if hdr[0] == 1 {
		f.Close()
		return errPromotedNeedsBuffered
	}
	recordSize := int(binary.LittleEndian.Uint32(hdr[1:5]))
	n := int(binary.LittleEndian.Uint32(hdr[5:9]))
	if recordSize == 0 || n == 0 {
		f.Close()
		s.recordSize, s.n = recordSize, n
		return nil
	}
	m, err := mmap.MapRegion(f, recordSize*n, mmap.RDONLY, 0, 9)
	if err != nil {
		f.Close()
		return err
	}
	s.mmap = m
	s.fixed = m
	s.recordSize = recordSize
	s.n = n
	s.promoted = false
	return nil
}

var errPromotedNeedsBuffered = segerr.UnsupportedOperation("fixlen: promoted layout requires buffered load")

func (s *Store) loadBuffered(fs store.FS, path string) error {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return segerr.Io(path, err)
	}
	if len(b) < 9 {
		return segerr.Corruption(path, "truncated header")
	}
	promoted := b[0] == 1
	recordSize := int(binary.LittleEndian.Uint32(b[1:5]))
	n := int(binary.LittleEndian.Uint32(b[5:9]))
	body := b[9:]
	s.recordSize, s.n, s.promoted = recordSize, n, promoted
	if !promoted {
		need := recordSize * n
		if len(body) < need {
			return segerr.Corruption(path, "truncated fixed body")
		}
		s.fixed = append([]byte(nil), body[:need]...)
		return nil
	}
	rows := make([][]byte, n)
	pos := 0
	for i := 0; i < n; i++ {
		if pos+4 > len(body) {
			return segerr.Corruption(path, "truncated row length")
		}
		l := binary.LittleEndian.Uint32(body[pos : pos+4])
		pos += 4
		if l == tombstoneLen {
			continue
		}
		if pos+int(l) > len(body) {
			return segerr.Corruption(path, "truncated row body")
		}
		rows[i] = append([]byte(nil), body[pos:pos+int(l)]...)
		pos += int(l)
	}
	s.variable = rows
	return nil
}
