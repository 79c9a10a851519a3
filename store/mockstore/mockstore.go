// Package mockstore implements the ".mock" value store: an in-memory
// slice-of-rows container used by tests and by the writable segment before
// compaction promotes rows into a compressed on-disk layout.
//
// Grounded on the in-memory container shape of
// other_examples/8c8d646b_moby-moby__vendor-github.com-hashicorp-go-memdb-txn.go
// (a plain slice/map backing store, no MVCC - the table's own segments
// already provide the versioning this engine needs).
package mockstore

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/erigontech/segstore/segerr"
	"github.com/erigontech/segstore/store"
)

func init() {
	store.MustRegister("mock", func() store.Store { return New() })
}

// Store is a trivial in-memory value store. Tombstoned rows keep their slot
// (nil) so SubIDs are never recycled, matching spec §4.5.
type Store struct {
	mu   sync.RWMutex
	rows [][]byte
}

// New returns an empty mock store.
func New() *Store { return &Store{} }

func (s *Store) NumDataRows() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.rows))
}

func (s *Store) DataStorageSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, r := range s.rows {
		n += int64(len(r))
	}
	return n
}

func (s *Store) DataInflateSize() int64 { return s.DataStorageSize() }

func (s *Store) GetValueAppend(id store.SubID, out []byte, ctx store.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || int64(id) >= int64(len(s.rows)) {
		return nil, segerr.OutOfRange(int64(id), int64(len(s.rows)))
	}
	row := s.rows[id]
	if row == nil {
		return nil, segerr.InvariantViolated("read of tombstoned row")
	}
	return append(out, row...), nil
}

func (s *Store) Append(row []byte, ctx store.Context) (store.SubID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := store.SubID(len(s.rows))
	s.rows = append(s.rows, append([]byte(nil), row...))
	return id, nil
}

func (s *Store) Remove(id store.SubID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || int64(id) >= int64(len(s.rows)) {
		return segerr.OutOfRange(int64(id), int64(len(s.rows)))
	}
	s.rows[id] = nil
	return nil
}

func (s *Store) Replace(id store.SubID, row []byte, ctx store.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || int64(id) >= int64(len(s.rows)) {
		return segerr.OutOfRange(int64(id), int64(len(s.rows)))
	}
	s.rows[id] = append([]byte(nil), row...)
	return nil
}

func (s *Store) Update(id store.SubID, row []byte, ctx store.Context) error {
	return s.Replace(id, row, ctx)
}

func (s *Store) CreateStoreIterForward(ctx store.Context) store.Iterator {
	return store.CreateDefaultStoreIterForward(s, ctx)
}

func (s *Store) CreateStoreIterBackward(ctx store.Context) store.Iterator {
	return store.CreateDefaultStoreIterBackward(s, ctx)
}

func (s *Store) AsWritable() (store.Writable, bool)     { return s, true }
func (s *Store) AsAppendable() (store.Appendable, bool) { return s, true }
func (s *Store) AsUpdatable() (store.Updatable, bool)   { return s, true }
func (s *Store) AsReadableIndex() (store.ReadableIndex, bool) {
	return nil, false
}

// wire format: uint32 row count, then per row: uint32 length (MaxUint32
// sentinel for a tombstoned slot) followed by the bytes.
const tombstoneLen = 0xFFFFFFFF

func (s *Store) Save(fs store.FS, path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, err := fs.Create(path)
	if err != nil {
		return segerr.Io(path, err)
	}
	defer f.Close()

	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(s.rows)))
	if _, err := f.Write(hdr[:]); err != nil {
		return segerr.Io(path, err)
	}
	for _, row := range s.rows {
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
	exists, err := store.Exists(fs, path)
	if err != nil {
		return segerr.Io(path, err)
	}
	if !exists {
		s.rows = nil
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
	count := binary.LittleEndian.Uint32(hdr[:])
	rows := make([][]byte, count)
	for i := range rows {
		var lenBuf [4]byte
		if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
			return segerr.Corruption(path, "truncated row length")
		}
		l := binary.LittleEndian.Uint32(lenBuf[:])
		if l == tombstoneLen {
			continue
		}
		buf := make([]byte, l)
		if _, err := io.ReadFull(f, buf); err != nil {
			return segerr.Corruption(path, "truncated row body")
		}
		rows[i] = buf
	}
	s.rows = rows
	return nil
}

