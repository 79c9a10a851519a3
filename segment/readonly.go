package segment

import (
	"fmt"

	"github.com/erigontech/segstore/schema"
	"github.com/erigontech/segstore/segerr"
	"github.com/erigontech/segstore/store"
	"github.com/erigontech/segstore/store/postingindex"
)

// Readonly is an immutable, persisted segment: one value store plus one
// ReadableIndex per declared index, and a delete-bitmap recording
// tombstones left by the table after the segment was sealed (spec §4.5).
type Readonly struct {
	valueStore store.Store
	indices    map[int]store.ReadableIndex
	delBitmap  *postingindex.BitmapStore
}

// NewReadonly wraps an already-built value store and index set, as
// produced by compaction.
func NewReadonly(valueStore store.Store, indices map[int]store.ReadableIndex) *Readonly {
	return &Readonly{valueStore: valueStore, indices: indices, delBitmap: postingindex.NewBitmapStore()}
}

func (r *Readonly) NumDataRows() int64 { return r.valueStore.NumDataRows() }

func (r *Readonly) DataStorageSize() int64 {
	n := r.valueStore.DataStorageSize()
	for _, ix := range r.indices {
		n += ix.StorageSize()
	}
	return n
}

// GetValue returns the row at subId, or InvariantViolated if it has been
// tombstoned since the segment was sealed.
func (r *Readonly) GetValue(id store.SubID, ctx store.Context) ([]byte, error) {
	if r.delBitmap.IsTombstoned(id) {
		return nil, segerr.InvariantViolated("read of tombstoned row")
	}
	return r.valueStore.GetValueAppend(id, nil, ctx)
}

func (r *Readonly) IsTombstoned(id store.SubID) bool { return r.delBitmap.IsTombstoned(id) }

// Tombstone marks id deleted. The table calls this for removes landing on
// a readonly segment (spec §4.6.5); the value store itself is untouched.
func (r *Readonly) Tombstone(id store.SubID) { r.delBitmap.Tombstone(id) }

func (r *Readonly) IndexFor(indexID int) (store.ReadableIndex, bool) {
	ix, ok := r.indices[indexID]
	return ix, ok
}

// SeekExact looks up key in the unique index indexID, reporting a miss for
// a tombstoned hit exactly like a row that was never present (spec §4.6.3:
// "a hit ... that is not a tombstoned row is a conflict").
func (r *Readonly) SeekExact(indexID int, key []byte) (store.SubID, bool, error) {
	ix, ok := r.indices[indexID]
	if !ok {
		return 0, false, segerr.UnsupportedOperation(fmt.Sprintf("segment: no index %d", indexID))
	}
	id, found, err := ix.SeekExact(key)
	if err != nil || !found {
		return 0, false, err
	}
	if r.IsTombstoned(id) {
		return 0, false, nil
	}
	return id, true, nil
}

// CreateIterForward walks live rows in ascending SubId order.
func (r *Readonly) CreateIterForward(ctx store.Context) store.Iterator {
	return &tombstoneFilterIterator{inner: r.valueStore.CreateStoreIterForward(ctx), del: r.delBitmap}
}

func (r *Readonly) CreateIterBackward(ctx store.Context) store.Iterator {
	return &tombstoneFilterIterator{inner: r.valueStore.CreateStoreIterBackward(ctx), del: r.delBitmap}
}

// Save persists the value store, every index, and the delete-bitmap under
// dir, then writes the segment manifest (spec §6). The value store file
// always carries the ".zipped" suffix: compaction always builds a
// zipped.Store, so the on-disk suffix must match what Load will dispatch
// through the registry.
func (r *Readonly) Save(fs store.FS, dir string, sch schema.Schema) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return segerr.Io(dir, err)
	}
	valueFile := "data.zipped"
	if err := r.valueStore.Save(fs, dir+"/"+valueFile); err != nil {
		return err
	}

	m := Manifest{ValueStoreFile: valueFile}
	for id, ix := range r.indices {
		def, ok := indexDefByID(sch, id)
		name := fmt.Sprintf("idx-%d", id)
		if ok {
			name = def.Name
		}
		asStore, ok := ix.(store.Store)
		if !ok {
			return segerr.InvariantViolated("segment: readable index does not implement Store")
		}
		fname := fmt.Sprintf("idx-%d.nlt", id)
		if err := asStore.Save(fs, dir+"/"+fname); err != nil {
			return err
		}
		m.Indices = append(m.Indices, IndexFile{IndexID: id, Name: name, FileName: fname})
	}
	if r.delBitmap.Cardinality() > 0 {
		m.DeleteBitmap = "isDel.rs"
		if err := r.delBitmap.Save(fs, dir+"/"+m.DeleteBitmap); err != nil {
			return err
		}
	}
	return saveManifest(fs, dir, m)
}

// LoadReadonly opens a persisted segment directory, dispatching every file
// through the store registry (C1) by its suffix.
func LoadReadonly(fs store.FS, dir string) (*Readonly, error) {
	m, err := loadManifest(fs, dir)
	if err != nil {
		return nil, err
	}
	valueStore, err := store.OpenStore(fs, dir, m.ValueStoreFile)
	if err != nil {
		return nil, err
	}
	indices := map[int]store.ReadableIndex{}
	for _, f := range m.Indices {
		s, err := store.OpenStore(fs, dir, f.FileName)
		if err != nil {
			return nil, err
		}
		ix, ok := s.AsReadableIndex()
		if !ok {
			return nil, segerr.Corruption(dir, fmt.Sprintf("file %s is not a readable index", f.FileName))
		}
		indices[f.IndexID] = ix
	}
	del := postingindex.NewBitmapStore()
	if m.DeleteBitmap != "" {
		if err := del.Load(fs, dir+"/"+m.DeleteBitmap); err != nil {
			return nil, err
		}
	}
	return &Readonly{valueStore: valueStore, indices: indices, delBitmap: del}, nil
}

type tombstoneFilterIterator struct {
	inner store.Iterator
	del   *postingindex.BitmapStore
}

func (it *tombstoneFilterIterator) Next() (store.SubID, []byte, bool) {
	for {
		id, row, ok := it.inner.Next()
		if !ok {
			return 0, nil, false
		}
		if it.del.IsTombstoned(id) {
			continue
		}
		return id, row, true
	}
}

func (it *tombstoneFilterIterator) SeekExact(id store.SubID) ([]byte, bool) {
	if it.del.IsTombstoned(id) {
		return nil, false
	}
	return it.inner.SeekExact(id)
}

func (it *tombstoneFilterIterator) Close() { it.inner.Close() }
