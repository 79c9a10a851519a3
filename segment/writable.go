package segment

import (
	"fmt"

	"github.com/erigontech/segstore/internal/ordindex"
	"github.com/erigontech/segstore/schema"
	"github.com/erigontech/segstore/segerr"
	"github.com/erigontech/segstore/store"
	"github.com/erigontech/segstore/store/mockstore"
	storeOrdIndex "github.com/erigontech/segstore/store/ordindex"
	"github.com/erigontech/segstore/store/postingindex"
)

// Writable is the one mutable segment a table may hold at a time (spec
// §4.5). It owns a writable value store and one in-memory ordered index
// per declared column, built and maintained incrementally. Once frozen
// (the window between rollover and compaction, spec §4.6.6/§4.6.7) it
// behaves like a Readonly segment for mutation purposes: a remove records
// a delete-bitmap tombstone instead of touching the value store or
// indices, and Insert and Replace are rejected.
type Writable struct {
	values    store.Writable
	valueSt   store.Store
	sch       schema.Schema
	indices   map[int]*ordindex.Index
	frozen    bool
	delBitmap *postingindex.BitmapStore
}

// NewWritable returns an empty writable segment backed by the in-memory
// mock value store (promoted to a compressed store only at compaction
// time; spec §4.5 leaves the concrete writable value store codec to the
// embedder, and the mock store is this engine's default).
func NewWritable(sch schema.Schema) *Writable {
	ms := mockstore.New()
	w, _ := ms.AsWritable()
	indices := map[int]*ordindex.Index{}
	for _, def := range sch.Indices() {
		indices[def.ID] = ordindex.New(def.Kind == schema.Unique)
	}
	return &Writable{values: w, valueSt: ms, sch: sch, indices: indices, delBitmap: postingindex.NewBitmapStore()}
}

func (w *Writable) NumDataRows() int64     { return w.valueSt.NumDataRows() }
func (w *Writable) DataStorageSize() int64 { return w.valueSt.DataStorageSize() }
func (w *Writable) Frozen() bool           { return w.frozen }
func (w *Writable) Freeze()                { w.frozen = true }

func (w *Writable) IsTombstoned(id store.SubID) bool { return w.delBitmap.IsTombstoned(id) }

// Tombstone marks id deleted without touching the value store or indices,
// the frozen-segment counterpart of Readonly.Tombstone.
func (w *Writable) Tombstone(id store.SubID) { w.delBitmap.Tombstone(id) }

func (w *Writable) GetValue(id store.SubID, ctx store.Context) ([]byte, error) {
	if w.delBitmap.IsTombstoned(id) {
		return nil, segerr.InvariantViolated("read of tombstoned row")
	}
	return w.valueSt.GetValueAppend(id, nil, ctx)
}

// Insert appends row and synchronises every declared index (spec §4.5).
func (w *Writable) Insert(row []byte, ctx store.Context) (store.SubID, error) {
	if w.frozen {
		return 0, segerr.InvariantViolated("segment: insert on frozen writable segment")
	}
	id, err := w.values.Append(row, ctx)
	if err != nil {
		return 0, err
	}
	for _, def := range w.sch.Indices() {
		key, err := w.sch.ProjectIndex(row, def.ID)
		if err != nil {
			return 0, err
		}
		if err := w.indices[def.ID].Insert(key, int64(id)); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// Remove tombstones id's value-store slot and drops its index entries
// (spec §4.5: "removes key entries from each index"). A frozen segment
// (queued for compaction but not yet compacted) cannot have its value
// store or indices mutated, so the row is recorded in the delete-bitmap
// instead, exactly like a remove landing on a Readonly segment.
func (w *Writable) Remove(id store.SubID, ctx store.Context) error {
	if w.frozen {
		w.delBitmap.Tombstone(id)
		return nil
	}
	row, err := w.valueSt.GetValueAppend(id, nil, ctx)
	if err != nil {
		return err
	}
	for _, def := range w.sch.Indices() {
		key, perr := w.sch.ProjectIndex(row, def.ID)
		if perr != nil {
			return perr
		}
		w.indices[def.ID].Remove(key, int64(id))
	}
	return w.values.Remove(id)
}

// Replace updates id's value and, for every column whose projected key
// changed, moves its index entry (spec §4.5).
func (w *Writable) Replace(id store.SubID, newRow []byte, ctx store.Context) error {
	if w.frozen {
		return segerr.InvariantViolated("segment: replace on frozen writable segment")
	}
	oldRow, err := w.valueSt.GetValueAppend(id, nil, ctx)
	if err != nil {
		return err
	}
	for _, def := range w.sch.Indices() {
		oldKey, err := w.sch.ProjectIndex(oldRow, def.ID)
		if err != nil {
			return err
		}
		newKey, err := w.sch.ProjectIndex(newRow, def.ID)
		if err != nil {
			return err
		}
		if string(oldKey) == string(newKey) {
			continue
		}
		if err := w.indices[def.ID].Replace(oldKey, newKey, int64(id)); err != nil {
			return err
		}
	}
	return w.values.Replace(id, newRow, ctx)
}

// SeekExact looks up key in the in-memory unique index indexID, reporting
// a miss for a hit that was frozen-tombstoned since the index was last
// touched (mirrors Readonly.SeekExact).
func (w *Writable) SeekExact(indexID int, key []byte) (store.SubID, bool, error) {
	ix, ok := w.indices[indexID]
	if !ok {
		return 0, false, segerr.UnsupportedOperation(fmt.Sprintf("segment: no index %d", indexID))
	}
	id, found, err := ix.SeekExact(key)
	if err != nil || !found {
		return 0, false, err
	}
	if w.delBitmap.IsTombstoned(store.SubID(id)) {
		return 0, false, nil
	}
	return store.SubID(id), true, nil
}

func (w *Writable) IndexFor(indexID int) (*ordindex.Index, bool) {
	ix, ok := w.indices[indexID]
	return ix, ok
}

// CreateIterForward scans live rows in ascending SubId order, skipping
// slots removed in place (the mock store signals those with an error
// rather than an explicit bitmap) and slots frozen-tombstoned via
// delBitmap.
func (w *Writable) CreateIterForward(ctx store.Context) store.Iterator {
	return &writableIterator{w: w, ctx: ctx, cur: -1, forward: true}
}

func (w *Writable) CreateIterBackward(ctx store.Context) store.Iterator {
	return &writableIterator{w: w, ctx: ctx, cur: store.SubID(w.NumDataRows()), forward: false}
}

type writableIterator struct {
	w       *Writable
	ctx     store.Context
	cur     store.SubID
	forward bool
}

func (it *writableIterator) Next() (store.SubID, []byte, bool) {
	n := store.SubID(it.w.NumDataRows())
	for {
		if it.forward {
			it.cur++
			if it.cur >= n {
				return 0, nil, false
			}
		} else {
			it.cur--
			if it.cur < 0 {
				return 0, nil, false
			}
		}
		if it.w.delBitmap.IsTombstoned(it.cur) {
			continue
		}
		row, err := it.w.valueSt.GetValueAppend(it.cur, nil, it.ctx)
		if err != nil {
			continue // removed-in-place slot
		}
		return it.cur, row, true
	}
}

func (it *writableIterator) SeekExact(id store.SubID) ([]byte, bool) {
	if it.w.delBitmap.IsTombstoned(id) {
		return nil, false
	}
	row, err := it.w.valueSt.GetValueAppend(id, nil, it.ctx)
	if err != nil {
		return nil, false
	}
	it.cur = id
	return row, true
}

func (it *writableIterator) Close() {}

// Save persists the writable segment in place, useful for a durability
// flush boundary (spec §1: "single-writer durability only at flush
// boundaries") without freezing it into a readonly segment. The value
// store file always carries the ".mock" suffix: NewWritable always backs a
// writable segment with the in-memory mock store, so the on-disk suffix
// must match what Load will actually dispatch through the registry.
func (w *Writable) Save(fs store.FS, dir string, sch schema.Schema) error {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return segerr.Io(dir, err)
	}
	valueFile := "data.mock"
	if err := w.valueSt.Save(fs, dir+"/"+valueFile); err != nil {
		return err
	}
	m := Manifest{ValueStoreFile: valueFile}
	for id, ix := range w.indices {
		def, ok := indexDefByID(sch, id)
		name := fmt.Sprintf("idx-%d", id)
		if ok {
			name = def.Name
		}
		fname := fmt.Sprintf("idx-%d.nlt", id)
		ixStore := storeOrdIndex.FromIndex(id, ix)
		if err := ixStore.Save(fs, dir+"/"+fname); err != nil {
			return err
		}
		m.Indices = append(m.Indices, IndexFile{IndexID: id, Name: name, FileName: fname})
	}
	if w.delBitmap.Cardinality() > 0 {
		m.DeleteBitmap = "isDel.rs"
		if err := w.delBitmap.Save(fs, dir+"/"+m.DeleteBitmap); err != nil {
			return err
		}
	}
	return saveManifest(fs, dir, m)
}

// LoadWritable reopens a previously-flushed writable segment.
func LoadWritable(fs store.FS, dir string, sch schema.Schema) (*Writable, error) {
	m, err := loadManifest(fs, dir)
	if err != nil {
		return nil, err
	}
	valueStore, err := store.OpenStore(fs, dir, m.ValueStoreFile)
	if err != nil {
		return nil, err
	}
	writable, ok := valueStore.AsWritable()
	if !ok {
		return nil, segerr.Corruption(dir, "value store file is not writable")
	}
	indices := map[int]*ordindex.Index{}
	for _, def := range sch.Indices() {
		indices[def.ID] = ordindex.New(def.Kind == schema.Unique)
	}
	for _, f := range m.Indices {
		s, err := store.OpenStore(fs, dir, f.FileName)
		if err != nil {
			return nil, err
		}
		ixStore, ok := s.(*storeOrdIndex.Store)
		if !ok {
			return nil, segerr.Corruption(dir, fmt.Sprintf("file %s is not an ordered index", f.FileName))
		}
		it, err := ixStore.SeekLowerBound(nil)
		if err != nil {
			return nil, err
		}
		defer it.Close()
		ix, ok := indices[f.IndexID]
		if !ok {
			ix = ordindex.New(true)
			indices[f.IndexID] = ix
		}
		for {
			key, id, ok := it.Next()
			if !ok {
				break
			}
			if err := ix.Insert(key, int64(id)); err != nil {
				return nil, err
			}
		}
	}
	del := postingindex.NewBitmapStore()
	if m.DeleteBitmap != "" {
		if err := del.Load(fs, dir+"/"+m.DeleteBitmap); err != nil {
			return nil, err
		}
	}
	return &Writable{values: writable, valueSt: valueStore, sch: sch, indices: indices, delBitmap: del}, nil
}
