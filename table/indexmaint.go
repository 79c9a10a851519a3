package table

import "github.com/erigontech/segstore/segerr"

// IndexInsert, IndexRemove and IndexReplace give DbContext's identically
// named wrappers (spec §4.7) direct access to the writable segment's
// in-memory index, for embedders that maintain secondary index state
// outside the normal insert/replace/remove row pipeline.
func (t *CompositeTable) IndexInsert(indexID int, key []byte, id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ix, ok := t.writableIndexLocked(indexID)
	if !ok {
		return segerr.UnsupportedOperation("table: no such index on writable segment")
	}
	return ix.Insert(key, id)
}

func (t *CompositeTable) IndexRemove(indexID int, key []byte, id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ix, ok := t.writableIndexLocked(indexID)
	if !ok {
		return segerr.UnsupportedOperation("table: no such index on writable segment")
	}
	ix.Remove(key, id)
	return nil
}

func (t *CompositeTable) IndexReplace(indexID int, oldKey, newKey []byte, id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ix, ok := t.writableIndexLocked(indexID)
	if !ok {
		return segerr.UnsupportedOperation("table: no such index on writable segment")
	}
	return ix.Replace(oldKey, newKey, id)
}

func (t *CompositeTable) writableIndexLocked(indexID int) (interface {
	Insert(key []byte, id int64) error
	Remove(key []byte, id int64)
	Replace(oldKey, newKey []byte, id int64) error
}, bool) {
	if len(t.segments) == 0 {
		return nil, false
	}
	wr := t.segments[len(t.segments)-1].Value().wr
	if wr == nil {
		return nil, false
	}
	ix, ok := wr.IndexFor(indexID)
	if !ok {
		return nil, false
	}
	return ix, true
}
