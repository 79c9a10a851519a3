package table

import "github.com/erigontech/segstore/segment"

// Flush persists every writable segment's current state to disk without
// freezing it, the single-writer durability boundary spec §1 describes
// ("durability only at flush boundaries; no group-commit or WAL"). This
// restores original_source/db_table.hpp's flush(), which the distilled
// spec dropped.
func (t *CompositeTable) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, h := range t.segments {
		e := h.Value()
		if e.kind != segment.KindWritable {
			continue
		}
		if err := e.wr.Save(t.fs, e.dir, t.sch); err != nil {
			return err
		}
	}
	return t.saveCatalogueLocked()
}
