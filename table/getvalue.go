package table

import (
	"github.com/erigontech/segstore/segerr"
	"github.com/erigontech/segstore/store"
)

// GetValue resolves id to its owning segment and returns its current body.
func (t *CompositeTable) GetValue(id int64, ctx store.Context) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	k, subID, ok := t.resolve(id)
	if !ok {
		return nil, segerr.OutOfRange(id, t.rowNumVec[len(t.rowNumVec)-1])
	}
	return entryGetValue(t.segments[k].Value(), store.SubID(subID), ctx)
}
