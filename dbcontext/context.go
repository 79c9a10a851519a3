// Package dbcontext implements DbContext (spec §4.7, C7): a per-caller,
// non-thread-safe facade over a CompositeTable. Every read and mutation a
// caller makes goes through one of these, never through the table
// directly - this is also the store.Context the store/segment layers use
// for scratch buffers and cursor caching.
package dbcontext

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/erigontech/segstore/store"
	"github.com/erigontech/segstore/table"
)

// tableHandle is the subset of *table.CompositeTable a DbContext calls
// into; declared as an interface so tests can substitute a fake table.
type tableHandle interface {
	InsertRow(row []byte, ctx store.Context) (int64, error)
	RemoveRow(id int64, ctx store.Context) error
	ReplaceRow(id int64, newRow []byte, ctx store.Context) (int64, error)
	GetValue(id int64, ctx store.Context) ([]byte, error)
	IndexInsert(indexID int, key []byte, id int64) error
	IndexRemove(indexID int, key []byte, id int64) error
	IndexReplace(indexID int, oldKey, newKey []byte, id int64) error
	Flush() error
	CreateIterForward(ctx store.Context) *table.RowIterator
	CreateIterBackward(ctx store.Context) *table.RowIterator
	CreateIndexIterForward(indexID int, ctx store.Context) (*table.IndexRowIterator, error)
}

const cursorCacheSize = 64

// DbContext is a per-caller scratch buffer and facade into a table. It
// must not be shared between goroutines (spec §4.7/§5).
type DbContext struct {
	t       tableHandle
	scratch []byte
	keyBuf  []byte
	cursors *lru.Cache[int, *table.IndexRowIterator]
}

// New returns a DbContext bound to t. cursorCacheSize bounds how many open
// per-index cursors (see Cursor) a context keeps warm at once.
func New(t *table.CompositeTable) *DbContext {
	cache, _ := lru.NewWithEvict[int, *table.IndexRowIterator](cursorCacheSize, func(_ int, it *table.IndexRowIterator) {
		it.Close()
	})
	return &DbContext{t: t, cursors: cache}
}

// Scratch and SetScratch implement store.Context: a reusable buffer the
// value-store GetValueAppend implementations may append into.
func (c *DbContext) Scratch() []byte          { return c.scratch }
func (c *DbContext) SetScratch(b []byte)      { c.scratch = b }

// KeyBuf returns the context's reusable index-key projection buffer.
func (c *DbContext) KeyBuf() []byte        { return c.keyBuf }
func (c *DbContext) SetKeyBuf(b []byte)    { c.keyBuf = b }

func (c *DbContext) InsertRow(row []byte) (int64, error) { return c.t.InsertRow(row, c) }

func (c *DbContext) RemoveRow(id int64) error { return c.t.RemoveRow(id, c) }

func (c *DbContext) ReplaceRow(id int64, newRow []byte) (int64, error) {
	return c.t.ReplaceRow(id, newRow, c)
}

func (c *DbContext) GetValue(id int64) ([]byte, error) { return c.t.GetValue(id, c) }

func (c *DbContext) IndexInsert(indexID int, key []byte, id int64) error {
	return c.t.IndexInsert(indexID, key, id)
}

func (c *DbContext) IndexRemove(indexID int, key []byte, id int64) error {
	return c.t.IndexRemove(indexID, key, id)
}

func (c *DbContext) IndexReplace(indexID int, oldKey, newKey []byte, id int64) error {
	return c.t.IndexReplace(indexID, oldKey, newKey, id)
}

// Flush persists the table's writable segment(s) to disk.
func (c *DbContext) Flush() error { return c.t.Flush() }

// CreateIterForward and CreateIterBackward open full-table snapshot
// iterators bound to this context.
func (c *DbContext) CreateIterForward() *table.RowIterator  { return c.t.CreateIterForward(c) }
func (c *DbContext) CreateIterBackward() *table.RowIterator { return c.t.CreateIterBackward(c) }

// Cursor returns a cached per-index forward iterator for indexID, opening
// a fresh one on a cache miss and evicting (closing) the least-recently
// used cursor once cursorCacheSize is exceeded.
func (c *DbContext) Cursor(indexID int) (*table.IndexRowIterator, error) {
	if it, ok := c.cursors.Get(indexID); ok {
		return it, nil
	}
	it, err := c.t.CreateIndexIterForward(indexID, c)
	if err != nil {
		return nil, err
	}
	c.cursors.Add(indexID, it)
	return it, nil
}

// Close releases every cached cursor. Callers that use Cursor should Close
// the context when done with it.
func (c *DbContext) Close() {
	c.cursors.Purge()
}
