// Package store defines the readable/writable/appendable/updatable store
// capability set (spec §4.2) that every value store and on-disk index
// implements, plus the registry that loads them by filename suffix
// (spec §4.1).
//
// Naming follows the teacher's interface-segregation convention
// (erigon-lib/kv's Has/Getter/Putter/Deleter/Closer split): narrow
// capability interfaces, discovered at runtime via As* probes that return
// (T, false) rather than an error when the facet is absent.
package store

// SubID is a row id local to one segment's value store, dense and 0-based
// until deletions open gaps.
type SubID int64

// Context is the per-caller scratch handle threaded through store calls.
// Concrete implementations live in package dbcontext; store only needs a
// place to stash a reusable buffer so hot paths avoid allocating.
type Context interface {
	// Scratch returns a byte buffer the callee may grow and overwrite.
	Scratch() []byte
	// SetScratch replaces the buffer returned by future Scratch calls.
	SetScratch([]byte)
}

// Store is the capability every registered value store implements: a
// read-only, append-and-iterate view over a dense or near-dense run of
// rows.
type Store interface {
	// NumDataRows returns the number of row slots, including tombstoned
	// ones still occupying a SubID.
	NumDataRows() int64
	// DataStorageSize returns the store's on-disk footprint in bytes.
	DataStorageSize() int64
	// DataInflateSize returns the store's decompressed footprint in bytes.
	DataInflateSize() int64
	// GetValueAppend appends the row for id to out and returns the result.
	GetValueAppend(id SubID, out []byte, ctx Context) ([]byte, error)

	CreateStoreIterForward(ctx Context) Iterator
	CreateStoreIterBackward(ctx Context) Iterator

	Save(fs FS, path string) error
	Load(fs FS, path string) error

	AsWritable() (Writable, bool)
	AsAppendable() (Appendable, bool)
	AsUpdatable() (Updatable, bool)
	AsReadableIndex() (ReadableIndex, bool)
}

// Writable is the capability a segment's active value store exposes:
// append, remove (tombstone), and in-place replace.
type Writable interface {
	Append(row []byte, ctx Context) (SubID, error)
	Remove(id SubID) error
	Replace(id SubID, row []byte, ctx Context) error
}

// Appendable is the narrower capability of append-only stores, useful for
// value stores whose layout cannot support remove/replace directly (they
// typically pair with an Updatable promotion path instead).
type Appendable interface {
	Append(row []byte, ctx Context) (SubID, error)
}

// Updatable stores accept in-place updates that may force a layout
// promotion, e.g. a fixed-width record store switching to a variable-width
// one on first oversize write.
type Updatable interface {
	Update(id SubID, row []byte, ctx Context) error
}

// ReadableIndex exposes key-ordered and key-exact lookups over one indexed
// column.
type ReadableIndex interface {
	IndexID() int
	// SeekExact returns the (first) SubID stored under key, if any.
	SeekExact(key []byte) (SubID, bool, error)
	// SeekLowerBound returns an iterator positioned at the first entry with
	// key >= from (from == nil means the beginning of the index).
	SeekLowerBound(from []byte) (IndexIterator, error)
	NumIndexRows() int64
	StorageSize() int64
}

// Iterator scans a Store's rows in some fixed direction.
type Iterator interface {
	// Next advances the cursor and returns the row at the new position.
	// ok is false once the cursor runs past the end of the store.
	Next() (id SubID, row []byte, ok bool)
	// SeekExact repositions the cursor at id and returns its row. Per the
	// corrected contract (spec §9 Open Question), an out-of-range id
	// reports ok=false; the default iterators then leave the cursor at
	// their end sentinel, so a subsequent Next also reports ok=false.
	SeekExact(id SubID) (row []byte, ok bool)
	Close()
}

// IndexIterator scans a ReadableIndex's (key, id) pairs in key order.
type IndexIterator interface {
	Next() (key []byte, id SubID, ok bool)
	Close()
}
