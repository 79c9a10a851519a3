// Package ordindex implements the ordered key -> RowId index shared by the
// writable segment's in-memory index and the ".nlt" on-disk index store
// (spec §4.2, C2/C5): a btree keyed by the index's projected column bytes,
// tie-broken by row id so a multi-valued index can hold repeated keys.
package ordindex

import (
	"bytes"

	"github.com/google/btree"

	"github.com/erigontech/segstore/segerr"
)

// Entry is one (key, id) pair stored in the tree.
type Entry struct {
	Key []byte
	ID  int64
}

func less(a, b Entry) bool {
	if c := bytes.Compare(a.Key, b.Key); c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}

// Index is an ordered, in-memory key -> id map. Unique indices reject a
// second distinct id under an existing key; multi indices allow repeats.
type Index struct {
	tree   *btree.BTreeG[Entry]
	unique bool
}

// New returns an empty index. degree follows the teacher's btree usage:
// 32 balances node fan-out against copy cost for byte-slice keys.
func New(unique bool) *Index {
	return &Index{tree: btree.NewG(32, less), unique: unique}
}

func (ix *Index) Unique() bool { return ix.unique }

func (ix *Index) Len() int { return ix.tree.Len() }

// Insert adds key -> id. For a unique index, inserting a key that already
// maps to a different id returns DuplicateKey (spec invariant: unique
// index key collisions never overwrite).
func (ix *Index) Insert(key []byte, id int64) error {
	if ix.unique {
		if existing, ok, _ := ix.SeekExact(key); ok && existing != id {
			return segerr.DuplicateKey(0, key)
		}
	}
	k := append([]byte(nil), key...)
	ix.tree.ReplaceOrInsert(Entry{Key: k, ID: id})
	return nil
}

// Remove deletes the (key, id) pair. It is a no-op if absent.
func (ix *Index) Remove(key []byte, id int64) {
	ix.tree.Delete(Entry{Key: key, ID: id})
}

// Replace atomically moves id from oldKey to newKey, matching the
// table-level ReplaceRow's index maintenance (spec §4.6).
func (ix *Index) Replace(oldKey, newKey []byte, id int64) error {
	ix.Remove(oldKey, id)
	if err := ix.Insert(newKey, id); err != nil {
		ix.tree.ReplaceOrInsert(Entry{Key: append([]byte(nil), oldKey...), ID: id})
		return err
	}
	return nil
}

// SeekExact returns the id stored under key for a unique index. Calling it
// on a multi index returns UnsupportedOperation: a multi index can map one
// key to several ids, so exact-match lookup is ambiguous.
func (ix *Index) SeekExact(key []byte) (int64, bool, error) {
	if !ix.unique {
		return 0, false, segerr.UnsupportedOperation("ordindex: SeekExact on a multi index")
	}
	var found Entry
	ok := false
	ix.tree.AscendGreaterOrEqual(Entry{Key: key}, func(e Entry) bool {
		if bytes.Equal(e.Key, key) {
			found, ok = e, true
		}
		return false
	})
	return found.ID, ok, nil
}

// Iterator walks entries in ascending key order starting from a lower
// bound.
type Iterator struct {
	entries []Entry
	pos     int
}

func (it *Iterator) Next() (key []byte, id int64, ok bool) {
	if it.pos >= len(it.entries) {
		return nil, 0, false
	}
	e := it.entries[it.pos]
	it.pos++
	return e.Key, e.ID, true
}

func (it *Iterator) Close() {}

// SeekLowerBound returns an iterator over all entries with key >= from, in
// ascending order. from == nil starts at the first entry.
func (ix *Index) SeekLowerBound(from []byte) *Iterator {
	var entries []Entry
	start := Entry{Key: from}
	visit := func(e Entry) bool {
		entries = append(entries, Entry{Key: append([]byte(nil), e.Key...), ID: e.ID})
		return true
	}
	if from == nil {
		ix.tree.Ascend(visit)
	} else {
		ix.tree.AscendGreaterOrEqual(start, visit)
	}
	return &Iterator{entries: entries}
}

// AscendAll returns every entry in ascending order, used by Save and by
// compaction to rebuild a readonly index store.
func (ix *Index) AscendAll() []Entry {
	entries := make([]Entry, 0, ix.tree.Len())
	ix.tree.Ascend(func(e Entry) bool {
		entries = append(entries, e)
		return true
	})
	return entries
}
