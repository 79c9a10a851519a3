package table_test

import (
	"encoding/binary"
	"fmt"

	"github.com/erigontech/segstore/schema"
)

// rows are a uint64 key (big-endian, for lexical order) followed by an
// arbitrary value payload. indexID 0 is the unique primary key index.
const idxPrimary = 0

func newTestSchema() schema.Schema {
	return schema.NewStatic(
		[]schema.IndexDef{{ID: idxPrimary, Name: "pk", Kind: schema.Unique}},
		func(row []byte, indexID int) ([]byte, error) {
			if indexID != idxPrimary {
				return nil, fmt.Errorf("no such index %d", indexID)
			}
			if len(row) < 8 {
				return nil, fmt.Errorf("row too short")
			}
			return row[:8], nil
		},
	)
}

func rowFor(key uint64, value string) []byte {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf, key)
	copy(buf[8:], value)
	return buf
}

func keyOf(row []byte) uint64 {
	return binary.BigEndian.Uint64(row[:8])
}

func valueOf(row []byte) string {
	return string(row[8:])
}
