package table

import (
	"github.com/c2h5oh/datasize"

	"github.com/erigontech/segstore/schema"
)

// Options configures rollover thresholds. spec §9's open question ("the
// rollover threshold is not parameterised in the snippet shown") is
// resolved here: it is an explicit field rather than a hidden constant.
// DefaultOptions sets both thresholds; a zero value disables that one.
type Options struct {
	// MaxWritableSegmentSize triggers rollover once the writable
	// segment's value store exceeds this many bytes.
	MaxWritableSegmentSize datasize.ByteSize
	// MaxWritableSegmentRows triggers rollover once the writable segment
	// holds this many rows, independent of byte size.
	MaxWritableSegmentRows int64
	// RowFormatter renders a row as human-readable text for
	// CompositeTable.DebugJSON. Optional: nil falls back to the row bytes
	// JSON-encoded as a base64 string.
	RowFormatter schema.RowFormatter
}

// DefaultOptions returns a conservative 64 MiB / 1M row rollover threshold.
func DefaultOptions() Options {
	return Options{
		MaxWritableSegmentSize: 64 * datasize.MB,
		MaxWritableSegmentRows: 1 << 20,
	}
}
