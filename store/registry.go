package store

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/erigontech/segstore/segerr"
)

// Factory produces a fresh, empty Store ready to have Load called on it.
type Factory func() Store

var (
	registryMu sync.Mutex
	registry   = map[string]Factory{}
)

// Register adds factory under suffix. It is safe to call from an init()
// in every store package; calling it twice for the same suffix is a
// startup configuration bug and returns DuplicateRegistration, leaving the
// first registration in place.
func Register(suffix string, factory Factory) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[suffix]; exists {
		return segerr.DuplicateRegistration(suffix)
	}
	registry[suffix] = factory
	return nil
}

// MustRegister is Register, panicking on error. Intended for package
// init() functions, where a duplicate suffix is always a build-time bug.
func MustRegister(suffix string, factory Factory) {
	if err := Register(suffix, factory); err != nil {
		panic(err)
	}
}

// Lookup returns the factory registered for suffix, if any.
func Lookup(suffix string) (Factory, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	f, ok := registry[suffix]
	return f, ok
}

// Suffix returns the portion of fname after its last '.', matching spec
// §4.1 ("the portion after the last '.'").
func Suffix(fname string) string {
	ext := filepath.Ext(fname)
	return strings.TrimPrefix(ext, ".")
}

// OpenStore constructs a fresh store for fname via the suffix-dispatched
// factory and loads it from segDir/fname.
func OpenStore(fs FS, segDir, fname string) (Store, error) {
	suffix := Suffix(fname)
	factory, ok := Lookup(suffix)
	if !ok {
		return nil, segerr.UnknownStoreType(suffix)
	}
	s := factory()
	if err := s.Load(fs, filepath.Join(segDir, fname)); err != nil {
		return nil, err
	}
	return s, nil
}
