package table

import (
	"sync"

	"go.uber.org/zap"

	"github.com/erigontech/segstore/schema"
	"github.com/erigontech/segstore/segerr"
	"github.com/erigontech/segstore/store"
)

// SchemaFactory builds the schema for a named table class from Options,
// restoring original_source/db_table.hpp's RegisterTableClass/createTable
// pattern: embedders register a class once at startup, then every table of
// that class is opened by name instead of re-threading a Schema value
// through every call site.
type SchemaFactory func(opts Options) schema.Schema

var (
	classRegistryMu sync.Mutex
	classRegistry   = map[string]SchemaFactory{}
)

// RegisterFactory registers factory under class. Calling it twice for the
// same class returns DuplicateRegistration.
func RegisterFactory(class string, factory SchemaFactory) error {
	classRegistryMu.Lock()
	defer classRegistryMu.Unlock()
	if _, exists := classRegistry[class]; exists {
		return segerr.DuplicateRegistration(class)
	}
	classRegistry[class] = factory
	return nil
}

// MustRegisterFactory is RegisterFactory, panicking on error.
func MustRegisterFactory(class string, factory SchemaFactory) {
	if err := RegisterFactory(class, factory); err != nil {
		panic(err)
	}
}

// CreateTable opens or creates a table of the named class at dir, resolving
// its schema from the class registered via RegisterFactory.
func CreateTable(fs store.FS, dir, class string, opts Options, logger *zap.Logger) (*CompositeTable, error) {
	classRegistryMu.Lock()
	factory, ok := classRegistry[class]
	classRegistryMu.Unlock()
	if !ok {
		return nil, segerr.UnknownStoreType(class)
	}
	t, err := Open(fs, dir, factory(opts), opts, logger)
	if err != nil {
		return nil, err
	}
	t.class = class
	return t, nil
}
