// Package segerr defines the error kinds surfaced across the store
// registry, segments, and the composite table.
//
// Capability misses (AsWritable, AsAppendable, ...) are never represented
// here: absence is signalled by a boolean, never an error, per spec.
package segerr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// UnknownStoreTypeError is returned by the registry when a filename suffix
// has no registered factory.
type UnknownStoreTypeError struct{ Suffix string }

func (e *UnknownStoreTypeError) Error() string {
	return fmt.Sprintf("segerr: unknown store type suffix %q", e.Suffix)
}

// UnknownStoreType builds an UnknownStoreTypeError.
func UnknownStoreType(suffix string) error { return &UnknownStoreTypeError{Suffix: suffix} }

// DuplicateRegistrationError is returned when registering a suffix twice.
type DuplicateRegistrationError struct{ Suffix string }

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("segerr: duplicate store registration for suffix %q", e.Suffix)
}

// DuplicateRegistration builds a DuplicateRegistrationError.
func DuplicateRegistration(suffix string) error {
	return &DuplicateRegistrationError{Suffix: suffix}
}

// OutOfRangeError is returned when a row id falls outside [0, Max).
type OutOfRangeError struct {
	ID, Max int64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("segerr: row id %d out of range [0,%d)", e.ID, e.Max)
}

// OutOfRange builds an OutOfRangeError.
func OutOfRange(id, max int64) error { return &OutOfRangeError{ID: id, Max: max} }

// DuplicateKeyError is returned on a unique-index conflict.
type DuplicateKeyError struct {
	IndexID int
	Key     []byte
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("segerr: duplicate key on index %d: %x", e.IndexID, e.Key)
}

// DuplicateKey builds a DuplicateKeyError. The key is copied.
func DuplicateKey(indexID int, key []byte) error {
	return &DuplicateKeyError{IndexID: indexID, Key: append([]byte(nil), key...)}
}

// UnsupportedOperationError is returned when a capability is structurally
// absent, e.g. Load on a MultiPartStore, or Update on a non-Updatable store.
type UnsupportedOperationError struct{ Op string }

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("segerr: unsupported operation: %s", e.Op)
}

// UnsupportedOperation builds an UnsupportedOperationError.
func UnsupportedOperation(op string) error { return &UnsupportedOperationError{Op: op} }

// InvariantViolatedError signals an internal bug. Callers should never
// attempt to recover from it.
type InvariantViolatedError struct{ Detail string }

func (e *InvariantViolatedError) Error() string {
	return "segerr: invariant violated: " + e.Detail
}

// InvariantViolated builds an InvariantViolatedError.
func InvariantViolated(detail string) error { return &InvariantViolatedError{Detail: detail} }

// Io wraps a persistence failure with the path it occurred at and a stack
// trace via github.com/pkg/errors, the way the teacher wraps I/O failures.
func Io(path string, cause error) error {
	return pkgerrors.Wrapf(cause, "segerr: io error at %s", path)
}

// Corruption reports a manifest or file-body check that failed at load.
func Corruption(path, detail string) error {
	return pkgerrors.Errorf("segerr: corruption at %s: %s", path, detail)
}

// Is* helpers let callers branch on error kind without importing errors.As
// boilerplate at every call site.

func IsOutOfRange(err error) bool {
	var e *OutOfRangeError
	return errors.As(err, &e)
}

func IsDuplicateKey(err error) bool {
	var e *DuplicateKeyError
	return errors.As(err, &e)
}

func IsUnknownStoreType(err error) bool {
	var e *UnknownStoreTypeError
	return errors.As(err, &e)
}

func IsDuplicateRegistration(err error) bool {
	var e *DuplicateRegistrationError
	return errors.As(err, &e)
}

func IsUnsupportedOperation(err error) bool {
	var e *UnsupportedOperationError
	return errors.As(err, &e)
}
