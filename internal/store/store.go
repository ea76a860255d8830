// Package store defines the backing-store contract for the settings
// partition: a namespaced blob/scalar key-value store over raw flash.
// The bolt subpackage provides the on-device implementation; tests and
// higher layers depend only on this interface.
package store

import "errors"

// Key and namespace strings are capped at 15 characters to stay
// compatible with the flash key table of existing devices.
const MaxKeyLen = 15

// Result sentinels. Callers classify with errors.Is; wrapped variants
// carry operation context.
var (
	ErrNotInitialized = errors.New("store not initialized")
	ErrNotFound       = errors.New("key not found")
	ErrInvalidKey     = errors.New("invalid namespace or key")
	ErrReadFailed     = errors.New("read failed")
	ErrWriteFailed    = errors.New("write failed")
	ErrSizeMismatch   = errors.New("stored size mismatch")
	ErrCommitFailed   = errors.New("commit failed")
)

// Store is the synchronous settings store shared by every preset manager.
// Implementations serialize all calls internally; none of the methods may
// be called from a hard-real-time path (writes block until durable).
type Store interface {
	// Init prepares the store for use. Idempotent: calling it on a
	// ready store is a no-op. A corrupt partition is erased and
	// recreated rather than reported as fatal; some data loss is
	// preferred over an unbootable device.
	Init() error
	// Ready reports whether Init has succeeded.
	Ready() bool
	Close() error

	// SaveBlob durably persists data under ns/key, overwriting any
	// previous value. Returns only after the write is committed.
	SaveBlob(ns, key string, data []byte) error
	// LoadBlob returns the blob stored under ns/key. ErrNotFound when
	// absent (normal on first boot). If expectedSize > 0 and the stored
	// size differs, ErrSizeMismatch is returned (signals a schema
	// change) and no data.
	LoadBlob(ns, key string, expectedSize int) ([]byte, error)
	// BlobSize returns the stored size of ns/key, or ErrNotFound.
	BlobSize(ns, key string) (int, error)
	// EraseKey removes ns/key. Erasing an absent key returns
	// ErrNotFound; callers treat that the same as success.
	EraseKey(ns, key string) error
	// EraseAll removes every key in the namespace.
	EraseAll(ns string) error

	// Scalar accessors for low-stakes counters. Loads return the
	// caller-supplied default on any failure and never an error.
	SaveUint8(ns, key string, v uint8) error
	LoadUint8(ns, key string, def uint8) uint8
	SaveUint16(ns, key string, v uint16) error
	LoadUint16(ns, key string, def uint16) uint16
	SaveUint32(ns, key string, v uint32) error
	LoadUint32(ns, key string, def uint32) uint32

	// Stats reports used and remaining entry budget.
	Stats() (used, free int)
}

// ValidName reports whether s is usable as a namespace or key:
// 1..MaxKeyLen printable ASCII characters.
func ValidName(s string) bool {
	if len(s) == 0 || len(s) > MaxKeyLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
