// Package bolt implements store.Store on a bbolt database file standing in
// for the flash settings partition. Buckets map 1:1 to namespaces and every
// write runs inside a committed transaction, which gives the synchronous
// durability contract the preset managers rely on.
package bolt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	bbolt "go.etcd.io/bbolt"

	"lumen/internal/logging"
	"lumen/internal/store"
)

var logger = logging.For("store")

// Store is the flash-backed settings store. A single mutex serializes all
// access: the underlying medium is shared by every manager and is not
// safely reentrant.
type Store struct {
	mu       sync.Mutex
	path     string
	capacity int
	db       *bbolt.DB
}

// Open constructs a store for the partition file at path. capacity is the
// advertised entry budget reported through Stats. No I/O happens until
// Init.
func Open(path string, capacity int) *Store {
	return &Store{path: path, capacity: capacity}
}

// Init opens the partition. If the file exists but cannot be opened it is
// erased and recreated: a device that boots without its saved settings
// beats a device that does not boot. Idempotent once ready.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	db, err := bbolt.Open(s.path, 0600, nil)
	if err != nil {
		logger.Warn("settings partition unreadable, recreating", "path", s.path, "err", err)
		if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("%w: removing corrupt partition: %v", store.ErrNotInitialized, rmErr)
		}
		db, err = bbolt.Open(s.path, 0600, nil)
		if err != nil {
			return fmt.Errorf("%w: reopening partition: %v", store.ErrNotInitialized, err)
		}
		logger.Warn("settings partition recreated, previous contents lost", "path", s.path)
	}
	s.db = db
	return nil
}

func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db != nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) SaveBlob(ns, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ns, key); err != nil {
		return err
	}

	var fnErr error
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(ns))
		if err != nil {
			fnErr = fmt.Errorf("%w: creating namespace %s: %v", store.ErrWriteFailed, ns, err)
			return fnErr
		}
		if err := b.Put([]byte(key), data); err != nil {
			fnErr = fmt.Errorf("%w: %s/%s: %v", store.ErrWriteFailed, ns, key, err)
			return fnErr
		}
		return nil
	})
	if err != nil {
		if fnErr != nil {
			return fnErr
		}
		// The write itself succeeded; the transaction failed to commit.
		return fmt.Errorf("%w: %s/%s: %v", store.ErrCommitFailed, ns, key, err)
	}
	return nil
}

func (s *Store) LoadBlob(ns, key string, expectedSize int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ns, key); err != nil {
		return nil, err
	}

	var out []byte
	var fnErr error
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(ns))
		if b == nil {
			fnErr = store.ErrNotFound
			return nil
		}
		v := b.Get([]byte(key))
		if v == nil {
			fnErr = store.ErrNotFound
			return nil
		}
		if expectedSize > 0 && len(v) != expectedSize {
			fnErr = fmt.Errorf("%w: %s/%s: stored %d, expected %d",
				store.ErrSizeMismatch, ns, key, len(v), expectedSize)
			return nil
		}
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", store.ErrReadFailed, ns, key, err)
	}
	if fnErr != nil {
		return nil, fnErr
	}
	return out, nil
}

func (s *Store) BlobSize(ns, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ns, key); err != nil {
		return 0, err
	}

	size := -1
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(ns))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			size = len(v)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s/%s: %v", store.ErrReadFailed, ns, key, err)
	}
	if size < 0 {
		return 0, store.ErrNotFound
	}
	return size, nil
}

func (s *Store) EraseKey(ns, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ns, key); err != nil {
		return err
	}

	var fnErr error
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(ns))
		if b == nil || b.Get([]byte(key)) == nil {
			fnErr = store.ErrNotFound
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%w: %s/%s: %v", store.ErrWriteFailed, ns, key, err)
	}
	return fnErr
}

func (s *Store) EraseAll(ns string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ns, ns); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket([]byte(ns))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: erasing %s: %v", store.ErrWriteFailed, ns, err)
	}
	return nil
}

func (s *Store) SaveUint8(ns, key string, v uint8) error {
	return s.SaveBlob(ns, key, []byte{v})
}

func (s *Store) LoadUint8(ns, key string, def uint8) uint8 {
	b, err := s.LoadBlob(ns, key, 1)
	if err != nil {
		return def
	}
	return b[0]
}

func (s *Store) SaveUint16(ns, key string, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return s.SaveBlob(ns, key, b[:])
}

func (s *Store) LoadUint16(ns, key string, def uint16) uint16 {
	b, err := s.LoadBlob(ns, key, 2)
	if err != nil {
		return def
	}
	return binary.LittleEndian.Uint16(b)
}

func (s *Store) SaveUint32(ns, key string, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return s.SaveBlob(ns, key, b[:])
}

func (s *Store) LoadUint32(ns, key string, def uint32) uint32 {
	b, err := s.LoadBlob(ns, key, 4)
	if err != nil {
		return def
	}
	return binary.LittleEndian.Uint32(b)
}

// Stats counts keys across all namespaces against the configured entry
// budget. On an unready store both counts are zero.
func (s *Store) Stats() (used, free int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, 0
	}

	_ = s.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(_ []byte, b *bbolt.Bucket) error {
			used += b.Stats().KeyN
			return nil
		})
	})
	free = s.capacity - used
	if free < 0 {
		free = 0
	}
	return used, free
}

// check validates readiness and name bounds. Callers hold s.mu.
func (s *Store) check(ns, key string) error {
	if s.db == nil {
		return store.ErrNotInitialized
	}
	if !store.ValidName(ns) || !store.ValidName(key) {
		return fmt.Errorf("%w: %q/%q", store.ErrInvalidKey, ns, key)
	}
	return nil
}
