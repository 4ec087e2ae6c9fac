// Package store wraps a badger embedded KV store behind a namespace-keyed
// blob API. It underlies both the version chain manager's snapshot/delta
// persistence and the on-disk tier of the cache layer.
package store

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v4"
	"github.com/gofrs/flock"

	"github.com/floridify/floridify/internal/logger"
	"github.com/floridify/floridify/pkg/resource"
)

// Store is a namespace-isolated embedded KV store.
type Store struct {
	db   *badger.DB
	lock *flock.Flock
	log  *log.Logger
}

// Open opens (creating if absent) a badger store rooted at dir, guarded by
// an on-disk file lock so two processes never point at the same data
// directory concurrently.
func Open(dir string) (*Store, error) {
	fileLock := flock.New(dir + ".lock")
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring store lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("store directory %s is already locked by another process", dir)
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		fileLock.Unlock()
		return nil, fmt.Errorf("opening badger store at %s: %w", dir, err)
	}

	return &Store{db: db, lock: fileLock, log: logger.New("store")}, nil
}

// Close releases the badger handle and the file lock.
func (s *Store) Close() error {
	defer s.lock.Unlock()
	return s.db.Close()
}

func key(namespace resource.Namespace, k string) []byte {
	return []byte(string(namespace) + "/" + k)
}

// Put writes raw bytes under (namespace, key).
func (s *Store) Put(namespace resource.Namespace, k string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(namespace, k), value)
	})
}

// Get reads raw bytes under (namespace, key). Returns resource.ErrNotFound
// when absent.
func (s *Store) Get(namespace resource.Namespace, k string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(namespace, k))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return resource.NewError(resource.KindNotFound, fmt.Sprintf("%s/%s", namespace, k))
			}
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	return out, err
}

// Delete removes the value under (namespace, key). Missing keys are not an
// error: deletion is idempotent.
func (s *Store) Delete(namespace resource.Namespace, k string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(namespace, k))
	})
}

// ListPrefix returns every key (with the namespace prefix stripped) whose
// name begins with prefix inside namespace, used for version-chain and
// cascade-delete enumeration.
func (s *Store) ListPrefix(namespace resource.Namespace, prefix string) ([]string, error) {
	var keys []string
	fullPrefix := key(namespace, prefix)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		nsLen := len(string(namespace)) + 1
		for it.Seek(fullPrefix); it.ValidForPrefix(fullPrefix); it.Next() {
			k := string(it.Item().Key())
			keys = append(keys, k[nsLen:])
		}
		return nil
	})
	return keys, err
}

// DeletePrefix removes every key under namespace beginning with prefix,
// used for cascade deletion.
func (s *Store) DeletePrefix(namespace resource.Namespace, prefix string) error {
	keys, err := s.ListPrefix(namespace, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.Delete(namespace, k); err != nil {
			return err
		}
	}
	s.log.Debugf("deleted %d keys under %s/%s*", len(keys), namespace, prefix)
	return nil
}
