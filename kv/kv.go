// ABOUTME: BadgerDB-backed durable key-value store for host-local SDK state
// ABOUTME: Holds reload policy state and the last sync cursor mirror
package kv

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
)

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = errors.New("key not found")

// Store is a thin wrapper over BadgerDB. State kept here is host-local and
// must never live in shared storage: the extension has no business reading
// it, and Badger's directory layout is not safe for a second process anyway.
type Store struct {
	db *badger.DB
}

// Open opens (creating if needed) a Badger store at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open kv store at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(key []byte) ([]byte, error) {
	var result []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		result, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return result, err
}

func (s *Store) Set(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (s *Store) Delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}
