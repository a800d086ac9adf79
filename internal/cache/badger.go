package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"goportfolio/internal/core"
)

// BadgerStore implements Store with an embedded Badger database.
// Entries carry a native TTL and are dropped by Badger once expired.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

// NewBadgerStore opens a Badger database at dir. An empty dir keeps the data in memory.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerStore{db: db, now: time.Now}, nil
}

// Get retrieves a snapshot.
func (s *BadgerStore) Get(_ context.Context, key string) (*core.BucketSnapshot, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot from badger: %w", err)
	}

	return decodeRecord(data, s.now())
}

// Set stores a snapshot with the given TTL.
func (s *BadgerStore) Set(_ context.Context, key string, snap *core.BucketSnapshot, ttl time.Duration) error {
	ttl = effectiveTTL(ttl)
	data, err := encodeRecord(snap, s.now().Add(ttl))
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), data).WithTTL(ttl))
	})
	if err != nil {
		return fmt.Errorf("failed to write snapshot to badger: %w", err)
	}
	return nil
}

func (s *BadgerStore) Type() string { return TypeBadger }

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
