// Package store is the local persistence boundary: a small key/value store on badger
// that survives daemon restarts, the way browser local storage survives page reloads.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// New opens (or creates) the store at path.
func New(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil      // Disable Badger's internal logging
	opts.SyncWrites = true // A refresh timestamp must survive a crash
	return open(opts, logger, path)
}

// NewInMemory opens a store that lives only as long as the process.
func NewInMemory(logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts, logger, ":memory:")
}

func open(opts badger.Options, logger *slog.Logger, path string) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	if logger != nil {
		logger.Info("Local store opened", "path", path)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close gracefully closes the database.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing local store")
	}
	return s.db.Close()
}

// GetItem returns the value stored under key. ok is false when the key is absent.
func (s *Store) GetItem(ctx context.Context, key string) (value string, ok bool, err error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// SetItem stores value under key, replacing any previous value.
func (s *Store) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// DeleteItem removes key. Deleting a missing key is not an error.
func (s *Store) DeleteItem(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// DeviceID returns the persisted client id, creating one on first use.
// The read and the write happen in one transaction so concurrent callers agree.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var deviceID string
	create := func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(KeyDeviceID))
		if err == nil {
			return item.Value(func(val []byte) error {
				deviceID = string(val)
				return nil
			})
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		deviceID = uuid.NewString()
		return txn.Set([]byte(KeyDeviceID), []byte(deviceID))
	}

	err := s.db.Update(create)
	// A racing first writer committed; the retry reads its id.
	if errors.Is(err, badger.ErrConflict) {
		err = s.db.Update(create)
	}
	if err != nil {
		return "", fmt.Errorf("device id: %w", err)
	}
	return deviceID, nil
}
