// Package database wraps the embedded bitcask key/value store behind the
// small Get/Put contract the rest of the application persists through:
// settings overrides and the download history ledger.
package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a key is not found in the database.
var ErrNotFound = errors.New("key not found")

// DB wraps the bitcask instance and provides helper methods.
type DB struct {
	db *bitcask.Bitcask
	sync.RWMutex
	closeOnce sync.Once
	closeErr  error
}

// Open initializes and returns a DB instance at the given path.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := bitcask.Open(path, bitcask.WithMaxValueSize(1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}

	log.Debugf("Database opened successfully at %s", path)
	return &DB{db: db}, nil
}

// Get retrieves the value for a key, returning ErrNotFound when absent.
func (d *DB) Get(key []byte) ([]byte, error) {
	d.RLock()
	defer d.RUnlock()

	value, err := d.db.Get(key)
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting key %q: %w", string(key), err)
	}
	return value, nil
}

// Put stores a value under a key.
func (d *DB) Put(key, value []byte) error {
	d.Lock()
	defer d.Unlock()

	if err := d.db.Put(key, value); err != nil {
		return fmt.Errorf("putting key %q: %w", string(key), err)
	}
	return nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (d *DB) Delete(key []byte) error {
	d.Lock()
	defer d.Unlock()

	if err := d.db.Delete(key); err != nil {
		return fmt.Errorf("deleting key %q: %w", string(key), err)
	}
	return nil
}

// Has reports whether the key exists.
func (d *DB) Has(key []byte) bool {
	d.RLock()
	defer d.RUnlock()
	return d.db.Has(key)
}

// Keys returns all keys currently in the database.
func (d *DB) Keys() [][]byte {
	d.RLock()
	defer d.RUnlock()

	var keys [][]byte
	for key := range d.db.Keys() {
		keys = append(keys, key)
	}
	return keys
}

// Sync flushes pending writes to disk.
func (d *DB) Sync() error {
	d.Lock()
	defer d.Unlock()
	return d.db.Sync()
}

// Close closes the underlying store. Safe to call more than once.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		d.Lock()
		defer d.Unlock()
		d.closeErr = d.db.Close()
	})
	return d.closeErr
}
