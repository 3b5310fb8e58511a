// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Store is a durable key-value map.
//
// Implementations must be safe for concurrent use and must make a completed
// Set or Delete visible to every subsequent Get.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Set replaces the value for key.
	Set(key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Close releases the backend.
	Close() error
}

// Backend names a Store implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendBadger Backend = "badger"
	BackendSQLite Backend = "sqlite"
	BackendMemory Backend = "memory"
)

// Options selects and configures a backend for Open.
type Options struct {
	Backend Backend

	// Dir holds the backend's files. Ignored by the memory backend.
	Dir string

	// Passphrase enables EncryptedStore when non-empty.
	Passphrase string

	// Logger receives backend diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Open creates the configured backend, wrapping it in an EncryptedStore when
// a passphrase is set.
func Open(opts Options) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		store Store
		err   error
	)
	switch Backend(strings.ToLower(string(opts.Backend))) {
	case BackendFile, "":
		store, err = NewFileStore(filepath.Join(opts.Dir, "snapshots"))
	case BackendBadger:
		store, err = OpenBadger(BadgerConfig{
			Path:       filepath.Join(opts.Dir, "badger"),
			SyncWrites: true,
			Logger:     logger,
		})
	case BackendSQLite:
		store, err = OpenSQLite(filepath.Join(opts.Dir, "askchat.db"))
	case BackendMemory:
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	if opts.Passphrase != "" {
		enc, err := NewEncryptedStore(store, opts.Passphrase)
		if err != nil {
			store.Close()
			return nil, err
		}
		return enc, nil
	}
	return store, nil
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotFound is returned by Get when the key has no value.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &StorageError{Message: "key not found"}

// ErrUnknownBackend is returned by Open for an unrecognized backend name.
var ErrUnknownBackend = &StorageError{Message: "unknown storage backend"}

// ErrInvalidKey is returned for empty keys or keys that cannot be mapped to a
// file name.
var ErrInvalidKey = &StorageError{Message: "invalid key"}

// StorageError represents a storage-related error.
type StorageError struct {
	Message string
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing storage errors.
func (e *StorageError) Is(target error) bool {
	t, ok := target.(*StorageError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// validateKey rejects keys that are empty or could escape a directory.
func validateKey(key string) error {
	if key == "" || key == "." || key == ".." ||
		strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
