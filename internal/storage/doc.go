// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the durable key-value substrate that askchat
// snapshots are written to.
//
// Stores are byte-oriented: callers own serialization. Every backend writes
// synchronously, so a Set or Delete is visible to the next Get of the same
// key within the process.
//
// # Backends
//
//   - FileStore: one JSON file per key under a directory, atomic rename writes
//   - BadgerStore: embedded BadgerDB (github.com/dgraph-io/badger/v4)
//   - SQLiteStore: single kv table via modernc.org/sqlite
//   - MemoryStore: process-local map, used by tests
//   - EncryptedStore: AES-256-GCM wrapper around any of the above
//
// # Usage
//
//	store, err := storage.Open(storage.Options{
//	    Backend: storage.BackendFile,
//	    Dir:     dataDir,
//	})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	data, err := store.Get("user")
//	if errors.Is(err, storage.ErrNotFound) {
//	    // no snapshot yet
//	}
package storage
