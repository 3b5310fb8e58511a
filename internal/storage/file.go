// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/jeranaias/askchat/internal/util"
)

// FileStore persists each key as <BaseDir>/<key>.json.
//
// Writes go through util.AtomicWriteFile so a crash leaves either the old or
// the new snapshot on disk. Files are created 0600 since snapshots carry the
// bearer token.
type FileStore struct {
	// BaseDir is the directory holding snapshot files.
	BaseDir string

	mu sync.Mutex
}

// NewFileStore creates a FileStore rooted at baseDir, creating it if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}
	return &FileStore{BaseDir: baseDir}, nil
}

func (s *FileStore) Get(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *FileStore) Set(key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return util.AtomicWriteFile(s.filePath(key), value, 0600)
}

func (s *FileStore) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return util.RemoveIfExists(s.filePath(key))
}

func (s *FileStore) Close() error { return nil }

// filePath returns the file path for a key.
func (s *FileStore) filePath(key string) string {
	return filepath.Join(s.BaseDir, key+".json")
}
