// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// EncryptedPrefix marks a value as encrypted (format: ENC:base64(nonce|ciphertext|tag)).
const EncryptedPrefix = "ENC:"

const (
	// KeySize is the AES-256 key size in bytes.
	KeySize = 32

	// SaltSize is the PBKDF2 salt size in bytes.
	SaltSize = 32

	// PBKDF2Iterations follows the OWASP 2023 recommendation for PBKDF2-SHA-256.
	PBKDF2Iterations = 600000

	// saltKey is where the salt lives in the wrapped store.
	saltKey = "askchat-salt"
)

var (
	// ErrInvalidCiphertext indicates the stored value is not in ENC: format.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")

	// ErrDecryptionFailed indicates a wrong passphrase or tampered data.
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")
)

// EncryptedStore seals every value with AES-256-GCM before handing it to the
// wrapped Store. The key is derived once from a passphrase with PBKDF2; the
// salt is generated on first use and kept in the wrapped store.
type EncryptedStore struct {
	inner Store
	aead  cipher.AEAD
}

// NewEncryptedStore wraps inner using the default PBKDF2 iteration count.
func NewEncryptedStore(inner Store, passphrase string) (*EncryptedStore, error) {
	return NewEncryptedStoreWithIterations(inner, passphrase, PBKDF2Iterations)
}

// NewEncryptedStoreWithIterations wraps inner with a caller-chosen PBKDF2
// iteration count.
func NewEncryptedStoreWithIterations(inner Store, passphrase string, iterations int) (*EncryptedStore, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase is required")
	}
	if iterations <= 0 {
		iterations = PBKDF2Iterations
	}

	salt, err := loadOrCreateSalt(inner)
	if err != nil {
		return nil, err
	}

	key := pbkdf2.Key([]byte(passphrase), salt, iterations, KeySize, sha256.New)
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &EncryptedStore{inner: inner, aead: aead}, nil
}

func loadOrCreateSalt(inner Store) ([]byte, error) {
	salt, err := inner.Get(saltKey)
	if err == nil && len(salt) == SaltSize {
		return salt, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}

	salt = make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := inner.Set(saltKey, salt); err != nil {
		return nil, fmt.Errorf("failed to store salt: %w", err)
	}
	return salt, nil
}

func (s *EncryptedStore) Get(key string) ([]byte, error) {
	raw, err := s.inner.Get(key)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(raw, []byte(EncryptedPrefix)) {
		return nil, ErrInvalidCiphertext
	}

	sealed, err := base64.StdEncoding.DecodeString(string(raw[len(EncryptedPrefix):]))
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize+s.aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}

	// The key is bound as additional data so values cannot be swapped between keys.
	plain, err := s.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], []byte(key))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

func (s *EncryptedStore) Set(key string, value []byte) error {
	if key == saltKey {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidKey, key)
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, value, []byte(key))
	encoded := EncryptedPrefix + base64.StdEncoding.EncodeToString(sealed)
	return s.inner.Set(key, []byte(encoded))
}

func (s *EncryptedStore) Delete(key string) error {
	return s.inner.Delete(key)
}

func (s *EncryptedStore) Close() error {
	return s.inner.Close()
}

// zeroBytes clears key material once it is no longer needed.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
