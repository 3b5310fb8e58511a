// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jeranaias/askchat/internal/storage"
)

const (
	// StorageKey is the snapshot key for the conversation.
	StorageKey = "chat-storage"

	// SnapshotVersion is the envelope version written by this package.
	SnapshotVersion = 0
)

// Turn is one question and the answer shown for it.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// envelope is the persisted form: {"state":{"conversation":[...]},"version":0}.
type envelope struct {
	State   envelopeState `json:"state"`
	Version int           `json:"version"`
}

type envelopeState struct {
	Conversation []Turn `json:"conversation"`
}

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// Store is the ordered, append-only conversation for the current session.
type Store struct {
	mu     sync.Mutex
	kv     storage.Store
	logger *slog.Logger
	turns  []Turn
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for persistence diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates an empty conversation. Call Initialize to restore it.
func NewStore(kv storage.Store, opts ...Option) *Store {
	s := &Store{kv: kv, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize restores turns from the snapshot. Missing, corrupt or
// version-mismatched snapshots yield an empty conversation.
func (s *Store) Initialize() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = nil
	data, err := s.kv.Get(StorageKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to read conversation snapshot", "error", err)
		}
		return
	}

	turns, err := decodeSnapshot(data)
	if err != nil {
		s.logger.Warn("discarding conversation snapshot", "error", err)
		return
	}
	s.turns = turns
	s.logger.Debug("conversation restored", "turns", len(turns))
}

// AddMessage appends turn and persists the full conversation.
func (s *Store) AddMessage(turn Turn) {
	s.mutate(func(turns []Turn) []Turn {
		return append(turns, turn)
	})
}

// AddMessageIf appends turn only if valid reports true. valid runs under the
// store lock, so a concurrent ClearConversation is ordered either entirely
// before the check or entirely after the append.
func (s *Store) AddMessageIf(turn Turn, valid func() bool) bool {
	added := false
	s.mutate(func(turns []Turn) []Turn {
		if !valid() {
			return turns
		}
		added = true
		return append(turns, turn)
	})
	return added
}

// ClearConversation empties the conversation and deletes its snapshot.
// Clearing an empty conversation only re-deletes the snapshot.
func (s *Store) ClearConversation() {
	s.mutate(func([]Turn) []Turn { return nil })
}

// Turns returns a copy of the conversation in insertion order.
func (s *Store) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// mutate applies fn and persists the result under one lock, so the snapshot
// always matches the state that was just produced. An empty result deletes
// the snapshot rather than writing an empty one.
func (s *Store) mutate(fn func([]Turn) []Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = fn(s.turns)

	if len(s.turns) == 0 {
		s.turns = nil
		if err := s.kv.Delete(StorageKey); err != nil {
			s.logger.Warn("failed to delete conversation snapshot", "error", err)
		}
		return
	}

	data, err := encodeSnapshot(s.turns)
	if err == nil {
		err = s.kv.Set(StorageKey, data)
	}
	if err != nil {
		s.logger.Warn("failed to persist conversation", "turns", len(s.turns), "error", err)
	}
}

func encodeSnapshot(turns []Turn) ([]byte, error) {
	return json.Marshal(envelope{
		State:   envelopeState{Conversation: turns},
		Version: SnapshotVersion,
	})
}

func decodeSnapshot(data []byte) ([]Turn, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode conversation snapshot: %w", err)
	}
	if env.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported conversation snapshot version %d", env.Version)
	}
	return env.State.Conversation, nil
}
