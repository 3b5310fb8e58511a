// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/jeranaias/askchat/internal/storage"
)

// ConversationClearer empties the conversation and removes its snapshot.
// conversation.Store satisfies it.
type ConversationClearer interface {
	ClearConversation()
}

// Listener observes identity changes. id is nil when the session ended.
type Listener func(id *Identity)

// =============================================================================
// SESSION STORE
// =============================================================================

// Store holds the current Identity and mirrors it to the "user" snapshot.
type Store struct {
	mu sync.Mutex

	kv           storage.Store
	conversation ConversationClearer
	logger       *slog.Logger

	identity *Identity

	// generation increments on every login and logout so in-flight work can
	// tell whether the session it started under is still current.
	generation uint64

	listeners map[int]Listener
	nextID    int
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

// NewStore creates an empty Store. Call Initialize to restore a snapshot.
// conversation may be nil when no conversation is wired.
func NewStore(kv storage.Store, conversation ConversationClearer, opts ...Option) *Store {
	s := &Store{
		kv:           kv,
		conversation: conversation,
		logger:       slog.Default(),
		listeners:    make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize restores the Identity from its snapshot. A missing or malformed
// snapshot leaves the store without an identity; a malformed one is also
// removed so it cannot outlive the (absent) in-memory state.
func (s *Store) Initialize() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identity = nil
	data, err := s.kv.Get(UserKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to read identity snapshot", "error", err)
		}
		return
	}

	id, err := decodeIdentity(data)
	if err != nil {
		s.logger.Warn("discarding malformed identity snapshot", "error", err)
		if err := s.kv.Delete(UserKey); err != nil {
			s.logger.Warn("failed to delete identity snapshot", "error", err)
		}
		return
	}
	s.identity = id
	s.logger.Debug("identity restored", "user_id", id.ID, "username", id.Username)
}

// Identity returns a copy of the current identity.
func (s *Store) Identity() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

// IsAuthenticated reports whether an identity is present.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity != nil
}

// Generation returns the current session generation.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// SetIdentity replaces the identity. The snapshot is written before the
// in-memory swap; a failed write is logged and the swap still happens.
func (s *Store) SetIdentity(id Identity) {
	data, err := json.Marshal(id)

	s.mu.Lock()
	if err == nil {
		err = s.kv.Set(UserKey, data)
	}
	if err != nil {
		s.logger.Warn("failed to persist identity", "error", err)
	}
	stored := id
	s.identity = &stored
	s.generation++
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	s.logger.Info("identity set", "user_id", id.ID, "username", id.Username)
	notify(listeners, &stored)
}

// Logout ends the session: the identity and its snapshot are removed and the
// conversation is cleared. Calling Logout without an identity only re-asserts
// the cleared state; listeners are not notified again.
func (s *Store) Logout() {
	s.mu.Lock()
	hadIdentity := s.identity != nil
	s.identity = nil
	if err := s.kv.Delete(UserKey); err != nil {
		s.logger.Warn("failed to delete identity snapshot", "error", err)
	}
	var listeners []Listener
	if hadIdentity {
		s.generation++
		listeners = s.snapshotListeners()
	}
	conv := s.conversation
	s.mu.Unlock()

	if conv != nil {
		conv.ClearConversation()
	}
	if hadIdentity {
		s.logger.Info("user logged out and chat cleared")
		notify(listeners, nil)
	}
}

// Subscribe registers fn for identity changes and returns a function that
// removes it.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// snapshotListeners copies the listener set. Caller holds s.mu.
func (s *Store) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(s.listeners))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.listeners[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

// notify runs listeners outside the store lock.
func notify(listeners []Listener, id *Identity) {
	for _, fn := range listeners {
		if id == nil {
			fn(nil)
			continue
		}
		cp := *id
		fn(&cp)
	}
}
