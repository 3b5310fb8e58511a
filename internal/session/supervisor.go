// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jeranaias/askchat/internal/token"
)

// DefaultCheckInterval is how often the supervisor re-checks token expiry.
const DefaultCheckInterval = 60 * time.Second

// =============================================================================
// SUPERVISOR
// =============================================================================

// SupervisorConfig holds configuration for a Supervisor.
type SupervisorConfig struct {
	// CheckInterval is the period between expiry checks (default: 60 seconds).
	CheckInterval time.Duration

	// Clock supplies the current time (default: wall clock).
	Clock token.Clock

	// Logger receives state transitions (default: slog.Default()).
	Logger *slog.Logger
}

// DefaultSupervisorConfig returns the default supervisor configuration.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		CheckInterval: DefaultCheckInterval,
		Clock:         token.SystemClock,
	}
}

// Supervisor logs the user out when their token expires and clears
// conversation and interaction state whenever the identity goes away.
//
// Two triggers drive it: a periodic check every CheckInterval, and a
// subscription to the Store that reacts to the identity becoming absent.
type Supervisor struct {
	mu sync.Mutex

	sessions     *Store
	conversation ConversationClearer
	interval     time.Duration
	clock        token.Clock
	logger       *slog.Logger

	// onReset hooks clear interaction-layer state (displayed answer, query).
	onReset []func()

	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
	unsubscribe func()
}

// NewSupervisor creates a supervisor. conversation may be nil when the Store
// already clears it on logout and no extra clearing is wanted.
func NewSupervisor(sessions *Store, conversation ConversationClearer, cfg SupervisorConfig) *Supervisor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = token.SystemClock
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Supervisor{
		sessions:     sessions,
		conversation: conversation,
		interval:     cfg.CheckInterval,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}
}

// OnReset registers fn to run every time the identity becomes absent.
func (s *Supervisor) OnReset(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReset = append(s.onReset, fn)
}

// Start subscribes to identity changes, runs one check immediately (covering
// tokens that expired while the process was down) and begins periodic checks.
// Periodic checks stop when Stop is called or ctx is done. Calling Start on a
// running supervisor is a no-op.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	unsubscribe := s.sessions.Subscribe(func(id *Identity) {
		if id == nil {
			s.handleAbsent()
		}
	})
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	s.Activate()

	go s.loop(ctx, done)
}

// Activate brings persisted state in line with the token once: an expired
// session is logged out, and an absent identity clears the conversation and
// runs the reset hooks. Start calls it; one-shot commands that read the
// stores without starting the supervisor call it directly. Returns true if a
// live session remains.
func (s *Supervisor) Activate() bool {
	if !s.sessions.IsAuthenticated() {
		// Absent at startup counts as an identity change.
		s.handleAbsent()
		return false
	}
	return s.Check()
}

// Stop cancels periodic checks and the identity subscription, waiting for the
// check goroutine to exit. Safe to call more than once.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	unsubscribe := s.unsubscribe
	s.cancel = nil
	s.unsubscribe = nil
	s.mu.Unlock()

	cancel()
	<-done
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Running reports whether periodic checks are active.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Supervisor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check()
		}
	}
}

// Check evaluates the current token. If it is expired or malformed the user
// is logged out. Returns true if a live session remains.
func (s *Supervisor) Check() bool {
	id, ok := s.sessions.Identity()
	if !ok {
		return false
	}
	if !token.IsExpiredAt(id.Token, s.clock()) {
		return true
	}

	s.logger.Info("token expired, user logged out and chat cleared", "user_id", id.ID)
	s.sessions.Logout()
	return false
}

// handleAbsent clears the conversation and interaction state. Idempotent.
func (s *Supervisor) handleAbsent() {
	if s.conversation != nil {
		s.conversation.ClearConversation()
	}

	s.mu.Lock()
	hooks := make([]func(), len(s.onReset))
	copy(hooks, s.onReset)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// =============================================================================
// SESSION STATUS
// =============================================================================

// Status summarizes the session for display.
type Status struct {
	Authenticated bool
	Username      string
	// Remaining is the token lifetime left; HasExpiry is false when the token
	// carries no exp claim.
	Remaining time.Duration
	HasExpiry bool
}

// Status returns the current session status.
func (s *Supervisor) Status() Status {
	id, ok := s.sessions.Identity()
	if !ok {
		return Status{}
	}
	remaining, hasExp := token.Remaining(id.Token, s.clock())
	return Status{
		Authenticated: true,
		Username:      id.DisplayName(),
		Remaining:     remaining,
		HasExpiry:     hasExp,
	}
}

// FormatDuration returns a human-readable duration string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return strconv.Itoa(int(d.Seconds())) + "s"
	}
	if d >= time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins == 0 {
			return strconv.Itoa(hours) + "h"
		}
		return strconv.Itoa(hours) + "h " + strconv.Itoa(mins) + "m"
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return strconv.Itoa(mins) + "m"
	}
	return strconv.Itoa(mins) + "m " + strconv.Itoa(secs) + "s"
}

// =============================================================================
// BUBBLE TEA INTEGRATION
// =============================================================================

// ResetMsg tells a Bubble Tea model that the session ended and its
// interaction state has been reset.
type ResetMsg struct{}
