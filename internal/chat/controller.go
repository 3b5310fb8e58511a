// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jeranaias/askchat/internal/api"
	"github.com/jeranaias/askchat/internal/conversation"
	"github.com/jeranaias/askchat/internal/session"
)

// Display text.
const (
	LoadingText     = "Loading..."
	NoAnswerText    = "No response from AI Model"
	ErrorPrefix     = "Error: "
	FetchFailedText = "Failed to fetch answer"
)

// State is the interaction state of a Controller.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateAnswered
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateAnswered:
		return "answered"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Backend is the subset of api.Client the controller needs.
type Backend interface {
	Ask(ctx context.Context, question, token string) (string, error)
	History(ctx context.Context, token string) ([]api.SavedChat, error)
}

// Result describes how a submission ended.
type Result struct {
	State State
	// Answer is what was displayed: the answer, the placeholder or the
	// error text.
	Answer string
	// Appended is true when a turn was added to the conversation.
	Appended bool
	// Discarded is true when the session changed while the request was in
	// flight and the result was dropped.
	Discarded bool
	Err       error
}

// View is a read-only copy of everything a host renders.
type View struct {
	State             State
	Query             string
	Answer            string
	Error             string
	Conversation      []conversation.Turn
	SavedChats        []api.SavedChat
	SavedChatsVisible bool
	Authenticated     bool
	Username          string
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller is the chat interaction state machine. Safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	backend      Backend
	sessions     *session.Store
	conversation *conversation.Store
	logger       *slog.Logger

	state      State
	query      string
	answer     string
	errText    string
	savedChats []api.SavedChat
	showSaved  bool

	// submission numbers Submit calls so only the latest one owns the display.
	submission uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewController creates a controller in the Idle state.
func NewController(backend Backend, sessions *session.Store, conv *conversation.Store, opts ...Option) *Controller {
	c := &Controller{
		backend:      backend,
		sessions:     sessions,
		conversation: conv,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetQuery records the pending input text.
func (c *Controller) SetQuery(q string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query = q
}

// Submit asks question and blocks until the backend answers or fails.
//
// The displayed answer becomes "Loading..." immediately. On success the
// answer (or a placeholder when the response had none) is displayed, the turn
// is appended and the input is cleared. On failure "Error: <message>" is
// displayed and the conversation is left alone.
func (c *Controller) Submit(ctx context.Context, question string) Result {
	generation := c.sessions.Generation()
	var token string
	if id, ok := c.sessions.Identity(); ok {
		token = id.Token
	}

	c.mu.Lock()
	c.submission++
	seq := c.submission
	c.state = StateSubmitting
	c.query = question
	c.errText = ""
	c.answer = LoadingText
	c.mu.Unlock()

	answer, err := c.backend.Ask(ctx, question, token)

	if c.sessions.Generation() != generation {
		c.logger.Debug("discarding answer from previous session")
		return Result{State: c.State(), Discarded: true, Err: err}
	}

	if err != nil {
		msg := api.DisplayMessage(err, FetchFailedText)
		text := ErrorPrefix + msg
		c.logger.Warn("ask failed", "error", err)

		c.mu.Lock()
		if c.ownsDisplay(seq, generation) {
			c.state = StateFailed
			c.answer = text
			c.errText = msg
		}
		c.mu.Unlock()
		return Result{State: StateFailed, Answer: text, Err: err}
	}

	if answer == "" {
		answer = NoAnswerText
	}

	appended := c.conversation.AddMessageIf(
		conversation.Turn{Question: question, Answer: answer},
		func() bool { return c.sessions.Generation() == generation },
	)
	if !appended {
		c.logger.Debug("discarding answer from previous session")
		return Result{State: c.State(), Discarded: true}
	}

	c.mu.Lock()
	if c.ownsDisplay(seq, generation) {
		c.state = StateAnswered
		c.answer = answer
		c.query = ""
	}
	c.mu.Unlock()
	return Result{State: StateAnswered, Answer: answer, Appended: true}
}

// ownsDisplay reports whether submission seq, started under generation, may
// still write the displayed answer. Session resets run after the generation
// bump. Caller holds c.mu.
func (c *Controller) ownsDisplay(seq, generation uint64) bool {
	return seq == c.submission && c.sessions.Generation() == generation
}

// LoadHistory replaces the saved-chats list with the server's. Without an
// identity it does nothing. Failures are logged only.
func (c *Controller) LoadHistory(ctx context.Context) {
	id, ok := c.sessions.Identity()
	if !ok {
		return
	}
	generation := c.sessions.Generation()

	chats, err := c.backend.History(ctx, id.Token)
	if err != nil {
		c.logger.Error("failed to load saved chats", "error", err)
		return
	}
	if c.sessions.Generation() != generation {
		return
	}

	c.mu.Lock()
	c.savedChats = chats
	c.mu.Unlock()
	c.logger.Debug("saved chats loaded", "count", len(chats))
}

// SetSavedChatsVisible shows or hides saved chats. The list is fetched only
// on the hidden-to-visible transition; the flag flips before the fetch so
// concurrent callers see it.
func (c *Controller) SetSavedChatsVisible(ctx context.Context, visible bool) {
	c.mu.Lock()
	fetch := visible && !c.showSaved
	c.showSaved = visible
	c.mu.Unlock()

	if fetch {
		c.LoadHistory(ctx)
	}
}

// ToggleSavedChats flips saved-chats visibility and returns the new value.
func (c *Controller) ToggleSavedChats(ctx context.Context) bool {
	c.mu.Lock()
	c.showSaved = !c.showSaved
	visible := c.showSaved
	c.mu.Unlock()

	if visible {
		c.LoadHistory(ctx)
	}
	return visible
}

// ClearHistory empties the conversation and the displayed answer.
func (c *Controller) ClearHistory() {
	c.conversation.ClearConversation()

	c.mu.Lock()
	c.answer = ""
	c.errText = ""
	if c.state != StateSubmitting {
		c.state = StateIdle
	}
	c.mu.Unlock()
}

// Reset returns the controller to Idle with empty query, answer, error and
// saved chats. Supervisors call it when the session ends.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateIdle
	c.query = ""
	c.answer = ""
	c.errText = ""
	c.savedChats = nil
	c.showSaved = false
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the renderable state.
func (c *Controller) Snapshot() View {
	id, authenticated := c.sessions.Identity()
	turns := c.conversation.Turns()

	c.mu.Lock()
	defer c.mu.Unlock()
	saved := make([]api.SavedChat, len(c.savedChats))
	copy(saved, c.savedChats)
	return View{
		State:             c.state,
		Query:             c.query,
		Answer:            c.answer,
		Error:             c.errText,
		Conversation:      turns,
		SavedChats:        saved,
		SavedChatsVisible: c.showSaved,
		Authenticated:     authenticated,
		Username:          id.DisplayName(),
	}
}
