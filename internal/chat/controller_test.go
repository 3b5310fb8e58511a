// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/askchat/internal/api"
	"github.com/jeranaias/askchat/internal/conversation"
	"github.com/jeranaias/askchat/internal/session"
	"github.com/jeranaias/askchat/internal/storage"
)

// fakeBackend answers through caller-supplied functions.
type fakeBackend struct {
	ask     func(ctx context.Context, question, token string) (string, error)
	history func(ctx context.Context, token string) ([]api.SavedChat, error)

	historyCalls atomic.Int32
}

func (f *fakeBackend) Ask(ctx context.Context, question, token string) (string, error) {
	return f.ask(ctx, question, token)
}

func (f *fakeBackend) History(ctx context.Context, token string) ([]api.SavedChat, error) {
	f.historyCalls.Add(1)
	if f.history == nil {
		return nil, nil
	}
	return f.history(ctx, token)
}

func answerWith(answer string, err error) func(context.Context, string, string) (string, error) {
	return func(context.Context, string, string) (string, error) { return answer, err }
}

type harness struct {
	kv       *storage.MemoryStore
	conv     *conversation.Store
	sessions *session.Store
	backend  *fakeBackend
	ctrl     *Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	kv := storage.NewMemoryStore()
	conv := conversation.NewStore(kv)
	conv.Initialize()
	sessions := session.NewStore(kv, conv)
	sessions.Initialize()
	backend := &fakeBackend{ask: answerWith("", nil)}
	ctrl := NewController(backend, sessions, conv)

	// Mirror what the supervisor does when the identity goes away.
	sessions.Subscribe(func(id *session.Identity) {
		if id == nil {
			ctrl.Reset()
		}
	})
	return &harness{kv: kv, conv: conv, sessions: sessions, backend: backend, ctrl: ctrl}
}

func (h *harness) login() {
	h.sessions.SetIdentity(session.Identity{ID: 1, Username: "alice", Email: "alice@example.com", Token: "bearer-1"})
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmit_AuthenticatedSuccess(t *testing.T) {
	h := newHarness(t)
	h.login()

	var gotToken string
	h.backend.ask = func(_ context.Context, q, token string) (string, error) {
		gotToken = token
		assert.Equal(t, "2+2?", q)
		return "4", nil
	}

	res := h.ctrl.Submit(context.Background(), "2+2?")

	assert.Equal(t, StateAnswered, res.State)
	assert.True(t, res.Appended)
	assert.Equal(t, "bearer-1", gotToken)

	v := h.ctrl.Snapshot()
	assert.Equal(t, StateAnswered, v.State)
	assert.Equal(t, "4", v.Answer)
	assert.Empty(t, v.Query)
	assert.Empty(t, v.Error)
	assert.Equal(t, []conversation.Turn{{Question: "2+2?", Answer: "4"}}, v.Conversation)
	assert.True(t, h.kv.Has(conversation.StorageKey))
}

func TestSubmit_AnonymousAppends(t *testing.T) {
	h := newHarness(t)

	var gotToken = "unset"
	h.backend.ask = func(_ context.Context, _, token string) (string, error) {
		gotToken = token
		return "hi", nil
	}

	res := h.ctrl.Submit(context.Background(), "hello")

	assert.Equal(t, "", gotToken)
	assert.True(t, res.Appended)
	assert.Equal(t, []conversation.Turn{{Question: "hello", Answer: "hi"}}, h.conv.Turns())
}

func TestSubmit_EmptyAnswerUsesPlaceholder(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.backend.ask = answerWith("", nil)

	res := h.ctrl.Submit(context.Background(), "anything?")

	assert.Equal(t, StateAnswered, res.State)
	assert.Equal(t, NoAnswerText, h.ctrl.Snapshot().Answer)
	assert.Equal(t, []conversation.Turn{{Question: "anything?", Answer: NoAnswerText}}, h.conv.Turns())
}

func TestSubmit_Failures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"server error field", &api.Error{Status: 500, Message: "Model unavailable"}, "Error: Model unavailable"},
		{"server error without message", &api.Error{Status: 502}, "Error: Failed to fetch answer"},
		{"network", fmt.Errorf("%w: dial tcp: refused", api.ErrNetwork), "Error: Failed to fetch answer"},
		{"undecodable body", fmt.Errorf("%w: ask: invalid character", api.ErrInvalidResponse), "Error: Failed to fetch answer"},
		{"other", errors.New("boom"), "Error: Failed to fetch answer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.login()
			h.conv.AddMessage(conversation.Turn{Question: "earlier", Answer: "kept"})
			h.backend.ask = answerWith("", tt.err)

			res := h.ctrl.Submit(context.Background(), "q")

			assert.Equal(t, StateFailed, res.State)
			assert.False(t, res.Appended)
			assert.ErrorIs(t, res.Err, tt.err)

			v := h.ctrl.Snapshot()
			assert.Equal(t, tt.want, v.Answer)
			assert.Equal(t, "q", v.Query, "failed submission keeps the input")
			assert.Equal(t, []conversation.Turn{{Question: "earlier", Answer: "kept"}}, v.Conversation)
		})
	}
}

func TestSubmit_ShowsLoadingWhileInFlight(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	started := make(chan struct{})
	h.backend.ask = func(context.Context, string, string) (string, error) {
		close(started)
		<-release
		return "done", nil
	}

	done := make(chan Result)
	go func() { done <- h.ctrl.Submit(context.Background(), "slow?") }()
	<-started

	v := h.ctrl.Snapshot()
	assert.Equal(t, StateSubmitting, v.State)
	assert.Equal(t, LoadingText, v.Answer)
	assert.Equal(t, "slow?", v.Query)

	close(release)
	res := <-done
	assert.Equal(t, StateAnswered, res.State)
	assert.Equal(t, "done", h.ctrl.Snapshot().Answer)
}

func TestSubmit_NewSubmissionClearsError(t *testing.T) {
	h := newHarness(t)
	h.backend.ask = answerWith("", &api.Error{Status: 500, Message: "down"})
	h.ctrl.Submit(context.Background(), "first")
	require.Equal(t, "down", h.ctrl.Snapshot().Error)

	h.backend.ask = answerWith("up", nil)
	res := h.ctrl.Submit(context.Background(), "second")

	assert.Equal(t, StateAnswered, res.State)
	v := h.ctrl.Snapshot()
	assert.Empty(t, v.Error)
	assert.Equal(t, "up", v.Answer)
}

func TestSubmit_LogoutDuringFlightDiscardsResult(t *testing.T) {
	h := newHarness(t)
	h.login()

	h.backend.ask = func(context.Context, string, string) (string, error) {
		h.sessions.Logout()
		return "late answer", nil
	}

	res := h.ctrl.Submit(context.Background(), "q")

	assert.True(t, res.Discarded)
	assert.False(t, res.Appended)
	assert.Zero(t, h.conv.Len())
	assert.False(t, h.kv.Has(conversation.StorageKey))

	v := h.ctrl.Snapshot()
	assert.Equal(t, StateIdle, v.State)
	assert.Empty(t, v.Answer)
	assert.False(t, v.Authenticated)
}

func TestSubmit_ReloginDuringFlightDiscardsResult(t *testing.T) {
	h := newHarness(t)
	h.login()

	h.backend.ask = func(context.Context, string, string) (string, error) {
		h.sessions.Logout()
		h.sessions.SetIdentity(session.Identity{ID: 2, Username: "bob", Token: "bearer-2"})
		return "", errors.New("connection reset")
	}

	res := h.ctrl.Submit(context.Background(), "q")

	assert.True(t, res.Discarded)
	assert.Zero(t, h.conv.Len())
	assert.Empty(t, h.ctrl.Snapshot().Answer)
}

func TestSubmit_ConcurrentSubmissionsAllAppend(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.backend.ask = func(_ context.Context, q, _ string) (string, error) {
		return "re: " + q, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.ctrl.Submit(context.Background(), fmt.Sprintf("q%d", i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, h.conv.Len())
	assert.Equal(t, StateAnswered, h.ctrl.State())
}

// =============================================================================
// SAVED CHATS
// =============================================================================

var savedChats = []api.SavedChat{
	{ID: 1, Messages: []api.Message{{Question: "old q", Answer: "old a"}}},
}

func TestLoadHistory_WithoutIdentityIsNoop(t *testing.T) {
	h := newHarness(t)
	h.ctrl.LoadHistory(context.Background())
	assert.Zero(t, h.backend.historyCalls.Load())
}

func TestLoadHistory_ReplacesList(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.backend.history = func(_ context.Context, token string) ([]api.SavedChat, error) {
		assert.Equal(t, "bearer-1", token)
		return savedChats, nil
	}

	h.ctrl.LoadHistory(context.Background())
	assert.Equal(t, savedChats, h.ctrl.Snapshot().SavedChats)
}

func TestLoadHistory_FailureKeepsList(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.backend.history = func(context.Context, string) ([]api.SavedChat, error) { return savedChats, nil }
	h.ctrl.LoadHistory(context.Background())

	h.backend.history = func(context.Context, string) ([]api.SavedChat, error) {
		return nil, &api.Error{Status: 500}
	}
	h.ctrl.LoadHistory(context.Background())
	assert.Equal(t, savedChats, h.ctrl.Snapshot().SavedChats)
}

func TestToggleSavedChats_FetchesOnlyWhenOpening(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.backend.history = func(context.Context, string) ([]api.SavedChat, error) { return savedChats, nil }
	ctx := context.Background()

	assert.True(t, h.ctrl.ToggleSavedChats(ctx))
	assert.Equal(t, int32(1), h.backend.historyCalls.Load())
	assert.True(t, h.ctrl.Snapshot().SavedChatsVisible)

	assert.False(t, h.ctrl.ToggleSavedChats(ctx))
	assert.Equal(t, int32(1), h.backend.historyCalls.Load())

	h.ctrl.SetSavedChatsVisible(ctx, true)
	h.ctrl.SetSavedChatsVisible(ctx, true)
	assert.Equal(t, int32(2), h.backend.historyCalls.Load())
}

func TestSetSavedChatsVisible_ConcurrentShowsFetchOnce(t *testing.T) {
	h := newHarness(t)
	h.login()
	release := make(chan struct{})
	h.backend.history = func(context.Context, string) ([]api.SavedChat, error) {
		<-release
		return savedChats, nil
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.ctrl.SetSavedChatsVisible(ctx, true)
		}()
	}
	assert.Eventually(t, func() bool { return h.backend.historyCalls.Load() >= 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), h.backend.historyCalls.Load())
	v := h.ctrl.Snapshot()
	assert.True(t, v.SavedChatsVisible)
	assert.Equal(t, savedChats, v.SavedChats)
}

func TestToggleSavedChats_SecondPressDuringFetchHides(t *testing.T) {
	h := newHarness(t)
	h.login()
	release := make(chan struct{})
	h.backend.history = func(context.Context, string) ([]api.SavedChat, error) {
		<-release
		return savedChats, nil
	}
	ctx := context.Background()

	first := make(chan bool, 1)
	go func() { first <- h.ctrl.ToggleSavedChats(ctx) }()
	require.Eventually(t, func() bool { return h.backend.historyCalls.Load() == 1 }, time.Second, time.Millisecond)

	assert.False(t, h.ctrl.ToggleSavedChats(ctx))
	close(release)
	assert.True(t, <-first)

	assert.Equal(t, int32(1), h.backend.historyCalls.Load())
	assert.False(t, h.ctrl.Snapshot().SavedChatsVisible)
}

// =============================================================================
// CLEAR / RESET
// =============================================================================

func TestClearHistory(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.backend.ask = answerWith("a", nil)
	h.ctrl.Submit(context.Background(), "q")

	h.ctrl.ClearHistory()

	v := h.ctrl.Snapshot()
	assert.Empty(t, v.Conversation)
	assert.Empty(t, v.Answer)
	assert.Equal(t, StateIdle, v.State)
	assert.True(t, v.Authenticated, "clearing history keeps the session")
	assert.False(t, h.kv.Has(conversation.StorageKey))
}

func TestLogoutResetsInteractionState(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.backend.ask = answerWith("a", nil)
	h.backend.history = func(context.Context, string) ([]api.SavedChat, error) { return savedChats, nil }
	h.ctrl.Submit(context.Background(), "q")
	h.ctrl.SetQuery("draft")
	h.ctrl.ToggleSavedChats(context.Background())

	h.sessions.Logout()

	v := h.ctrl.Snapshot()
	assert.Equal(t, View{
		State:        StateIdle,
		Conversation: []conversation.Turn{},
		SavedChats:   []api.SavedChat{},
	}, v)
}

func TestSupervisorExpiryDuringFlight(t *testing.T) {
	h := newHarness(t)
	h.sessions.SetIdentity(session.Identity{ID: 1, Username: "alice", Token: "not-a-jwt"})

	sup := session.NewSupervisor(h.sessions, h.conv, session.SupervisorConfig{
		CheckInterval: time.Hour,
		Clock:         func() time.Time { return time.Unix(0, 0) },
	})
	h.backend.ask = func(context.Context, string, string) (string, error) {
		// Malformed token counts as expired.
		assert.False(t, sup.Check())
		return "late", nil
	}

	res := h.ctrl.Submit(context.Background(), "q")
	assert.True(t, res.Discarded)
	assert.Zero(t, h.conv.Len())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "submitting", StateSubmitting.String())
	assert.Equal(t, "answered", StateAnswered.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(99).String())
}
