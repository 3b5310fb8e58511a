// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/askchat/internal/conversation"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func identityExpiringAt(t *testing.T, exp time.Time) Identity {
	return Identity{
		ID:       1,
		Username: "alice",
		Email:    "alice@example.com",
		Token:    signedToken(t, jwt.MapClaims{"sub": "1", "exp": exp.Unix()}),
	}
}

func newSupervisor(f *fixture, now time.Time) *Supervisor {
	return NewSupervisor(f.sessions, f.conv, SupervisorConfig{
		CheckInterval: time.Hour,
		Clock:         fixedClock(now),
	})
}

// =============================================================================
// CHECK
// =============================================================================

func TestSupervisor_CheckExpiredLogsOut(t *testing.T) {
	f := newFixture(t)
	f.sessions.SetIdentity(identityExpiringAt(t, epoch.Add(-time.Second)))
	f.conv.AddMessage(conversation.Turn{Question: "q", Answer: "a"})

	sup := newSupervisor(f, epoch)
	assert.False(t, sup.Check())

	assert.False(t, f.sessions.IsAuthenticated())
	assert.Zero(t, f.conv.Len())
	assert.False(t, f.kv.Has(UserKey))
	assert.False(t, f.kv.Has(conversation.StorageKey))
}

func TestSupervisor_CheckTable(t *testing.T) {
	tests := []struct {
		name     string
		token    func(t *testing.T) string
		wantLive bool
	}{
		{"expires in an hour", func(t *testing.T) string {
			return signedToken(t, jwt.MapClaims{"exp": epoch.Add(time.Hour).Unix()})
		}, true},
		{"expires exactly now", func(t *testing.T) string {
			return signedToken(t, jwt.MapClaims{"exp": epoch.Unix()})
		}, true},
		{"expired a second ago", func(t *testing.T) string {
			return signedToken(t, jwt.MapClaims{"exp": epoch.Add(-time.Second).Unix()})
		}, false},
		{"no exp claim", func(t *testing.T) string {
			return signedToken(t, jwt.MapClaims{"sub": "1"})
		}, true},
		{"malformed", func(*testing.T) string { return "not-a-token" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.sessions.SetIdentity(Identity{ID: 1, Username: "u", Token: tt.token(t)})

			sup := newSupervisor(f, epoch)
			assert.Equal(t, tt.wantLive, sup.Check())
			assert.Equal(t, tt.wantLive, f.sessions.IsAuthenticated())
		})
	}
}

func TestSupervisor_CheckWithoutIdentity(t *testing.T) {
	f := newFixture(t)
	sup := newSupervisor(f, epoch)
	assert.False(t, sup.Check())
}

// =============================================================================
// START / STOP
// =============================================================================

func TestSupervisor_StartWithExpiredSnapshot(t *testing.T) {
	f := newFixture(t)
	f.sessions.SetIdentity(identityExpiringAt(t, epoch.Add(-time.Second)))
	f.conv.AddMessage(conversation.Turn{Question: "q", Answer: "a"})

	// Simulate a restart: fresh stores over the same substrate.
	conv := conversation.NewStore(f.kv)
	conv.Initialize()
	sessions := NewStore(f.kv, conv)
	sessions.Initialize()
	require.True(t, sessions.IsAuthenticated())
	require.Equal(t, 1, conv.Len())

	var resets atomic.Int32
	sup := NewSupervisor(sessions, conv, SupervisorConfig{CheckInterval: time.Hour, Clock: fixedClock(epoch)})
	sup.OnReset(func() { resets.Add(1) })
	sup.Start(context.Background())
	defer sup.Stop()

	assert.False(t, sessions.IsAuthenticated())
	assert.Zero(t, conv.Len())
	assert.False(t, f.kv.Has(UserKey))
	assert.False(t, f.kv.Has(conversation.StorageKey))
	assert.Equal(t, int32(1), resets.Load())
}

func TestSupervisor_StartAbsentClearsConversation(t *testing.T) {
	f := newFixture(t)
	f.conv.AddMessage(conversation.Turn{Question: "left over", Answer: "a"})

	var resets atomic.Int32
	sup := newSupervisor(f, epoch)
	sup.OnReset(func() { resets.Add(1) })
	sup.Start(context.Background())
	defer sup.Stop()

	assert.Zero(t, f.conv.Len())
	assert.Equal(t, int32(1), resets.Load())
}

func TestSupervisor_ActivateWithoutStart(t *testing.T) {
	tests := []struct {
		name     string
		identity func(t *testing.T) *Identity
		wantLive bool
		wantLen  int
	}{
		{
			name:     "expired token",
			identity: func(t *testing.T) *Identity { id := identityExpiringAt(t, epoch.Add(-time.Hour)); return &id },
		},
		{
			name: "no identity",
		},
		{
			name:     "live token",
			identity: func(t *testing.T) *Identity { id := identityExpiringAt(t, epoch.Add(time.Hour)); return &id },
			wantLive: true,
			wantLen:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.identity != nil {
				f.sessions.SetIdentity(*tt.identity(t))
			}
			f.conv.AddMessage(conversation.Turn{Question: "q", Answer: "a"})

			// Fresh stores over the same substrate, as a new process sees them.
			conv := conversation.NewStore(f.kv)
			conv.Initialize()
			sessions := NewStore(f.kv, conv)
			sessions.Initialize()

			sup := NewSupervisor(sessions, conv, SupervisorConfig{CheckInterval: time.Hour, Clock: fixedClock(epoch)})
			assert.Equal(t, tt.wantLive, sup.Activate())
			assert.Equal(t, tt.wantLive, sessions.IsAuthenticated())
			assert.Equal(t, tt.wantLen, conv.Len())
			assert.Equal(t, tt.wantLen > 0, f.kv.Has(conversation.StorageKey))
			assert.False(t, sup.Running())
		})
	}
}

func TestSupervisor_StartLiveSessionKeepsState(t *testing.T) {
	f := newFixture(t)
	f.sessions.SetIdentity(identityExpiringAt(t, epoch.Add(time.Hour)))
	f.conv.AddMessage(conversation.Turn{Question: "q", Answer: "a"})

	var resets atomic.Int32
	sup := newSupervisor(f, epoch)
	sup.OnReset(func() { resets.Add(1) })
	sup.Start(context.Background())
	defer sup.Stop()

	assert.True(t, f.sessions.IsAuthenticated())
	assert.Equal(t, 1, f.conv.Len())
	assert.Zero(t, resets.Load())
}

func TestSupervisor_ReactsToLogout(t *testing.T) {
	f := newFixture(t)
	f.sessions.SetIdentity(identityExpiringAt(t, epoch.Add(time.Hour)))

	var resets atomic.Int32
	sup := newSupervisor(f, epoch)
	sup.OnReset(func() { resets.Add(1) })
	sup.Start(context.Background())
	defer sup.Stop()

	f.sessions.Logout()
	assert.Equal(t, int32(1), resets.Load())

	// A second logout is a no-op and does not re-run hooks.
	f.sessions.Logout()
	assert.Equal(t, int32(1), resets.Load())
}

func TestSupervisor_PeriodicCheck(t *testing.T) {
	f := newFixture(t)
	f.sessions.SetIdentity(identityExpiringAt(t, epoch.Add(time.Minute)))

	var now atomic.Int64
	now.Store(epoch.UnixNano())
	sup := NewSupervisor(f.sessions, f.conv, SupervisorConfig{
		CheckInterval: 10 * time.Millisecond,
		Clock:         func() time.Time { return time.Unix(0, now.Load()).UTC() },
	})
	sup.Start(context.Background())
	defer sup.Stop()

	require.True(t, f.sessions.IsAuthenticated())

	now.Store(epoch.Add(2 * time.Minute).UnixNano())
	assert.Eventually(t, func() bool {
		return !f.sessions.IsAuthenticated()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSupervisor_StopIsIdempotent(t *testing.T) {
	f := newFixture(t)
	sup := newSupervisor(f, epoch)

	sup.Stop()
	sup.Start(context.Background())
	assert.True(t, sup.Running())
	sup.Start(context.Background())

	sup.Stop()
	sup.Stop()
	assert.False(t, sup.Running())

	// After Stop the subscription is gone: logout no longer runs hooks.
	var resets atomic.Int32
	sup.OnReset(func() { resets.Add(1) })
	f.sessions.SetIdentity(identityExpiringAt(t, epoch.Add(time.Hour)))
	f.sessions.Logout()
	assert.Zero(t, resets.Load())
}

func TestSupervisor_StopsWithContext(t *testing.T) {
	f := newFixture(t)
	f.sessions.SetIdentity(identityExpiringAt(t, epoch.Add(time.Minute)))

	ctx, cancel := context.WithCancel(context.Background())
	sup := NewSupervisor(f.sessions, f.conv, SupervisorConfig{CheckInterval: 5 * time.Millisecond, Clock: fixedClock(epoch)})
	sup.Start(ctx)
	cancel()
	sup.Stop()
	assert.True(t, f.sessions.IsAuthenticated())
}

// =============================================================================
// STATUS
// =============================================================================

func TestSupervisor_Status(t *testing.T) {
	f := newFixture(t)
	sup := newSupervisor(f, epoch)
	assert.Equal(t, Status{}, sup.Status())

	f.sessions.SetIdentity(identityExpiringAt(t, epoch.Add(90*time.Minute)))
	st := sup.Status()
	assert.True(t, st.Authenticated)
	assert.Equal(t, "alice", st.Username)
	assert.True(t, st.HasExpiry)
	assert.Equal(t, 90*time.Minute, st.Remaining)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{time.Minute, "1m"},
		{90 * time.Second, "1m 30s"},
		{time.Hour, "1h"},
		{90 * time.Minute, "1h 30m"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.d))
		})
	}
}
