// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/askchat/internal/storage"
)

func newStore(t *testing.T) (*Store, *storage.MemoryStore) {
	t.Helper()
	kv := storage.NewMemoryStore()
	s := NewStore(kv)
	s.Initialize()
	return s, kv
}

func TestStore_StartsEmpty(t *testing.T) {
	s, kv := newStore(t)
	assert.Zero(t, s.Len())
	assert.Empty(t, s.Turns())
	assert.False(t, kv.Has(StorageKey))
}

func TestStore_AddMessagePreservesOrder(t *testing.T) {
	s, _ := newStore(t)

	s.AddMessage(Turn{Question: "q1", Answer: "a1"})
	s.AddMessage(Turn{Question: "q2", Answer: "a2"})
	s.AddMessage(Turn{Question: "q1", Answer: "a1"}) // duplicates are kept

	assert.Equal(t, []Turn{
		{Question: "q1", Answer: "a1"},
		{Question: "q2", Answer: "a2"},
		{Question: "q1", Answer: "a1"},
	}, s.Turns())
}

func TestStore_AddMessageWritesThrough(t *testing.T) {
	s, kv := newStore(t)
	s.AddMessage(Turn{Question: "What is X?", Answer: "X is Y"})

	data, err := kv.Get(StorageKey)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"state":{"conversation":[{"question":"What is X?","answer":"X is Y"}]},"version":0}`,
		string(data))
}

func TestStore_RoundTrip(t *testing.T) {
	s, kv := newStore(t)
	s.AddMessage(Turn{Question: "a", Answer: "b"})
	s.AddMessage(Turn{Question: "c", Answer: "d"})

	restored := NewStore(kv)
	restored.Initialize()
	assert.Equal(t, s.Turns(), restored.Turns())
}

func TestStore_ClearRemovesSnapshot(t *testing.T) {
	s, kv := newStore(t)
	s.AddMessage(Turn{Question: "a", Answer: "b"})
	require.True(t, kv.Has(StorageKey))

	s.ClearConversation()
	assert.Zero(t, s.Len())
	assert.False(t, kv.Has(StorageKey))
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	s, kv := newStore(t)
	s.AddMessage(Turn{Question: "a", Answer: "b"})

	s.ClearConversation()
	onceTurns, onceHas := s.Turns(), kv.Has(StorageKey)
	s.ClearConversation()

	assert.Equal(t, onceTurns, s.Turns())
	assert.Equal(t, onceHas, kv.Has(StorageKey))
	assert.Zero(t, s.Len())
}

func TestStore_InitializeIgnoresBadSnapshots(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{{{"},
		{"wrong shape", `["a","b"]`},
		{"future version", `{"state":{"conversation":[{"question":"q","answer":"a"}]},"version":3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := storage.NewMemoryStore()
			require.NoError(t, kv.Set(StorageKey, []byte(tt.data)))

			s := NewStore(kv)
			assert.NotPanics(t, s.Initialize)
			assert.Zero(t, s.Len())
		})
	}
}

func TestStore_InitializeAcceptsMissingState(t *testing.T) {
	kv := storage.NewMemoryStore()
	require.NoError(t, kv.Set(StorageKey, []byte(`{"version":0}`)))

	s := NewStore(kv)
	s.Initialize()
	assert.Zero(t, s.Len())
}

func TestStore_TurnsReturnsCopy(t *testing.T) {
	s, _ := newStore(t)
	s.AddMessage(Turn{Question: "a", Answer: "b"})

	turns := s.Turns()
	turns[0].Answer = "mutated"
	assert.Equal(t, "b", s.Turns()[0].Answer)
}

func TestExportMarkdown(t *testing.T) {
	s, _ := newStore(t)
	assert.Empty(t, s.ExportMarkdown())

	s.AddMessage(Turn{Question: "What is X?", Answer: "X is Y"})
	md := s.ExportMarkdown()
	assert.True(t, strings.HasPrefix(md, "## Chat History"))
	assert.Contains(t, md, "**Q:** What is X?")
	assert.Contains(t, md, "**A:** X is Y")
}

func TestFormatTranscript(t *testing.T) {
	assert.Equal(t, "No messages yet.", FormatTranscript(nil, 80))

	out := FormatTranscript([]Turn{{
		Question: "first line\nsecond line",
		Answer:   strings.Repeat("long answer ", 20),
	}}, 40)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "1. first line second line", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "..."))
}

func TestEnvelopeShape(t *testing.T) {
	data, err := encodeSnapshot([]Turn{{Question: "q", Answer: "a"}})
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "state")
	assert.Contains(t, raw, "version")
}

func TestStore_AddMessageIf(t *testing.T) {
	s, kv := newStore(t)

	assert.False(t, s.AddMessageIf(Turn{Question: "stale"}, func() bool { return false }))
	assert.Zero(t, s.Len())
	assert.False(t, kv.Has(StorageKey))

	assert.True(t, s.AddMessageIf(Turn{Question: "fresh", Answer: "a"}, func() bool { return true }))
	assert.Equal(t, []Turn{{Question: "fresh", Answer: "a"}}, s.Turns())
}
