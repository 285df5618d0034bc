package chatlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallyulabs/character-memory/pkg/memory"
)

func TestSessionPath(t *testing.T) {
	session := memory.Session{
		UserID:    "u1",
		Character: "지민",
		StartedAt: time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "chat-logs/u1/지민#2026-03-05T10:00:00Z.json", SessionPath(session))
}

func TestFSStoreRoundTrip(t *testing.T) {
	store := NewFSStore(t.TempDir())
	ctx := context.Background()

	session := memory.Session{
		UserID:    "u1",
		Character: "지민",
		StartedAt: time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC),
		Messages: []memory.Turn{
			{Role: "user", Content: "안녕!"},
			{Role: "character", Content: "반가워요"},
		},
	}

	path, err := store.WriteSession(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, SessionPath(session), path)

	record, err := store.ReadSession(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "u1", record.UserID)
	assert.Equal(t, 2, record.MessageCount)
	require.Len(t, record.Messages, 2)
	assert.Equal(t, "안녕!", record.Messages[0].Content)
}

// TestFSStoreRewrite: re-writing the same session keeps the path stable
// and replaces the transcript with the longer one.
func TestFSStoreRewrite(t *testing.T) {
	store := NewFSStore(t.TempDir())
	ctx := context.Background()

	session := memory.Session{
		UserID:    "u1",
		Character: "지민",
		StartedAt: time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC),
		Messages:  []memory.Turn{{Role: "user", Content: "안녕!"}},
	}
	first, err := store.WriteSession(ctx, session)
	require.NoError(t, err)

	session.Messages = append(session.Messages, memory.Turn{Role: "character", Content: "반가워요"})
	second, err := store.WriteSession(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	record, err := store.ReadSession(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 2, record.MessageCount)
}

func TestReadMissingSession(t *testing.T) {
	store := NewFSStore(t.TempDir())
	_, err := store.ReadSession(context.Background(), "chat-logs/u1/nope.json")
	assert.Error(t, err)
}
