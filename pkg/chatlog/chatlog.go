// Package chatlog stores raw session transcripts as JSON objects
// addressable by a path derived from (user, session). Transcripts are
// written by the turn pipeline and read back only by summarization.
package chatlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hallyulabs/character-memory/pkg/memory"
)

// Store is the raw-log object store contract.
type Store interface {
	// WriteSession persists the transcript and returns its object path.
	// Re-writing the same session replaces the object with the longer
	// transcript; the path is stable for the session's lifetime.
	WriteSession(ctx context.Context, session memory.Session) (string, error)
	// ReadSession loads a transcript back by its object path.
	ReadSession(ctx context.Context, path string) (*Record, error)
}

// Record is the persisted transcript shape, mirroring what the chat
// front end logs per message.
type Record struct {
	UserID       string        `json:"user_id"`
	Character    string        `json:"character"`
	SessionStart time.Time     `json:"session_start"`
	SessionEnd   time.Time     `json:"session_end,omitzero"`
	MessageCount int           `json:"message_count"`
	Messages     []memory.Turn `json:"messages"`
}

// SessionPath derives the object path for a session:
// chat-logs/<user>/<character>#<start>.json.
func SessionPath(session memory.Session) string {
	return filepath.Join("chat-logs", session.UserID, session.ID()+".json")
}

// FSStore implements Store on the local filesystem under a root
// directory. The layout matches the bucket layout of the hosted object
// store so objects can be synced verbatim.
type FSStore struct {
	root string
}

var _ Store = (*FSStore)(nil)

func NewFSStore(root string) *FSStore {
	return &FSStore{root: root}
}

func (s *FSStore) WriteSession(ctx context.Context, session memory.Session) (string, error) {
	path := SessionPath(session)
	full := filepath.Join(s.root, path)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("creating log directory: %w", err)
	}

	record := Record{
		UserID:       session.UserID,
		Character:    session.Character,
		SessionStart: session.StartedAt.UTC(),
		SessionEnd:   time.Now().UTC(),
		MessageCount: len(session.Messages),
		Messages:     session.Messages,
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding transcript: %w", err)
	}

	// Write-then-rename keeps readers from ever seeing a partial object.
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("writing transcript: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		return "", fmt.Errorf("publishing transcript: %w", err)
	}

	return path, nil
}

func (s *FSStore) ReadSession(ctx context.Context, path string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(s.root, path))
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decoding transcript: %w", err)
	}
	return &record, nil
}
