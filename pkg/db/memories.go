package db

import (
	"context"
	"time"

	"github.com/hallyulabs/character-memory/pkg/memory"
)

// ActiveMemories returns the active items for one (user, scope) pair,
// newest first.
func (s *Store) ActiveMemories(ctx context.Context, userID, scope string) ([]memory.Item, error) {
	var items []memory.Item
	err := s.db.SelectContext(ctx, &items, `
		SELECT * FROM memories
		WHERE user_id = ? AND scope = ? AND active = 1
		ORDER BY created_at DESC`,
		userID, scope)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// InsertMemory stores a new memory item. The caller owns ID generation;
// inserting the same memory_id twice is an error.
func (s *Store) InsertMemory(ctx context.Context, item memory.Item) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO memories
			(user_id, memory_id, scope, category, subject, content, importance,
			 active, reference_count, source_session, created_at, last_referenced, version)
		VALUES
			(:user_id, :memory_id, :scope, :category, :subject, :content, :importance,
			 :active, :reference_count, :source_session, :created_at, :last_referenced, 1)`,
		item)
	return err
}

// DeactivateMemory marks an item inactive (superseded), conditional on
// its version. Inactive rows stay for audit.
func (s *Store) DeactivateMemory(ctx context.Context, userID, memoryID string, version int64) error {
	return s.casMemoryUpdate(ctx, `
		UPDATE memories SET active = 0, version = version + 1
		WHERE user_id = ? AND memory_id = ? AND version = ?`,
		userID, memoryID, version)
}

// ReinforceMemory refreshes last_referenced and raises importance on an
// existing active item, conditional on its version.
func (s *Store) ReinforceMemory(ctx context.Context, userID, memoryID string, version int64, importance int, now time.Time) error {
	return s.casMemoryUpdate(ctx, `
		UPDATE memories SET importance = ?, last_referenced = ?, version = version + 1
		WHERE user_id = ? AND memory_id = ? AND version = ?`,
		importance, now.UTC(), userID, memoryID, version)
}

// TouchMemoryReference bumps reference_count and last_referenced after a
// memory was injected into context, conditional on its version.
func (s *Store) TouchMemoryReference(ctx context.Context, userID, memoryID string, version int64, now time.Time) error {
	return s.casMemoryUpdate(ctx, `
		UPDATE memories
		SET reference_count = reference_count + 1, last_referenced = ?, version = version + 1
		WHERE user_id = ? AND memory_id = ? AND version = ?`,
		now.UTC(), userID, memoryID, version)
}

func (s *Store) casMemoryUpdate(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrVersionConflict
	}
	return nil
}
