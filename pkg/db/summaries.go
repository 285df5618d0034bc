package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hallyulabs/character-memory/pkg/memory"
)

type summaryRow struct {
	UserID       string    `db:"user_id"`
	SessionID    string    `db:"session_id"`
	Character    string    `db:"character"`
	SessionStart time.Time `db:"session_start"`
	SessionEnd   time.Time `db:"session_end"`
	MessageCount int       `db:"message_count"`
	Summary      string    `db:"summary"`
	Keywords     string    `db:"keywords"`
	Sentiment    string    `db:"sentiment"`
	Topics       string    `db:"topics"`
	NewUserInfo  string    `db:"new_user_info"`
	LogPath      string    `db:"log_path"`
}

func (r *summaryRow) toModel() memory.Summary {
	summary := memory.Summary{
		UserID:       r.UserID,
		SessionID:    r.SessionID,
		Character:    r.Character,
		SessionStart: r.SessionStart,
		SessionEnd:   r.SessionEnd,
		MessageCount: r.MessageCount,
		Summary:      r.Summary,
		Sentiment:    r.Sentiment,
		NewUserInfo:  r.NewUserInfo,
		LogPath:      r.LogPath,
	}
	_ = json.Unmarshal([]byte(r.Keywords), &summary.Keywords)
	_ = json.Unmarshal([]byte(r.Topics), &summary.Topics)
	return summary
}

// InsertSessionSummary writes a summary exactly once per session.
// A second write for the same (user, session) is a silent no-op, which
// makes summarization retries idempotent.
func (s *Store) InsertSessionSummary(ctx context.Context, summary memory.Summary) error {
	newUserInfo := summary.NewUserInfo
	if newUserInfo == "" {
		newUserInfo = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO session_summaries
			(user_id, session_id, character, session_start, session_end,
			 message_count, summary, keywords, sentiment, topics, new_user_info, log_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.UserID, summary.SessionID, summary.Character,
		summary.SessionStart.UTC(), summary.SessionEnd.UTC(),
		summary.MessageCount, summary.Summary,
		marshalOr(summary.Keywords, "[]"),
		summary.Sentiment,
		marshalOr(summary.Topics, "[]"),
		newUserInfo, summary.LogPath)
	return err
}

// RecentSummaries returns up to limit summaries for (user, character),
// newest session first.
func (s *Store) RecentSummaries(ctx context.Context, userID, character string, limit int) ([]memory.Summary, error) {
	var rows []summaryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM session_summaries
		WHERE user_id = ? AND character = ?
		ORDER BY session_start DESC
		LIMIT ?`,
		userID, character, limit)
	if err != nil {
		return nil, err
	}

	summaries := make([]memory.Summary, 0, len(rows))
	for i := range rows {
		summaries = append(summaries, rows[i].toModel())
	}
	return summaries, nil
}
