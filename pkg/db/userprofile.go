package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/hallyulabs/character-memory/pkg/memory"
)

type userProfileRow struct {
	UserID             string    `db:"user_id"`
	Email              string    `db:"email"`
	DisplayName        string    `db:"display_name"`
	Nickname           string    `db:"nickname"`
	Gender             string    `db:"gender"`
	Birthday           string    `db:"birthday"`
	Interests          string    `db:"interests"`
	Preferences        string    `db:"preferences"`
	PreferredTopics    string    `db:"preferred_topics"`
	OnboardingFields   string    `db:"onboarding_fields"`
	OnboardingComplete bool      `db:"onboarding_complete"`
	TotalSessions      int       `db:"total_sessions"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
	LastLoginAt        time.Time `db:"last_login_at"`
	Version            int64     `db:"version"`
}

func (r *userProfileRow) toModel() *memory.UserProfile {
	profile := &memory.UserProfile{
		UserID:             r.UserID,
		Email:              r.Email,
		DisplayName:        r.DisplayName,
		Nickname:           r.Nickname,
		Gender:             r.Gender,
		Birthday:           r.Birthday,
		OnboardingComplete: r.OnboardingComplete,
		TotalSessions:      r.TotalSessions,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		LastLoginAt:        r.LastLoginAt,
		Version:            r.Version,
	}
	// JSON columns are written by this package only; a decode failure
	// means a corrupt row, which we treat as the empty value.
	_ = json.Unmarshal([]byte(r.Interests), &profile.Interests)
	_ = json.Unmarshal([]byte(r.Preferences), &profile.Preferences)
	_ = json.Unmarshal([]byte(r.PreferredTopics), &profile.PreferredTopics)
	_ = json.Unmarshal([]byte(r.OnboardingFields), &profile.OnboardingFields)
	return profile
}

func marshalOr(v any, fallback string) string {
	data, err := json.Marshal(v)
	if err != nil || v == nil {
		return fallback
	}
	return string(data)
}

// GetUserProfile retrieves one user profile, or ErrNotFound.
func (s *Store) GetUserProfile(ctx context.Context, userID string) (*memory.UserProfile, error) {
	var row userProfileRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM user_profiles WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// GetOrCreateUser returns the profile for userID, creating it on first
// login. Existing users get last_login_at refreshed and total_sessions
// incremented; both paths are safe to call concurrently.
func (s *Store) GetOrCreateUser(ctx context.Context, userID, email, displayName string) (*memory.UserProfile, error) {
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO user_profiles
			(user_id, email, display_name, total_sessions, created_at, updated_at, last_login_at)
		VALUES (?, ?, ?, 1, ?, ?, ?)`,
		userID, email, displayName, now, now, now)
	if err != nil {
		return nil, err
	}

	if inserted, err := res.RowsAffected(); err == nil && inserted == 0 {
		_, err = s.db.ExecContext(ctx, `
			UPDATE user_profiles
			SET last_login_at = ?, total_sessions = total_sessions + 1, version = version + 1
			WHERE user_id = ?`,
			now, userID)
		if err != nil {
			return nil, err
		}
	}

	return s.GetUserProfile(ctx, userID)
}

// UpdateUserProfileCAS writes the profile working copy back, but only if
// the stored row still carries profile.Version. On a lost race it
// returns ErrVersionConflict and writes nothing.
func (s *Store) UpdateUserProfileCAS(ctx context.Context, profile *memory.UserProfile) error {
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE user_profiles SET
			nickname = ?, gender = ?, birthday = ?,
			interests = ?, preferences = ?, preferred_topics = ?,
			onboarding_fields = ?, onboarding_complete = ?,
			updated_at = ?, version = version + 1
		WHERE user_id = ? AND version = ?`,
		profile.Nickname, profile.Gender, profile.Birthday,
		marshalOr(profile.Interests, "[]"),
		marshalOr(profile.Preferences, "{}"),
		marshalOr(profile.PreferredTopics, "[]"),
		marshalOr(profile.OnboardingFields, "{}"),
		profile.OnboardingComplete,
		now, profile.UserID, profile.Version)
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

	profile.Version++
	profile.UpdatedAt = now
	return nil
}
