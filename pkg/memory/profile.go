package memory

import "time"

// UserProfile is the identity-scoped record mutated by the reconciler and
// the onboarding machine. The Version column backs conditional writes;
// in-memory copies are working copies only.
type UserProfile struct {
	UserID             string          `db:"user_id"`
	Email              string          `db:"email"`
	DisplayName        string          `db:"display_name"`
	Nickname           string          `db:"nickname"`
	Gender             string          `db:"gender"`
	Birthday           string          `db:"birthday"` // "YYYY-MM-DD" or "MM-DD"
	Interests          []string        `db:"-"`
	Preferences        map[string]any  `db:"-"` // open-ended, e.g. kpop tastes
	PreferredTopics    []string        `db:"-"`
	OnboardingFields   map[string]bool `db:"-"`
	OnboardingComplete bool            `db:"onboarding_complete"`
	TotalSessions      int             `db:"total_sessions"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
	LastLoginAt        time.Time       `db:"last_login_at"`
	Version            int64           `db:"version"`
}

// ProfileDelta carries profile-level updates discovered by extraction or
// summarization. Nil pointers mean "no change"; slices and maps merge.
type ProfileDelta struct {
	Nickname        *string        `json:"nickname,omitempty"`
	Gender          *string        `json:"gender,omitempty"`
	Birthday        *string        `json:"birthday,omitempty"`
	Interests       []string       `json:"interests,omitempty"`
	Preferences     map[string]any `json:"preferences,omitempty"`
	PreferredTopics []string       `json:"preferred_topics,omitempty"`
}

// Empty reports whether the delta carries no update at all.
func (d ProfileDelta) Empty() bool {
	return d.Nickname == nil && d.Gender == nil && d.Birthday == nil &&
		len(d.Interests) == 0 && len(d.Preferences) == 0 && len(d.PreferredTopics) == 0
}

// Apply merges the delta into a profile working copy. Corrections
// overwrite scalar fields; list fields accumulate without duplicates.
func (d ProfileDelta) Apply(p *UserProfile) {
	if d.Nickname != nil && *d.Nickname != "" {
		p.Nickname = *d.Nickname
	}
	if d.Gender != nil && (*d.Gender == "male" || *d.Gender == "female") {
		p.Gender = *d.Gender
	}
	if d.Birthday != nil && *d.Birthday != "" {
		p.Birthday = *d.Birthday
	}
	p.Interests = mergeUnique(p.Interests, d.Interests)
	p.PreferredTopics = mergeUnique(p.PreferredTopics, d.PreferredTopics)
	if len(d.Preferences) > 0 {
		if p.Preferences == nil {
			p.Preferences = make(map[string]any, len(d.Preferences))
		}
		for k, v := range d.Preferences {
			p.Preferences[k] = v
		}
	}
}

func mergeUnique(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, v := range existing {
		seen[NormalizeContent(v)] = struct{}{}
	}
	for _, v := range incoming {
		key := NormalizeContent(v)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		existing = append(existing, v)
	}
	return existing
}
