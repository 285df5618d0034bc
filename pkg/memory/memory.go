// Package memory holds the domain model shared by the extraction,
// reconciliation, summarization and context assembly components.
package memory

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// ScopeGlobal marks memories shared across every character of a user.
// Any other scope value is the name of a single character.
const ScopeGlobal = "global"

// Category classifies a durable memory item.
type Category string

const (
	CategoryFact         Category = "fact"
	CategoryPreference   Category = "preference"
	CategoryEmphasis     Category = "emphasis"
	CategoryRelationship Category = "relationship"
	CategoryEvent        Category = "event"
)

// EmphasisImportance is reserved for facts the user explicitly asked to remember.
const EmphasisImportance = 5

// ValidCategory reports whether c is one of the closed category set.
// Extraction output is untrusted; anything else is discarded upstream.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryFact, CategoryPreference, CategoryEmphasis, CategoryRelationship, CategoryEvent:
		return true
	}
	return false
}

// Item is one atomic durable fact about a user.
// Inactive items are kept for audit and never served to context assembly.
type Item struct {
	UserID         string    `db:"user_id"`
	MemoryID       string    `db:"memory_id"`
	Scope          string    `db:"scope"`
	Category       Category  `db:"category"`
	Subject        string    `db:"subject"`
	Content        string    `db:"content"`
	Importance     int       `db:"importance"`
	Active         bool      `db:"active"`
	ReferenceCount int       `db:"reference_count"`
	SourceSession  string    `db:"source_session"`
	CreatedAt      time.Time `db:"created_at"`
	LastReferenced time.Time `db:"last_referenced"`
	Version        int64     `db:"version"`
}

// NewMemoryID generates a memory identifier prefixed with its scope,
// e.g. "global#3f2a91bc04de".
func NewMemoryID(scope string) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("%s#%s", scope, raw[:12])
}

// Candidate is an extraction-produced fact that has not been reconciled yet.
type Candidate struct {
	Scope      string
	Category   Category
	Subject    string
	Content    string
	Importance int
	Emphasis   bool
}

// ClampImportance forces importance into the 1..5 range, with emphasis
// candidates pinned to the maximum regardless of extractor output.
func (c Candidate) ClampImportance() int {
	if c.Emphasis || c.Category == CategoryEmphasis {
		return EmphasisImportance
	}
	switch {
	case c.Importance < 1:
		return 1
	case c.Importance > EmphasisImportance:
		return EmphasisImportance
	}
	return c.Importance
}

// SubjectKey is the reconciliation conflict key: two active items with the
// same key in one scope are claims about the same subject.
func (c Candidate) SubjectKey() string {
	subject := c.Subject
	if strings.TrimSpace(subject) == "" {
		subject = c.Content
	}
	return string(c.Category) + "|" + NormalizeContent(subject)
}

// NormalizeContent lowercases, collapses whitespace and strips trailing
// punctuation so that restatements of one fact compare equal. It is the
// dedup key for idempotent reconciliation.
func NormalizeContent(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}

// Sentiment labels for session summaries.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// CoerceSentiment maps arbitrary model output onto the closed sentiment
// set, defaulting to neutral rather than rejecting the summary.
func CoerceSentiment(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SentimentPositive:
		return SentimentPositive
	case SentimentNegative:
		return SentimentNegative
	}
	return SentimentNeutral
}

// MaxSummaryKeywords bounds the keyword and topic lists of a summary.
const MaxSummaryKeywords = 5

// Summary is the immutable record written once per finished session.
type Summary struct {
	UserID       string    `db:"user_id"`
	SessionID    string    `db:"session_id"`
	Character    string    `db:"character"`
	SessionStart time.Time `db:"session_start"`
	SessionEnd   time.Time `db:"session_end"`
	MessageCount int       `db:"message_count"`
	Summary      string    `db:"summary"`
	Keywords     []string  `db:"-"`
	Sentiment    string    `db:"sentiment"`
	Topics       []string  `db:"-"`
	NewUserInfo  string    `db:"new_user_info"`
	LogPath      string    `db:"log_path"`
}

// Turn is a single utterance inside a session window.
type Turn struct {
	Role      string    `json:"role"` // "user" or "character"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Session is a finished (or in-progress) conversation between one user
// and one character.
type Session struct {
	UserID    string
	Character string
	StartedAt time.Time
	Messages  []Turn
}

// ID derives the session identifier used for summaries, source
// attribution and raw-log paths: "<character>#<RFC3339 start>".
func (s Session) ID() string {
	return fmt.Sprintf("%s#%s", s.Character, s.StartedAt.UTC().Format(time.RFC3339))
}
