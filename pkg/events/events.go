// Package events defines the NATS subjects and payloads the memory
// engine publishes for downstream consumers (UI refresh, analytics).
// Publishing is best-effort; no subscriber is required for correctness.
package events

import "time"

const (
	SubjectMemoryUpdated      = "memory.updated"
	SubjectSessionSummarized  = "session.summarized"
	SubjectOnboardingAdvanced = "onboarding.advanced"
)

// MemoryUpdated is emitted after a reconciliation pass changed state.
type MemoryUpdated struct {
	UserID     string    `json:"user_id"`
	Scope      string    `json:"scope"`
	Added      int       `json:"added"`
	Superseded int       `json:"superseded"`
	Reinforced int       `json:"reinforced"`
	Timestamp  time.Time `json:"timestamp"`
}

// SessionSummarized is emitted once a session summary has been written.
type SessionSummarized struct {
	UserID       string    `json:"user_id"`
	Character    string    `json:"character"`
	SessionID    string    `json:"session_id"`
	MessageCount int       `json:"message_count"`
	Sentiment    string    `json:"sentiment"`
	Timestamp    time.Time `json:"timestamp"`
}

// OnboardingAdvanced is emitted when the onboarding step moved forward.
type OnboardingAdvanced struct {
	UserID    string    `json:"user_id"`
	Step      int       `json:"step"`
	Complete  bool      `json:"complete"`
	Timestamp time.Time `json:"timestamp"`
}
