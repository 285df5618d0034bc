// Package reconciler merges candidate facts into the durable memory set:
// dedup, supersession of contradicted facts, importance carry-forward and
// the active/inactive lifecycle. All writes go through the store's
// conditional-write contract; a lost race is re-read and retried a small
// bounded number of times, then dropped without failing the conversation.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hallyulabs/character-memory/pkg/db"
	"github.com/hallyulabs/character-memory/pkg/memory"
	"github.com/hallyulabs/character-memory/pkg/memory/onboarding"
)

// maxWriteAttempts bounds the read-reconcile-write retry loop per
// candidate and per profile delta.
const maxWriteAttempts = 3

// Store is the persistence contract the reconciler needs. *db.Store
// satisfies it.
type Store interface {
	ActiveMemories(ctx context.Context, userID, scope string) ([]memory.Item, error)
	InsertMemory(ctx context.Context, item memory.Item) error
	DeactivateMemory(ctx context.Context, userID, memoryID string, version int64) error
	ReinforceMemory(ctx context.Context, userID, memoryID string, version int64, importance int, now time.Time) error

	GetUserProfile(ctx context.Context, userID string) (*memory.UserProfile, error)
	UpdateUserProfileCAS(ctx context.Context, profile *memory.UserProfile) error
}

// Outcome reports what one reconciliation pass changed.
type Outcome struct {
	Added      int
	Superseded int
	Reinforced int
	Dropped    int
}

// Changed reports whether the active set or importance scores moved.
func (o Outcome) Changed() bool {
	return o.Added > 0 || o.Superseded > 0 || o.Reinforced > 0
}

type Reconciler struct {
	store  Store
	logger *log.Logger
}

func New(store Store, logger *log.Logger) (*Reconciler, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Reconciler{store: store, logger: logger}, nil
}

// Reconcile applies candidates for one user. Candidates are processed
// independently; a dropped candidate never affects the others.
func (r *Reconciler) Reconcile(ctx context.Context, userID, sourceSession string, candidates []memory.Candidate) Outcome {
	var outcome Outcome
	for _, candidate := range candidates {
		result, err := r.reconcileOne(ctx, userID, sourceSession, candidate)
		if err != nil {
			r.logger.Warn("Dropping memory candidate", "user", userID, "scope", candidate.Scope, "error", err)
			outcome.Dropped++
			continue
		}
		outcome.Added += result.Added
		outcome.Superseded += result.Superseded
		outcome.Reinforced += result.Reinforced
	}
	return outcome
}

func (r *Reconciler) reconcileOne(ctx context.Context, userID, sourceSession string, candidate memory.Candidate) (Outcome, error) {
	normContent := memory.NormalizeContent(candidate.Content)
	if normContent == "" {
		return Outcome{}, fmt.Errorf("empty candidate content")
	}
	if candidate.Scope == "" {
		candidate.Scope = memory.ScopeGlobal
	}

	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		outcome, err := r.applyCandidate(ctx, userID, sourceSession, candidate, normContent)
		if err == nil {
			return outcome, nil
		}
		if !errors.Is(err, db.ErrVersionConflict) {
			return Outcome{}, err
		}
		lastErr = err
		r.logger.Debug("Write conflict, re-reconciling candidate", "user", userID, "attempt", attempt+1)
	}
	return Outcome{}, fmt.Errorf("candidate lost %d write races: %w", maxWriteAttempts, lastErr)
}

// applyCandidate runs one read-reconcile-write cycle.
func (r *Reconciler) applyCandidate(ctx context.Context, userID, sourceSession string, candidate memory.Candidate, normContent string) (Outcome, error) {
	actives, err := r.store.ActiveMemories(ctx, userID, candidate.Scope)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading active memories: %w", err)
	}

	now := time.Now().UTC()
	importance := candidate.ClampImportance()
	subjectKey := candidate.SubjectKey()

	// Self-heal: at most one active item may carry one dedup key. If a
	// past race let a duplicate through, retire the older copy now.
	duplicate := r.healDuplicates(ctx, userID, actives, normContent)

	if duplicate != nil {
		// Same fact restated: idempotent. Reinforcement carries the
		// higher importance and refreshes recency.
		kept := max(duplicate.Importance, importance)
		if err := r.store.ReinforceMemory(ctx, userID, duplicate.MemoryID, duplicate.Version, kept, now); err != nil {
			return Outcome{}, err
		}
		return Outcome{Reinforced: 1}, nil
	}

	// Contradiction: an active item about the same subject with other
	// content is superseded, never hard-deleted.
	var superseded int
	for i := range actives {
		item := &actives[i]
		if !item.Active || item.Category != candidate.Category {
			continue
		}
		if itemSubjectKey(item) != subjectKey {
			continue
		}
		if err := r.store.DeactivateMemory(ctx, userID, item.MemoryID, item.Version); err != nil {
			return Outcome{}, err
		}
		item.Active = false
		superseded++
	}

	item := memory.Item{
		UserID:         userID,
		MemoryID:       memory.NewMemoryID(candidate.Scope),
		Scope:          candidate.Scope,
		Category:       candidate.Category,
		Subject:        candidate.Subject,
		Content:        candidate.Content,
		Importance:     importance,
		Active:         true,
		SourceSession:  sourceSession,
		CreatedAt:      now,
		LastReferenced: now,
	}
	if err := r.store.InsertMemory(ctx, item); err != nil {
		return Outcome{}, fmt.Errorf("inserting memory: %w", err)
	}

	return Outcome{Added: 1, Superseded: superseded}, nil
}

// healDuplicates deactivates all but the newest active item sharing the
// candidate's dedup key and returns the survivor, if any.
func (r *Reconciler) healDuplicates(ctx context.Context, userID string, actives []memory.Item, normContent string) *memory.Item {
	var newest *memory.Item
	for i := range actives {
		item := &actives[i]
		if !item.Active || memory.NormalizeContent(item.Content) != normContent {
			continue
		}
		if newest == nil || item.CreatedAt.After(newest.CreatedAt) {
			newest = item
		}
	}
	if newest == nil {
		return nil
	}
	for i := range actives {
		item := &actives[i]
		if !item.Active || item.MemoryID == newest.MemoryID {
			continue
		}
		if memory.NormalizeContent(item.Content) != normContent {
			continue
		}
		if err := r.store.DeactivateMemory(ctx, userID, item.MemoryID, item.Version); err != nil {
			// Healing is opportunistic; the next write sees it again.
			r.logger.Debug("Duplicate heal write lost a race", "user", userID, "memory", item.MemoryID)
			continue
		}
		item.Active = false
	}
	return newest
}

func itemSubjectKey(item *memory.Item) string {
	subject := item.Subject
	if subject == "" {
		subject = item.Content
	}
	return string(item.Category) + "|" + memory.NormalizeContent(subject)
}

// ApplyProfileDelta merges discovered profile fields into the user's
// profile under the same bounded CAS retry policy, and advances the
// onboarding machine from the updated state. It reports the resulting
// onboarding step and whether the step moved.
func (r *Reconciler) ApplyProfileDelta(ctx context.Context, userID string, delta memory.ProfileDelta) (step int, advanced bool, err error) {
	if delta.Empty() {
		return 0, false, nil
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		profile, err := r.store.GetUserProfile(ctx, userID)
		if err != nil {
			return 0, false, fmt.Errorf("loading profile: %w", err)
		}

		before := onboarding.CurrentStep(profile)
		delta.Apply(profile)
		onboarding.Observe(profile)
		after := onboarding.CurrentStep(profile)

		if err := r.store.UpdateUserProfileCAS(ctx, profile); err != nil {
			if errors.Is(err, db.ErrVersionConflict) {
				continue
			}
			return 0, false, fmt.Errorf("writing profile: %w", err)
		}
		return after, after > before, nil
	}

	r.logger.Warn("Profile delta lost all write races, dropping", "user", userID)
	return 0, false, nil
}
