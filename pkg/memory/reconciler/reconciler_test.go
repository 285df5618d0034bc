package reconciler

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallyulabs/character-memory/pkg/db"
	"github.com/hallyulabs/character-memory/pkg/helpers"
	"github.com/hallyulabs/character-memory/pkg/memory"
	"github.com/hallyulabs/character-memory/pkg/memory/onboarding"
)

func newTestReconciler(t *testing.T) (*Reconciler, *db.Store) {
	t.Helper()
	logger := log.New(io.Discard)
	store, err := db.NewStore(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	r, err := New(store, logger)
	require.NoError(t, err)
	return r, store
}

func preference(content string) memory.Candidate {
	return memory.Candidate{
		Scope:      memory.ScopeGlobal,
		Category:   memory.CategoryPreference,
		Subject:    "food preference",
		Content:    content,
		Importance: 3,
	}
}

// TestReconcileIdempotence: the same fact seen twice leaves exactly one
// active item and counts as reinforcement, not growth.
func TestReconcileIdempotence(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()

	first := r.Reconcile(ctx, "u1", "s1", []memory.Candidate{preference("사용자는 짜장면을 좋아한다")})
	assert.Equal(t, 1, first.Added)

	second := r.Reconcile(ctx, "u1", "s2", []memory.Candidate{preference("사용자는 짜장면을 좋아한다!")})
	assert.Equal(t, 0, second.Added)
	assert.Equal(t, 1, second.Reinforced)

	actives, err := store.ActiveMemories(ctx, "u1", memory.ScopeGlobal)
	require.NoError(t, err)
	assert.Len(t, actives, 1)
}

// TestReconcileContradiction: a new claim about an already-covered
// subject supersedes the old one instead of coexisting with it.
func TestReconcileContradiction(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()

	r.Reconcile(ctx, "u1", "s1", []memory.Candidate{preference("사용자는 짜장면을 좋아한다")})
	outcome := r.Reconcile(ctx, "u1", "s2", []memory.Candidate{preference("사용자는 짬뽕을 좋아한다")})
	assert.Equal(t, 1, outcome.Added)
	assert.Equal(t, 1, outcome.Superseded)

	actives, err := store.ActiveMemories(ctx, "u1", memory.ScopeGlobal)
	require.NoError(t, err)
	require.Len(t, actives, 1)
	assert.Equal(t, "사용자는 짬뽕을 좋아한다", actives[0].Content)
}

func TestReconcileScopesAreIndependent(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()

	global := preference("사용자는 짜장면을 좋아한다")
	scoped := preference("사용자는 짜장면을 좋아한다")
	scoped.Scope = "지민"

	r.Reconcile(ctx, "u1", "s1", []memory.Candidate{global, scoped})

	globals, err := store.ActiveMemories(ctx, "u1", memory.ScopeGlobal)
	require.NoError(t, err)
	scopeds, err := store.ActiveMemories(ctx, "u1", "지민")
	require.NoError(t, err)
	assert.Len(t, globals, 1)
	assert.Len(t, scopeds, 1)
}

func TestReconcileEmphasis(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()

	candidate := memory.Candidate{
		Scope:      memory.ScopeGlobal,
		Category:   memory.CategoryEmphasis,
		Subject:    "nickname rule",
		Content:    "사용자를 공주님이라고 불러야 한다",
		Importance: 2,
		Emphasis:   true,
	}
	outcome := r.Reconcile(ctx, "u1", "s1", []memory.Candidate{candidate})
	assert.Equal(t, 1, outcome.Added)

	actives, err := store.ActiveMemories(ctx, "u1", memory.ScopeGlobal)
	require.NoError(t, err)
	require.Len(t, actives, 1)
	assert.Equal(t, memory.EmphasisImportance, actives[0].Importance)
}

// TestReinforcementKeepsHigherImportance: restating a fact with lower
// importance must not demote it.
func TestReinforcementKeepsHigherImportance(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()

	high := preference("사용자는 짜장면을 좋아한다")
	high.Importance = 5
	r.Reconcile(ctx, "u1", "s1", []memory.Candidate{high})

	low := preference("사용자는 짜장면을 좋아한다")
	low.Importance = 1
	r.Reconcile(ctx, "u1", "s2", []memory.Candidate{low})

	actives, err := store.ActiveMemories(ctx, "u1", memory.ScopeGlobal)
	require.NoError(t, err)
	require.Len(t, actives, 1)
	assert.Equal(t, 5, actives[0].Importance)
}

func TestReconcileDropsEmptyContent(t *testing.T) {
	r, _ := newTestReconciler(t)
	outcome := r.Reconcile(context.Background(), "u1", "s1", []memory.Candidate{preference("   !!! ")})
	assert.Equal(t, 1, outcome.Dropped)
	assert.Equal(t, 0, outcome.Added)
}

// TestHealDuplicates: two active copies of one fact (a historical race)
// collapse to one on the next touch of that fact.
func TestHealDuplicates(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, created := range []time.Time{now.Add(-time.Hour), now} {
		item := memory.Item{
			UserID:         "u1",
			MemoryID:       memory.NewMemoryID(memory.ScopeGlobal),
			Scope:          memory.ScopeGlobal,
			Category:       memory.CategoryPreference,
			Subject:        "food preference",
			Content:        "사용자는 짜장면을 좋아한다",
			Importance:     2 + i,
			Active:         true,
			CreatedAt:      created,
			LastReferenced: created,
		}
		require.NoError(t, store.InsertMemory(ctx, item))
	}

	outcome := r.Reconcile(ctx, "u1", "s1", []memory.Candidate{preference("사용자는 짜장면을 좋아한다")})
	assert.Equal(t, 1, outcome.Reinforced)

	actives, err := store.ActiveMemories(ctx, "u1", memory.ScopeGlobal)
	require.NoError(t, err)
	assert.Len(t, actives, 1)
}

// TestConcurrentWriters: two sessions racing on the same fact may
// transiently duplicate it, but the next reconciliation pass self-heals
// down to a single active item.
func TestConcurrentWriters(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(session string) {
			defer wg.Done()
			r.Reconcile(ctx, "u1", session, []memory.Candidate{preference("사용자는 짜장면을 좋아한다")})
		}(fmt.Sprintf("s%d", i+1))
	}
	wg.Wait()

	r.Reconcile(ctx, "u1", "s3", []memory.Candidate{preference("사용자는 짜장면을 좋아한다")})

	actives, err := store.ActiveMemories(ctx, "u1", memory.ScopeGlobal)
	require.NoError(t, err)
	assert.Len(t, actives, 1)
}

func TestApplyProfileDelta(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()

	_, err := store.GetOrCreateUser(ctx, "u1", "", "")
	require.NoError(t, err)

	t.Run("AdvancesOnboarding", func(t *testing.T) {
		step, advanced, err := r.ApplyProfileDelta(ctx, "u1", memory.ProfileDelta{Nickname: helpers.Ptr("민지")})
		require.NoError(t, err)
		assert.True(t, advanced)
		assert.Equal(t, 1, step)

		profile, err := store.GetUserProfile(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "민지", profile.Nickname)
		assert.Equal(t, 1, onboarding.CurrentStep(profile))
	})

	t.Run("BirthdayAdvancesPastBirthdayStep", func(t *testing.T) {
		step, advanced, err := r.ApplyProfileDelta(ctx, "u1", memory.ProfileDelta{Birthday: helpers.Ptr("03-05")})
		require.NoError(t, err)
		assert.True(t, advanced)
		assert.Equal(t, 2, step)

		profile, err := store.GetUserProfile(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "03-05", profile.Birthday)
	})

	t.Run("CorrectionDoesNotAdvance", func(t *testing.T) {
		step, advanced, err := r.ApplyProfileDelta(ctx, "u1", memory.ProfileDelta{Nickname: helpers.Ptr("진짜민지")})
		require.NoError(t, err)
		assert.False(t, advanced)
		assert.Equal(t, 2, step)
	})

	t.Run("EmptyDeltaIsNoop", func(t *testing.T) {
		before, err := store.GetUserProfile(ctx, "u1")
		require.NoError(t, err)

		_, advanced, err := r.ApplyProfileDelta(ctx, "u1", memory.ProfileDelta{})
		require.NoError(t, err)
		assert.False(t, advanced)

		after, err := store.GetUserProfile(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, before.Version, after.Version)
	})
}
