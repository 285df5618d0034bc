package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestProfileDeltaEmpty(t *testing.T) {
	assert.True(t, ProfileDelta{}.Empty())
	assert.False(t, ProfileDelta{Nickname: strPtr("민지")}.Empty())
	assert.False(t, ProfileDelta{Interests: []string{"kpop"}}.Empty())
	assert.False(t, ProfileDelta{Preferences: map[string]any{"group": "BTS"}}.Empty())
}

func TestProfileDeltaApply(t *testing.T) {
	t.Run("ScalarsOverwrite", func(t *testing.T) {
		p := &UserProfile{Nickname: "옛날이름", Birthday: "01-01"}
		ProfileDelta{Nickname: strPtr("민지"), Birthday: strPtr("03-05")}.Apply(p)
		assert.Equal(t, "민지", p.Nickname)
		assert.Equal(t, "03-05", p.Birthday)
	})

	t.Run("EmptyScalarIsNoChange", func(t *testing.T) {
		p := &UserProfile{Nickname: "민지"}
		ProfileDelta{Nickname: strPtr("")}.Apply(p)
		assert.Equal(t, "민지", p.Nickname)
	})

	t.Run("GenderValidated", func(t *testing.T) {
		p := &UserProfile{}
		ProfileDelta{Gender: strPtr("robot")}.Apply(p)
		assert.Equal(t, "", p.Gender)
		ProfileDelta{Gender: strPtr("female")}.Apply(p)
		assert.Equal(t, "female", p.Gender)
	})

	t.Run("ListsMergeWithoutDuplicates", func(t *testing.T) {
		p := &UserProfile{Interests: []string{"K-pop", "댄스"}}
		ProfileDelta{Interests: []string{"k-pop", "드라마"}}.Apply(p)
		assert.Equal(t, []string{"K-pop", "댄스", "드라마"}, p.Interests)
	})

	t.Run("PreferencesMerge", func(t *testing.T) {
		p := &UserProfile{Preferences: map[string]any{"group": "BTS"}}
		ProfileDelta{Preferences: map[string]any{"member": "지민"}}.Apply(p)
		assert.Equal(t, "BTS", p.Preferences["group"])
		assert.Equal(t, "지민", p.Preferences["member"])
	})
}
