package onboarding

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hallyulabs/character-memory/pkg/memory"
)

func TestCurrentStep(t *testing.T) {
	t.Run("FreshProfileStartsAtZero", func(t *testing.T) {
		p := &memory.UserProfile{}
		assert.Equal(t, 0, CurrentStep(p))
	})

	t.Run("AdvancesPastSatisfiedFields", func(t *testing.T) {
		p := &memory.UserProfile{Nickname: "민지"}
		Observe(p)
		assert.Equal(t, 1, CurrentStep(p))
	})

	t.Run("FastForwardsOverOutOfOrderAnswers", func(t *testing.T) {
		// Interests volunteered before birthday: the interests step is
		// already satisfied once the birthday arrives.
		p := &memory.UserProfile{Nickname: "민지", Interests: []string{"kpop"}}
		Observe(p)
		assert.Equal(t, 1, CurrentStep(p))

		p.Birthday = "03-05"
		Observe(p)
		assert.Equal(t, 3, CurrentStep(p))
	})

	t.Run("TerminalOnceAllFieldsPresent", func(t *testing.T) {
		p := fullProfile()
		Observe(p)
		assert.Equal(t, TerminalStep, CurrentStep(p))
		assert.True(t, Complete(p))
		assert.True(t, p.OnboardingComplete)
	})
}

func TestObserveIsMonotone(t *testing.T) {
	p := &memory.UserProfile{Nickname: "민지", Birthday: "03-05"}
	Observe(p)
	assert.Equal(t, 2, CurrentStep(p))

	// A later correction clears nothing; flags never reset.
	p.Birthday = ""
	Observe(p)
	assert.Equal(t, 2, CurrentStep(p))
}

func TestCompletionIsSticky(t *testing.T) {
	p := fullProfile()
	Observe(p)
	assert.True(t, p.OnboardingComplete)

	p.Interests = nil
	Observe(p)
	assert.True(t, p.OnboardingComplete)
	assert.Equal(t, TerminalStep, CurrentStep(p))
	assert.Equal(t, "", PromptAddition(p))
}

func TestPromptAddition(t *testing.T) {
	t.Run("OpenStepInjectsInstruction", func(t *testing.T) {
		p := &memory.UserProfile{}
		addition := PromptAddition(p)
		assert.Contains(t, addition, "[온보딩 지시]")
		assert.Contains(t, addition, stepInstructions[FieldNickname])
	})

	t.Run("SilentOnceComplete", func(t *testing.T) {
		p := fullProfile()
		Observe(p)
		assert.Equal(t, "", PromptAddition(p))
	})

	t.Run("NilProfile", func(t *testing.T) {
		assert.Equal(t, "", PromptAddition(nil))
	})
}

func TestProfileCompletionPrompt(t *testing.T) {
	p := fullProfile()
	Observe(p)

	addition := ProfileCompletionPrompt(p)
	assert.True(t, strings.Contains(addition, "[프로필 보완 지시]"))

	p.Gender = "female"
	assert.Equal(t, "", ProfileCompletionPrompt(p))
}

func fullProfile() *memory.UserProfile {
	return &memory.UserProfile{
		Nickname:        "민지",
		Birthday:        "03-05",
		Interests:       []string{"kpop"},
		Preferences:     map[string]any{"group": "BTS"},
		PreferredTopics: []string{"음악"},
	}
}
