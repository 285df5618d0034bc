// Package onboarding drives the profile-completion flow that runs
// alongside free chat. It is intercept-only: it suggests what the
// character should ask next and records which fields are already
// satisfied, but it never blocks a conversation and never regresses.
package onboarding

import (
	"fmt"

	"github.com/hallyulabs/character-memory/pkg/memory"
)

// Profile fields collected during onboarding, in the suggested order.
// A field discovered out of order marks its step satisfied, so the
// derived current step naturally fast-forwards past it.
const (
	FieldNickname        = "nickname"
	FieldBirthday        = "birthday"
	FieldInterests       = "interests"
	FieldPreferences     = "preferences"
	FieldPreferredTopics = "preferred_topics"
)

// Steps is the suggested collection order. The terminal step index is
// len(Steps).
var Steps = []string{
	FieldNickname,
	FieldBirthday,
	FieldInterests,
	FieldPreferences,
	FieldPreferredTopics,
}

// TerminalStep is the sticky "complete" state.
var TerminalStep = len(Steps)

// stepInstructions are injected into the character's system prompt while
// the step is open. Questions must stay in the flow of conversation.
var stepInstructions = map[string]string{
	FieldNickname:        "사용자에게 자기소개를 하면서 사용자의 이름이나 닉네임을 자연스럽게 물어보세요.",
	FieldBirthday:        "대화 흐름에 맞춰 사용자의 생년월일을 자연스럽게 물어보세요.",
	FieldInterests:       "사용자가 좋아하는 것이나 취미를 자연스럽게 물어보세요.",
	FieldPreferences:     "좋아하는 케이팝 그룹, 멤버, 장르 등 케이팝 취향을 물어보세요.",
	FieldPreferredTopics: "앞으로 어떤 이야기를 하고 싶은지 자연스럽게 물어보세요. 이것이 마지막 질문입니다.",
}

// profileCompletionInstructions cover fields collected after onboarding
// finished, while they remain empty.
var profileCompletionInstructions = map[string]string{
	"gender": "대화 흐름에 맞춰 사용자의 성별을 자연스럽게 파악하세요. 직접 묻기보다는 '오빠라고 불러도 될까요?' 같은 자연스러운 방식으로 확인하세요.",
}

// fieldSatisfied reports whether the profile already carries the field,
// regardless of how it was discovered.
func fieldSatisfied(p *memory.UserProfile, field string) bool {
	switch field {
	case FieldNickname:
		return p.Nickname != ""
	case FieldBirthday:
		return p.Birthday != ""
	case FieldInterests:
		return len(p.Interests) > 0
	case FieldPreferences:
		return len(p.Preferences) > 0
	case FieldPreferredTopics:
		return len(p.PreferredTopics) > 0
	}
	return false
}

// Observe refreshes the per-field completion flags from the profile's
// current values and latches the completion flag once every step is
// satisfied. Flags only ever flip to true; corrections to captured
// fields are ordinary profile updates and do not reopen steps.
func Observe(p *memory.UserProfile) {
	if p.OnboardingComplete {
		return
	}
	if p.OnboardingFields == nil {
		p.OnboardingFields = make(map[string]bool, len(Steps))
	}

	complete := true
	for _, field := range Steps {
		if fieldSatisfied(p, field) {
			p.OnboardingFields[field] = true
		}
		if !p.OnboardingFields[field] {
			complete = false
		}
	}
	if complete {
		p.OnboardingComplete = true
	}
}

// CurrentStep derives the step counter: the lowest incomplete step
// index, or TerminalStep once complete. Because satisfied flags never
// reset, the counter is monotonically non-decreasing.
func CurrentStep(p *memory.UserProfile) int {
	if p.OnboardingComplete {
		return TerminalStep
	}
	for i, field := range Steps {
		if !p.OnboardingFields[field] && !fieldSatisfied(p, field) {
			return i
		}
	}
	return TerminalStep
}

// Complete reports whether the machine reached its sticky terminal state.
func Complete(p *memory.UserProfile) bool {
	return p.OnboardingComplete || CurrentStep(p) >= TerminalStep
}

// PromptAddition returns the system-prompt addition for the open step,
// or "" once onboarding is complete. Prompting ceases permanently at the
// terminal state.
func PromptAddition(p *memory.UserProfile) string {
	if p == nil || Complete(p) {
		return ""
	}
	step := CurrentStep(p)
	instruction := stepInstructions[Steps[step]]
	return fmt.Sprintf(
		"\n\n[온보딩 지시]\n이 사용자는 아직 프로필 수집이 완료되지 않았습니다. (현재 단계: %d/%d)\n대화 중 자연스럽게 다음 정보를 수집해주세요: %s\n너무 직접적으로 묻지 말고, 대화 흐름에 녹여서 물어보세요.",
		step, len(Steps)-1, instruction)
}

// ProfileCompletionPrompt returns collection instructions for fields
// that stay empty after onboarding finished (currently gender), or "".
func ProfileCompletionPrompt(p *memory.UserProfile) string {
	if p == nil {
		return ""
	}

	var missing []string
	if p.Gender == "" {
		missing = append(missing, profileCompletionInstructions["gender"])
	}
	if len(missing) == 0 {
		return ""
	}

	out := "\n\n[프로필 보완 지시]\n아직 파악하지 못한 사용자 정보가 있습니다. 대화 중 자연스럽게 확인해주세요:"
	for _, m := range missing {
		out += "\n- " + m
	}
	return out
}
