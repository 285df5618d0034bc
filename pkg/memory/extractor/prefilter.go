package extractor

import (
	"strings"

	"github.com/hallyulabs/character-memory/pkg/memory"
)

// Disclosure markers that make a turn worth sending to the model. The
// common case is small talk with nothing to learn; that case must never
// pay for an LLM call.
var disclosureMarkers = []string{
	// Korean first-person disclosures.
	"나는", "난 ", "내가", "내 ", "저는", "전 ", "제 ", "제가",
	"좋아해", "좋아하", "싫어", "싫다", "최애", "입니다", "이야", "예요", "에요",
	"생일", "살아", "살고", "다녀", "다니", "취미",
	// English first-person disclosures.
	"i am ", "i'm ", "i like", "i love", "i hate", "i prefer",
	"my name", "my birthday", "my favorite", "call me",
}

// Emphasis markers force maximum importance downstream.
var emphasisMarkers = []string{
	"기억해", "꼭 기억", "잊지마", "잊지 마",
	"remember this", "don't forget", "dont forget",
}

// ShouldExtract reports whether the window contains a user turn that
// plausibly discloses new personal information. False means extraction
// is skipped entirely for this turn.
func ShouldExtract(window []memory.Turn) bool {
	for _, turn := range window {
		if turn.Role != "user" {
			continue
		}
		content := strings.ToLower(turn.Content)
		for _, marker := range disclosureMarkers {
			if strings.Contains(content, marker) {
				return true
			}
		}
		for _, marker := range emphasisMarkers {
			if strings.Contains(content, marker) {
				return true
			}
		}
	}
	return false
}

// HasEmphasis reports whether the user explicitly asked the character to
// remember something in this window.
func HasEmphasis(window []memory.Turn) bool {
	for _, turn := range window {
		if turn.Role != "user" {
			continue
		}
		content := strings.ToLower(turn.Content)
		for _, marker := range emphasisMarkers {
			if strings.Contains(content, marker) {
				return true
			}
		}
	}
	return false
}
