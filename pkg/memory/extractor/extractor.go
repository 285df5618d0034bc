// Package extractor turns a window of recent dialogue into candidate
// memory updates via a single tool-calling completion. Extraction is
// best-effort: a failed or malformed model response yields nothing and
// never blocks the user-visible reply.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"

	"github.com/hallyulabs/character-memory/pkg/ai"
	"github.com/hallyulabs/character-memory/pkg/memory"
)

// Result is the output of one extraction pass.
type Result struct {
	Candidates []memory.Candidate
	Delta      memory.ProfileDelta
}

type Extractor struct {
	completions ai.Completion
	model       string
	logger      *log.Logger
}

func New(completions ai.Completion, model string, logger *log.Logger) (*Extractor, error) {
	if completions == nil {
		return nil, fmt.Errorf("completions service cannot be nil")
	}
	if model == "" {
		return nil, fmt.Errorf("completions model cannot be empty")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Extractor{completions: completions, model: model, logger: logger}, nil
}

// Extract runs the prefilter and, when it passes, one LLM call. It is a
// pure function of (window, profile); persisting the result is the
// reconciler's job.
func (e *Extractor) Extract(ctx context.Context, character string, profile *memory.UserProfile, window []memory.Turn) (Result, error) {
	if !ShouldExtract(window) {
		e.logger.Debug("Prefilter found no disclosure, skipping extraction", "character", character)
		return Result{}, nil
	}

	llmMsgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(ExtractionPrompt),
		openai.UserMessage(buildExcerpt(character, profile, window)),
	}

	response, err := e.completions.Completions(ctx, llmMsgs, []openai.ChatCompletionToolParam{extractMemoriesTool}, e.model)
	if err != nil {
		return Result{}, fmt.Errorf("LLM completion error during extraction: %w", err)
	}

	return e.parseResponse(character, window, response), nil
}

// buildExcerpt renders the dialogue window plus a compact profile
// snapshot so the model does not re-report what is already known.
func buildExcerpt(character string, profile *memory.UserProfile, window []memory.Turn) string {
	var b strings.Builder

	if profile != nil {
		b.WriteString("Known profile (do not re-extract): ")
		known := []string{}
		if profile.Nickname != "" {
			known = append(known, "nickname="+profile.Nickname)
		}
		if profile.Birthday != "" {
			known = append(known, "birthday="+profile.Birthday)
		}
		if profile.Gender != "" {
			known = append(known, "gender="+profile.Gender)
		}
		if len(profile.Interests) > 0 {
			known = append(known, "interests="+strings.Join(profile.Interests, ","))
		}
		if len(known) == 0 {
			known = append(known, "(empty)")
		}
		b.WriteString(strings.Join(known, " "))
		b.WriteString("\n\n")
	}

	b.WriteString("Conversation excerpt:\n")
	for _, turn := range window {
		speaker := character
		if turn.Role == "user" {
			speaker = "user"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, turn.Content)
	}
	return b.String()
}

// parseResponse validates untrusted tool output into candidates. Any
// malformed piece is dropped, never propagated.
func (e *Extractor) parseResponse(character string, window []memory.Turn, response openai.ChatCompletionMessage) Result {
	var result Result
	emphasisWindow := HasEmphasis(window)

	for _, toolCall := range response.ToolCalls {
		if toolCall.Function.Name != ExtractMemoriesToolName {
			e.logger.Warn("LLM called an unexpected tool during extraction", "tool", toolCall.Function.Name)
			continue
		}

		var args extractToolArguments
		if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
			e.logger.Warn("Failed to unmarshal extraction tool arguments, discarding", "error", err)
			continue
		}

		for _, m := range args.Memories {
			candidate, ok := sanitizeCandidate(character, m)
			if !ok {
				e.logger.Debug("Discarding invalid extraction candidate", "category", m.Category, "content", m.Content)
				continue
			}
			if emphasisWindow && candidate.Category == memory.CategoryEmphasis {
				candidate.Emphasis = true
			}
			result.Candidates = append(result.Candidates, candidate)
		}

		result.Delta = mergeDeltas(result.Delta, args.NewUserInfo)
	}

	if len(response.ToolCalls) == 0 {
		e.logger.Debug("Extraction response contained no tool calls")
	}

	return result
}

func sanitizeCandidate(character string, m memoryArgument) (memory.Candidate, bool) {
	category := memory.Category(strings.ToLower(strings.TrimSpace(m.Category)))
	if !memory.ValidCategory(category) {
		return memory.Candidate{}, false
	}
	if strings.TrimSpace(m.Content) == "" {
		return memory.Candidate{}, false
	}

	scope := memory.ScopeGlobal
	if m.Scope == "character" {
		scope = character
	}

	candidate := memory.Candidate{
		Scope:      scope,
		Category:   category,
		Subject:    strings.TrimSpace(m.Subject),
		Content:    strings.TrimSpace(m.Content),
		Importance: m.Importance,
		Emphasis:   m.Emphasis,
	}
	candidate.Importance = candidate.ClampImportance()
	return candidate, true
}

func mergeDeltas(base, extra memory.ProfileDelta) memory.ProfileDelta {
	if extra.Nickname != nil && *extra.Nickname != "" {
		base.Nickname = extra.Nickname
	}
	if extra.Gender != nil {
		base.Gender = extra.Gender
	}
	if extra.Birthday != nil && *extra.Birthday != "" {
		base.Birthday = extra.Birthday
	}
	base.Interests = append(base.Interests, extra.Interests...)
	base.PreferredTopics = append(base.PreferredTopics, extra.PreferredTopics...)
	if len(extra.Preferences) > 0 {
		if base.Preferences == nil {
			base.Preferences = make(map[string]any, len(extra.Preferences))
		}
		for k, v := range extra.Preferences {
			base.Preferences[k] = v
		}
	}
	return base
}
