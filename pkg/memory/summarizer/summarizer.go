// Package summarizer condenses a finished session into one immutable
// SessionSummary plus the memory candidates and profile delta discovered
// along the way. Even a degenerate session yields a summary record.
package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
	"github.com/samber/lo"

	"github.com/hallyulabs/character-memory/pkg/ai"
	"github.com/hallyulabs/character-memory/pkg/chatlog"
	"github.com/hallyulabs/character-memory/pkg/memory"
)

const SaveSummaryToolName = "SAVE_SESSION_SUMMARY"

// Store is the summary persistence contract. *db.Store satisfies it.
type Store interface {
	InsertSessionSummary(ctx context.Context, summary memory.Summary) error
}

// Result is everything one summarization pass produced.
type Result struct {
	Summary    memory.Summary
	Candidates []memory.Candidate
	Delta      memory.ProfileDelta
}

type Summarizer struct {
	completions ai.Completion
	model       string
	store       Store
	logs        chatlog.Store
	logger      *log.Logger
}

func New(completions ai.Completion, model string, store Store, logs chatlog.Store, logger *log.Logger) (*Summarizer, error) {
	if completions == nil {
		return nil, fmt.Errorf("completions service cannot be nil")
	}
	if model == "" {
		return nil, fmt.Errorf("completions model cannot be empty")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Summarizer{
		completions: completions,
		model:       model,
		store:       store,
		logs:        logs,
		logger:      logger,
	}, nil
}

// Summarize archives the transcript, writes the write-once summary row
// and returns the discovered candidates and profile delta for
// reconciliation. Every step is best-effort and independent; a failed
// log write never blocks the summary and vice versa.
func (s *Summarizer) Summarize(ctx context.Context, session memory.Session) (Result, error) {
	now := time.Now().UTC()

	// A restart between the last turn and session end loses the
	// in-memory transcript; the archived log still has it.
	if len(session.Messages) == 0 && s.logs != nil {
		if record, err := s.logs.ReadSession(ctx, chatlog.SessionPath(session)); err == nil && len(record.Messages) > 0 {
			session.Messages = record.Messages
		}
	}

	var logPath string
	if s.logs != nil {
		path, err := s.logs.WriteSession(ctx, session)
		if err != nil {
			s.logger.Warn("Raw transcript write failed, continuing without it", "user", session.UserID, "error", err)
		} else {
			logPath = path
		}
	}

	result := Result{
		Summary: memory.Summary{
			UserID:       session.UserID,
			SessionID:    session.ID(),
			Character:    session.Character,
			SessionStart: session.StartedAt.UTC(),
			SessionEnd:   now,
			MessageCount: len(session.Messages),
			Sentiment:    memory.SentimentNeutral,
			NewUserInfo:  "{}",
			LogPath:      logPath,
		},
	}

	if len(session.Messages) < 2 {
		// Nothing worth a model call; archive a minimal placeholder.
		result.Summary.Summary = fmt.Sprintf("%s와의 짧은 세션 (메시지 %d개)", session.Character, len(session.Messages))
	} else {
		extraction, err := s.extract(ctx, session)
		if err != nil {
			s.logger.Warn("Session extraction failed, writing placeholder summary", "user", session.UserID, "error", err)
			result.Summary.Summary = fmt.Sprintf("%s와의 대화 (메시지 %d개)", session.Character, len(session.Messages))
		} else {
			s.fill(&result, extraction, session.Character)
		}
	}

	if err := s.store.InsertSessionSummary(ctx, result.Summary); err != nil {
		return result, fmt.Errorf("writing session summary: %w", err)
	}

	return result, nil
}

// saveSummaryArguments is the untrusted tool-call payload.
type saveSummaryArguments struct {
	Summary       string              `json:"summary"`
	Keywords      []string            `json:"keywords"`
	UserSentiment string              `json:"user_sentiment"`
	Topics        []string            `json:"topics"`
	NewUserInfo   memory.ProfileDelta `json:"new_user_info"`
	Memories      []struct {
		Scope      string `json:"scope"`
		Category   string `json:"category"`
		Subject    string `json:"subject"`
		Content    string `json:"content"`
		Importance int    `json:"importance"`
	} `json:"memories"`
}

func (s *Summarizer) extract(ctx context.Context, session memory.Session) (*saveSummaryArguments, error) {
	var transcript strings.Builder
	for _, turn := range session.Messages {
		speaker := session.Character
		if turn.Role == "user" {
			speaker = "사용자"
		}
		fmt.Fprintf(&transcript, "%s: %s\n", speaker, turn.Content)
	}

	llmMsgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(SummaryPrompt),
		openai.UserMessage(transcript.String()),
	}

	response, err := s.completions.Completions(ctx, llmMsgs, []openai.ChatCompletionToolParam{saveSummaryTool}, s.model)
	if err != nil {
		return nil, fmt.Errorf("LLM completion error during summarization: %w", err)
	}

	for _, toolCall := range response.ToolCalls {
		if toolCall.Function.Name != SaveSummaryToolName {
			continue
		}
		var args saveSummaryArguments
		if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
			return nil, fmt.Errorf("unmarshaling summary tool arguments: %w", err)
		}
		return &args, nil
	}
	return nil, fmt.Errorf("summary response contained no usable tool call")
}

// fill validates the model output into the result, coercing rather than
// rejecting wherever the shape allows it.
func (s *Summarizer) fill(result *Result, args *saveSummaryArguments, character string) {
	result.Summary.Summary = strings.TrimSpace(args.Summary)
	result.Summary.Keywords = lo.Slice(args.Keywords, 0, memory.MaxSummaryKeywords)
	result.Summary.Topics = lo.Slice(args.Topics, 0, memory.MaxSummaryKeywords)
	result.Summary.Sentiment = memory.CoerceSentiment(args.UserSentiment)

	if !args.NewUserInfo.Empty() {
		result.Delta = args.NewUserInfo
		if encoded, err := json.Marshal(args.NewUserInfo); err == nil {
			result.Summary.NewUserInfo = string(encoded)
		}
	}

	for _, m := range args.Memories {
		category := memory.Category(strings.ToLower(strings.TrimSpace(m.Category)))
		if !memory.ValidCategory(category) || strings.TrimSpace(m.Content) == "" {
			s.logger.Debug("Discarding invalid session memory", "category", m.Category)
			continue
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
		}
		candidate.Importance = candidate.ClampImportance()
		result.Candidates = append(result.Candidates, candidate)
	}
}

var saveSummaryTool = openai.ChatCompletionToolParam{
	Type: "function",
	Function: openai.FunctionDefinitionParam{
		Name: SaveSummaryToolName,
		Description: param.NewOpt(
			"Archive the finished session: summary, keywords, sentiment, topics, newly discovered profile fields and long-term memories.",
		),
		Parameters: openai.FunctionParameters{
			"type": "object",
			"properties": map[string]any{
				"summary":  map[string]any{"type": "string"},
				"keywords": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"user_sentiment": map[string]any{
					"type": "string",
					"enum": []string{"positive", "neutral", "negative"},
				},
				"topics": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"new_user_info": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"nickname":         map[string]any{"type": "string"},
						"birthday":         map[string]any{"type": "string"},
						"gender":           map[string]any{"type": "string", "enum": []string{"male", "female"}},
						"interests":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"preferred_topics": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"preferences":      map[string]any{"type": "object", "additionalProperties": true},
					},
					"additionalProperties": false,
				},
				"memories": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"scope":      map[string]any{"type": "string", "enum": []string{"global", "character"}},
							"category":   map[string]any{"type": "string", "enum": []string{"fact", "preference", "emphasis", "relationship", "event"}},
							"subject":    map[string]any{"type": "string"},
							"content":    map[string]any{"type": "string"},
							"importance": map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
						},
						"required":             []string{"scope", "category", "subject", "content", "importance"},
						"additionalProperties": false,
					},
				},
			},
			"required":             []string{"summary", "keywords", "user_sentiment"},
			"additionalProperties": false,
		},
	},
}
