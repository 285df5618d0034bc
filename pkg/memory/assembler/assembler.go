// Package assembler selects and ranks a bounded subset of stored
// memories and recent summaries to inject as LLM context at the start of
// a reply. Ranking is a greedy fill by importance; optimal packing is
// deliberately not attempted since importance dominates size.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/hallyulabs/character-memory/pkg/db"
	"github.com/hallyulabs/character-memory/pkg/memory"
)

// Snippet kinds, in the order they appear in assembled context.
const (
	KindProfile = "profile"
	KindMemory  = "memory"
	KindSummary = "summary"
)

// recentSummaryLimit bounds how many past sessions can contribute a
// summary to one context block.
const recentSummaryLimit = 5

// Snippet is one ordered piece of injected context.
type Snippet struct {
	Kind     string
	MemoryID string // set for KindMemory only
	Text     string
	Size     int // rune count of Text, what the budget is charged for
}

// Store is the read/touch contract the assembler needs. *db.Store
// satisfies it.
type Store interface {
	GetUserProfile(ctx context.Context, userID string) (*memory.UserProfile, error)
	ActiveMemories(ctx context.Context, userID, scope string) ([]memory.Item, error)
	RecentSummaries(ctx context.Context, userID, character string, limit int) ([]memory.Summary, error)
	TouchMemoryReference(ctx context.Context, userID, memoryID string, version int64, now time.Time) error
}

type Assembler struct {
	store  Store
	logger *log.Logger
}

func New(store Store, logger *log.Logger) (*Assembler, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Assembler{store: store, logger: logger}, nil
}

// Assemble returns ordered context snippets for (user, character) whose
// total size never exceeds budget. A cold-start user yields an empty
// slice and no error. Memories actually included get their reference
// count bumped; trimmed ones do not.
func (a *Assembler) Assemble(ctx context.Context, userID, character string, budget int) ([]Snippet, error) {
	if budget <= 0 {
		return nil, nil
	}

	remaining := budget

	recents, err := a.store.RecentSummaries(ctx, userID, character, recentSummaryLimit)
	if err != nil {
		a.logger.Warn("Summary lookup failed, assembling without summaries", "user", userID, "error", err)
		recents = nil
	}

	// The latest session summary is pinned: narrative continuity
	// outweighs older facts, so its budget is reserved before any
	// memory is considered. It is skipped only when it alone does not fit.
	var summarySnippet *Snippet
	if len(recents) > 0 && recents[0].Summary != "" {
		snippet := renderSummary(recents[0])
		if snippet.Size <= remaining {
			remaining -= snippet.Size
			summarySnippet = &snippet
			recents = recents[1:]
		}
	}

	var snippets []Snippet

	profile, err := a.store.GetUserProfile(ctx, userID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		a.logger.Warn("Profile lookup failed, assembling without it", "user", userID, "error", err)
	}
	if profile != nil {
		if snippet := renderProfile(profile); snippet.Size > 0 && snippet.Size <= remaining {
			remaining -= snippet.Size
			snippets = append(snippets, snippet)
		}
	}

	items, err := a.rankedMemories(ctx, userID, character)
	if err != nil {
		a.logger.Warn("Memory lookup failed, assembling without memories", "user", userID, "error", err)
	}

	now := time.Now().UTC()
	for _, item := range items {
		snippet := renderMemory(item)
		if snippet.Size > remaining {
			continue
		}
		remaining -= snippet.Size
		snippets = append(snippets, snippet)

		// Reference bookkeeping is best-effort; a lost CAS race only
		// means the counter lags by one.
		if err := a.store.TouchMemoryReference(ctx, userID, item.MemoryID, item.Version, now); err != nil {
			a.logger.Debug("Reference bump skipped", "memory", item.MemoryID, "error", err)
		}
	}

	if summarySnippet != nil {
		snippets = append(snippets, *summarySnippet)
	}

	// Older session summaries ride along when room is left over, newest
	// first, right after the pinned one.
	for _, older := range recents {
		if older.Summary == "" {
			continue
		}
		snippet := renderSummary(older)
		if snippet.Size > remaining {
			continue
		}
		remaining -= snippet.Size
		snippets = append(snippets, snippet)
	}

	return snippets, nil
}

// rankedMemories merges the character's scope with the global scope and
// orders by importance desc, then recency of last reference desc.
func (a *Assembler) rankedMemories(ctx context.Context, userID, character string) ([]memory.Item, error) {
	globals, err := a.store.ActiveMemories(ctx, userID, memory.ScopeGlobal)
	if err != nil {
		return nil, err
	}

	items := globals
	if character != memory.ScopeGlobal {
		scoped, err := a.store.ActiveMemories(ctx, userID, character)
		if err != nil {
			return nil, err
		}
		items = append(items, scoped...)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Importance != items[j].Importance {
			return items[i].Importance > items[j].Importance
		}
		return items[i].LastReferenced.After(items[j].LastReferenced)
	})
	return items, nil
}

func renderMemory(item memory.Item) Snippet {
	var text string
	if item.Importance >= memory.EmphasisImportance {
		text = fmt.Sprintf("★ (반드시 따를 것) %s", item.Content)
	} else {
		text = fmt.Sprintf("- [%s] %s", item.Category, item.Content)
	}
	return Snippet{
		Kind:     KindMemory,
		MemoryID: item.MemoryID,
		Text:     text,
		Size:     utf8.RuneCountInString(text),
	}
}

func renderSummary(summary memory.Summary) Snippet {
	date := summary.SessionStart.Format("2006-01-02")
	text := fmt.Sprintf("[이전 대화 요약] (%s) %s", date, summary.Summary)
	return Snippet{
		Kind: KindSummary,
		Text: text,
		Size: utf8.RuneCountInString(text),
	}
}

func renderProfile(profile *memory.UserProfile) Snippet {
	var lines []string
	if profile.Nickname != "" {
		lines = append(lines, "이름/닉네임: "+profile.Nickname)
	}
	if profile.Gender != "" {
		label := "여성"
		if profile.Gender == "male" {
			label = "남성"
		}
		lines = append(lines, "성별: "+label)
	}
	if profile.Birthday != "" {
		lines = append(lines, "생년월일: "+profile.Birthday)
	}
	if len(profile.Interests) > 0 {
		lines = append(lines, "관심사: "+strings.Join(profile.Interests, ", "))
	}
	prefKeys := make([]string, 0, len(profile.Preferences))
	for key := range profile.Preferences {
		prefKeys = append(prefKeys, key)
	}
	sort.Strings(prefKeys)
	for _, key := range prefKeys {
		lines = append(lines, fmt.Sprintf("취향 %s: %v", key, profile.Preferences[key]))
	}
	if len(profile.PreferredTopics) > 0 {
		lines = append(lines, "선호 주제: "+strings.Join(profile.PreferredTopics, ", "))
	}
	if len(lines) == 0 {
		return Snippet{}
	}

	text := "[사용자 프로필]\n" + strings.Join(lines, "\n")
	return Snippet{
		Kind: KindProfile,
		Text: text,
		Size: utf8.RuneCountInString(text),
	}
}

// RenderContext joins assembled snippets into the final injected block.
func RenderContext(snippets []Snippet) string {
	parts := make([]string, 0, len(snippets))
	for _, snippet := range snippets {
		parts = append(parts, snippet.Text)
	}
	return strings.Join(parts, "\n")
}
