// Package engine is the facade the chat server talks to. It owns the
// background pipeline (extract, reconcile, summarize) and keeps all of
// it off the reply path: a turn is acknowledged immediately and the
// learning happens behind a per-conversation ordering barrier.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/semaphore"

	"github.com/hallyulabs/character-memory/pkg/db"
	"github.com/hallyulabs/character-memory/pkg/events"
	"github.com/hallyulabs/character-memory/pkg/helpers"
	"github.com/hallyulabs/character-memory/pkg/memory"
	"github.com/hallyulabs/character-memory/pkg/memory/assembler"
	"github.com/hallyulabs/character-memory/pkg/memory/extractor"
	"github.com/hallyulabs/character-memory/pkg/memory/onboarding"
	"github.com/hallyulabs/character-memory/pkg/memory/reconciler"
	"github.com/hallyulabs/character-memory/pkg/memory/summarizer"
)

type Dependencies struct {
	Logger     *log.Logger
	Store      *db.Store
	Extractor  *extractor.Extractor
	Reconciler *reconciler.Reconciler
	Summarizer *summarizer.Summarizer
	Assembler  *assembler.Assembler
	Nats       *nats.Conn // optional, events are dropped when nil

	ContextBudget     int
	ExtractionTimeout time.Duration
	SummaryTimeout    time.Duration
	Workers           int
}

type Engine struct {
	logger     *log.Logger
	store      *db.Store
	extractor  *extractor.Extractor
	reconciler *reconciler.Reconciler
	summarizer *summarizer.Summarizer
	assembler  *assembler.Assembler
	nc         *nats.Conn

	budget            int
	extractionTimeout time.Duration
	summaryTimeout    time.Duration

	sem      *semaphore.Weighted
	barriers *barrierSet
	wg       sync.WaitGroup
}

func New(deps Dependencies) (*Engine, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if deps.Extractor == nil || deps.Reconciler == nil || deps.Summarizer == nil || deps.Assembler == nil {
		return nil, fmt.Errorf("pipeline components cannot be nil")
	}
	if deps.ContextBudget <= 0 {
		deps.ContextBudget = 4000
	}
	if deps.ExtractionTimeout <= 0 {
		deps.ExtractionTimeout = 30 * time.Second
	}
	if deps.SummaryTimeout <= 0 {
		deps.SummaryTimeout = 60 * time.Second
	}
	if deps.Workers <= 0 {
		deps.Workers = 8
	}
	return &Engine{
		logger:            deps.Logger,
		store:             deps.Store,
		extractor:         deps.Extractor,
		reconciler:        deps.Reconciler,
		summarizer:        deps.Summarizer,
		assembler:         deps.Assembler,
		nc:                deps.Nats,
		budget:            deps.ContextBudget,
		extractionTimeout: deps.ExtractionTimeout,
		summaryTimeout:    deps.SummaryTimeout,
		sem:               semaphore.NewWeighted(int64(deps.Workers)),
		barriers:          newBarrierSet(),
	}, nil
}

// Login ensures the user exists and bumps their session bookkeeping.
func (e *Engine) Login(ctx context.Context, userID, email, displayName string) (*memory.UserProfile, error) {
	return e.store.GetOrCreateUser(ctx, userID, email, displayName)
}

// OnTurn schedules memory extraction for a turn window and returns
// immediately. The caller's context is deliberately not propagated: the
// HTTP request finishing must not cancel learning already in flight.
func (e *Engine) OnTurn(userID, character, sessionID string, window []memory.Turn) {
	key := barrierKey(userID, character)
	e.barriers.Enter(key)
	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		defer e.barriers.Leave(key)

		ctx, cancel := context.WithTimeout(context.Background(), e.extractionTimeout)
		defer cancel()

		if err := e.sem.Acquire(ctx, 1); err != nil {
			e.logger.Warn("Extraction slot never freed, turn dropped", "user", userID, "error", err)
			return
		}
		defer e.sem.Release(1)

		e.processTurn(ctx, userID, character, sessionID, window)
	}()
}

// extractionWindowTurns bounds how much dialogue one extraction call
// sees; older turns were already covered by earlier calls.
const extractionWindowTurns = 12

func (e *Engine) processTurn(ctx context.Context, userID, character, sessionID string, window []memory.Turn) {
	window = helpers.SafeLastN(window, extractionWindowTurns)

	profile, err := e.store.GetUserProfile(ctx, userID)
	if err != nil {
		e.logger.Warn("Extraction proceeding without profile", "user", userID, "error", err)
		profile = nil
	}

	result, err := e.extractor.Extract(ctx, character, profile, window)
	if err != nil {
		e.logger.Warn("Extraction failed, turn dropped", "user", userID, "character", character, "error", err)
		return
	}

	e.applyResult(ctx, userID, character, sessionID, result.Candidates, result.Delta)
}

// applyResult persists extraction output and emits events. Shared by
// the turn path and the session-end path.
func (e *Engine) applyResult(ctx context.Context, userID, character, sessionID string, candidates []memory.Candidate, delta memory.ProfileDelta) {
	outcome := e.reconciler.Reconcile(ctx, userID, sessionID, candidates)
	if outcome.Changed() {
		e.publish(events.SubjectMemoryUpdated, events.MemoryUpdated{
			UserID:     userID,
			Scope:      character,
			Added:      outcome.Added,
			Superseded: outcome.Superseded,
			Reinforced: outcome.Reinforced,
			Timestamp:  time.Now().UTC(),
		})
	}

	if delta.Empty() {
		return
	}
	step, advanced, err := e.reconciler.ApplyProfileDelta(ctx, userID, delta)
	if err != nil {
		e.logger.Warn("Profile delta dropped", "user", userID, "error", err)
		return
	}
	if advanced {
		e.publish(events.SubjectOnboardingAdvanced, events.OnboardingAdvanced{
			UserID:    userID,
			Step:      step,
			Complete:  step >= onboarding.TerminalStep,
			Timestamp: time.Now().UTC(),
		})
	}
}

// GetContext assembles the injection block for the next reply. It first
// waits (bounded by ctx) for extraction already in flight for this
// conversation, so a fact stated in the previous turn is visible. A
// budget of zero or less means the configured default; the caller
// building the reply knows how much room this particular call has left.
func (e *Engine) GetContext(ctx context.Context, userID, character string, budget int) (string, error) {
	if budget <= 0 {
		budget = e.budget
	}
	if err := e.barriers.Wait(ctx, barrierKey(userID, character)); err != nil {
		e.logger.Warn("Context assembled before extraction settled", "user", userID, "character", character, "error", err)
	}

	snippets, err := e.assembler.Assemble(ctx, userID, character, budget)
	if err != nil {
		return "", err
	}
	block := assembler.RenderContext(snippets)

	profile, err := e.store.GetUserProfile(ctx, userID)
	if err == nil && profile != nil {
		if addition := onboarding.PromptAddition(profile); addition != "" {
			block = joinBlocks(block, addition)
		} else if addition := onboarding.ProfileCompletionPrompt(profile); addition != "" {
			block = joinBlocks(block, addition)
		}
	}
	return block, nil
}

// OnSessionEnd summarizes the finished session in the background. Any
// memories or profile fields the summary pass surfaces go through the
// same reconciliation as turn extraction.
func (e *Engine) OnSessionEnd(session memory.Session) {
	key := barrierKey(session.UserID, session.Character)
	e.barriers.Enter(key)
	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		defer e.barriers.Leave(key)

		ctx, cancel := context.WithTimeout(context.Background(), e.summaryTimeout)
		defer cancel()

		if err := e.sem.Acquire(ctx, 1); err != nil {
			e.logger.Warn("Summary slot never freed, session dropped", "user", session.UserID, "error", err)
			return
		}
		defer e.sem.Release(1)

		result, err := e.summarizer.Summarize(ctx, session)
		if err != nil {
			e.logger.Warn("Session summary failed", "user", session.UserID, "session", session.ID(), "error", err)
			return
		}

		e.publish(events.SubjectSessionSummarized, events.SessionSummarized{
			UserID:       session.UserID,
			Character:    session.Character,
			SessionID:    session.ID(),
			MessageCount: result.Summary.MessageCount,
			Sentiment:    result.Summary.Sentiment,
			Timestamp:    time.Now().UTC(),
		})

		e.applyResult(ctx, session.UserID, session.Character, session.ID(), result.Candidates, result.Delta)
	}()
}

// Shutdown waits for background work to drain, bounded by ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) publish(subject string, payload any) {
	if e.nc == nil {
		return
	}
	if err := helpers.NatsPublish(e.nc, subject, payload); err != nil {
		e.logger.Debug("Event publish failed", "subject", subject, "error", err)
	}
}

func barrierKey(userID, character string) string {
	return userID + "|" + character
}

func joinBlocks(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n\n" + b
}
