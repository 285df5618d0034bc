package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallyulabs/character-memory/pkg/chatlog"
	"github.com/hallyulabs/character-memory/pkg/db"
	"github.com/hallyulabs/character-memory/pkg/engine"
	"github.com/hallyulabs/character-memory/pkg/memory/assembler"
	"github.com/hallyulabs/character-memory/pkg/memory/extractor"
	"github.com/hallyulabs/character-memory/pkg/memory/reconciler"
	"github.com/hallyulabs/character-memory/pkg/memory/summarizer"
)

type stubCompletion struct{}

func (s *stubCompletion) Completions(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam, model string) (openai.ChatCompletionMessage, error) {
	return openai.ChatCompletionMessage{Role: "assistant"}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := log.New(io.Discard)
	store, err := db.NewStore(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	stub := &stubCompletion{}
	ex, err := extractor.New(stub, "test-model", logger)
	require.NoError(t, err)
	rec, err := reconciler.New(store, logger)
	require.NoError(t, err)
	sum, err := summarizer.New(stub, "test-model", store, chatlog.NewFSStore(t.TempDir()), logger)
	require.NoError(t, err)
	asm, err := assembler.New(store, logger)
	require.NoError(t, err)

	memEngine, err := engine.New(engine.Dependencies{
		Logger:     logger,
		Store:      store,
		Extractor:  ex,
		Reconciler: rec,
		Summarizer: sum,
		Assembler:  asm,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = memEngine.Shutdown(shutdownCtx)
	})

	return bootstrapRouter(logger, memEngine)
}

func TestContextRoute(t *testing.T) {
	router := newTestRouter(t)

	login := httptest.NewRecorder()
	router.ServeHTTP(login, httptest.NewRequest(http.MethodPost, "/v1/login",
		jsonBody(t, map[string]string{"user_id": "u1"})))
	require.Equal(t, http.StatusOK, login.Code)

	t.Run("DefaultBudget", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/context?user_id=u1&character=지민", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Contains(t, body["context"], "[온보딩 지시]")
	})

	t.Run("BudgetParamAccepted", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/context?user_id=u1&character=지민&budget=500", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("BadBudgetRejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/context?user_id=u1&character=지민&budget=lots", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("MissingUserRejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/context?character=지민", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func jsonBody(t *testing.T, payload any) io.Reader {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return bytes.NewReader(data)
}
