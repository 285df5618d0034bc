package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi"
	"github.com/rs/cors"

	"github.com/hallyulabs/character-memory/pkg/engine"
	"github.com/hallyulabs/character-memory/pkg/memory"
)

type turnRequest struct {
	UserID    string        `json:"user_id"`
	Character string        `json:"character"`
	SessionID string        `json:"session_id"`
	Messages  []memory.Turn `json:"messages"`
}

type sessionEndRequest struct {
	UserID    string        `json:"user_id"`
	Character string        `json:"character"`
	StartedAt time.Time     `json:"started_at"`
	Messages  []memory.Turn `json:"messages"`
}

type loginRequest struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

func bootstrapRouter(logger *log.Logger, memEngine *engine.Engine) *chi.Mux {
	router := chi.NewRouter()
	router.Use(cors.New(cors.Options{
		AllowCredentials: true,
		AllowedOrigins:   []string{"*"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept"},
		Debug:            false,
	}).Handler)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Post("/v1/login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
			writeError(w, http.StatusBadRequest, "user_id is required")
			return
		}
		profile, err := memEngine.Login(r.Context(), req.UserID, req.Email, req.DisplayName)
		if err != nil {
			logger.Error("Login failed", "user", req.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "login failed")
			return
		}
		writeJSON(w, http.StatusOK, profile)
	})

	router.Post("/v1/turn", func(w http.ResponseWriter, r *http.Request) {
		var req turnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Character == "" {
			writeError(w, http.StatusBadRequest, "user_id and character are required")
			return
		}
		memEngine.OnTurn(req.UserID, req.Character, req.SessionID, req.Messages)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})

	router.Get("/v1/context", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		character := r.URL.Query().Get("character")
		if userID == "" || character == "" {
			writeError(w, http.StatusBadRequest, "user_id and character are required")
			return
		}
		budget := 0
		if raw := r.URL.Query().Get("budget"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				writeError(w, http.StatusBadRequest, "budget must be a non-negative integer")
				return
			}
			budget = parsed
		}
		block, err := memEngine.GetContext(r.Context(), userID, character, budget)
		if err != nil {
			logger.Error("Context assembly failed", "user", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "context assembly failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"context": block})
	})

	router.Post("/v1/session-end", func(w http.ResponseWriter, r *http.Request) {
		var req sessionEndRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Character == "" {
			writeError(w, http.StatusBadRequest, "user_id and character are required")
			return
		}
		if req.StartedAt.IsZero() {
			writeError(w, http.StatusBadRequest, "started_at is required")
			return
		}
		memEngine.OnSessionEnd(memory.Session{
			UserID:    req.UserID,
			Character: req.Character,
			StartedAt: req.StartedAt.UTC(),
			Messages:  req.Messages,
		})
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})

	return router
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
