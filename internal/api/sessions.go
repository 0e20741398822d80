package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mgoretti/cogniplay/internal/domain"
	"github.com/mgoretti/cogniplay/internal/games"
	"github.com/mgoretti/cogniplay/internal/identity"
	"github.com/mgoretti/cogniplay/internal/session"
	"github.com/mgoretti/cogniplay/internal/store"
)

// SessionHandler handles session lifecycle and recovery endpoints.
// Gameplay itself runs over the websocket in internal/play; these
// endpoints open, locate, resume, and discard session records.
type SessionHandler struct {
	*Handler
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(base *Handler) *SessionHandler {
	return &SessionHandler{Handler: base}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/games", h.ListGames)
		r.Post("/games/{gameID}/sessions", h.StartSession)
		r.Get("/games/{gameID}/sessions/unfinished", h.ListUnfinished)
		r.Post("/sessions/{sessionID}/resume", h.ResumeSession)
		r.Post("/sessions/{sessionID}/discard", h.DiscardSession)
	})
}

// ListGames returns the game catalog.
func (h *SessionHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	type gameInfo struct {
		GameID   string `json:"game_id"`
		Title    string `json:"title"`
		Category string `json:"category"`
		MaxLevel int    `json:"max_level"`
	}
	profiles := games.List()
	out := make([]gameInfo, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, gameInfo{GameID: p.GameID, Title: p.Title, Category: p.Category, MaxLevel: p.MaxLevel})
	}
	JSON(w, http.StatusOK, map[string]interface{}{"games": out})
}

type startSessionRequest struct {
	Level int `json:"level"`
}

// StartSession opens a session record for the actor and game. Conflicts
// with an unresolved active session return 409; store failures return
// 503 because a failed start is fatal and the client must not proceed.
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	if _, ok := games.Lookup(gameID); !ok {
		Error(w, http.StatusNotFound, "unknown game")
		return
	}

	var req startSessionRequest
	if r.Body != nil {
		// Empty body means level 1.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	actorID := identity.ActorIDFromContext(r.Context())
	if actorID == "" {
		// Trial play never persists; the websocket runs it end to end.
		JSON(w, http.StatusOK, map[string]interface{}{"ephemeral": true})
		return
	}

	mgr, err := session.Start(r.Context(), h.repo, domain.NewSessionInput{
		GameID:       gameID,
		ActorID:      actorID,
		InitialLevel: req.Level,
	}, session.WithCheckpointInterval(h.cfg.CheckpointInterval))
	if err != nil {
		if errors.Is(err, session.ErrSessionConflict) {
			Error(w, http.StatusConflict, "active session exists; resolve it first")
			return
		}
		slog.Error("Failed to start session", "error", err, "actor_id", actorID, "game_id", gameID)
		Error(w, http.StatusServiceUnavailable, "failed to start session")
		return
	}

	JSON(w, http.StatusCreated, map[string]interface{}{"session": mgr.Session()})
}

// ListUnfinished returns resumable sessions for the actor and game.
func (h *SessionHandler) ListUnfinished(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	actorID := identity.ActorIDFromContext(r.Context())
	if actorID == "" {
		JSON(w, http.StatusOK, map[string]interface{}{"sessions": []struct{}{}})
		return
	}

	sessions, err := h.locator.FindUnfinished(r.Context(), actorID, gameID)
	if err != nil {
		slog.Error("Failed to find unfinished sessions", "error", err, "actor_id", actorID, "game_id", gameID)
		Error(w, http.StatusInternalServerError, "failed to find unfinished sessions")
		return
	}
	if sessions == nil {
		sessions = []*domain.GameSession{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// ResumeSession rehydrates a session without starting gameplay; the
// websocket re-opens it for play with the same id.
func (h *SessionHandler) ResumeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	actorID := identity.ActorIDFromContext(r.Context())

	record, err := h.repo.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "session not found")
			return
		}
		slog.Error("Failed to load session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if record.ActorID != actorID {
		Error(w, http.StatusForbidden, "session belongs to another actor")
		return
	}

	state := session.Rehydrate(record)
	JSON(w, http.StatusOK, map[string]interface{}{
		"session": record,
		"state":   state,
	})
}

// DiscardSession marks a resumable session abandoned.
func (h *SessionHandler) DiscardSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	actorID := identity.ActorIDFromContext(r.Context())

	record, err := h.repo.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "session not found")
			return
		}
		slog.Error("Failed to load session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if record.ActorID != actorID {
		Error(w, http.StatusForbidden, "session belongs to another actor")
		return
	}

	if err := h.locator.Discard(r.Context(), sessionID); err != nil {
		slog.Error("Failed to discard session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to discard session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
