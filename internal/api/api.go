// Package api serves the HTTP endpoints around live sessions: creating and
// inspecting sessions and reading player statistics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"bingo/internal/auth"
	"bingo/internal/history"
	"bingo/internal/session"
)

// Sessions is the part of the coordinator the API needs.
type Sessions interface {
	Create(ctx context.Context, creatorID string, maxPlayers int) (session.Session, error)
	Snapshot(ctx context.Context, id string) (session.Session, error)
	Terminate(ctx context.Context, id, reason string) error
	ListWaiting(ctx context.Context) ([]session.Session, error)
}

// Players reads durable statistics. It may be nil when no database is
// configured, in which case the player routes answer 503.
type Players interface {
	History(ctx context.Context, playerID string, limit int) ([]history.Game, error)
	Player(ctx context.Context, playerID string) (history.Player, error)
}

type CreateSessionRequest struct {
	MaxPlayers int `json:"maxPlayers"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type Handler struct {
	sessions Sessions
	players  Players
	log      *zap.Logger
}

func New(sessions Sessions, players Players, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{sessions: sessions, players: players, log: log.Named("api")}
}

// Routes mounts the endpoints on r. Listing, creating and terminating
// sessions require a token checked by authn.
func (h *Handler) Routes(r chi.Router, authn auth.Authenticator) {
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(authn, h.log))
		r.Get("/sessions", h.ListSessions)
		r.Post("/sessions", h.CreateSession)
		r.Delete("/sessions/{id}", h.TerminateSession)
	})
	r.Get("/sessions/{id}", h.GetSession)
	r.Get("/players/{id}", h.GetPlayer)
	r.Get("/players/{id}/history", h.PlayerHistory)
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	creator := auth.PlayerID(r.Context())
	if creator == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.MaxPlayers == 0 {
		req.MaxPlayers = session.MaxPlayers
	}

	s, err := h.sessions.Create(r.Context(), creator, req.MaxPlayers)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// ListSessions returns the sessions open for joining, oldest first. Only
// ?status=waiting is supported and it is the default.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	if status := r.URL.Query().Get("status"); status != "" && status != string(session.StatusWaiting) {
		writeError(w, http.StatusBadRequest, "only status=waiting can be listed")
		return
	}
	sessions, err := h.sessions.ListWaiting(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// TerminateSession cancels a session that has not finished. Only its
// creator may do so.
func (h *Handler) TerminateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.sessions.Snapshot(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if s.CreatorID != auth.PlayerID(r.Context()) {
		writeError(w, http.StatusForbidden, "only the creator can terminate the session")
		return
	}
	if err := h.sessions.Terminate(r.Context(), id, "terminated by creator"); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	if h.players == nil {
		writeError(w, http.StatusServiceUnavailable, "history disabled")
		return
	}
	p, err := h.players.Player(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PlayerHistory lists finished games, newest first. ?limit= caps the page.
func (h *Handler) PlayerHistory(w http.ResponseWriter, r *http.Request) {
	if h.players == nil {
		writeError(w, http.StatusServiceUnavailable, "history disabled")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	games, err := h.players.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if games == nil {
		games = []history.Game{}
	}
	writeJSON(w, http.StatusOK, games)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, history.ErrPlayerNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, session.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, session.Reason(err))
	case session.IsClientError(err):
		writeError(w, http.StatusConflict, session.Reason(err))
	default:
		h.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
