package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/asana/internal/store"
)

// StatsHandler serves the practice history and its aggregates.
type StatsHandler struct {
	store *store.Store
	now   func() time.Time
}

// NewStatsHandler creates a StatsHandler with the given store.
func NewStatsHandler(s *store.Store) *StatsHandler {
	return &StatsHandler{store: s, now: time.Now}
}

// ServeHTTP routes requests.
// Expected paths: /api/stats, /api/sessions and /api/sessions/{id}.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/stats" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.stats(w, r)
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sessions"), "/")
	if id == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type statsResponse struct {
	TotalSessions    int                `json:"total_sessions"`
	TotalMinutes     float64            `json:"total_minutes"`
	BestScores       map[string]float64 `json:"best_scores"`
	SessionsThisWeek int                `json:"sessions_this_week"`
	CurrentStreak    int                `json:"current_streak"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

// stats handles GET /api/stats.
func (h *StatsHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Sessions().Stats(h.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}

	best := make(map[string]float64, len(stats.BestScores))
	for label, seconds := range stats.BestScores {
		best[string(label)] = seconds
	}

	writeJSON(w, http.StatusOK, statsResponse{
		TotalSessions:    stats.TotalSessions,
		TotalMinutes:     stats.TotalSeconds / 60,
		BestScores:       best,
		SessionsThisWeek: stats.SessionsThisWeek,
		CurrentStreak:    stats.CurrentStreak,
	})
}

// list handles GET /api/sessions?limit=N, most recent first.
func (h *StatsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	sessions, err := h.store.Sessions().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	response := listSessionsResponse{
		Sessions: make([]sessionResponse, 0, len(sessions)),
	}
	for _, s := range sessions {
		response.Sessions = append(response.Sessions, toSessionResponse(s))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/sessions/{id}.
func (h *StatsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	session, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// delete handles DELETE /api/sessions/{id}.
func (h *StatsHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Sessions().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
