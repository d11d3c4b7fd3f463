package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ayusman/asana/internal/app"
	"github.com/ayusman/asana/internal/logging"
	"github.com/ayusman/asana/internal/pose"
	"github.com/ayusman/asana/internal/store"
)

// SessionController runs practice sessions. *app.App satisfies it.
type SessionController interface {
	Start(ctx context.Context, target pose.Label) error
	SetTarget(target pose.Label) error
	Stop() (*store.Session, error)
	Status() app.Status
}

// SessionHandler handles HTTP requests for the current practice session.
type SessionHandler struct {
	controller SessionController
	store      *store.Store
	logger     *slog.Logger
}

// NewSessionHandler creates a SessionHandler. s may be nil, in which case the
// last selected pose is not remembered.
func NewSessionHandler(controller SessionController, s *store.Store, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		controller: controller,
		store:      s,
		logger:     logging.OrDefault(logger),
	}
}

// ServeHTTP routes requests for /api/session.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.status(w, r)
	case http.MethodPost:
		h.start(w, r)
	case http.MethodPut:
		h.change(w, r)
	case http.MethodDelete:
		h.stop(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type sessionRequest struct {
	Pose string `json:"pose"`
}

type sessionStatusResponse struct {
	app.Status
	LastPose string `json:"last_pose,omitempty"`
}

type sessionResponse struct {
	ID              string  `json:"id"`
	Pose            string  `json:"pose"`
	StartedAt       string  `json:"started_at"`
	EndedAt         string  `json:"ended_at"`
	DurationSeconds float64 `json:"duration_seconds"`
	BestHoldSeconds float64 `json:"best_hold_seconds"`
}

func toSessionResponse(s *store.Session) sessionResponse {
	return sessionResponse{
		ID:              s.ID,
		Pose:            string(s.Pose),
		StartedAt:       formatTime(s.StartedAt),
		EndedAt:         formatTime(s.EndedAt),
		DurationSeconds: s.Duration().Seconds(),
		BestHoldSeconds: s.BestHoldSeconds,
	}
}

// status handles GET /api/session.
func (h *SessionHandler) status(w http.ResponseWriter, r *http.Request) {
	resp := sessionStatusResponse{Status: h.controller.Status()}
	if h.store != nil {
		if last, err := h.store.Settings().Get(store.SettingLastPose); err == nil {
			resp.LastPose = last
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// start handles POST /api/session.
func (h *SessionHandler) start(w http.ResponseWriter, r *http.Request) {
	label, ok := h.decodePose(w, r)
	if !ok {
		return
	}

	// The session outlives the request.
	err := h.controller.Start(context.WithoutCancel(r.Context()), label)
	switch {
	case errors.Is(err, app.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "Session already running")
		return
	case errors.Is(err, pose.ErrUnknownLabel):
		writeError(w, http.StatusBadRequest, "Pose cannot be selected")
		return
	case err != nil:
		h.logger.Error("failed to start session", "pose", label, "error", err)
		writeError(w, http.StatusServiceUnavailable, "Failed to start session")
		return
	}

	h.rememberPose(label)
	writeJSON(w, http.StatusCreated, h.controller.Status())
}

// change handles PUT /api/session and switches the target pose.
func (h *SessionHandler) change(w http.ResponseWriter, r *http.Request) {
	label, ok := h.decodePose(w, r)
	if !ok {
		return
	}

	err := h.controller.SetTarget(label)
	switch {
	case errors.Is(err, app.ErrNotRunning):
		writeError(w, http.StatusConflict, "No session running")
		return
	case errors.Is(err, pose.ErrUnknownLabel):
		writeError(w, http.StatusBadRequest, "Pose cannot be selected")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to change pose")
		return
	}

	h.rememberPose(label)
	writeJSON(w, http.StatusOK, h.controller.Status())
}

// stop handles DELETE /api/session and returns the recorded session.
func (h *SessionHandler) stop(w http.ResponseWriter, r *http.Request) {
	session, err := h.controller.Stop()
	if err != nil {
		if errors.Is(err, app.ErrNotRunning) {
			writeError(w, http.StatusConflict, "No session running")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to stop session")
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *SessionHandler) decodePose(w http.ResponseWriter, r *http.Request) (pose.Label, bool) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return "", false
	}
	if req.Pose == "" {
		writeError(w, http.StatusBadRequest, "Pose is required")
		return "", false
	}
	label, err := pose.ParseLabel(req.Pose)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown pose")
		return "", false
	}
	return label, true
}

func (h *SessionHandler) rememberPose(label pose.Label) {
	if h.store == nil {
		return
	}
	if err := h.store.Settings().Set(store.SettingLastPose, string(label)); err != nil {
		h.logger.Warn("failed to remember pose", "error", err)
	}
}
