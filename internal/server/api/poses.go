package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/asana/internal/classify"
	"github.com/ayusman/asana/internal/pose"
	"github.com/ayusman/asana/internal/store"
)

// TemplateUpdater receives freshly trained templates.
// *classify.TemplateClassifier satisfies it.
type TemplateUpdater interface {
	SetTemplate(t classify.Template) error
	RemoveTemplate(label pose.Label)
}

// PoseHandler handles HTTP requests for poses, their recorded samples and
// their trained templates.
type PoseHandler struct {
	store      *store.Store
	classifier TemplateUpdater
	trainer    *classify.Trainer
}

// NewPoseHandler creates a PoseHandler. classifier may be nil when the
// running classifier does not use templates.
func NewPoseHandler(s *store.Store, classifier TemplateUpdater) *PoseHandler {
	return &PoseHandler{
		store:      s,
		classifier: classifier,
		trainer:    classify.NewTrainer(),
	}
}

// ServeHTTP routes requests.
// Expected paths: /api/poses, /api/poses/{label}, /api/poses/{label}/samples
// and /api/poses/{label}/train. No_Pose is not listed but accepts samples so
// the template classifier can learn what a non-pose looks like.
func (h *PoseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/poses")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	parts := strings.Split(path, "/")
	label, err := pose.ParseLabel(parts[0])
	if err != nil {
		writeError(w, http.StatusNotFound, "Pose not found")
		return
	}

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, label)
		case http.MethodDelete:
			h.reset(w, r, label)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "samples":
		switch r.Method {
		case http.MethodGet:
			h.listSamples(w, r, label)
		case http.MethodPost:
			h.createSamples(w, r, label)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "train":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.train(w, r, label)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// Request and response types

type createSamplesRequest struct {
	Samples []classify.Sample `json:"samples"`
}

type createSamplesResponse struct {
	Added int `json:"added"`
	Total int `json:"total"`
}

type poseResponse struct {
	Name              string `json:"name"`
	Index             int    `json:"index"`
	Samples           int    `json:"samples"`
	Trained           bool   `json:"trained"`
	TemplateUpdatedAt string `json:"template_updated_at,omitempty"`
}

type listPosesResponse struct {
	Poses []poseResponse `json:"poses"`
}

type sampleResponse struct {
	ID        int64          `json:"id"`
	Pose      string         `json:"pose"`
	Embedding pose.Embedding `json:"embedding"`
	CreatedAt string         `json:"created_at"`
}

type listSamplesResponse struct {
	Samples []sampleResponse `json:"samples"`
}

type templateResponse struct {
	Pose        string `json:"pose"`
	SampleCount int    `json:"sample_count"`
	UpdatedAt   string `json:"updated_at"`
}

// list handles GET /api/poses and returns every selectable pose.
func (h *PoseHandler) list(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.Samples().Counts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count samples")
		return
	}
	templates, err := h.store.Templates().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}
	trained := make(map[pose.Label]*store.Template, len(templates))
	for _, t := range templates {
		trained[t.Pose] = t
	}

	response := listPosesResponse{
		Poses: make([]poseResponse, 0, len(pose.SelectableLabels)),
	}
	for _, label := range pose.SelectableLabels {
		response.Poses = append(response.Poses, toPoseResponse(label, counts[label], trained[label]))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/poses/{label}.
func (h *PoseHandler) get(w http.ResponseWriter, r *http.Request, label pose.Label) {
	counts, err := h.store.Samples().Counts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count samples")
		return
	}
	tmpl, err := h.store.Templates().Get(label)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "Failed to get template")
		return
	}

	writeJSON(w, http.StatusOK, toPoseResponse(label, counts[label], tmpl))
}

// reset handles DELETE /api/poses/{label} and forgets its samples and template.
func (h *PoseHandler) reset(w http.ResponseWriter, r *http.Request, label pose.Label) {
	if err := h.store.Samples().DeleteByPose(label); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete samples")
		return
	}
	if err := h.store.Templates().Delete(label); err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "Failed to delete template")
		return
	}
	if h.classifier != nil {
		h.classifier.RemoveTemplate(label)
	}

	w.WriteHeader(http.StatusNoContent)
}

// listSamples handles GET /api/poses/{label}/samples.
func (h *PoseHandler) listSamples(w http.ResponseWriter, r *http.Request, label pose.Label) {
	samples, err := h.store.Samples().ListByPose(label)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list samples")
		return
	}

	response := listSamplesResponse{
		Samples: make([]sampleResponse, 0, len(samples)),
	}
	for _, s := range samples {
		response.Samples = append(response.Samples, sampleResponse{
			ID:        s.ID,
			Pose:      string(s.Pose),
			Embedding: s.Embedding,
			CreatedAt: formatTime(s.CreatedAt),
		})
	}

	writeJSON(w, http.StatusOK, response)
}

// createSamples handles POST /api/poses/{label}/samples. Samples carry either
// raw keypoints or a precomputed embedding.
func (h *PoseHandler) createSamples(w http.ResponseWriter, r *http.Request, label pose.Label) {
	var req createSamplesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if len(req.Samples) == 0 {
		writeError(w, http.StatusBadRequest, "At least one sample is required")
		return
	}

	embeddings := make([]pose.Embedding, 0, len(req.Samples))
	for _, s := range req.Samples {
		e, err := s.Resolve()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		embeddings = append(embeddings, e)
	}

	if err := h.store.Samples().Create(label, embeddings); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save samples")
		return
	}

	counts, err := h.store.Samples().Counts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count samples")
		return
	}

	writeJSON(w, http.StatusCreated, createSamplesResponse{Added: len(embeddings), Total: counts[label]})
}

// train handles POST /api/poses/{label}/train. The recorded samples are
// averaged into a template, persisted and loaded into the classifier.
func (h *PoseHandler) train(w http.ResponseWriter, r *http.Request, label pose.Label) {
	embeddings, err := h.store.Samples().Embeddings(label)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load samples")
		return
	}

	tmpl, err := h.trainer.Train(label, embeddings)
	if err != nil {
		if errors.Is(err, classify.ErrNoSamples) {
			writeError(w, http.StatusBadRequest, "No samples recorded for this pose")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to train template")
		return
	}

	stored := tmpl.ToStore()
	if err := h.store.Templates().Save(stored); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save template")
		return
	}
	if h.classifier != nil {
		if err := h.classifier.SetTemplate(tmpl); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load template")
			return
		}
	}

	writeJSON(w, http.StatusOK, templateResponse{
		Pose:        string(label),
		SampleCount: stored.SampleCount,
		UpdatedAt:   formatTime(stored.UpdatedAt),
	})
}

func toPoseResponse(label pose.Label, samples int, tmpl *store.Template) poseResponse {
	resp := poseResponse{
		Name:    string(label),
		Index:   label.Index(),
		Samples: samples,
	}
	if tmpl != nil {
		resp.Trained = true
		resp.TemplateUpdatedAt = formatTime(tmpl.UpdatedAt)
	}
	return resp
}
