package api

import (
	"net/http"

	"github.com/healthbridge/healthbridge/internal/confidence"
	"github.com/healthbridge/healthbridge/internal/gesture"
)

// SelectHandler serves POST /api/select: key-frame selection over a buffer.
type SelectHandler struct {
	defaults func() gesture.SelectionConfig
}

// NewSelectHandler creates a SelectHandler. defaults supplies the selector
// configuration used when a request carries none.
func NewSelectHandler(defaults func() gesture.SelectionConfig) *SelectHandler {
	if defaults == nil {
		defaults = gesture.DefaultSelectionConfig
	}
	return &SelectHandler{defaults: defaults}
}

type selectRequest struct {
	Frames []gesture.HandFrame      `json:"frames"`
	Config *gesture.SelectionConfig `json:"config,omitempty"`
	Preset string                   `json:"preset,omitempty"`
}

type selectResponse struct {
	Indices []int `json:"indices"`
}

func (h *SelectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req selectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cfg := h.defaults()
	switch {
	case req.Config != nil:
		if err := req.Config.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		cfg = *req.Config
	case req.Preset != "":
		preset, err := gesture.PresetConfig(gesture.Preset(req.Preset))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		cfg = preset
	}

	indices := gesture.SelectKeyFramesAdaptive(req.Frames, cfg)
	if indices == nil {
		indices = []int{}
	}
	writeJSON(w, http.StatusOK, selectResponse{Indices: indices})
}

// ConfidenceHandler serves POST /api/confidence: scores a translation.
type ConfidenceHandler struct {
	config confidence.Config
}

// NewConfidenceHandler creates a ConfidenceHandler with the given scorer config.
func NewConfidenceHandler(cfg confidence.Config) *ConfidenceHandler {
	return &ConfidenceHandler{config: cfg}
}

type confidenceRequest struct {
	Translation    string              `json:"translation"`
	Frames         []gesture.HandFrame `json:"frames"`
	SignDurationMs int64               `json:"signDurationMs"`
}

func (h *ConfidenceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req confidenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SignDurationMs < 0 {
		writeError(w, http.StatusBadRequest, "signDurationMs must not be negative")
		return
	}

	writeJSON(w, http.StatusOK, confidence.Calculate(req.Translation, req.Frames, req.SignDurationMs, h.config))
}
