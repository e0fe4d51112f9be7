package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/healthbridge/healthbridge/internal/gesture"
	"github.com/healthbridge/healthbridge/internal/store"
	"github.com/healthbridge/healthbridge/internal/translate"
)

// DefaultListLimit is the page size when ?limit is absent.
const DefaultListLimit = 50

// Translator runs one translation round trip over a posted frame burst and
// records the result. An empty preset means the configured default.
type Translator interface {
	TranslateFrames(ctx context.Context, frames []gesture.HandFrame, signDurationMs int64, preset gesture.Preset) (translate.Result, error)
}

// TranslateHandler serves POST /api/translate.
type TranslateHandler struct {
	translator Translator
}

// NewTranslateHandler creates a TranslateHandler.
func NewTranslateHandler(t Translator) *TranslateHandler {
	return &TranslateHandler{translator: t}
}

type translateRequest struct {
	Frames         []gesture.HandFrame `json:"frames"`
	SignDurationMs int64               `json:"signDurationMs"`
	Preset         string              `json:"preset,omitempty"`
}

func (h *TranslateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req translateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Frames) == 0 {
		writeError(w, http.StatusBadRequest, "frames are required")
		return
	}
	if req.SignDurationMs < 0 {
		writeError(w, http.StatusBadRequest, "signDurationMs must not be negative")
		return
	}

	result, err := h.translator.TranslateFrames(r.Context(), req.Frames, req.SignDurationMs, gesture.Preset(req.Preset))
	if err != nil {
		if errors.Is(err, gesture.ErrUnknownPreset) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to translate")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// TranslationHandler serves the translation history under /api/translations.
type TranslationHandler struct {
	store *store.Store
}

// NewTranslationHandler creates a TranslationHandler with the given store.
func NewTranslationHandler(s *store.Store) *TranslationHandler {
	return &TranslationHandler{store: s}
}

type listTranslationsResponse struct {
	Translations []*store.Translation `json:"translations"`
	Total        int                  `json:"total"`
}

type translationDetail struct {
	*store.Translation
	HookRuns []*store.HookRun `json:"hookRuns"`
}

// ServeHTTP routes /api/translations and /api/translations/{id}.
func (h *TranslationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/translations")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	id := path
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// list handles GET /api/translations?limit=N, newest first.
func (h *TranslationHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	translations, err := h.store.Translations().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list translations")
		return
	}
	total, err := h.store.Translations().Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count translations")
		return
	}

	if translations == nil {
		translations = []*store.Translation{}
	}
	writeJSON(w, http.StatusOK, listTranslationsResponse{Translations: translations, Total: total})
}

// get handles GET /api/translations/{id} and includes the hook runs.
func (h *TranslationHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	t, err := h.store.Translations().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Translation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get translation")
		return
	}

	runs, err := h.store.HookRuns().ListByTranslation(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get hook runs")
		return
	}
	if runs == nil {
		runs = []*store.HookRun{}
	}

	writeJSON(w, http.StatusOK, translationDetail{Translation: t, HookRuns: runs})
}

// delete handles DELETE /api/translations/{id}.
func (h *TranslationHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Translations().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Translation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete translation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
