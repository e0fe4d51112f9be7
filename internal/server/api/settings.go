package api

import (
	"net/http"

	"github.com/healthbridge/healthbridge/internal/gesture"
	"github.com/healthbridge/healthbridge/internal/store"
)

// SettingsHandler serves GET and PUT /api/settings.
type SettingsHandler struct {
	store         *store.Store
	defaultPreset gesture.Preset
}

// NewSettingsHandler creates a SettingsHandler. defaultPreset is reported
// until a preset has been saved.
func NewSettingsHandler(s *store.Store, defaultPreset gesture.Preset) *SettingsHandler {
	if defaultPreset == "" {
		defaultPreset = gesture.PresetBalanced
	}
	return &SettingsHandler{store: s, defaultPreset: defaultPreset}
}

type settingsBody struct {
	SelectionPreset string                  `json:"selectionPreset"`
	Selection       gesture.SelectionConfig `json:"selection"`
	Presets         []gesture.Preset        `json:"presets"`
}

type updateSettingsRequest struct {
	SelectionPreset string `json:"selectionPreset"`
}

var presets = []gesture.Preset{gesture.PresetFast, gesture.PresetBalanced, gesture.PresetAccurate}

func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w)
	case http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SettingsHandler) get(w http.ResponseWriter) {
	preset, err := h.store.Settings().GetOr(store.SettingSelectionPreset, string(h.defaultPreset))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read settings")
		return
	}
	h.write(w, gesture.Preset(preset))
}

func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	preset := gesture.Preset(req.SelectionPreset)
	if _, err := gesture.PresetConfig(preset); err != nil || preset == "" {
		writeError(w, http.StatusBadRequest, "selectionPreset must be one of fast, balanced, accurate")
		return
	}

	if err := h.store.Settings().Set(store.SettingSelectionPreset, string(preset)); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save settings")
		return
	}
	h.write(w, preset)
}

func (h *SettingsHandler) write(w http.ResponseWriter, preset gesture.Preset) {
	cfg, err := gesture.PresetConfig(preset)
	if err != nil {
		// A preset saved by an older build; report the default instead.
		preset = h.defaultPreset
		cfg, _ = gesture.PresetConfig(preset)
	}
	writeJSON(w, http.StatusOK, settingsBody{
		SelectionPreset: string(preset),
		Selection:       cfg,
		Presets:         presets,
	})
}
