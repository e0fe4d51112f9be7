// Package hook runs external programs in response to translation events.
// Each hook lives in its own directory with a hook.json manifest and receives
// a JSON request on stdin, answering with a JSON response on stdout.
package hook

import (
	"encoding/json"
	"slices"

	"github.com/healthbridge/healthbridge/internal/translate"
)

// Event names a point in the pipeline that hooks can subscribe to.
type Event string

const (
	// EventTranslation fires for every translation result.
	EventTranslation Event = "translation"
	// EventLowConfidence fires when a result should be re-signed.
	EventLowConfidence Event = "low_confidence"
)

// Manifest describes a hook's metadata and subscriptions.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Events      []Event         `json:"events"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Request is sent to a hook on stdin.
type Request struct {
	Event       Event            `json:"event"`
	Translation translate.Result `json:"translation"`
	Config      json.RawMessage  `json:"config"`
}

// Response is read from a hook's stdout.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Handles reports whether the hook subscribes to ev.
func (h *Hook) Handles(ev Event) bool {
	return slices.Contains(h.Manifest.Events, ev)
}
