// Package translate turns accepted sign events into scored translations:
// key frames are selected, sent to a vision model, and the answer is scored.
package translate

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/healthbridge/healthbridge/internal/gesture"
)

// Sentinel translations understood by the confidence scorer.
const (
	UnclearText = "[unclear]"
	ErrorText   = "[error]"
)

var (
	// ErrEmptyResponse is returned when the model answers with no text.
	ErrEmptyResponse = errors.New("empty translation response")
	// ErrNoFrames is returned when there is nothing to translate.
	ErrNoFrames = errors.New("no frames to translate")
)

// Translation is the raw answer of a Translator.
type Translation struct {
	Text      string
	LatencyMs int64
}

// Translator sends selected frames to a remote model.
type Translator interface {
	Translate(ctx context.Context, frames []gesture.HandFrame) (Translation, error)
}

// DecodeImage decodes a frame's base64 image, accepting both bare base64 and
// data URLs. The returned MIME type defaults to image/jpeg.
func DecodeImage(encoded string) (mimeType string, data []byte, err error) {
	mimeType = "image/jpeg"
	payload := encoded

	if rest, ok := strings.CutPrefix(encoded, "data:"); ok {
		header, body, found := strings.Cut(rest, ",")
		if !found {
			return "", nil, fmt.Errorf("malformed data url")
		}
		if mt, _, _ := strings.Cut(header, ";"); mt != "" {
			mimeType = mt
		}
		payload = body
	}

	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode image: %w", err)
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("decode image: empty payload")
	}
	return mimeType, data, nil
}
