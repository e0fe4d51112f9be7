// Package segment turns a per-frame hand-presence signal into discrete sign
// events. All transitions are driven by the timestamps of the observations
// fed to it; the package never reads the wall clock.
package segment

import (
	"errors"
	"fmt"

	"github.com/healthbridge/healthbridge/internal/detector"
	"github.com/healthbridge/healthbridge/internal/gesture"
)

// State is the phase of the segmenter.
type State string

const (
	// Idle waits for hands to appear.
	Idle State = "idle"
	// Preparing has seen hands for less than the dwell time.
	Preparing State = "preparing"
	// Signing is actively capturing a sign.
	Signing State = "signing"
	// Completing has lost the hands and waits for the completion delay.
	Completing State = "completing"
)

// ErrSourceUnavailable is returned by Update while the segmenter is faulted.
var ErrSourceUnavailable = errors.New("hand presence source unavailable")

// Config holds the timing thresholds of the segmenter, in milliseconds.
type Config struct {
	MinCaptureIntervalMs int64 `mapstructure:"min_capture_interval_ms"`
	CompletionDelayMs    int64 `mapstructure:"completion_delay_ms"`
	MinSignDurationMs    int64 `mapstructure:"min_sign_duration_ms"`
	PrepareDwellMs       int64 `mapstructure:"prepare_dwell_ms"`
	MaxSignDurationMs    int64 `mapstructure:"max_sign_duration_ms"`
	MaxBufferFrames      int   `mapstructure:"max_buffer_frames"`
}

// DefaultConfig returns the default segmentation thresholds.
func DefaultConfig() Config {
	return Config{
		MinCaptureIntervalMs: 100,
		CompletionDelayMs:    800,
		MinSignDurationMs:    500,
		PrepareDwellMs:       150,
		MaxSignDurationMs:    10000,
		MaxBufferFrames:      120,
	}
}

// Validate reports inconsistent thresholds.
func (c Config) Validate() error {
	switch {
	case c.MinCaptureIntervalMs < 0:
		return fmt.Errorf("min capture interval must be non-negative, got %d", c.MinCaptureIntervalMs)
	case c.CompletionDelayMs < 0:
		return fmt.Errorf("completion delay must be non-negative, got %d", c.CompletionDelayMs)
	case c.MinSignDurationMs < 0:
		return fmt.Errorf("min sign duration must be non-negative, got %d", c.MinSignDurationMs)
	case c.PrepareDwellMs < 0:
		return fmt.Errorf("prepare dwell must be non-negative, got %d", c.PrepareDwellMs)
	case c.MaxSignDurationMs <= c.MinSignDurationMs:
		return fmt.Errorf("max sign duration %d must exceed min sign duration %d",
			c.MaxSignDurationMs, c.MinSignDurationMs)
	case c.MaxBufferFrames < 1:
		return fmt.Errorf("max buffer frames must be at least 1, got %d", c.MaxBufferFrames)
	}
	return nil
}

// Observation is one video frame's worth of input.
type Observation struct {
	Timestamp    int64
	HandsPresent bool
	Landmarks    []detector.HandLandmarks
	// ImageData is the encoded still. It may be empty on frames for which
	// CaptureDue returned false.
	ImageData string
}

// Event is an accepted sign: the full, unselected frame buffer.
type Event struct {
	Frames     []gesture.HandFrame
	StartedAt  int64
	EndedAt    int64
	DurationMs int64
	// Forced is set when the sign was cut at the maximum duration.
	Forced bool
}

// DiscardReason says why a buffer was dropped.
type DiscardReason string

const (
	// ReasonFlicker means the hands vanished during the prepare dwell.
	ReasonFlicker DiscardReason = "flicker"
	// ReasonTooShort means the sign ended before the minimum duration.
	ReasonTooShort DiscardReason = "too_short"
)

// Discard describes a buffer rejected as noise.
type Discard struct {
	Reason     DiscardReason
	Frames     int
	DurationMs int64
}

// Status is the read-only view published to subscribers.
type Status struct {
	State        State `json:"state"`
	HandsPresent bool  `json:"handsPresent"`
	Timestamp    int64 `json:"timestamp"`
}
