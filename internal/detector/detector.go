package detector

import (
	"errors"
	"time"

	"gocv.io/x/gocv"
)

// ErrModelUnavailable is returned when the hand-tracking model cannot be loaded.
// It is distinct from a frame with no hands, which is not an error.
var ErrModelUnavailable = errors.New("hand tracking model unavailable")

// Detector defines the interface for hand detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected hand landmarks.
	// Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Presence is the per-frame signal consumed by the sign segmenter.
type Presence struct {
	HandsPresent bool
	// Hands is nil when no pose data was produced for the frame.
	Hands []HandLandmarks
}

// Observe runs d on frame and folds the result into a Presence.
func Observe(d Detector, frame *gocv.Mat) (Presence, error) {
	hands, err := d.Detect(frame)
	if err != nil {
		return Presence{}, err
	}
	if len(hands) == 0 {
		return Presence{}, nil
	}
	return Presence{HandsPresent: true, Hands: hands}, nil
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int `mapstructure:"max_hands"`

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64 `mapstructure:"min_confidence"`

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64 `mapstructure:"min_tracking_confidence"`

	// ScriptPath overrides the MediaPipe service script location.
	ScriptPath string `mapstructure:"script_path"`

	// PythonPath overrides the interpreter used to run the script.
	PythonPath string `mapstructure:"python_path"`

	// IdleTimeout shuts the subprocess down after this long without frames.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
		IdleTimeout:     30 * time.Second,
	}
}
