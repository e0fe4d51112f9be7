// Package gesture holds the captured frame model of a sign event and the
// motion-aware key-frame selection that reduces a burst to a bounded subset.
package gesture

import "github.com/healthbridge/healthbridge/internal/detector"

// HandFrame is one sampled video frame during a sign event.
type HandFrame struct {
	// Timestamp is the monotonic capture time in milliseconds.
	Timestamp int64 `json:"timestamp"`
	// ImageData is the base64-encoded JPEG still.
	ImageData string `json:"imageData"`
	// Landmarks is nil when pose detection produced no data for the frame,
	// even if a hand was visually present.
	Landmarks []detector.HandLandmarks `json:"landmarks"`
}

// HasLandmarks reports whether the frame carries at least one hand pose.
func (f *HandFrame) HasLandmarks() bool {
	return len(f.Landmarks) > 0
}

// AnyLandmarks reports whether any frame in the buffer carries pose data.
func AnyLandmarks(frames []HandFrame) bool {
	for i := range frames {
		if frames[i].HasLandmarks() {
			return true
		}
	}
	return false
}

// GetSelectedFrames returns the frames at indices, in index order.
// Negative and out-of-range indices are skipped.
func GetSelectedFrames(frames []HandFrame, indices []int) []HandFrame {
	selected := make([]HandFrame, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(frames) {
			continue
		}
		selected = append(selected, frames[idx])
	}
	return selected
}
