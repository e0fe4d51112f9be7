package gesture

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// SelectionConfig controls how a sign's frame buffer is reduced before it is
// sent to the vision model. Thresholds are in normalized frame units.
type SelectionConfig struct {
	// MaxFrames bounds the number of selected indices.
	MaxFrames int `mapstructure:"max_frames" json:"maxFrames"`
	// MotionThreshold marks a frame as a key moment when its wrist velocity
	// or the magnitude of its acceleration exceeds it.
	MotionThreshold float64 `mapstructure:"motion_threshold" json:"motionThreshold"`
	// SimilarityThreshold is the mean per-landmark distance below which two
	// frames count as near-duplicates.
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" json:"similarityThreshold"`
	// IncludeEndpoints reserves the first and last frame.
	IncludeEndpoints bool `mapstructure:"include_endpoints" json:"includeEndpoints"`
	// UseAdaptiveSelection enables motion-based selection; otherwise frames
	// are sampled at an even stride.
	UseAdaptiveSelection bool `mapstructure:"use_adaptive_selection" json:"useAdaptiveSelection"`
}

// DefaultSelectionConfig returns the balanced preset.
func DefaultSelectionConfig() SelectionConfig {
	return SelectionConfig{
		MaxFrames:            12,
		MotionThreshold:      0.02,
		SimilarityThreshold:  0.01,
		IncludeEndpoints:     true,
		UseAdaptiveSelection: true,
	}
}

// Validate reports malformed configurations.
func (c SelectionConfig) Validate() error {
	if c.MaxFrames < 1 {
		return fmt.Errorf("max frames must be at least 1, got %d", c.MaxFrames)
	}
	if c.MotionThreshold < 0 || math.IsNaN(c.MotionThreshold) {
		return fmt.Errorf("motion threshold must be non-negative, got %v", c.MotionThreshold)
	}
	if c.SimilarityThreshold < 0 || math.IsNaN(c.SimilarityThreshold) {
		return fmt.Errorf("similarity threshold must be non-negative, got %v", c.SimilarityThreshold)
	}
	return nil
}

// Preset names a tuned SelectionConfig.
type Preset string

const (
	PresetFast     Preset = "fast"
	PresetBalanced Preset = "balanced"
	PresetAccurate Preset = "accurate"
)

// ErrUnknownPreset is returned for preset names outside the known set.
var ErrUnknownPreset = errors.New("unknown selection preset")

// PresetConfig returns the SelectionConfig for p.
func PresetConfig(p Preset) (SelectionConfig, error) {
	cfg := DefaultSelectionConfig()
	switch p {
	case PresetFast:
		cfg.MaxFrames = 8
		cfg.MotionThreshold = 0.03
		cfg.SimilarityThreshold = 0.015
	case PresetBalanced, "":
	case PresetAccurate:
		cfg.MaxFrames = 20
		cfg.MotionThreshold = 0.015
		cfg.SimilarityThreshold = 0.006
	default:
		return SelectionConfig{}, fmt.Errorf("%w: %q", ErrUnknownPreset, p)
	}
	return cfg, nil
}

// SelectKeyFramesAdaptive returns the ascending indices of the frames that
// best represent a sign, at most cfg.MaxFrames of them.
//
// Buffers that already fit are returned whole. Otherwise, when adaptive
// selection is enabled and some frame carries landmarks:
//  1. compute wrist velocity and acceleration per frame
//  2. key moments exceed the motion threshold in velocity or |acceleration|
//  3. reserve the endpoints if configured
//  4. accept key moments by 2|a|+v, skipping near-duplicates of accepted frames
//  5. fill leftover slots at an even stride over the unreserved middle
//
// In every other case the selection falls back to SelectUniform.
func SelectKeyFramesAdaptive(frames []HandFrame, cfg SelectionConfig) []int {
	n := len(frames)
	if n == 0 {
		return []int{}
	}

	maxFrames := cfg.MaxFrames
	if maxFrames < 1 {
		maxFrames = 1
	}

	if n <= maxFrames {
		indices := make([]int, n)
		for i := range indices {
			indices[i] = i
		}
		return indices
	}

	if !cfg.UseAdaptiveSelection || !AnyLandmarks(frames) {
		return SelectUniform(n, maxFrames)
	}

	profile := ComputeMotionProfile(frames)

	chosen := make(map[int]bool, maxFrames)
	selected := make([]int, 0, maxFrames)
	accept := func(i int) {
		chosen[i] = true
		selected = append(selected, i)
	}

	if cfg.IncludeEndpoints {
		accept(0)
		if maxFrames >= 2 {
			accept(n - 1)
		}
	}

	type candidate struct {
		index int
		score float64
	}

	var candidates []candidate
	for i := 0; i < n; i++ {
		if chosen[i] {
			continue
		}
		v := profile.Velocity[i]
		a := math.Abs(profile.Acceleration[i])
		if v > cfg.MotionThreshold || a > cfg.MotionThreshold {
			candidates = append(candidates, candidate{index: i, score: 2*a + v})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	for _, c := range candidates {
		if len(selected) >= maxFrames {
			break
		}
		if isNearDuplicate(frames, c.index, selected, cfg.SimilarityThreshold) {
			continue
		}
		accept(c.index)
	}

	if len(selected) < maxFrames {
		lo, hi := 0, n-1
		if cfg.IncludeEndpoints {
			lo, hi = 1, n-2
		}

		var free []int
		for i := lo; i <= hi; i++ {
			if !chosen[i] {
				free = append(free, i)
			}
		}

		for _, i := range spread(free, maxFrames-len(selected)) {
			accept(i)
		}
	}

	sort.Ints(selected)
	return selected
}

// SelectUniform picks maxFrames indices at an even stride across n frames,
// always including the first and last index when at least two are picked.
func SelectUniform(n, maxFrames int) []int {
	if n <= 0 {
		return []int{}
	}
	if maxFrames < 1 {
		maxFrames = 1
	}
	if n <= maxFrames {
		indices := make([]int, n)
		for i := range indices {
			indices[i] = i
		}
		return indices
	}
	if maxFrames == 1 {
		return []int{0}
	}

	indices := make([]int, maxFrames)
	for k := 0; k < maxFrames; k++ {
		indices[k] = k * (n - 1) / (maxFrames - 1)
	}
	return indices
}

// spread picks count entries of pool at an even stride, centred in each
// stride window. Returns the whole pool when it is not larger than count.
func spread(pool []int, count int) []int {
	if count <= 0 || len(pool) == 0 {
		return nil
	}
	if len(pool) <= count {
		return pool
	}

	picked := make([]int, count)
	for k := 0; k < count; k++ {
		picked[k] = pool[(2*k+1)*len(pool)/(2*count)]
	}
	return picked
}

func isNearDuplicate(frames []HandFrame, idx int, accepted []int, threshold float64) bool {
	for _, j := range accepted {
		diff, ok := LandmarkDifference(&frames[idx], &frames[j])
		if ok && diff < threshold {
			return true
		}
	}
	return false
}
