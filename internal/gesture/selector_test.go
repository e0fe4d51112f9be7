package gesture_test

import (
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/healthbridge/healthbridge/internal/detector"
	"github.com/healthbridge/healthbridge/internal/gesture"
	"github.com/healthbridge/healthbridge/internal/testutil"
)

func TestSelectKeyFramesAdaptive_Identity(t *testing.T) {
	cfg := gesture.DefaultSelectionConfig()

	for _, n := range []int{1, 5, cfg.MaxFrames} {
		frames := testutil.MotionBurst(n, 0, n-1, 0.05)
		got := gesture.SelectKeyFramesAdaptive(frames, cfg)

		if len(got) != n {
			t.Fatalf("n=%d: expected %d indices, got %d", n, n, len(got))
		}
		for i, idx := range got {
			if idx != i {
				t.Errorf("n=%d: index %d = %d, want %d", n, i, idx, i)
			}
		}
	}
}

func TestSelectKeyFramesAdaptive_Empty(t *testing.T) {
	got := gesture.SelectKeyFramesAdaptive(nil, gesture.DefaultSelectionConfig())
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", got)
	}
}

func TestSelectKeyFramesAdaptive_Bounds(t *testing.T) {
	buffers := map[string][]gesture.HandFrame{
		"burst":    testutil.MotionBurst(40, 10, 30, 0.04),
		"static":   testutil.StaticFrames(33),
		"unposed":  testutil.UnposedFrames(25),
		"whole":    testutil.MotionBurst(60, 0, 59, 0.03),
		"twitchy":  testutil.MotionBurst(17, 3, 5, 0.2),
		"one-move": testutil.MotionBurst(30, 15, 15, 0.1),
	}

	configs := []gesture.SelectionConfig{
		gesture.DefaultSelectionConfig(),
		{MaxFrames: 1, MotionThreshold: 0.02, SimilarityThreshold: 0.01, IncludeEndpoints: true, UseAdaptiveSelection: true},
		{MaxFrames: 2, MotionThreshold: 0.02, SimilarityThreshold: 0.01, IncludeEndpoints: true, UseAdaptiveSelection: true},
		{MaxFrames: 8, MotionThreshold: 0, SimilarityThreshold: 0, IncludeEndpoints: false, UseAdaptiveSelection: true},
		{MaxFrames: 20, MotionThreshold: 0.5, SimilarityThreshold: 1, IncludeEndpoints: true, UseAdaptiveSelection: true},
		{MaxFrames: 5, UseAdaptiveSelection: false},
		{MaxFrames: 0, UseAdaptiveSelection: true},
	}

	for name, frames := range buffers {
		for _, cfg := range configs {
			got := gesture.SelectKeyFramesAdaptive(frames, cfg)

			limit := cfg.MaxFrames
			if limit < 1 {
				limit = 1
			}
			if len(got) > limit {
				t.Errorf("%s %+v: %d indices exceed max %d", name, cfg, len(got), limit)
			}
			if !sort.IntsAreSorted(got) {
				t.Errorf("%s %+v: indices not sorted: %v", name, cfg, got)
			}
			seen := make(map[int]bool)
			for _, idx := range got {
				if idx < 0 || idx >= len(frames) {
					t.Errorf("%s %+v: index %d out of range", name, cfg, idx)
				}
				if seen[idx] {
					t.Errorf("%s %+v: duplicate index %d", name, cfg, idx)
				}
				seen[idx] = true
			}
		}
	}
}

func TestSelectKeyFramesAdaptive_Endpoints(t *testing.T) {
	cfg := gesture.DefaultSelectionConfig()
	cfg.MaxFrames = 6

	buffers := [][]gesture.HandFrame{
		testutil.MotionBurst(30, 5, 20, 0.05),
		testutil.StaticFrames(30),
		testutil.UnposedFrames(30),
	}

	for i, frames := range buffers {
		got := gesture.SelectKeyFramesAdaptive(frames, cfg)
		if got[0] != 0 {
			t.Errorf("buffer %d: first index = %d, want 0", i, got[0])
		}
		if got[len(got)-1] != len(frames)-1 {
			t.Errorf("buffer %d: last index = %d, want %d", i, got[len(got)-1], len(frames)-1)
		}
	}
}

func TestSelectKeyFramesAdaptive_FillsToMax(t *testing.T) {
	cfg := gesture.DefaultSelectionConfig()
	cfg.MaxFrames = 8

	got := gesture.SelectKeyFramesAdaptive(testutil.StaticFrames(30), cfg)
	if len(got) != 8 {
		t.Errorf("expected static buffer to be filled to 8, got %v", got)
	}
}

func TestSelectKeyFramesAdaptive_FallbackDeterminism(t *testing.T) {
	cfg := gesture.DefaultSelectionConfig()
	cfg.UseAdaptiveSelection = false
	cfg.MaxFrames = 7

	frames := testutil.MotionBurst(50, 10, 40, 0.05)
	want := gesture.SelectUniform(len(frames), cfg.MaxFrames)

	for i := 0; i < 3; i++ {
		got := gesture.SelectKeyFramesAdaptive(frames, cfg)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("run %d: got %v, want %v", i, got, want)
		}
	}
}

func TestSelectKeyFramesAdaptive_NoLandmarksFallsBack(t *testing.T) {
	cfg := gesture.DefaultSelectionConfig()
	frames := testutil.UnposedFrames(40)

	got := gesture.SelectKeyFramesAdaptive(frames, cfg)
	want := gesture.SelectUniform(40, cfg.MaxFrames)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want uniform %v", got, want)
	}
}

func TestSelectKeyFramesAdaptive_MotionConcentrated(t *testing.T) {
	cfg := gesture.DefaultSelectionConfig()
	cfg.MaxFrames = 8

	frames := testutil.MotionBurst(20, 6, 14, 0.05)
	got := gesture.SelectKeyFramesAdaptive(frames, cfg)

	if len(got) != 8 {
		t.Fatalf("expected 8 indices, got %v", got)
	}
	if got[0] != 0 || got[len(got)-1] != 19 {
		t.Errorf("expected endpoints 0 and 19, got %v", got)
	}

	inside := 0
	for _, idx := range got {
		if idx >= 6 && idx <= 14 {
			inside++
		}
	}
	if inside*2 <= len(got) {
		t.Errorf("expected a majority of indices in [6,14], got %d of %v", inside, got)
	}
}

func TestSelectKeyFramesAdaptive_SuppressesDuplicates(t *testing.T) {
	// Frames alternate between two poses, so every frame after the first is
	// a key moment but only two distinct poses exist.
	a := detector.HandshapeA()
	b := detector.HandshapeB().Translate(0.3, 0, 0)

	frames := make([]gesture.HandFrame, 30)
	for i := range frames {
		hand := a
		if i%2 == 1 {
			hand = b
		}
		frames[i] = testutil.Frame(int64(i*testutil.FrameIntervalMs), hand)
	}

	cfg := gesture.DefaultSelectionConfig()
	cfg.MaxFrames = 10
	cfg.IncludeEndpoints = false

	t.Run("without similarity filter", func(t *testing.T) {
		c := cfg
		c.SimilarityThreshold = 0
		got := gesture.SelectKeyFramesAdaptive(frames, c)
		want := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("with similarity filter", func(t *testing.T) {
		c := cfg
		c.SimilarityThreshold = 0.05
		got := gesture.SelectKeyFramesAdaptive(frames, c)
		// Frames 1 and 2 are accepted as key moments, the rest are
		// repeats of them and the slots are filled at an even stride.
		want := []int{1, 2, 3, 7, 10, 14, 17, 21, 24, 28}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
}

func TestSelectUniform(t *testing.T) {
	tests := []struct {
		name   string
		n, max int
		want   []int
	}{
		{"fits", 4, 8, []int{0, 1, 2, 3}},
		{"single", 10, 1, []int{0}},
		{"two", 10, 2, []int{0, 9}},
		{"stride", 10, 4, []int{0, 3, 6, 9}},
		{"zero frames", 0, 4, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gesture.SelectUniform(tt.n, tt.max); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SelectUniform(%d, %d) = %v, want %v", tt.n, tt.max, got, tt.want)
			}
		})
	}
}

func TestGetSelectedFrames(t *testing.T) {
	frames := testutil.UnposedFrames(5)

	got := gesture.GetSelectedFrames(frames, []int{-1, 0, 2, 4, 5, 99})
	if len(got) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(got))
	}
	for i, want := range []int64{0, 200, 400} {
		if got[i].Timestamp != want {
			t.Errorf("frame %d timestamp = %d, want %d", i, got[i].Timestamp, want)
		}
	}
}

func TestPresetConfig(t *testing.T) {
	tests := []struct {
		preset gesture.Preset
		max    int
	}{
		{gesture.PresetFast, 8},
		{gesture.PresetBalanced, 12},
		{gesture.PresetAccurate, 20},
		{"", 12},
	}

	for _, tt := range tests {
		cfg, err := gesture.PresetConfig(tt.preset)
		if err != nil {
			t.Fatalf("PresetConfig(%q) error = %v", tt.preset, err)
		}
		if cfg.MaxFrames != tt.max {
			t.Errorf("PresetConfig(%q).MaxFrames = %d, want %d", tt.preset, cfg.MaxFrames, tt.max)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("preset %q does not validate: %v", tt.preset, err)
		}
	}

	if _, err := gesture.PresetConfig("turbo"); !errors.Is(err, gesture.ErrUnknownPreset) {
		t.Errorf("expected ErrUnknownPreset, got %v", err)
	}
}

func TestSelectionConfig_Validate(t *testing.T) {
	bad := []gesture.SelectionConfig{
		{MaxFrames: 0},
		{MaxFrames: 4, MotionThreshold: -1},
		{MaxFrames: 4, SimilarityThreshold: -0.1},
	}
	for _, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected %+v to be invalid", cfg)
		}
	}
}
