package confidence

import (
	"errors"
	"fmt"
	"math"
)

// Weights are the factor weights of the overall score. They are expected
// to sum to 1; other positive sums are renormalised.
type Weights struct {
	ResponseAnalysis float64 `mapstructure:"response_analysis" json:"responseAnalysis"`
	HandVisibility   float64 `mapstructure:"hand_visibility" json:"handVisibility"`
	SignDuration     float64 `mapstructure:"sign_duration" json:"signDuration"`
	FrameQuality     float64 `mapstructure:"frame_quality" json:"frameQuality"`
	MotionClarity    float64 `mapstructure:"motion_clarity" json:"motionClarity"`
}

func (w Weights) sum() float64 {
	return w.ResponseAnalysis + w.HandVisibility + w.SignDuration + w.FrameQuality + w.MotionClarity
}

func (w Weights) normalized() Weights {
	s := w.sum()
	if s <= 0 || math.IsNaN(s) || w.anyNegative() {
		return DefaultConfig().Weights
	}
	if math.Abs(s-1) < 1e-9 {
		return w
	}
	return Weights{
		ResponseAnalysis: w.ResponseAnalysis / s,
		HandVisibility:   w.HandVisibility / s,
		SignDuration:     w.SignDuration / s,
		FrameQuality:     w.FrameQuality / s,
		MotionClarity:    w.MotionClarity / s,
	}
}

func (w Weights) anyNegative() bool {
	return w.ResponseAnalysis < 0 || w.HandVisibility < 0 || w.SignDuration < 0 ||
		w.FrameQuality < 0 || w.MotionClarity < 0
}

// ResponseConfig tunes the analysis of the model's response text.
type ResponseConfig struct {
	Baseline           float64  `mapstructure:"baseline"`
	UnclearSentinel    string   `mapstructure:"unclear_sentinel"`
	ErrorSentinel      string   `mapstructure:"error_sentinel"`
	UnclearCap         int      `mapstructure:"unclear_cap"`
	ErrorCap           int      `mapstructure:"error_cap"`
	HedgePhrases       []string `mapstructure:"hedge_phrases"`
	HedgePenalty       float64  `mapstructure:"hedge_penalty"`
	QuestionPenalty    float64  `mapstructure:"question_penalty"`
	AlternativePenalty float64  `mapstructure:"alternative_penalty"`
	ShortMaxWords      int      `mapstructure:"short_max_words"`
	ShortBonus         float64  `mapstructure:"short_bonus"`
	LongMinWords       int      `mapstructure:"long_min_words"`
	LongPenalty        float64  `mapstructure:"long_penalty"`
}

// VisibilityConfig blends detection rate with per-hand detection confidence.
// Every detected hand counts as AssumedHandConfidence unless UseTrackerScore
// is set and the tracker reported a score for it.
type VisibilityConfig struct {
	DetectionWeight       float64 `mapstructure:"detection_weight"`
	ConfidenceWeight      float64 `mapstructure:"confidence_weight"`
	AssumedHandConfidence float64 `mapstructure:"assumed_hand_confidence"`
	UseTrackerScore       bool    `mapstructure:"use_tracker_score"`
}

// DurationConfig is the banded duration plausibility step function.
// [IdealMinMs, IdealMaxMs] scores IdealScore; below TooShortMs scores
// VeryShortScore, below IdealMinMs ShortScore; up to TooLongMs scores
// LongScore and beyond it VeryLongScore.
type DurationConfig struct {
	IdealMinMs     int64   `mapstructure:"ideal_min_ms"`
	IdealMaxMs     int64   `mapstructure:"ideal_max_ms"`
	TooShortMs     int64   `mapstructure:"too_short_ms"`
	TooLongMs      int64   `mapstructure:"too_long_ms"`
	IdealScore     float64 `mapstructure:"ideal_score"`
	ShortScore     float64 `mapstructure:"short_score"`
	VeryShortScore float64 `mapstructure:"very_short_score"`
	LongScore      float64 `mapstructure:"long_score"`
	VeryLongScore  float64 `mapstructure:"very_long_score"`
}

// FrameQualityConfig scores the size and integrity of the frame buffer.
type FrameQualityConfig struct {
	MinFrames     int     `mapstructure:"min_frames"`
	VeryFewScore  float64 `mapstructure:"very_few_score"`
	FewScore      float64 `mapstructure:"few_score"`
	BaseScore     float64 `mapstructure:"base_score"`
	MinImageBytes int     `mapstructure:"min_image_bytes"`
	BonusPerFrame float64 `mapstructure:"bonus_per_frame"`
	MaxBonus      float64 `mapstructure:"max_bonus"`
}

// MotionConfig bands the mean wrist velocity of the buffer.
type MotionConfig struct {
	Epsilon       float64 `mapstructure:"epsilon"`
	StaticScore   float64 `mapstructure:"static_score"`
	IdealMin      float64 `mapstructure:"ideal_min"`
	IdealMax      float64 `mapstructure:"ideal_max"`
	High          float64 `mapstructure:"high"`
	IdealScore    float64 `mapstructure:"ideal_score"`
	LowScore      float64 `mapstructure:"low_score"`
	ElevatedScore float64 `mapstructure:"elevated_score"`
	HighScore     float64 `mapstructure:"high_score"`
}

// LevelConfig holds the lower bound of each level.
type LevelConfig struct {
	High   int `mapstructure:"high"`
	Medium int `mapstructure:"medium"`
	Low    int `mapstructure:"low"`
}

// Config is the full scorer configuration.
type Config struct {
	Weights      Weights            `mapstructure:"weights"`
	Response     ResponseConfig     `mapstructure:"response"`
	Visibility   VisibilityConfig   `mapstructure:"visibility"`
	Duration     DurationConfig     `mapstructure:"duration"`
	FrameQuality FrameQualityConfig `mapstructure:"frame_quality"`
	Motion       MotionConfig       `mapstructure:"motion"`
	Levels       LevelConfig        `mapstructure:"levels"`
}

// DefaultHedgePhrases lists the phrases treated as hedging language.
var DefaultHedgePhrases = []string{
	"might be",
	"possibly",
	"not sure",
	"unclear",
	"perhaps",
	"maybe",
	"could be",
	"appears to be",
	"seems like",
	"difficult to",
}

// DefaultConfig returns the default scorer configuration.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			ResponseAnalysis: 0.40,
			HandVisibility:   0.20,
			SignDuration:     0.15,
			FrameQuality:     0.10,
			MotionClarity:    0.15,
		},
		Response: ResponseConfig{
			Baseline:           85,
			UnclearSentinel:    "[unclear]",
			ErrorSentinel:      "[error]",
			UnclearCap:         30,
			ErrorCap:           0,
			HedgePhrases:       append([]string(nil), DefaultHedgePhrases...),
			HedgePenalty:       15,
			QuestionPenalty:    20,
			AlternativePenalty: 10,
			ShortMaxWords:      3,
			ShortBonus:         10,
			LongMinWords:       10,
			LongPenalty:        25,
		},
		Visibility: VisibilityConfig{
			DetectionWeight:       0.7,
			ConfidenceWeight:      0.3,
			AssumedHandConfidence: 0.9,
		},
		Duration: DurationConfig{
			IdealMinMs:     800,
			IdealMaxMs:     3000,
			TooShortMs:     400,
			TooLongMs:      6000,
			IdealScore:     100,
			ShortScore:     60,
			VeryShortScore: 20,
			LongScore:      70,
			VeryLongScore:  40,
		},
		FrameQuality: FrameQualityConfig{
			MinFrames:     5,
			VeryFewScore:  15,
			FewScore:      50,
			BaseScore:     85,
			MinImageBytes: 1000,
			BonusPerFrame: 0.02,
			MaxBonus:      1.2,
		},
		Motion: MotionConfig{
			Epsilon:       0.002,
			StaticScore:   20,
			IdealMin:      0.01,
			IdealMax:      0.08,
			High:          0.15,
			IdealScore:    100,
			LowScore:      60,
			ElevatedScore: 75,
			HighScore:     40,
		},
		Levels: LevelConfig{
			High:   80,
			Medium: 60,
			Low:    40,
		},
	}
}

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid confidence config")

// Validate reports malformed configurations. Calculate tolerates them, but
// configuration loading should reject them.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.Weights.anyNegative() {
		return invalid("weights must be non-negative")
	}
	if s := c.Weights.sum(); math.Abs(s-1) > 1e-6 {
		return invalid("weights must sum to 1, got %.4f", s)
	}
	if c.Response.UnclearSentinel == "" || c.Response.ErrorSentinel == "" {
		return invalid("sentinel strings must not be empty")
	}
	d := c.Duration
	if !(d.TooShortMs <= d.IdealMinMs && d.IdealMinMs <= d.IdealMaxMs && d.IdealMaxMs <= d.TooLongMs) {
		return invalid("duration bands must be ordered, got %d/%d/%d/%d",
			d.TooShortMs, d.IdealMinMs, d.IdealMaxMs, d.TooLongMs)
	}
	if c.FrameQuality.MinFrames < 1 {
		return invalid("min frames for quality must be at least 1")
	}
	m := c.Motion
	if !(m.Epsilon >= 0 && m.IdealMin <= m.IdealMax && m.IdealMax <= m.High) {
		return invalid("motion bands must be ordered")
	}
	l := c.Levels
	if !(l.Low <= l.Medium && l.Medium <= l.High) {
		return invalid("level thresholds must be ordered, got %d/%d/%d", l.Low, l.Medium, l.High)
	}
	return nil
}
