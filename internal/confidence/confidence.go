// Package confidence estimates how far a sign translation can be trusted by
// fusing the model's response text with the quality of the captured frames
// and the timing of the sign.
package confidence

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/healthbridge/healthbridge/internal/gesture"
)

// Level is the categorical confidence band.
type Level string

const (
	LevelHigh    Level = "high"
	LevelMedium  Level = "medium"
	LevelLow     Level = "low"
	LevelVeryLow Level = "very-low"
)

// Factors is the per-signal breakdown, each in [0, 100].
type Factors struct {
	ResponseAnalysis int `json:"responseAnalysis"`
	HandVisibility   int `json:"handVisibility"`
	SignDuration     int `json:"signDuration"`
	FrameQuality     int `json:"frameQuality"`
	MotionClarity    int `json:"motionClarity"`
}

// Result is the outcome of scoring one translation.
type Result struct {
	Score        int      `json:"score"`
	Level        Level    `json:"level"`
	Factors      Factors  `json:"factors"`
	Alternatives []string `json:"alternatives"`
	Explanation  string   `json:"explanation"`
}

// HighExplanation is used whenever the level is high.
const HighExplanation = "High confidence: the hands were clearly visible and the translation is direct."

// alternativeSep matches the first " or " without lowercasing the text, so
// byte offsets stay valid for the original string.
var alternativeSep = regexp.MustCompile(`(?i) or `)

var factorExplanations = [...]string{
	"the model's response was uncertain",
	"the hands were not consistently visible",
	"the sign was unusually short or long",
	"too few clear frames were captured",
	"the hand motion was unclear",
}

// Calculate scores translation against the full frame buffer of the sign
// and its measured duration. It is pure and deterministic.
func Calculate(translation string, frames []gesture.HandFrame, signDurationMs int64, cfg Config) Result {
	text := analyzeResponse(translation, cfg.Response)

	raw := [5]float64{
		text.score,
		handVisibility(frames, cfg.Visibility),
		durationScore(signDurationMs, cfg.Duration),
		frameQuality(frames, cfg.FrameQuality),
		motionClarity(frames, cfg.Motion),
	}
	for i := range raw {
		raw[i] = clamp(raw[i])
	}

	w := cfg.Weights.normalized()
	weighted := raw[0]*w.ResponseAnalysis +
		raw[1]*w.HandVisibility +
		raw[2]*w.SignDuration +
		raw[3]*w.FrameQuality +
		raw[4]*w.MotionClarity

	score := int(math.Round(clamp(weighted)))
	if text.cap >= 0 && score > text.cap {
		score = text.cap
	}

	factors := Factors{
		ResponseAnalysis: int(math.Round(raw[0])),
		HandVisibility:   int(math.Round(raw[1])),
		SignDuration:     int(math.Round(raw[2])),
		FrameQuality:     int(math.Round(raw[3])),
		MotionClarity:    int(math.Round(raw[4])),
	}

	level := LevelFor(score, cfg.Levels)

	alternatives := text.alternatives
	if alternatives == nil {
		alternatives = []string{}
	}

	return Result{
		Score:        score,
		Level:        level,
		Factors:      factors,
		Alternatives: alternatives,
		Explanation:  explain(level, raw),
	}
}

// LevelFor maps a score to its level. Each bound is inclusive.
func LevelFor(score int, l LevelConfig) Level {
	switch {
	case score >= l.High:
		return LevelHigh
	case score >= l.Medium:
		return LevelMedium
	case score >= l.Low:
		return LevelLow
	default:
		return LevelVeryLow
	}
}

func explain(level Level, raw [5]float64) string {
	if level == LevelHigh {
		return HighExplanation
	}

	lowest := 0
	for i := 1; i < len(raw); i++ {
		if raw[i] < raw[lowest] {
			lowest = i
		}
	}

	var prefix string
	switch level {
	case LevelMedium:
		prefix = "Medium confidence"
	case LevelLow:
		prefix = "Low confidence"
	default:
		prefix = "Very low confidence"
	}
	return fmt.Sprintf("%s: %s.", prefix, factorExplanations[lowest])
}

type responseAnalysis struct {
	score        float64
	cap          int // -1 when uncapped
	alternatives []string
}

func analyzeResponse(translation string, cfg ResponseConfig) responseAnalysis {
	text := strings.TrimSpace(translation)
	lower := strings.ToLower(text)

	if text == "" || strings.Contains(lower, strings.ToLower(cfg.ErrorSentinel)) {
		return responseAnalysis{score: 0, cap: cfg.ErrorCap}
	}
	if strings.Contains(lower, strings.ToLower(cfg.UnclearSentinel)) {
		return responseAnalysis{score: 0, cap: cfg.UnclearCap}
	}

	result := responseAnalysis{score: cfg.Baseline, cap: -1}

	hedges := 0
	for _, phrase := range cfg.HedgePhrases {
		if phrase == "" {
			continue
		}
		hedges += strings.Count(lower, strings.ToLower(phrase))
	}
	result.score -= float64(hedges) * cfg.HedgePenalty

	if strings.Contains(text, "?") {
		result.score -= cfg.QuestionPenalty
	}

	if loc := alternativeSep.FindStringIndex(text); loc != nil {
		result.score -= cfg.AlternativePenalty
		result.alternatives = alternativesOf(text[:loc[0]], text[loc[1]:])
	}

	words := len(strings.Fields(text))
	if words <= cfg.ShortMaxWords && hedges == 0 {
		result.score += cfg.ShortBonus
	}
	if words > cfg.LongMinWords {
		result.score -= cfg.LongPenalty
	}

	result.score = clamp(result.score)
	return result
}

func alternativesOf(parts ...string) []string {
	var out []string
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `.,!?;:"'`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func handVisibility(frames []gesture.HandFrame, cfg VisibilityConfig) float64 {
	if len(frames) == 0 {
		return 0
	}

	detected := 0
	var confidenceSum float64
	for i := range frames {
		if !frames[i].HasLandmarks() {
			continue
		}
		detected++
		var frameConf float64
		for _, h := range frames[i].Landmarks {
			if cfg.UseTrackerScore && h.Score > 0 {
				frameConf += h.Score
			} else {
				frameConf += cfg.AssumedHandConfidence
			}
		}
		confidenceSum += frameConf / float64(len(frames[i].Landmarks))
	}

	fraction := float64(detected) / float64(len(frames))
	var meanConf float64
	if detected > 0 {
		meanConf = confidenceSum / float64(detected)
	}
	return 100 * (cfg.DetectionWeight*fraction + cfg.ConfidenceWeight*meanConf)
}

func durationScore(ms int64, cfg DurationConfig) float64 {
	switch {
	case ms >= cfg.IdealMinMs && ms <= cfg.IdealMaxMs:
		return cfg.IdealScore
	case ms < cfg.TooShortMs:
		return cfg.VeryShortScore
	case ms < cfg.IdealMinMs:
		return cfg.ShortScore
	case ms <= cfg.TooLongMs:
		return cfg.LongScore
	default:
		return cfg.VeryLongScore
	}
}

func frameQuality(frames []gesture.HandFrame, cfg FrameQualityConfig) float64 {
	n := len(frames)
	if float64(n) < float64(cfg.MinFrames)/2 {
		return cfg.VeryFewScore
	}
	if n < cfg.MinFrames {
		return cfg.FewScore
	}

	valid := 0
	for i := range frames {
		if len(frames[i].ImageData) > cfg.MinImageBytes {
			valid++
		}
	}

	bonus := math.Min(1+cfg.BonusPerFrame*float64(n-cfg.MinFrames), cfg.MaxBonus)
	return cfg.BaseScore * float64(valid) / float64(n) * bonus
}

func motionClarity(frames []gesture.HandFrame, cfg MotionConfig) float64 {
	profile := gesture.ComputeMotionProfile(frames)
	if profile.MaxVelocity() <= cfg.Epsilon {
		return cfg.StaticScore
	}

	mean := profile.MeanVelocity()
	switch {
	case mean > cfg.High:
		return cfg.HighScore
	case mean >= cfg.IdealMin && mean <= cfg.IdealMax:
		return cfg.IdealScore
	case mean < cfg.IdealMin:
		return cfg.LowScore
	default:
		return cfg.ElevatedScore
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}
