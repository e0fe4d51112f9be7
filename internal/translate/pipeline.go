package translate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/healthbridge/healthbridge/internal/confidence"
	"github.com/healthbridge/healthbridge/internal/gesture"
)

// Result is the outcome of one translation round trip.
type Result struct {
	ID              string            `json:"id"`
	Translation     string            `json:"translation"`
	LatencyMs       int64             `json:"latencyMs"`
	Confidence      confidence.Result `json:"confidence"`
	SelectedIndices []int             `json:"selectedIndices"`
	FrameCount      int               `json:"frameCount"`
	SignDurationMs  int64             `json:"signDurationMs"`
	Error           string            `json:"error,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// Failed reports whether the translator call failed.
func (r Result) Failed() bool {
	return r.Error != ""
}

// Pipeline selects key frames, translates them and scores the answer.
type Pipeline struct {
	Translator Translator
	Selection  gesture.SelectionConfig
	Confidence confidence.Config
	// Timeout bounds each translator call. Zero means no limit.
	Timeout time.Duration
	// Now is the clock used for CreatedAt; time.Now when nil.
	Now func() time.Time

	slotOnce sync.Once
	slot     chan struct{}
}

// NewPipeline returns a pipeline with default selection and scoring.
func NewPipeline(t Translator, timeout time.Duration) *Pipeline {
	return &Pipeline{
		Translator: t,
		Selection:  gesture.DefaultSelectionConfig(),
		Confidence: confidence.DefaultConfig(),
		Timeout:    timeout,
	}
}

// Acquire reserves the pipeline's single translation slot. Every caller that
// shares the pipeline holds it from the translator call until its result has
// been delivered, so at most one translation is in flight. It blocks until
// the slot is free or ctx is done.
func (p *Pipeline) Acquire(ctx context.Context) (release func(), err error) {
	p.slotOnce.Do(func() { p.slot = make(chan struct{}, 1) })

	select {
	case p.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() { once.Do(func() { <-p.slot }) }, nil
}

// Process runs the pipeline with the pipeline's own selection config.
func (p *Pipeline) Process(ctx context.Context, frames []gesture.HandFrame, signDurationMs int64) Result {
	return p.ProcessWith(ctx, frames, signDurationMs, p.Selection)
}

// ProcessWith runs the pipeline with an explicit selection config. Translator
// failures never escape as errors: the result carries the error sentinel and
// is scored like any other answer.
func (p *Pipeline) ProcessWith(ctx context.Context, frames []gesture.HandFrame, signDurationMs int64, sel gesture.SelectionConfig) Result {
	indices := gesture.SelectKeyFramesAdaptive(frames, sel)
	selected := gesture.GetSelectedFrames(frames, indices)

	result := Result{
		ID:              uuid.New().String(),
		SelectedIndices: indices,
		FrameCount:      len(frames),
		SignDurationMs:  signDurationMs,
		CreatedAt:       p.now(),
	}

	translation, err := p.translate(ctx, selected)
	if err != nil {
		log.Warn().
			Err(err).
			Int("frames", len(frames)).
			Int("selected", len(selected)).
			Msg("Sign translation failed")
		result.Translation = ErrorText
		result.Error = err.Error()
	} else {
		result.Translation = translation.Text
		result.LatencyMs = translation.LatencyMs
	}

	result.Confidence = confidence.Calculate(result.Translation, frames, signDurationMs, p.Confidence)
	return result
}

func (p *Pipeline) translate(ctx context.Context, frames []gesture.HandFrame) (Translation, error) {
	if len(frames) == 0 {
		return Translation{}, ErrNoFrames
	}
	if p.Translator == nil {
		return Translation{}, errors.New("no translator configured")
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	start := time.Now()
	t, err := p.Translator.Translate(ctx, frames)
	if err != nil {
		return Translation{}, err
	}
	if t.Text == "" {
		return Translation{}, ErrEmptyResponse
	}
	if t.LatencyMs == 0 {
		t.LatencyMs = time.Since(start).Milliseconds()
	}
	return t, nil
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
