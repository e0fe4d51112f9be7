package translate

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/healthbridge/healthbridge/internal/gesture"
)

// StubTranslator returns a fixed answer. It is used when no model is
// configured and in tests.
type StubTranslator struct {
	// Text is returned for every call. Empty yields ErrEmptyResponse.
	Text string
	// Delay simulates model latency and honours context cancellation.
	Delay time.Duration
	// Err, when set, is returned instead of a translation.
	Err error

	calls atomic.Int64
}

// NewStubTranslator returns a stub answering text.
func NewStubTranslator(text string) *StubTranslator {
	return &StubTranslator{Text: text}
}

// Translate implements Translator.
func (s *StubTranslator) Translate(ctx context.Context, frames []gesture.HandFrame) (Translation, error) {
	s.calls.Add(1)
	start := time.Now()

	if len(frames) == 0 {
		return Translation{}, ErrNoFrames
	}

	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Translation{}, ctx.Err()
		case <-timer.C:
		}
	}

	if s.Err != nil {
		return Translation{}, s.Err
	}
	if s.Text == "" {
		return Translation{}, ErrEmptyResponse
	}
	return Translation{Text: s.Text, LatencyMs: time.Since(start).Milliseconds()}, nil
}

// Calls returns how many times Translate was invoked.
func (s *StubTranslator) Calls() int64 {
	return s.calls.Load()
}
