package hook

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/healthbridge/healthbridge/internal/translate"
)

// Run is the outcome of one hook execution.
type Run struct {
	Hook    string
	Event   Event
	Success bool
	Message string
}

// Dispatcher fans translation results out to subscribed hooks.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	// LowConfidenceScore is the score below which EventLowConfidence fires.
	LowConfidenceScore int
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(m *Manager, e *Executor, lowConfidenceScore int) *Dispatcher {
	return &Dispatcher{manager: m, executor: e, LowConfidenceScore: lowConfidenceScore}
}

// Events returns the events a result triggers.
func (d *Dispatcher) Events(r translate.Result) []Event {
	events := []Event{EventTranslation}
	if r.Failed() || r.Confidence.Score < d.LowConfidenceScore {
		events = append(events, EventLowConfidence)
	}
	return events
}

// Dispatch runs every hook subscribed to the events r triggers, in order.
// Failures are reported in the returned runs and never abort the fan-out.
func (d *Dispatcher) Dispatch(ctx context.Context, r translate.Result) []Run {
	var runs []Run
	for _, ev := range d.Events(r) {
		for _, h := range d.manager.ForEvent(ev) {
			run := Run{Hook: h.Manifest.Name, Event: ev}

			resp, err := d.executor.Execute(ctx, h, &Request{Event: ev, Translation: r})
			switch {
			case err != nil:
				run.Message = err.Error()
			case !resp.Success:
				run.Message = resp.Error
			default:
				run.Success = true
				run.Message = resp.Message
			}

			if !run.Success {
				log.Warn().
					Str("hook", run.Hook).
					Str("event", string(ev)).
					Str("error", run.Message).
					Msg("Hook failed")
			}
			runs = append(runs, run)
		}
	}
	return runs
}
