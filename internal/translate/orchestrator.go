package translate

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/healthbridge/healthbridge/internal/gesture"
	"github.com/healthbridge/healthbridge/internal/segment"
)

// Policy decides what happens to a sign that completes while another is
// being translated.
type Policy string

const (
	// PolicyQueue keeps the newest waiting sign and runs it next.
	PolicyQueue Policy = "queue"
	// PolicyDrop rejects signs that arrive while busy.
	PolicyDrop Policy = "drop"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyQueue, PolicyDrop:
		return Policy(s), nil
	case "":
		return PolicyQueue, nil
	default:
		return "", fmt.Errorf("unknown overlap policy %q", s)
	}
}

// Orchestrator runs at most one translation at a time.
type Orchestrator struct {
	pipeline  *Pipeline
	policy    Policy
	selection func() gesture.SelectionConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// deliverMu is held while a result is checked against stopped and
	// handed to onResult. Stop takes it before marking the orchestrator
	// stopped.
	deliverMu sync.Mutex

	mu       sync.Mutex
	busy     bool
	pending  *segment.Event
	stopped  bool
	onResult func(Result)
	onDrop   func(segment.Event)
}

// NewOrchestrator creates an orchestrator. selection may be nil, in which
// case the pipeline's own selection config is used for every sign.
func NewOrchestrator(p *Pipeline, policy Policy, selection func() gesture.SelectionConfig) *Orchestrator {
	if policy == "" {
		policy = PolicyQueue
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		pipeline:  p,
		policy:    policy,
		selection: selection,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// OnResult registers the result consumer. It is called from the worker
// goroutine while the pipeline slot is held and must not call Stop.
func (o *Orchestrator) OnResult(fn func(Result)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onResult = fn
}

// OnDrop registers a callback for signs that were rejected or superseded.
func (o *Orchestrator) OnDrop(fn func(segment.Event)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onDrop = fn
}

// Busy reports whether a translation is in flight.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

// Submit hands a completed sign to the orchestrator. It reports whether the
// sign was accepted for translation, either immediately or as pending.
func (o *Orchestrator) Submit(ev segment.Event) bool {
	o.mu.Lock()

	if o.stopped {
		o.mu.Unlock()
		return false
	}

	if !o.busy {
		o.busy = true
		o.wg.Add(1)
		o.mu.Unlock()
		go o.run(ev)
		return true
	}

	var dropped *segment.Event
	accepted := false
	switch o.policy {
	case PolicyDrop:
		dropped = &ev
	default:
		dropped = o.pending
		o.pending = &ev
		accepted = true
	}
	onDrop := o.onDrop
	o.mu.Unlock()

	if dropped != nil {
		log.Debug().
			Int("frames", len(dropped.Frames)).
			Str("policy", string(o.policy)).
			Msg("Sign dropped while translation in flight")
		if onDrop != nil {
			onDrop(*dropped)
		}
	}
	return accepted
}

// Stop cancels any in-flight translation, discards its result and any
// pending sign, and refuses further submissions. It waits for the worker.
func (o *Orchestrator) Stop() {
	o.deliverMu.Lock()
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		o.deliverMu.Unlock()
		return
	}
	o.stopped = true
	o.pending = nil
	o.mu.Unlock()
	o.deliverMu.Unlock()

	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) run(ev segment.Event) {
	defer o.wg.Done()

	for {
		release, err := o.pipeline.Acquire(o.ctx)
		if err != nil {
			o.idle()
			return
		}

		sel := o.pipeline.Selection
		if o.selection != nil {
			sel = o.selection()
		}

		result := o.pipeline.ProcessWith(o.ctx, ev.Frames, ev.DurationMs, sel)
		delivered := o.deliver(result)
		release()
		if !delivered {
			o.idle()
			return
		}

		o.mu.Lock()
		if o.pending == nil || o.stopped {
			o.busy = false
			o.pending = nil
			o.mu.Unlock()
			return
		}
		ev = *o.pending
		o.pending = nil
		o.mu.Unlock()
	}
}

// deliver hands r to the result consumer unless the orchestrator has been
// stopped. It reports whether r was delivered.
func (o *Orchestrator) deliver(r Result) bool {
	o.deliverMu.Lock()
	defer o.deliverMu.Unlock()

	o.mu.Lock()
	stopped, onResult := o.stopped, o.onResult
	o.mu.Unlock()

	if stopped {
		log.Debug().Str("id", r.ID).Msg("Discarding translation after stop")
		return false
	}
	if onResult != nil {
		onResult(r)
	}
	return true
}

func (o *Orchestrator) idle() {
	o.mu.Lock()
	o.busy = false
	o.pending = nil
	o.mu.Unlock()
}
