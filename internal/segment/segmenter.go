package segment

import (
	"fmt"
	"sync"

	"github.com/healthbridge/healthbridge/internal/detector"
	"github.com/healthbridge/healthbridge/internal/gesture"
)

// Segmenter is the sign segmentation state machine. Update is meant to be
// driven by a single frame loop; the accessors are safe for concurrent use.
type Segmenter struct {
	cfg Config

	mu             sync.Mutex
	state          State
	handsPresent   bool
	buffer         []gesture.HandFrame
	firstDetection int64
	lastDetection  int64
	lastCapture    int64
	deadline       int64
	err            error
	onComplete     func(Event)
	onDiscard      func(Discard)

	subMu   sync.Mutex
	subs    map[int]chan Status
	nextSub int
}

// New creates a Segmenter in the idle state.
func New(cfg Config) *Segmenter {
	return &Segmenter{
		cfg:   cfg,
		state: Idle,
		subs:  make(map[int]chan Status),
	}
}

// Config returns the thresholds the segmenter was built with.
func (s *Segmenter) Config() Config {
	return s.cfg
}

// OnComplete registers the callback for accepted signs. It is invoked from
// Update, after the segmenter has released its reference to the buffer.
func (s *Segmenter) OnComplete(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComplete = fn
}

// OnDiscard registers a callback for buffers rejected as noise.
func (s *Segmenter) OnDiscard(fn func(Discard)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDiscard = fn
}

// State returns the current state.
func (s *Segmenter) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HandsPresent returns the presence flag of the last observation.
func (s *Segmenter) HandsPresent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handsPresent
}

// Err returns the fault recorded by Fault, if any.
func (s *Segmenter) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Fault marks the presence source as unavailable. Any active buffer is
// dropped and the segmenter stays idle until Reset.
func (s *Segmenter) Fault(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.handsPresent = false
	s.clear()
	status := s.statusLocked(s.lastDetection)
	s.mu.Unlock()

	s.publish(status)
}

// Reset clears any fault and active buffer.
func (s *Segmenter) Reset() {
	s.mu.Lock()
	s.err = nil
	s.handsPresent = false
	s.clear()
	s.lastCapture = 0
	status := s.statusLocked(s.lastDetection)
	s.mu.Unlock()

	s.publish(status)
}

// CaptureDue reports whether an observation at ts with the given presence
// would be appended to the buffer. Drivers use it to skip image encoding.
func (s *Segmenter) CaptureDue(ts int64, handsPresent bool) bool {
	if !handsPresent {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return false
	}

	switch s.state {
	case Idle:
		return true
	case Completing:
		if ts >= s.deadline {
			return true
		}
	}
	return s.captureAllowed(ts)
}

// Update feeds one observation to the state machine.
func (s *Segmenter) Update(obs Observation) error {
	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	ts := obs.Timestamp
	s.handsPresent = obs.HandsPresent

	var (
		done    *Event
		discard *Discard
	)

	switch s.state {
	case Idle:
		if obs.HandsPresent {
			s.begin(obs)
		}

	case Preparing:
		if !obs.HandsPresent {
			discard = &Discard{
				Reason:     ReasonFlicker,
				Frames:     len(s.buffer),
				DurationMs: s.lastDetection - s.firstDetection,
			}
			s.clear()
			break
		}
		s.lastDetection = ts
		s.capture(obs)
		if ts-s.firstDetection >= s.cfg.PrepareDwellMs {
			s.state = Signing
		}

	case Signing:
		if !obs.HandsPresent {
			s.state = Completing
			s.deadline = s.lastDetection + s.cfg.CompletionDelayMs
			break
		}
		s.lastDetection = ts
		s.capture(obs)

	case Completing:
		if ts < s.deadline {
			if obs.HandsPresent {
				s.state = Signing
				s.lastDetection = ts
				s.capture(obs)
			}
			break
		}
		done, discard = s.resolve(false)
		if obs.HandsPresent {
			s.begin(obs)
		}
	}

	if (s.state == Signing || s.state == Preparing) &&
		s.lastDetection-s.firstDetection >= s.cfg.MaxSignDurationMs {
		done, discard = s.resolve(true)
	}

	status := s.statusLocked(ts)
	onComplete, onDiscard := s.onComplete, s.onDiscard
	s.mu.Unlock()

	if done != nil && onComplete != nil {
		onComplete(*done)
	}
	if discard != nil && onDiscard != nil {
		onDiscard(*discard)
	}
	s.publish(status)
	return nil
}

// Subscribe returns a channel carrying the latest Status after every update
// and a function that cancels the subscription. A subscriber that falls
// behind only misses intermediate values.
func (s *Segmenter) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 1)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			close(ch)
			s.subMu.Unlock()
		})
	}
	return ch, cancel
}

func (s *Segmenter) publish(status Status) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- status:
			continue
		default:
		}
		// Replace the stale value.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- status:
		default:
		}
	}
}

func (s *Segmenter) statusLocked(ts int64) Status {
	return Status{State: s.state, HandsPresent: s.handsPresent, Timestamp: ts}
}

func (s *Segmenter) begin(obs Observation) {
	s.state = Preparing
	s.buffer = make([]gesture.HandFrame, 0, 32)
	s.firstDetection = obs.Timestamp
	s.lastDetection = obs.Timestamp
	s.append(obs)
	if s.cfg.PrepareDwellMs <= 0 {
		s.state = Signing
	}
}

// resolve ends the active sign. Must be called with mu held.
func (s *Segmenter) resolve(forced bool) (*Event, *Discard) {
	duration := s.lastDetection - s.firstDetection
	frames := s.buffer
	started, ended := s.firstDetection, s.lastDetection
	s.clear()

	if duration < s.cfg.MinSignDurationMs {
		return nil, &Discard{Reason: ReasonTooShort, Frames: len(frames), DurationMs: duration}
	}
	return &Event{
		Frames:     frames,
		StartedAt:  started,
		EndedAt:    ended,
		DurationMs: duration,
		Forced:     forced,
	}, nil
}

func (s *Segmenter) clear() {
	s.state = Idle
	s.buffer = nil
	s.deadline = 0
}

func (s *Segmenter) captureAllowed(ts int64) bool {
	if len(s.buffer) >= s.cfg.MaxBufferFrames {
		return false
	}
	return ts-s.lastCapture >= s.cfg.MinCaptureIntervalMs
}

func (s *Segmenter) capture(obs Observation) {
	if s.captureAllowed(obs.Timestamp) {
		s.append(obs)
	}
}

func (s *Segmenter) append(obs Observation) {
	frame := gesture.HandFrame{
		Timestamp: obs.Timestamp,
		ImageData: obs.ImageData,
	}
	if len(obs.Landmarks) > 0 {
		frame.Landmarks = append([]detector.HandLandmarks(nil), obs.Landmarks...)
	}
	s.buffer = append(s.buffer, frame)
	s.lastCapture = obs.Timestamp
}
