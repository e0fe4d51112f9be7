package app

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"gocv.io/x/gocv"

	"github.com/healthbridge/healthbridge/internal/capture"
	"github.com/healthbridge/healthbridge/internal/detector"
	"github.com/healthbridge/healthbridge/internal/gesture"
	"github.com/healthbridge/healthbridge/internal/hook"
	"github.com/healthbridge/healthbridge/internal/metrics"
	"github.com/healthbridge/healthbridge/internal/segment"
	"github.com/healthbridge/healthbridge/internal/server"
	"github.com/healthbridge/healthbridge/internal/store"
	fixtures "github.com/healthbridge/healthbridge/internal/testutil"
	"github.com/healthbridge/healthbridge/internal/translate"
)

// recorder is a Broadcaster that keeps every message.
type recorder struct {
	mu       sync.Mutex
	messages []server.Message
}

func (r *recorder) Broadcast(msgType string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, server.Message{Type: msgType, Data: data})
}

func (r *recorder) count(msgType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.Type == msgType {
			n++
		}
	}
	return n
}

type fakePublisher struct {
	mu      sync.Mutex
	results []translate.Result
}

func (p *fakePublisher) Publish(ctx context.Context, r translate.Result) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, r)
	return "1-0", nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestFrame(t *testing.T) *gocv.Mat {
	t.Helper()

	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { frame.Close() })
	return &frame
}

// stepClock advances 100ms on every call.
func stepClock() func() time.Time {
	base := time.UnixMilli(1_700_000_000_000)
	var n int64
	return func() time.Time {
		t := base.Add(time.Duration(n) * 100 * time.Millisecond)
		n++
		return t
	}
}

func hands(n int) [][]detector.HandLandmarks {
	script := make([][]detector.HandLandmarks, n)
	for i := range script {
		script[i] = []detector.HandLandmarks{detector.HandshapeB().Translate(float64(i)*0.02, 0, 0)}
	}
	return script
}

func TestApp_Step_SignEvent(t *testing.T) {
	cam := capture.NewMockCamera([]*gocv.Mat{newTestFrame(t)}, true)
	det := detector.NewMockDetector()
	det.SetScript(hands(10))

	a := New(Config{Camera: cam, Detector: det})
	defer a.Close()
	a.now = stepClock()

	var events []segment.Event
	a.segmenter.OnComplete(func(ev segment.Event) { events = append(events, ev) })

	if err := cam.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	for i := 0; i < 20; i++ {
		if _, ok := a.step(); !ok {
			t.Fatalf("step %d stopped the loop: %v", i, a.Err())
		}
		if i == 5 && a.State() != segment.Signing {
			t.Errorf("state after 6 frames with hands = %s, want %s", a.State(), segment.Signing)
		}
	}

	if len(events) != 1 {
		t.Fatalf("got %d sign events, want 1", len(events))
	}
	ev := events[0]
	if ev.DurationMs != 900 {
		t.Errorf("DurationMs = %d, want 900", ev.DurationMs)
	}
	if len(ev.Frames) != 10 {
		t.Errorf("buffered %d frames, want 10", len(ev.Frames))
	}
	for i, f := range ev.Frames {
		if f.ImageData == "" || f.Landmarks == nil {
			t.Errorf("frame %d missing image or landmarks", i)
		}
	}
	if a.State() != segment.Idle {
		t.Errorf("state = %s, want %s", a.State(), segment.Idle)
	}

	if data, ts, ok := a.LatestJPEG(); !ok || len(data) == 0 || ts == 0 {
		t.Error("preview frame not recorded")
	}
}

func TestApp_Step_Faults(t *testing.T) {
	t.Run("camera read failure", func(t *testing.T) {
		cam := capture.NewMockCamera(nil, false)
		a := New(Config{Camera: cam, Detector: detector.NewMockDetector()})
		defer a.Close()

		cam.Open()
		if _, ok := a.step(); ok {
			t.Fatal("step() continued after a read failure")
		}
		if !errors.Is(a.Err(), ErrCaptureDevice) || !errors.Is(a.Err(), capture.ErrDeviceUnavailable) {
			t.Errorf("Err() = %v, want capture device failure", a.Err())
		}
		if !errors.Is(a.segmenter.Err(), ErrCaptureDevice) {
			t.Errorf("segmenter not faulted: %v", a.segmenter.Err())
		}
	})

	t.Run("tracker unavailable", func(t *testing.T) {
		cam := capture.NewMockCamera([]*gocv.Mat{newTestFrame(t)}, true)
		det := detector.NewMockDetector()
		det.SetError(detector.ErrModelUnavailable)
		a := New(Config{Camera: cam, Detector: det})
		defer a.Close()

		cam.Open()
		if _, ok := a.step(); ok {
			t.Fatal("step() continued without a tracker")
		}
		if !errors.Is(a.Err(), ErrTrackerInit) {
			t.Errorf("Err() = %v, want %v", a.Err(), ErrTrackerInit)
		}
	})

	t.Run("transient detection error", func(t *testing.T) {
		cam := capture.NewMockCamera([]*gocv.Mat{newTestFrame(t)}, true)
		det := detector.NewMockDetector()
		det.SetError(errors.New("parse response: bad json"))
		a := New(Config{Camera: cam, Detector: det})
		defer a.Close()

		cam.Open()
		if _, ok := a.step(); !ok {
			t.Fatal("step() stopped on a single bad frame")
		}
		if a.Err() != nil {
			t.Errorf("Err() = %v, want nil", a.Err())
		}
	})

	t.Run("start without tracker", func(t *testing.T) {
		a := &App{segmenter: segment.New(segment.DefaultConfig())}
		if err := a.Start(); !errors.Is(err, ErrTrackerInit) {
			t.Errorf("Start() error = %v, want %v", err, ErrTrackerInit)
		}
		if a.Running() {
			t.Error("Running() = true without a tracker")
		}
	})
}

func TestApp_Step_MotionGate(t *testing.T) {
	cam := capture.NewMockCamera([]*gocv.Mat{newTestFrame(t)}, true)
	det := detector.NewMockDetector()

	cfg := capture.DefaultConfig()
	cfg.FPS = 15
	a := New(Config{Camera: cam, Detector: det, CameraConfig: cfg})
	defer a.Close()
	a.now = stepClock()

	cam.Open()
	cam.SetFPS(capture.IdleFPS)
	for i := 0; i < 5; i++ {
		fps, ok := a.step()
		if !ok {
			t.Fatalf("step %d stopped the loop", i)
		}
		if fps != capture.IdleFPS {
			t.Errorf("fps = %d on a static scene, want %d", fps, capture.IdleFPS)
		}
	}
	if det.Calls() != 0 {
		t.Errorf("tracker called %d times behind a closed gate", det.Calls())
	}
	if a.State() != segment.Idle {
		t.Errorf("state = %s, want %s", a.State(), segment.Idle)
	}
}

func TestApp_HandleSign_Metrics(t *testing.T) {
	a := New(Config{Detector: detector.NewMockDetector(), Camera: capture.NewMockCamera(nil, false)})
	defer a.Close()

	accepted := testutil.ToFloat64(metrics.SignEvents.WithLabelValues(metrics.OutcomeAccepted))
	forced := testutil.ToFloat64(metrics.SignEvents.WithLabelValues(metrics.OutcomeForced))

	a.handleSign(segment.Event{DurationMs: 900})
	a.handleSign(segment.Event{DurationMs: 10000, Forced: true})

	if got := testutil.ToFloat64(metrics.SignEvents.WithLabelValues(metrics.OutcomeAccepted)); got != accepted+1 {
		t.Errorf("accepted = %v, want %v", got, accepted+1)
	}
	if got := testutil.ToFloat64(metrics.SignEvents.WithLabelValues(metrics.OutcomeForced)); got != forced+1 {
		t.Errorf("forced = %v, want %v", got, forced+1)
	}
}

// blockingTranslator holds every call until released and tracks how many
// calls overlap.
type blockingTranslator struct {
	started  chan struct{}
	release  chan struct{}
	mu       sync.Mutex
	inFlight int
	maxSeen  int
}

func newBlockingTranslator() *blockingTranslator {
	return &blockingTranslator{
		started: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
}

func (b *blockingTranslator) Translate(ctx context.Context, frames []gesture.HandFrame) (translate.Translation, error) {
	b.mu.Lock()
	b.inFlight++
	if b.inFlight > b.maxSeen {
		b.maxSeen = b.inFlight
	}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.inFlight--
		b.mu.Unlock()
	}()

	b.started <- struct{}{}
	select {
	case <-b.release:
		return translate.Translation{Text: "water", LatencyMs: 10}, nil
	case <-ctx.Done():
		return translate.Translation{}, ctx.Err()
	}
}

func TestApp_TranslateFrames_OneAtATime(t *testing.T) {
	bt := newBlockingTranslator()
	events := &recorder{}
	a := New(Config{
		Translator: bt,
		Detector:   detector.NewMockDetector(),
		Camera:     capture.NewMockCamera(nil, false),
		Events:     events,
	})
	defer a.Close()

	frames := fixtures.MotionBurst(20, 2, 18, 0.04)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.TranslateFrames(context.Background(), frames, 2000, "")
			errs <- err
		}()
	}

	waitSignal(t, bt.started)
	select {
	case <-bt.started:
		t.Fatal("second translation started while the first was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	t.Run("waiting caller gives up with its context", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if _, err := a.TranslateFrames(ctx, frames, 2000, ""); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("TranslateFrames() error = %v, want %v", err, context.DeadlineExceeded)
		}
	})

	bt.release <- struct{}{}
	waitSignal(t, bt.started)
	bt.release <- struct{}{}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("TranslateFrames() error = %v", err)
		}
	}
	bt.mu.Lock()
	maxSeen := bt.maxSeen
	bt.mu.Unlock()
	if maxSeen != 1 {
		t.Errorf("max concurrent translations = %d, want 1", maxSeen)
	}
	if n := events.count(server.MessageTranslation); n != 2 {
		t.Errorf("broadcast %d translations, want 2", n)
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for translation to start")
	}
}

func TestApp_TranslateFrames(t *testing.T) {
	s := newTestStore(t)
	events := &recorder{}
	pub := &fakePublisher{}

	a := New(Config{
		Store:        s,
		Translator:   translate.NewStubTranslator("hello"),
		Detector:     detector.NewMockDetector(),
		Camera:       capture.NewMockCamera(nil, false),
		HistoryLimit: 2,
		Events:       events,
		Publisher:    pub,
	})
	defer a.Close()

	var seen []translate.Result
	a.OnResult(func(r translate.Result) { seen = append(seen, r) })

	frames := fixtures.MotionBurst(30, 5, 25, 0.04)

	t.Run("default selection", func(t *testing.T) {
		r, err := a.TranslateFrames(context.Background(), frames, 3000, "")
		if err != nil {
			t.Fatalf("TranslateFrames() error = %v", err)
		}
		if r.Translation != "hello" {
			t.Errorf("Translation = %q, want %q", r.Translation, "hello")
		}
		if len(r.SelectedIndices) > 12 {
			t.Errorf("selected %d frames with the balanced default", len(r.SelectedIndices))
		}

		stored, err := s.Translations().GetByID(r.ID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if stored.Source != store.SourceAPI {
			t.Errorf("Source = %q, want %q", stored.Source, store.SourceAPI)
		}
	})

	t.Run("saved preset", func(t *testing.T) {
		if err := s.Settings().Set(store.SettingSelectionPreset, string(gesture.PresetFast)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		r, err := a.TranslateFrames(context.Background(), frames, 3000, "")
		if err != nil {
			t.Fatalf("TranslateFrames() error = %v", err)
		}
		if len(r.SelectedIndices) > 8 {
			t.Errorf("selected %d frames with the fast preset", len(r.SelectedIndices))
		}
	})

	t.Run("explicit preset wins", func(t *testing.T) {
		r, err := a.TranslateFrames(context.Background(), frames, 3000, gesture.PresetAccurate)
		if err != nil {
			t.Fatalf("TranslateFrames() error = %v", err)
		}
		if len(r.SelectedIndices) <= 8 {
			t.Errorf("selected only %d frames with the accurate preset", len(r.SelectedIndices))
		}
	})

	t.Run("unknown preset", func(t *testing.T) {
		if _, err := a.TranslateFrames(context.Background(), frames, 3000, "turbo"); !errors.Is(err, gesture.ErrUnknownPreset) {
			t.Errorf("error = %v, want %v", err, gesture.ErrUnknownPreset)
		}
	})

	a.sinks.Wait()

	if n, _ := s.Translations().Count(); n != 2 {
		t.Errorf("history holds %d translations, want 2 after pruning", n)
	}
	if len(seen) != 3 {
		t.Errorf("OnResult called %d times, want 3", len(seen))
	}
	if last, ok := a.Last(); !ok || last.ID != seen[len(seen)-1].ID {
		t.Error("Last() does not return the newest result")
	}
	if got := events.count(server.MessageTranslation); got != 3 {
		t.Errorf("broadcast %d translations, want 3", got)
	}
	pub.mu.Lock()
	published := len(pub.results)
	pub.mu.Unlock()
	if published != 3 {
		t.Errorf("published %d results, want 3", published)
	}
}

func TestApp_Hooks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	root := t.TempDir()
	dir := filepath.Join(root, "notify")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	manifest, _ := json.Marshal(hook.Manifest{
		Name:       "notify",
		Executable: "run.sh",
		Events:     []hook.Event{hook.EventTranslation, hook.EventLowConfidence},
	})
	os.WriteFile(filepath.Join(dir, hook.ManifestFile), manifest, 0644)
	os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\ncat > /dev/null\necho '{\"success\":true}'\n"), 0755)

	s := newTestStore(t)
	a := New(Config{
		Store:              s,
		Translator:         translate.NewStubTranslator(translate.UnclearText),
		Detector:           detector.NewMockDetector(),
		Camera:             capture.NewMockCamera(nil, false),
		HookDir:            root,
		HookTimeout:        5 * time.Second,
		LowConfidenceScore: 60,
	})
	defer a.Close()

	if err := a.DiscoverHooks(); err != nil {
		t.Fatalf("DiscoverHooks() error = %v", err)
	}

	r, err := a.TranslateFrames(context.Background(), fixtures.StaticFrames(10), 1000, "")
	if err != nil {
		t.Fatalf("TranslateFrames() error = %v", err)
	}
	a.sinks.Wait()

	runs, err := s.HookRuns().ListByTranslation(r.ID)
	if err != nil {
		t.Fatalf("ListByTranslation() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("recorded %d hook runs, want 2 (translation and low_confidence)", len(runs))
	}
	for _, run := range runs {
		if !run.Success || run.HookName != "notify" {
			t.Errorf("unexpected run %+v", run)
		}
	}
}
