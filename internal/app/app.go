// Package app wires the live sign pipeline: camera, hand tracker, segmenter,
// translation orchestrator and the sinks that consume its results.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/healthbridge/healthbridge/internal/capture"
	"github.com/healthbridge/healthbridge/internal/confidence"
	"github.com/healthbridge/healthbridge/internal/detector"
	"github.com/healthbridge/healthbridge/internal/gesture"
	"github.com/healthbridge/healthbridge/internal/hook"
	"github.com/healthbridge/healthbridge/internal/metrics"
	"github.com/healthbridge/healthbridge/internal/segment"
	"github.com/healthbridge/healthbridge/internal/server"
	"github.com/healthbridge/healthbridge/internal/store"
	"github.com/healthbridge/healthbridge/internal/translate"
)

var (
	// ErrTrackerInit is reported when the hand tracker cannot be loaded.
	ErrTrackerInit = errors.New("hand tracker initialisation failed")
	// ErrCaptureDevice is reported when the camera cannot be opened or read.
	ErrCaptureDevice = errors.New("capture device failure")
)

// DefaultHookTimeout bounds each hook run when none is configured.
const DefaultHookTimeout = 5 * time.Second

// Broadcaster receives pipeline events for connected clients.
type Broadcaster interface {
	Broadcast(msgType string, data interface{})
}

// Publisher forwards translation results to an external stream.
type Publisher interface {
	Publish(ctx context.Context, r translate.Result) (string, error)
}

// Config holds configuration options for the application. Nil collaborators
// disable the sink they feed.
type Config struct {
	Store      *store.Store
	Translator translate.Translator
	// Detector overrides the MediaPipe tracker built from DetectorConfig.
	Detector       detector.Detector
	DetectorConfig detector.Config
	// Camera overrides the gocv camera built from CameraConfig.
	Camera       capture.Camera
	CameraConfig capture.Config

	Segment    segment.Config
	Confidence confidence.Config
	// Selection is used when no preset has been saved in the store.
	Selection          gesture.SelectionConfig
	Policy             translate.Policy
	TranslateTimeout   time.Duration
	HistoryLimit       int
	HookDir            string
	HookTimeout        time.Duration
	LowConfidenceScore int

	Events    Broadcaster
	Publisher Publisher
}

// App owns the live loop and fans results out to its sinks.
type App struct {
	config     Config
	camera     capture.Camera
	gate       *capture.MotionGate
	detector   detector.Detector
	segmenter  *segment.Segmenter
	pipeline   *translate.Pipeline
	dispatcher *hook.Dispatcher
	hooks      *hook.Manager

	mu           sync.RWMutex
	orchestrator *translate.Orchestrator
	stopCh       chan struct{}
	loopDone     chan struct{}
	err          error
	onResult     []func(translate.Result)
	last         *translate.Result

	previewMu sync.RWMutex
	preview   []byte
	previewTs int64

	sinks      sync.WaitGroup
	cancelSubs func()
	now        func() time.Time
}

// New creates an App. A tracker that fails to load is not fatal here: the
// HTTP surface keeps working and Start reports ErrTrackerInit.
func New(config Config) *App {
	if config.Translator == nil {
		config.Translator = translate.NewStubTranslator(translate.UnclearText)
	}
	if config.Confidence.Levels == (confidence.LevelConfig{}) {
		config.Confidence = confidence.DefaultConfig()
	}
	if config.Selection.MaxFrames == 0 {
		config.Selection = gesture.DefaultSelectionConfig()
	}
	if config.Segment == (segment.Config{}) {
		config.Segment = segment.DefaultConfig()
	}
	if config.HookTimeout <= 0 {
		config.HookTimeout = DefaultHookTimeout
	}

	pipeline := translate.NewPipeline(config.Translator, config.TranslateTimeout)
	pipeline.Selection = config.Selection
	pipeline.Confidence = config.Confidence

	a := &App{
		config:    config,
		camera:    config.Camera,
		segmenter: segment.New(config.Segment),
		pipeline:  pipeline,
		hooks:     hook.NewManager(config.HookDir),
		now:       time.Now,
	}
	a.dispatcher = hook.NewDispatcher(a.hooks, hook.NewExecutor(config.HookTimeout), config.LowConfidenceScore)

	if a.camera == nil {
		a.camera = capture.NewCamera(config.CameraConfig)
	}
	if config.CameraConfig.MotionGate {
		a.gate = capture.NewMotionGate(config.CameraConfig.MotionThreshold, config.CameraConfig.IdleTimeout)
	}

	a.detector = config.Detector
	if a.detector == nil {
		dcfg := config.DetectorConfig
		if dcfg == (detector.Config{}) {
			dcfg = detector.DefaultConfig()
		}
		if mp, err := detector.NewMediaPipeDetector(dcfg); err == nil {
			a.detector = mp
			log.Info().Msg("Using MediaPipe hand detection")
		} else {
			a.err = fmt.Errorf("%w: %w", ErrTrackerInit, err)
			log.Warn().Err(err).Msg("MediaPipe not available, live capture disabled")
		}
	}

	a.segmenter.OnComplete(a.handleSign)
	a.segmenter.OnDiscard(func(d segment.Discard) {
		metrics.ObserveDiscard(d)
		log.Debug().
			Str("reason", string(d.Reason)).
			Int("frames", d.Frames).
			Int64("duration_ms", d.DurationMs).
			Msg("Sign discarded")
	})
	a.forwardStatus()

	return a
}

// DiscoverHooks scans the hook directory.
func (a *App) DiscoverHooks() error {
	return a.hooks.Discover()
}

// Hooks returns the hook manager.
func (a *App) Hooks() *hook.Manager {
	return a.hooks
}

// Segmenter returns the sign segmenter.
func (a *App) Segmenter() *segment.Segmenter {
	return a.segmenter
}

// OnResult registers a callback for every translation result, live or
// posted over HTTP.
func (a *App) OnResult(fn func(translate.Result)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onResult = append(a.onResult, fn)
}

// Start opens the camera and starts the live loop. Starting a running app
// is a no-op. A successful start clears the previous error.
func (a *App) Start() error {
	if a.loopExited() {
		a.Stop()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}
	if a.detector == nil {
		if a.err == nil {
			a.err = ErrTrackerInit
		}
		return a.err
	}

	if err := a.camera.Open(); err != nil {
		a.err = fmt.Errorf("%w: %w", ErrCaptureDevice, err)
		return a.err
	}
	fps := a.activeFPS()
	if a.gate != nil {
		a.gate.Reset()
		fps = capture.IdleFPS
	}
	a.camera.SetFPS(fps)

	a.err = nil
	a.segmenter.Reset()

	orch := translate.NewOrchestrator(a.pipeline, a.config.Policy, a.selection)
	orch.OnResult(func(r translate.Result) {
		if err := a.handleResult(r, store.SourceCamera); err != nil {
			log.Error().Err(err).Str("id", r.ID).Msg("Failed to record translation")
		}
	})
	orch.OnDrop(func(segment.Event) {
		metrics.DroppedSubmissions.Inc()
	})
	a.orchestrator = orch

	a.stopCh = make(chan struct{})
	a.loopDone = make(chan struct{})
	go a.runPipeline(a.stopCh, a.loopDone)

	log.Info().Int("fps", a.camera.FPS()).Msg("Detection pipeline started")
	return nil
}

// Stop halts the live loop, cancels any in-flight translation and closes
// the camera. The last error is kept.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, done, orch := a.stopCh, a.loopDone, a.orchestrator
	a.stopCh, a.loopDone, a.orchestrator = nil, nil, nil
	a.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-done
	orch.Stop()

	if err := a.camera.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing camera")
	}
	a.segmenter.Reset()

	log.Info().Msg("Detection pipeline stopped")
}

// Close stops the pipeline, waits for pending sinks and releases the
// tracker and motion gate.
func (a *App) Close() error {
	a.Stop()
	a.sinks.Wait()
	a.cancelSubs()

	if a.gate != nil {
		a.gate.Close()
	}
	if a.detector != nil {
		return a.detector.Close()
	}
	return nil
}

// SetEnabled starts or stops the live loop.
func (a *App) SetEnabled(enabled bool) error {
	if enabled {
		return a.Start()
	}
	a.Stop()
	return nil
}

// Running reports whether the live loop is active. A loop that exited on a
// fault is not running.
func (a *App) Running() bool {
	a.mu.RLock()
	done := a.loopDone
	a.mu.RUnlock()
	if done == nil {
		return false
	}
	return !closed(done)
}

func (a *App) loopExited() bool {
	a.mu.RLock()
	done := a.loopDone
	a.mu.RUnlock()
	return done != nil && closed(done)
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// State returns the segmenter state.
func (a *App) State() segment.State {
	return a.segmenter.State()
}

// Err returns the last tracker or capture device error, if any.
func (a *App) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// Last returns the most recent translation result.
func (a *App) Last() (translate.Result, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.last == nil {
		return translate.Result{}, false
	}
	return *a.last, true
}

// LatestJPEG returns the most recent preview frame.
func (a *App) LatestJPEG() ([]byte, int64, bool) {
	a.previewMu.RLock()
	defer a.previewMu.RUnlock()
	return a.preview, a.previewTs, a.preview != nil
}

// TranslateFrames runs one synchronous translation over a posted burst and
// records it like a live result. An empty preset uses the saved selection.
// It waits for any live or posted translation in flight to be delivered
// first.
func (a *App) TranslateFrames(ctx context.Context, frames []gesture.HandFrame, signDurationMs int64, preset gesture.Preset) (translate.Result, error) {
	sel := a.selection()
	if preset != "" {
		cfg, err := gesture.PresetConfig(preset)
		if err != nil {
			return translate.Result{}, err
		}
		sel = cfg
	}

	release, err := a.pipeline.Acquire(ctx)
	if err != nil {
		return translate.Result{}, err
	}
	defer release()

	r := a.pipeline.ProcessWith(ctx, frames, signDurationMs, sel)
	if err := a.handleResult(r, store.SourceAPI); err != nil {
		return r, err
	}
	return r, nil
}

// selection returns the saved preset's selector config, or the configured
// default when none is saved.
func (a *App) selection() gesture.SelectionConfig {
	if a.config.Store == nil {
		return a.config.Selection
	}

	preset, err := a.config.Store.Settings().Get(store.SettingSelectionPreset)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Msg("Failed to read selection preset")
		}
		return a.config.Selection
	}

	cfg, err := gesture.PresetConfig(gesture.Preset(preset))
	if err != nil {
		log.Warn().Err(err).Str("preset", preset).Msg("Ignoring saved selection preset")
		return a.config.Selection
	}
	return cfg
}

// SelectionConfig exposes the current selector config for the HTTP layer.
func (a *App) SelectionConfig() gesture.SelectionConfig {
	return a.selection()
}

func (a *App) activeFPS() int {
	if a.config.CameraConfig.FPS > 0 {
		return a.config.CameraConfig.FPS
	}
	return capture.DefaultFPS
}

func (a *App) handleSign(ev segment.Event) {
	metrics.ObserveSign(ev)
	log.Debug().
		Int("frames", len(ev.Frames)).
		Int64("duration_ms", ev.DurationMs).
		Bool("forced", ev.Forced).
		Msg("Sign completed")

	a.mu.RLock()
	orch := a.orchestrator
	a.mu.RUnlock()
	if orch == nil {
		return
	}
	orch.Submit(ev)
}

// handleResult feeds one result to every sink. Only the store error is
// returned; the other sinks log their failures.
func (a *App) handleResult(r translate.Result, source store.Source) error {
	metrics.ObserveResult(r)

	logEvent := log.Info()
	if r.Failed() {
		logEvent = log.Warn().Str("error", r.Error)
	}
	logEvent.
		Str("id", r.ID).
		Str("translation", r.Translation).
		Int("score", r.Confidence.Score).
		Str("level", string(r.Confidence.Level)).
		Int64("latency_ms", r.LatencyMs).
		Str("source", string(source)).
		Msg("Translation complete")

	var storeErr error
	if s := a.config.Store; s != nil {
		storeErr = s.Translations().Create(&store.Translation{Result: r, Source: source})
		if storeErr == nil && a.config.HistoryLimit > 0 {
			if n, err := s.Translations().Prune(a.config.HistoryLimit); err != nil {
				log.Warn().Err(err).Msg("Failed to prune translation history")
			} else if n > 0 {
				log.Debug().Int64("removed", n).Msg("Pruned translation history")
			}
		}
	}

	a.mu.Lock()
	a.last = &r
	callbacks := append([]func(translate.Result){}, a.onResult...)
	a.mu.Unlock()

	if a.config.Events != nil {
		a.config.Events.Broadcast(server.MessageTranslation, r)
	}
	for _, fn := range callbacks {
		fn(r)
	}

	a.sinks.Add(1)
	go func() {
		defer a.sinks.Done()
		a.fanOut(r, storeErr == nil)
	}()

	return storeErr
}

// fanOut publishes r and runs its hooks. Hook runs are recorded when the
// translation itself was stored.
func (a *App) fanOut(r translate.Result, stored bool) {
	ctx := context.Background()

	if a.config.Publisher != nil {
		if id, err := a.config.Publisher.Publish(ctx, r); err != nil {
			log.Warn().Err(err).Str("id", r.ID).Msg("Failed to publish translation")
		} else {
			log.Debug().Str("id", r.ID).Str("entry", id).Msg("Translation published")
		}
	}

	for _, run := range a.dispatcher.Dispatch(ctx, r) {
		metrics.ObserveHook(run.Hook, run.Success)
		if !stored {
			continue
		}
		err := a.config.Store.HookRuns().Create(&store.HookRun{
			TranslationID: r.ID,
			HookName:      run.Hook,
			Event:         string(run.Event),
			Success:       run.Success,
			Message:       run.Message,
		})
		if err != nil {
			log.Warn().Err(err).Str("hook", run.Hook).Msg("Failed to record hook run")
		}
	}
}

// forwardStatus relays segmenter status changes to the event feed.
func (a *App) forwardStatus() {
	statuses, cancel := a.segmenter.Subscribe()
	a.cancelSubs = cancel

	go func() {
		var last segment.Status
		for status := range statuses {
			if status.State == last.State && status.HandsPresent == last.HandsPresent {
				continue
			}
			last = status
			if a.config.Events != nil {
				a.config.Events.Broadcast(server.MessageStatus, status)
			}
		}
	}()
}

// fault records a device or tracker error and idles the segmenter.
func (a *App) fault(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
	a.segmenter.Fault(err)
	log.Error().Err(err).Msg("Detection pipeline fault")
}

func (a *App) setPreview(data []byte, ts int64) {
	a.previewMu.Lock()
	defer a.previewMu.Unlock()
	a.preview, a.previewTs = data, ts
}
