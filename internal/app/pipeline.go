package app

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/healthbridge/healthbridge/internal/capture"
	"github.com/healthbridge/healthbridge/internal/detector"
	"github.com/healthbridge/healthbridge/internal/segment"
)

// runPipeline is the live loop. Every tick reads one frame and drives the
// segmenter with it:
//
//  1. Motion gate (optional): while the scene is static and no hands have
//     been seen for the idle timeout, skip the tracker and run at IdleFPS.
//  2. Hand tracking folded into a presence observation.
//  3. The still is encoded only when the segmenter would buffer it.
//  4. segment.Update; completed signs go to the orchestrator from there.
//
// A camera read failure or an unavailable tracker ends the loop and is
// reported through Err.
func (a *App) runPipeline(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	fps := a.camera.FPS()
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}

		next, ok := a.step()
		if !ok {
			return
		}
		if next != fps {
			fps = next
			a.camera.SetFPS(fps)
			ticker.Reset(time.Second / time.Duration(fps))
		}
	}
}

// step processes one frame. It returns the frame rate to run at and false
// when the loop must stop.
func (a *App) step() (int, bool) {
	fps := a.camera.FPS()

	frame, err := a.camera.ReadFrame()
	if err != nil {
		a.fault(fmt.Errorf("%w: %w", ErrCaptureDevice, err))
		return fps, false
	}
	defer frame.Close()

	ts := a.now().UnixMilli()

	jpeg, err := capture.EncodeJPEG(frame, a.jpegQuality())
	if err != nil {
		if !errors.Is(err, capture.ErrEmptyFrame) {
			log.Warn().Err(err).Msg("Failed to encode frame")
		}
		return fps, true
	}
	a.setPreview(jpeg, ts)

	if a.gate != nil {
		open, changed := a.gate.Check(frame, ts)
		if changed {
			if open {
				fps = a.activeFPS()
				log.Debug().
					Int("fps", fps).
					Float64("change_pct", a.gate.LastChange()).
					Msg("Motion detected, switched to active mode")
			} else {
				fps = capture.IdleFPS
				log.Debug().Int("fps", fps).Msg("Scene idle, switched to idle mode")
			}
		}
		if !open {
			a.observe(segment.Observation{Timestamp: ts})
			return fps, true
		}
	}

	presence, err := detector.Observe(a.detector, frame)
	if err != nil {
		if errors.Is(err, detector.ErrModelUnavailable) {
			a.fault(fmt.Errorf("%w: %w", ErrTrackerInit, err))
			return fps, false
		}
		// A single bad frame is treated as no hands.
		log.Warn().Err(err).Msg("Hand detection failed")
		presence = detector.Presence{}
	}
	if presence.HandsPresent && a.gate != nil {
		a.gate.Hold(ts)
	}

	obs := segment.Observation{
		Timestamp:    ts,
		HandsPresent: presence.HandsPresent,
		Landmarks:    presence.Hands,
	}
	if a.segmenter.CaptureDue(ts, presence.HandsPresent) {
		obs.ImageData = base64.StdEncoding.EncodeToString(jpeg)
	}
	a.observe(obs)

	return fps, true
}

func (a *App) observe(obs segment.Observation) {
	if err := a.segmenter.Update(obs); err != nil {
		log.Debug().Err(err).Msg("Segmenter rejected observation")
	}
}

func (a *App) jpegQuality() int {
	if q := a.config.CameraConfig.JPEGQuality; q > 0 {
		return q
	}
	return capture.DefaultJPEGQuality
}
