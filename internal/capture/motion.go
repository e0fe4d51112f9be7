package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const (
	// diffWidth is the width frames are shrunk to before differencing.
	// Hand-scale motion survives the downscale; sensor noise mostly does not.
	diffWidth = 160
	// diffBlur is the Gaussian kernel size applied at diffWidth.
	diffBlur = 7
	// diffLevel is the per-pixel grey-level change counted as motion.
	diffLevel = 25
)

// frameDiffer measures how much of the scene changed since the previous
// frame. The first frame after construction or reset only sets the baseline.
type frameDiffer struct {
	prev gocv.Mat
	have bool
}

func newFrameDiffer() *frameDiffer {
	return &frameDiffer{prev: gocv.NewMat()}
}

// change returns the percentage of pixels that differ from the previous
// frame. ok is false when there was nothing to compare against.
func (d *frameDiffer) change(frame *gocv.Mat) (percent float64, ok bool) {
	if frame == nil || frame.Empty() {
		return 0, false
	}

	small := gocv.NewMat()
	defer small.Close()
	height := frame.Rows() * diffWidth / frame.Cols()
	if height < 1 {
		height = 1
	}
	gocv.Resize(*frame, &small, image.Point{X: diffWidth, Y: height}, 0, 0, gocv.InterpolationArea)

	gray := gocv.NewMat()
	defer gray.Close()
	if small.Channels() > 1 {
		gocv.CvtColor(small, &gray, gocv.ColorBGRToGray)
	} else {
		small.CopyTo(&gray)
	}
	gocv.GaussianBlur(gray, &gray, image.Point{X: diffBlur, Y: diffBlur}, 0, 0, gocv.BorderDefault)
	defer gray.CopyTo(&d.prev)

	if !d.have || d.prev.Rows() != gray.Rows() || d.prev.Cols() != gray.Cols() {
		d.have = true
		return 0, false
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(gray, d.prev, &diff)
	gocv.Threshold(diff, &diff, diffLevel, 255, gocv.ThresholdBinary)

	return float64(gocv.CountNonZero(diff)) / float64(diff.Rows()*diff.Cols()) * 100, true
}

func (d *frameDiffer) reset() {
	d.have = false
}

func (d *frameDiffer) close() {
	d.prev.Close()
	d.have = false
}

// MotionGate decides which frames are worth sending to the hand tracker.
// It opens when more than threshold percent of the scene changes and closes
// once neither motion nor hands have been seen for the idle timeout.
// Timestamps are milliseconds. A MotionGate is driven by one goroutine;
// only Open and LastChange may be read from others.
type MotionGate struct {
	differ        *frameDiffer
	threshold     float64
	idleTimeoutMs int64
	lastActivity  int64

	mu         sync.Mutex
	open       bool
	lastChange float64
}

// NewMotionGate creates a closed gate.
func NewMotionGate(threshold float64, idleTimeout time.Duration) *MotionGate {
	return &MotionGate{
		differ:        newFrameDiffer(),
		threshold:     threshold,
		idleTimeoutMs: idleTimeout.Milliseconds(),
	}
}

// Check compares frame with the previous one and reports whether the gate is
// open. changed is true when this frame opened or closed the gate.
func (g *MotionGate) Check(frame *gocv.Mat, ts int64) (open, changed bool) {
	percent, ok := g.differ.change(frame)

	g.mu.Lock()
	g.lastChange = percent
	g.mu.Unlock()

	return g.observe(ok && percent > g.threshold, ts)
}

// Hold keeps the gate open at ts, e.g. while a still hand is being tracked.
func (g *MotionGate) Hold(ts int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = true
	g.lastActivity = ts
}

// Open reports whether the gate is currently open.
func (g *MotionGate) Open() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// LastChange returns the scene change percentage of the last checked frame.
func (g *MotionGate) LastChange() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastChange
}

// Reset closes the gate and drops the baseline frame, so a restarted camera
// is not compared with a stale image.
func (g *MotionGate) Reset() {
	g.differ.reset()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = false
	g.lastActivity = 0
	g.lastChange = 0
}

// Close releases the baseline frame.
func (g *MotionGate) Close() {
	g.differ.close()
}

func (g *MotionGate) observe(motion bool, ts int64) (open, changed bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	was := g.open
	switch {
	case motion:
		g.open = true
		g.lastActivity = ts
	case g.open && ts-g.lastActivity > g.idleTimeoutMs:
		g.open = false
	}
	return g.open, g.open != was
}
