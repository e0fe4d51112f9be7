// Package testutil builds synthetic sign-event fixtures for tests.
package testutil

import (
	"encoding/base64"

	"github.com/healthbridge/healthbridge/internal/detector"
	"github.com/healthbridge/healthbridge/internal/gesture"
)

// FrameIntervalMs is the spacing between generated frames.
const FrameIntervalMs = 100

// FakeJPEG returns a base64 payload of size bytes that starts with a JPEG
// start-of-image marker. It is not a decodable image.
func FakeJPEG(size int) string {
	if size < 4 {
		size = 4
	}
	data := make([]byte, size)
	data[0], data[1], data[2] = 0xFF, 0xD8, 0xFF
	for i := 3; i < size; i++ {
		data[i] = byte(i % 251)
	}
	data[size-2], data[size-1] = 0xFF, 0xD9
	return base64.StdEncoding.EncodeToString(data)
}

// Frame builds a frame at ts with a valid-sized image and the given hands.
// With no hands the frame has nil landmarks.
func Frame(ts int64, hands ...detector.HandLandmarks) gesture.HandFrame {
	f := gesture.HandFrame{
		Timestamp: ts,
		ImageData: FakeJPEG(2048),
	}
	if len(hands) > 0 {
		f.Landmarks = hands
	}
	return f
}

// MotionBurst returns n frames of a B handshape that is near-static except
// between motionStart and motionEnd (inclusive), where the whole hand moves
// speed units along X per frame.
func MotionBurst(n, motionStart, motionEnd int, speed float64) []gesture.HandFrame {
	base := detector.HandshapeB().Translate(-0.3, 0, 0)
	frames := make([]gesture.HandFrame, n)

	var travelled float64
	for i := 0; i < n; i++ {
		if i >= motionStart && i <= motionEnd {
			travelled += speed
		}
		frames[i] = Frame(int64(i*FrameIntervalMs), base.Translate(travelled+jitter(i), 0, 0))
	}
	return frames
}

// StaticFrames returns n frames holding the same pose with sub-threshold jitter.
func StaticFrames(n int) []gesture.HandFrame {
	return MotionBurst(n, n, n, 0)
}

// UnposedFrames returns n frames with images but no landmark data.
func UnposedFrames(n int) []gesture.HandFrame {
	frames := make([]gesture.HandFrame, n)
	for i := range frames {
		frames[i] = Frame(int64(i * FrameIntervalMs))
	}
	return frames
}

func jitter(i int) float64 {
	if i%2 == 0 {
		return 0.001
	}
	return -0.001
}
