package gesture

import (
	"math"

	"github.com/healthbridge/healthbridge/internal/detector"
)

// MotionProfile holds per-frame wrist kinematics for a frame buffer.
// Index 0 has zero velocity and acceleration.
type MotionProfile struct {
	Velocity     []float64
	Acceleration []float64
}

// ComputeMotionProfile measures wrist motion between consecutive frames.
//
// Velocity at i is the mean, across hands, of the wrist displacement between
// frame i-1 and i. A hand missing on either side of the pair contributes zero.
// Acceleration at i is Velocity[i] - Velocity[i-1].
func ComputeMotionProfile(frames []HandFrame) MotionProfile {
	n := len(frames)
	profile := MotionProfile{
		Velocity:     make([]float64, n),
		Acceleration: make([]float64, n),
	}

	for i := 1; i < n; i++ {
		profile.Velocity[i] = wristVelocity(frames[i-1].Landmarks, frames[i].Landmarks)
		profile.Acceleration[i] = profile.Velocity[i] - profile.Velocity[i-1]
	}

	return profile
}

// MeanVelocity returns the average velocity over all consecutive pairs.
func (p MotionProfile) MeanVelocity() float64 {
	if len(p.Velocity) < 2 {
		return 0
	}
	var sum float64
	for _, v := range p.Velocity[1:] {
		sum += v
	}
	return sum / float64(len(p.Velocity)-1)
}

// MaxVelocity returns the largest pairwise velocity.
func (p MotionProfile) MaxVelocity() float64 {
	var m float64
	for _, v := range p.Velocity {
		m = math.Max(m, v)
	}
	return m
}

func wristVelocity(prev, cur []detector.HandLandmarks) float64 {
	hands := len(prev)
	if len(cur) > hands {
		hands = len(cur)
	}
	if hands == 0 {
		return 0
	}

	var total float64
	for h := 0; h < hands; h++ {
		if h >= len(prev) || h >= len(cur) {
			continue
		}
		total += detector.Distance(prev[h].Wrist(), cur[h].Wrist())
	}
	return total / float64(hands)
}

// LandmarkDifference returns the mean per-landmark distance between two
// frames. ok is false when either frame has no pose data or the hand counts
// differ, in which case the frames are not comparable.
func LandmarkDifference(a, b *HandFrame) (diff float64, ok bool) {
	if !a.HasLandmarks() || !b.HasLandmarks() || len(a.Landmarks) != len(b.Landmarks) {
		return 0, false
	}

	var total float64
	for h := range a.Landmarks {
		for i := 0; i < detector.NumLandmarks; i++ {
			total += detector.Distance(a.Landmarks[h].Points[i], b.Landmarks[h].Points[i])
		}
	}
	return total / float64(len(a.Landmarks)*detector.NumLandmarks), true
}
