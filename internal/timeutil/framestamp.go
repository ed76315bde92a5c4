package timeutil

import "math"

const (
	// DefaultFPS is used whenever the source cannot report a usable frame rate.
	DefaultFPS = 30.0

	// DefaultStartOffsetMs keeps the first timestamp away from zero, which some
	// pose detectors reject as invalid.
	DefaultStartOffsetMs int64 = 100
)

// FrameClock maps a frame index to a millisecond timestamp. It has no mutable
// state; the caller owns and advances the frame index.
type FrameClock struct {
	fps           float64
	startOffsetMs int64
}

// NewFrameClock returns a FrameClock for the given frame rate. A non-positive
// or non-finite fps falls back to DefaultFPS and a non-positive offset falls
// back to DefaultStartOffsetMs.
func NewFrameClock(fps float64, startOffsetMs int64) FrameClock {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		fps = DefaultFPS
	}
	if startOffsetMs <= 0 {
		startOffsetMs = DefaultStartOffsetMs
	}
	return FrameClock{fps: fps, startOffsetMs: startOffsetMs}
}

// FPS returns the effective frame rate.
func (c FrameClock) FPS() float64 { return c.fps }

// StartOffsetMs returns the timestamp of frame 0.
func (c FrameClock) StartOffsetMs() int64 { return c.startOffsetMs }

// FrameDurationMs returns the nominal spacing between frames.
func (c FrameClock) FrameDurationMs() float64 { return 1000.0 / c.fps }

// Timestamp returns startOffset + round(frameIndex * 1000 / fps).
func (c FrameClock) Timestamp(frameIndex int64) int64 {
	if frameIndex < 0 {
		frameIndex = 0
	}
	return c.startOffsetMs + int64(math.Round(float64(frameIndex)*1000.0/c.fps))
}
