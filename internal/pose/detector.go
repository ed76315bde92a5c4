package pose

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/posecapture/internal/framesource"
	"github.com/banshee-data/posecapture/internal/fsutil"
)

var (
	// ErrDetectionFailure marks a single failed detect call. The caller may
	// continue with the next frame.
	ErrDetectionFailure = errors.New("pose detection failed")

	// ErrModelUnavailable is returned at construction when the model asset
	// cannot be found or loaded.
	ErrModelUnavailable = errors.New("pose model unavailable")

	// ErrClosed is returned by Detect after Close.
	ErrClosed = errors.New("pose detector closed")
)

// Detector finds the landmarks of a single pose in a frame.
type Detector interface {
	// Detect returns the landmarks found in frame, or an empty set when no
	// pose is visible. timestampMs must not decrease between calls on the
	// same Detector.
	Detect(ctx context.Context, frame framesource.Frame, timestampMs int64) (LandmarkSet, error)
	// Close releases the detector. Calls after the first are no-ops.
	Close() error
}

// Options configures one detector instance. It is passed by value and the
// constructors copy any slices, so no two detectors share configuration.
type Options struct {
	View                       View
	ModelPath                  string
	Command                    []string
	MinPoseDetectionConfidence float64
	MinPosePresenceConfidence  float64
	MinTrackingConfidence      float64
	FS                         fsutil.FileSystem
}

func (o Options) clone() Options {
	o.Command = append([]string(nil), o.Command...)
	if o.FS == nil {
		o.FS = fsutil.OSFileSystem{}
	}
	return o
}

// checkModel verifies the model asset exists.
func (o Options) checkModel() error {
	if o.ModelPath == "" {
		return fmt.Errorf("%w: no model path configured", ErrModelUnavailable)
	}
	if !fsutil.IsRegularFile(o.FS, o.ModelPath) {
		return fmt.Errorf("%w: %s", ErrModelUnavailable, o.ModelPath)
	}
	return nil
}

// timestampGuard enforces non-decreasing timestamps for one detector.
type timestampGuard struct {
	mu      sync.Mutex
	last    int64
	started bool
}

// accept records ts as the latest timestamp, or fails if it goes backwards.
// A rejected timestamp leaves the guard unchanged.
func (g *timestampGuard) accept(ts int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started && ts < g.last {
		return fmt.Errorf("%w: timestamp %d ms is before last accepted %d ms", ErrDetectionFailure, ts, g.last)
	}
	g.last = ts
	g.started = true
	return nil
}

// Last returns the last accepted timestamp and whether any was accepted.
func (g *timestampGuard) Last() (int64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last, g.started
}
