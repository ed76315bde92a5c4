package pose

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/banshee-data/posecapture/internal/framesource"
	"github.com/banshee-data/posecapture/internal/fsutil"
)

// FixtureFrame is the recorded detector outcome for one frame index.
type FixtureFrame struct {
	Landmarks LandmarkSet `json:"landmarks,omitempty"`
	Fail      string      `json:"fail,omitempty"`
}

// Fixture is a recorded two-view session used for dry runs and tests.
type Fixture struct {
	FPS    float64        `json:"fps"`
	Width  int            `json:"width"`
	Height int            `json:"height"`
	Front  []FixtureFrame `json:"front"`
	Side   []FixtureFrame `json:"side"`
}

// LoadFixture reads a JSON fixture from fsys.
func LoadFixture(fsys fsutil.FileSystem, path string) (*Fixture, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var fx Fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if fx.Width <= 0 {
		fx.Width = 64
	}
	if fx.Height <= 0 {
		fx.Height = 48
	}
	return &fx, nil
}

// Frames returns the number of frame pairs the fixture describes.
func (fx *Fixture) Frames() int {
	return min(len(fx.Front), len(fx.Side))
}

// FixtureDetector replays recorded landmark sets by frame index. Frames past
// the end of the recording yield an empty set.
type FixtureDetector struct {
	opts   Options
	frames []FixtureFrame
	guard  timestampGuard

	mu     sync.Mutex
	calls  []int64
	closed int
}

// NewFixtureDetector returns a detector replaying frames.
func NewFixtureDetector(opts Options, frames []FixtureFrame) *FixtureDetector {
	return &FixtureDetector{
		opts:   opts.clone(),
		frames: append([]FixtureFrame(nil), frames...),
	}
}

// Detect returns the recorded outcome for frame.Index.
func (d *FixtureDetector) Detect(ctx context.Context, frame framesource.Frame, timestampMs int64) (LandmarkSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.closed > 0 {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	d.calls = append(d.calls, timestampMs)
	d.mu.Unlock()

	if err := d.guard.accept(timestampMs); err != nil {
		return nil, err
	}
	if frame.Index < 0 || frame.Index >= int64(len(d.frames)) {
		return nil, nil
	}
	rec := d.frames[frame.Index]
	if rec.Fail != "" {
		return nil, fmt.Errorf("%w: %s view frame %d: %s", ErrDetectionFailure, d.opts.View, frame.Index, rec.Fail)
	}
	return append(LandmarkSet(nil), rec.Landmarks...), nil
}

// Calls returns the timestamps of every Detect call, accepted or not.
func (d *FixtureDetector) Calls() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int64(nil), d.calls...)
}

// CloseCount reports how many times Close was called.
func (d *FixtureDetector) CloseCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close marks the detector closed.
func (d *FixtureDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

// UniformLandmarks returns a set of n landmarks with X=x and Y=y, Z=z.
func UniformLandmarks(n int, x, y, z float64) LandmarkSet {
	set := make(LandmarkSet, n)
	for i := range set {
		set[i] = Landmark{X: x, Y: y, Z: z, Visibility: 1}
	}
	return set
}
