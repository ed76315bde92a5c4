package pose

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/posecapture/internal/framesource"
	"github.com/banshee-data/posecapture/internal/fsutil"
)

func TestTimestampGuard(t *testing.T) {
	var g timestampGuard

	_, ok := g.Last()
	assert.False(t, ok)

	require.NoError(t, g.accept(100))
	require.NoError(t, g.accept(100), "equal timestamps are allowed")
	require.NoError(t, g.accept(140))

	err := g.accept(120)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDetectionFailure)

	last, ok := g.Last()
	assert.True(t, ok)
	assert.Equal(t, int64(140), last, "rejected timestamp does not rewind the guard")

	require.NoError(t, g.accept(180))
}

func TestOptionsCloneDoesNotShareCommand(t *testing.T) {
	shared := Options{View: ViewFront, Command: []string{"python3", "worker.py"}}

	front := shared.clone()
	side := shared.clone()
	side.View = ViewSide
	side.Command[1] = "other.py"

	assert.Equal(t, "worker.py", front.Command[1])
	assert.Equal(t, "worker.py", shared.Command[1])
	assert.Equal(t, ViewFront, front.View)
	assert.NotNil(t, front.FS)
}

func TestOptionsCheckModel(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.AddFile("/models/pose.task", []byte("model"))

	assert.NoError(t, Options{ModelPath: "/models/pose.task", FS: fsys}.checkModel())
	assert.ErrorIs(t, Options{ModelPath: "/models/missing.task", FS: fsys}.checkModel(), ErrModelUnavailable)
	assert.ErrorIs(t, Options{ModelPath: "/models", FS: fsys}.checkModel(), ErrModelUnavailable)
	assert.ErrorIs(t, Options{FS: fsys}.checkModel(), ErrModelUnavailable)
}

func TestFixtureDetector_Replays(t *testing.T) {
	frames := []FixtureFrame{
		{Landmarks: UniformLandmarks(3, 0.1, 0.2, 0.3)},
		{},
		{Fail: "timestamp mismatch"},
	}
	d := NewFixtureDetector(Options{View: ViewSide}, frames)
	ctx := context.Background()

	set, err := d.Detect(ctx, framesource.Frame{Index: 0}, 100)
	require.NoError(t, err)
	assert.Len(t, set, 3)

	set, err = d.Detect(ctx, framesource.Frame{Index: 1}, 140)
	require.NoError(t, err)
	assert.True(t, set.Empty())

	_, err = d.Detect(ctx, framesource.Frame{Index: 2}, 180)
	assert.ErrorIs(t, err, ErrDetectionFailure)

	set, err = d.Detect(ctx, framesource.Frame{Index: 3}, 220)
	require.NoError(t, err, "past the recording")
	assert.True(t, set.Empty())

	assert.Equal(t, []int64{100, 140, 180, 220}, d.Calls())
}

func TestFixtureDetector_MonotonicContract(t *testing.T) {
	d := NewFixtureDetector(Options{}, []FixtureFrame{
		{Landmarks: UniformLandmarks(1, 0, 0, 0)},
		{Landmarks: UniformLandmarks(1, 0, 0, 0)},
	})
	ctx := context.Background()

	_, err := d.Detect(ctx, framesource.Frame{Index: 1}, 500)
	require.NoError(t, err)

	_, err = d.Detect(ctx, framesource.Frame{Index: 0}, 400)
	assert.ErrorIs(t, err, ErrDetectionFailure)
}

func TestFixtureDetectors_AreIndependent(t *testing.T) {
	opts := Options{View: ViewFront}
	frames := []FixtureFrame{{Landmarks: UniformLandmarks(2, 0.5, 0.5, 0)}}
	front := NewFixtureDetector(opts, frames)
	opts.View = ViewSide
	side := NewFixtureDetector(opts, frames)
	ctx := context.Background()

	// Same timestamp on both views, then the side advances alone.
	_, err := front.Detect(ctx, framesource.Frame{Index: 0}, 100)
	require.NoError(t, err)
	_, err = side.Detect(ctx, framesource.Frame{Index: 0}, 100)
	require.NoError(t, err)
	_, err = side.Detect(ctx, framesource.Frame{Index: 0}, 900)
	require.NoError(t, err)

	_, err = front.Detect(ctx, framesource.Frame{Index: 0}, 140)
	assert.NoError(t, err, "front timestamps are tracked separately from side")
	assert.Equal(t, ViewFront, front.opts.View)
}

func TestFixtureDetector_Close(t *testing.T) {
	d := NewFixtureDetector(Options{}, nil)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Equal(t, 2, d.CloseCount())

	_, err := d.Detect(context.Background(), framesource.Frame{}, 100)
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestFixtureDetector_ContextCancelled(t *testing.T) {
	d := NewFixtureDetector(Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Detect(ctx, framesource.Frame{}, 100)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, d.Calls())
}

func TestLoadFixture(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.AddFile("/fx/session.json", []byte(`{
		"fps": 25,
		"front": [{"landmarks": [{"x": 0.1, "y": 0.2, "z": 0.0, "visibility": 0.9}]}, {"fail": "boom"}],
		"side":  [{"landmarks": [{"x": 0.7, "y": 0.2, "z": 0.0, "visibility": 0.9}]}, {}, {}]
	}`))

	fx, err := LoadFixture(fsys, "/fx/session.json")
	require.NoError(t, err)
	assert.Equal(t, 25.0, fx.FPS)
	assert.Equal(t, 2, fx.Frames())
	assert.Equal(t, 64, fx.Width)
	assert.Equal(t, 48, fx.Height)
	assert.Equal(t, 0.7, fx.Side[0].Landmarks[0].X)
	assert.Equal(t, "boom", fx.Front[1].Fail)

	_, err = LoadFixture(fsys, "/fx/missing.json")
	assert.Error(t, err)

	fsys.AddFile("/fx/bad.json", []byte(`{`))
	_, err = LoadFixture(fsys, "/fx/bad.json")
	assert.Error(t, err)
}
