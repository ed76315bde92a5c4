package capture

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/posecapture/internal/framesource"
	"github.com/banshee-data/posecapture/internal/fsutil"
	"github.com/banshee-data/posecapture/internal/pose"
)

func blankPair(w, h int) framesource.RawFramePair {
	frames := framesource.BlankFrames(1, w, h)
	return framesource.RawFramePair{Front: frames[0], Side: frames[0]}
}

func TestAnnotate_SideBySide(t *testing.T) {
	pair := framesource.RawFramePair{
		Front: framesource.BlankFrames(1, 20, 10)[0],
		Side:  framesource.BlankFrames(1, 30, 16)[0],
	}
	front := pose.LandmarkSet{{X: 0.5, Y: 0.5}}
	side := pose.LandmarkSet{{X: 0.1, Y: 0.9}}

	img := Annotate(pair, front, side)

	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())
	assert.Equal(t, landmarkColor, img.RGBAAt(10, 5), "front dot centre")
	assert.Equal(t, landmarkColor, img.RGBAAt(20+3, 14), "side dot is offset by the front width")
	assert.Equal(t, uint8(0), img.RGBAAt(0, 15).R, "padding below the shorter view stays empty")
}

func TestAnnotate_OffFrameLandmarksAreClipped(t *testing.T) {
	pair := blankPair(8, 8)
	img := Annotate(pair, pose.LandmarkSet{{X: -2, Y: 5}}, nil)
	for x := 0; x < 16; x++ {
		for y := 0; y < 8; y++ {
			require.NotEqual(t, landmarkColor, img.RGBAAt(x, y))
		}
	}
}

func TestSnapshotRenderer_WritesEveryNth(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	r := &SnapshotRenderer{FS: fsys, Dir: "out/snaps", Every: 2}

	for i := int64(0); i < 5; i++ {
		require.NoError(t, r.Render(i, blankPair(8, 6), nil, nil))
	}

	assert.Equal(t, 3, r.Written())
	for _, name := range []string{"out/snaps/frame_000000.png", "out/snaps/frame_000002.png", "out/snaps/frame_000004.png"} {
		data, err := fsys.ReadFile(name)
		require.NoError(t, err, name)
		img, err := png.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, 16, img.Bounds().Dx())
	}
	assert.False(t, fsys.Exists("out/snaps/frame_000001.png"))
}

func TestSnapshotRenderer_Disabled(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	r := &SnapshotRenderer{FS: fsys, Dir: "snaps"}
	require.NoError(t, r.Render(0, blankPair(4, 4), nil, nil))
	assert.Equal(t, 0, r.Written())
	assert.False(t, fsys.Exists("snaps"))
}
