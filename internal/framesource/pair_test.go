package framesource

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/posecapture/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestParseOrigin(t *testing.T) {
	tests := []struct {
		in       string
		device   bool
		index    int
		path     string
		wantErr  bool
		wantText string
	}{
		{in: "0", device: true, index: 0, wantText: "0"},
		{in: " 2 ", device: true, index: 2, wantText: "2"},
		{in: "front.mp4", path: "front.mp4", wantText: "front.mp4"},
		{in: "/data/side 1.avi", path: "/data/side 1.avi", wantText: "/data/side 1.avi"},
		{in: "-1", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		o, err := ParseOrigin(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			assert.ErrorIs(t, err, ErrSourceUnavailable)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.device, o.IsDevice(), tt.in)
		assert.Equal(t, tt.wantText, o.String())
		if tt.device {
			assert.Equal(t, tt.index, o.Device)
		} else {
			assert.Equal(t, tt.path, o.Path)
		}
	}

	assert.Equal(t, "/dev/video3", DeviceOrigin(3).DevicePath())
}

func TestOpen_BothAvailable(t *testing.T) {
	front := NewMemoryStream(25, BlankFrames(2, 4, 2)...)
	side := NewMemoryStream(30, BlankFrames(2, 4, 2)...)
	opener := NewMemoryOpener().
		Add(FileOrigin("front"), front).
		Add(FileOrigin("side"), side)

	p, err := Open(context.Background(), opener, FileOrigin("front"), FileOrigin("side"))
	require.NoError(t, err)
	defer p.Release()

	assert.Equal(t, 25.0, p.FPS(), "fps comes from the front stream")

	pair, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pair.Front.Index)
	assert.Equal(t, int64(0), pair.Side.Index)
}

func TestOpen_SideUnavailableReleasesFront(t *testing.T) {
	front := NewMemoryStream(25, BlankFrames(1, 2, 2)...)
	opener := NewMemoryOpener().Add(FileOrigin("front"), front)

	_, err := Open(context.Background(), opener, FileOrigin("front"), FileOrigin("missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "side")
	assert.Equal(t, 1, front.CloseCount())
}

func TestOpen_FrontUnavailable(t *testing.T) {
	side := NewMemoryStream(25)
	opener := NewMemoryOpener().Add(FileOrigin("side"), side)

	_, err := Open(context.Background(), opener, FileOrigin("missing"), FileOrigin("side"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, 0, side.CloseCount(), "side is never opened")
}

func TestOpen_WrapsForeignErrors(t *testing.T) {
	opener := OpenerFunc(func(context.Context, Origin) (Stream, error) {
		return nil, errors.New("device busy")
	})
	_, err := Open(context.Background(), opener, DeviceOrigin(0), DeviceOrigin(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Contains(t, err.Error(), "device busy")

	_, err = Open(context.Background(), nil, DeviceOrigin(0), DeviceOrigin(1))
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestPair_ReadEndsWhenEitherStreamEnds(t *testing.T) {
	tests := []struct {
		name      string
		front     int
		side      int
		wantPairs int
	}{
		{"equal length", 3, 3, 3},
		{"front shorter", 2, 5, 2},
		{"side shorter", 5, 1, 1},
		{"both empty", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPair(
				NewMemoryStream(30, BlankFrames(tt.front, 1, 1)...),
				NewMemoryStream(30, BlankFrames(tt.side, 1, 1)...),
			)
			defer p.Release()

			got := 0
			for {
				pair, err := p.Read()
				if errors.Is(err, io.EOF) {
					break
				}
				require.NoError(t, err)
				assert.Equal(t, pair.Front.Index, pair.Side.Index)
				got++
			}
			assert.Equal(t, tt.wantPairs, got)

			_, err := p.Read()
			assert.ErrorIs(t, err, io.EOF, "stays at end of stream")
		})
	}
}

func TestPair_ReadErrorIsEndOfStream(t *testing.T) {
	front := NewMemoryStream(30, BlankFrames(1, 1, 1)...).FailAfterEnd(errors.New("decoder crashed"))
	side := NewMemoryStream(30, BlankFrames(3, 1, 1)...)
	p := NewPair(front, side)

	_, err := p.Read()
	require.NoError(t, err)
	_, err = p.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestPair_ReleaseIsIdempotent(t *testing.T) {
	front := NewMemoryStream(30, BlankFrames(2, 1, 1)...)
	side := NewMemoryStream(30, BlankFrames(2, 1, 1)...)
	p := NewPair(front, side)

	require.NoError(t, p.Release())
	require.NoError(t, p.Release())
	assert.Equal(t, 1, front.CloseCount())
	assert.Equal(t, 1, side.CloseCount())

	_, err := p.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameImage(t *testing.T) {
	f := Frame{Width: 2, Height: 1, Pix: []byte{10, 20, 30, 40, 50, 60}}
	img := f.Image()

	r, g, b, a := img.At(1, 0).RGBA()
	assert.Equal(t, uint32(40), r>>8)
	assert.Equal(t, uint32(50), g>>8)
	assert.Equal(t, uint32(60), b>>8)
	assert.Equal(t, uint32(0xff), a>>8)

	img.Pix[0] = 99
	assert.Equal(t, byte(10), f.Pix[0], "image does not alias frame data")
}
