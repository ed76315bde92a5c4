package framesource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/posecapture/internal/fsutil"
)

func TestParseRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"25/1", 25},
		{"30000/1001", 30000.0 / 1001.0},
		{"30", 30},
		{"0/0", 0},
		{"", 0},
		{"abc", 0},
		{"30/x", 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, parseRate(tt.in), 1e-9, tt.in)
	}
}

func TestParseProbe(t *testing.T) {
	out := []byte(`{"streams":[{"codec_type":"video","width":640,"height":480,"r_frame_rate":"30/1","avg_frame_rate":"25/1"}]}`)
	info, err := parseProbe(out)
	require.NoError(t, err)
	assert.Equal(t, streamInfo{Width: 640, Height: 480, FPS: 25}, info)
	assert.Equal(t, 640*480*3, info.frameSize())

	out = []byte(`{"streams":[{"codec_type":"video","width":320,"height":240,"r_frame_rate":"15/1","avg_frame_rate":"0/0"}]}`)
	info, err = parseProbe(out)
	require.NoError(t, err)
	assert.Equal(t, 15.0, info.FPS, "falls back to r_frame_rate")

	_, err = parseProbe([]byte(`{"streams":[]}`))
	assert.Error(t, err)

	_, err = parseProbe([]byte(`{"streams":[{"codec_type":"video","width":0,"height":0}]}`))
	assert.Error(t, err)

	_, err = parseProbe([]byte(`not json`))
	assert.Error(t, err)
}

func TestInputArgs(t *testing.T) {
	args, path := input(DeviceOrigin(1))
	assert.Equal(t, []string{"-f", "v4l2", "-i", "/dev/video1"}, args)
	assert.Equal(t, "/dev/video1", path)
	assert.Equal(t, []string{"-f", "v4l2", "/dev/video1"}, removeInputFlag(args))

	args, path = input(FileOrigin("clip.mp4"))
	assert.Equal(t, []string{"-i", "clip.mp4"}, args)
	assert.Equal(t, "clip.mp4", path)
}

func TestFFmpegOpener_MissingOriginIsUnavailable(t *testing.T) {
	opener := &FFmpegOpener{FS: fsutil.NewMemoryFileSystem()}

	_, err := opener.Open(context.Background(), FileOrigin("/videos/front.mp4"))
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	_, err = opener.Open(context.Background(), DeviceOrigin(7))
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestFFmpegOpener_ProbeFailureIsUnavailable(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.AddFile("/videos/front.mp4", []byte("not a video"))
	opener := &FFmpegOpener{FFprobePath: "/nonexistent/ffprobe", FS: fsys}

	_, err := opener.Open(context.Background(), FileOrigin("/videos/front.mp4"))
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{limit: 5}
	_, _ = tb.Write([]byte("hello "))
	_, _ = tb.Write([]byte("world"))
	assert.Equal(t, "world", tb.String())
}
