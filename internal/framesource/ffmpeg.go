package framesource

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/banshee-data/posecapture/internal/fsutil"
)

// FFmpegOpener decodes origins to raw RGB24 through an ffmpeg subprocess.
// Stream geometry and frame rate come from ffprobe.
type FFmpegOpener struct {
	FFmpegPath  string
	FFprobePath string
	FS          fsutil.FileSystem
}

// NewFFmpegOpener returns an opener using the given binaries on the real
// filesystem. Empty paths default to "ffmpeg" and "ffprobe".
func NewFFmpegOpener(ffmpegPath, ffprobePath string) *FFmpegOpener {
	return &FFmpegOpener{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, FS: fsutil.OSFileSystem{}}
}

func (o *FFmpegOpener) binaries() (string, string) {
	ffmpeg := strings.TrimSpace(o.FFmpegPath)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	ffprobe := strings.TrimSpace(o.FFprobePath)
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	return ffmpeg, ffprobe
}

// input returns the ffmpeg input arguments and the path that must exist.
func input(origin Origin) (args []string, path string) {
	if origin.IsDevice() {
		dev := origin.DevicePath()
		return []string{"-f", "v4l2", "-i", dev}, dev
	}
	return []string{"-i", origin.Path}, origin.Path
}

// Open probes origin and starts the decoder.
func (o *FFmpegOpener) Open(ctx context.Context, origin Origin) (Stream, error) {
	fsys := o.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	ffmpeg, ffprobe := o.binaries()

	in, path := input(origin)
	if !fsys.Exists(path) {
		return nil, fmt.Errorf("%w: %s does not exist", ErrSourceUnavailable, path)
	}

	info, err := probe(ctx, ffprobe, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	args := append([]string{"-hide_banner", "-loglevel", "error", "-nostdin"}, in...)
	args = append(args, "-f", "rawvideo", "-pix_fmt", "rgb24", "-")

	// The decoder outlives Open, so it is bound to its own context and stopped
	// by Close rather than by the caller's ctx.
	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, ffmpeg, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: ffmpeg stdout: %v", ErrSourceUnavailable, err)
	}
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrSourceUnavailable, err)
	}

	return &ffmpegStream{
		origin: origin,
		info:   info,
		cmd:    cmd,
		cancel: cancel,
		out:    bufio.NewReaderSize(stdout, info.frameSize()),
		stderr: stderr,
	}, nil
}

// streamInfo is the subset of ffprobe output the decoder needs.
type streamInfo struct {
	Width  int
	Height int
	FPS    float64
}

func (i streamInfo) frameSize() int { return i.Width * i.Height * 3 }

type probeResult struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

func probe(ctx context.Context, binary string, in []string) (streamInfo, error) {
	args := []string{"-v", "error", "-hide_banner", "-select_streams", "v:0", "-show_streams", "-of", "json"}
	args = append(args, in...)
	// ffprobe takes the input without -i.
	args = removeInputFlag(args)

	output, err := exec.CommandContext(ctx, binary, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return streamInfo{}, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return streamInfo{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbe(output)
}

func removeInputFlag(args []string) []string {
	out := args[:0:0]
	for _, a := range args {
		if a == "-i" {
			continue
		}
		out = append(out, a)
	}
	return out
}

func parseProbe(output []byte) (streamInfo, error) {
	var res probeResult
	if err := json.Unmarshal(output, &res); err != nil {
		return streamInfo{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	for _, s := range res.Streams {
		if s.CodecType != "" && !strings.EqualFold(s.CodecType, "video") {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			return streamInfo{}, fmt.Errorf("ffprobe: invalid frame size %dx%d", s.Width, s.Height)
		}
		fps := parseRate(s.AvgFrameRate)
		if fps <= 0 {
			fps = parseRate(s.RFrameRate)
		}
		return streamInfo{Width: s.Width, Height: s.Height, FPS: fps}, nil
	}
	return streamInfo{}, errors.New("ffprobe: no video stream")
}

// parseRate parses ffprobe rates such as "30000/1001" or "25". Unparseable
// or undefined rates yield 0.
func parseRate(v string) float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	num, den, found := strings.Cut(v, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

type ffmpegStream struct {
	origin Origin
	info   streamInfo
	cmd    *exec.Cmd
	cancel context.CancelFunc
	out    *bufio.Reader
	stderr *tailBuffer

	next      int64
	closeOnce sync.Once
	closeErr  error
}

func (s *ffmpegStream) Read() (Frame, error) {
	buf := make([]byte, s.info.frameSize())
	if _, err := io.ReadFull(s.out, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if msg := s.stderr.String(); msg != "" {
				logf("ffmpeg %s: %s", s.origin, msg)
			}
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("read %s: %w", s.origin, err)
	}
	f := Frame{Index: s.next, Width: s.info.Width, Height: s.info.Height, Pix: buf}
	s.next++
	return f, nil
}

func (s *ffmpegStream) FPS() float64 { return s.info.FPS }

func (s *ffmpegStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		// Wait reports the kill as an error; only surface unexpected ones.
		if err := s.cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				s.closeErr = fmt.Errorf("wait ffmpeg %s: %w", s.origin, err)
			}
		}
	})
	return s.closeErr
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(t.buf.String())
}
