package pose

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/posecapture/internal/framesource"
	"github.com/banshee-data/posecapture/internal/monitoring"
)

const (
	defaultStartupTimeout = 30 * time.Second
	stopGracePeriod       = 2 * time.Second
)

// WorkerDetector runs a pose landmarker in a child process and talks to it
// with one JSON object per line on stdin and stdout. Each WorkerDetector owns
// its own process, so landmarker state is never shared between views.
type WorkerDetector struct {
	opts  Options
	logf  func(format string, v ...interface{})
	guard timestampGuard

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan []byte
	done   chan struct{}
	exited chan struct{}

	mu     sync.Mutex // serializes Detect calls
	seq    uint64
	closed atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

type workerRequest struct {
	Seq         uint64 `json:"seq"`
	TimestampMs int64  `json:"timestamp_ms"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	FrameData   string `json:"frame_data"`
}

type workerResponse struct {
	Ready bool   `json:"ready,omitempty"`
	Seq   uint64 `json:"seq"`
	Error string `json:"error,omitempty"`
	Data  struct {
		Landmarks LandmarkSet `json:"landmarks"`
	} `json:"data"`
	Timing struct {
		TotalMs float64 `json:"total_ms"`
	} `json:"timing"`
}

// NewWorkerDetector checks the model asset, starts the worker process and
// waits for it to report ready. ctx bounds only the startup handshake.
func NewWorkerDetector(ctx context.Context, opts Options) (*WorkerDetector, error) {
	opts = opts.clone()
	if err := opts.checkModel(); err != nil {
		return nil, err
	}
	if len(opts.Command) == 0 {
		return nil, errors.New("pose worker: empty command")
	}

	args := append(opts.Command[1:len(opts.Command):len(opts.Command)], workerArgs(opts)...)
	cmd := exec.Command(opts.Command[0], args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("pose worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pose worker stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("pose worker stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start pose worker %q: %w", opts.Command[0], err)
	}

	d := &WorkerDetector{
		opts:   opts,
		logf:   monitoring.Component("pose/" + string(opts.View)),
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan []byte, 4),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		d.readStdout(stdout)
	}()
	go func() {
		defer readers.Done()
		d.logStderr(stderr)
	}()
	go func() {
		readers.Wait()
		if err := cmd.Wait(); err != nil && !d.closed.Load() {
			d.logf("worker exited: %v", err)
		}
		close(d.exited)
	}()

	if err := d.handshake(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func workerArgs(opts Options) []string {
	args := []string{"--model", opts.ModelPath}
	if opts.View != "" {
		args = append(args, "--view", string(opts.View))
	}
	if opts.MinPoseDetectionConfidence > 0 {
		args = append(args, "--min-pose-detection-confidence", formatFloat(opts.MinPoseDetectionConfidence))
	}
	if opts.MinPosePresenceConfidence > 0 {
		args = append(args, "--min-pose-presence-confidence", formatFloat(opts.MinPosePresenceConfidence))
	}
	if opts.MinTrackingConfidence > 0 {
		args = append(args, "--min-tracking-confidence", formatFloat(opts.MinTrackingConfidence))
	}
	return args
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (d *WorkerDetector) handshake(ctx context.Context) error {
	timer := time.NewTimer(defaultStartupTimeout)
	defer timer.Stop()

	select {
	case line := <-d.lines:
		var resp workerResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return fmt.Errorf("%w: bad handshake %q: %v", ErrModelUnavailable, truncate(line), err)
		}
		if resp.Error != "" {
			return fmt.Errorf("%w: %s", ErrModelUnavailable, resp.Error)
		}
		if !resp.Ready {
			return fmt.Errorf("%w: worker did not report ready", ErrModelUnavailable)
		}
		return nil
	case <-d.exited:
		return fmt.Errorf("%w: worker exited during startup", ErrModelUnavailable)
	case <-timer.C:
		return fmt.Errorf("%w: worker startup timed out after %s", ErrModelUnavailable, defaultStartupTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *WorkerDetector) readStdout(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		select {
		case d.lines <- line:
		case <-d.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		d.logf("reading worker stdout: %v", err)
	}
}

func (d *WorkerDetector) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		d.logf("%s", scanner.Text())
	}
}

// Detect sends frame to the worker and waits for its landmarks.
func (d *WorkerDetector) Detect(ctx context.Context, frame framesource.Frame, timestampMs int64) (LandmarkSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed.Load() {
		return nil, ErrClosed
	}
	if err := d.guard.accept(timestampMs); err != nil {
		return nil, err
	}

	d.seq++
	req := workerRequest{
		Seq:         d.seq,
		TimestampMs: timestampMs,
		Width:       frame.Width,
		Height:      frame.Height,
		FrameData:   base64.StdEncoding.EncodeToString(frame.Pix),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrDetectionFailure, err)
	}
	payload = append(payload, '\n')
	if _, err := d.stdin.Write(payload); err != nil {
		return nil, fmt.Errorf("%w: write request: %v", ErrDetectionFailure, err)
	}

	for {
		select {
		case line := <-d.lines:
			var resp workerResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				return nil, fmt.Errorf("%w: decode response %q: %v", ErrDetectionFailure, truncate(line), err)
			}
			if resp.Seq == 0 && resp.Error != "" {
				// The worker could not parse the request, so it has no seq to echo.
				return nil, fmt.Errorf("%w: frame %d at %d ms: worker rejected request: %s", ErrDetectionFailure, frame.Index, timestampMs, resp.Error)
			}
			if resp.Seq < d.seq {
				// Late reply to a call abandoned by context cancellation.
				continue
			}
			if resp.Error != "" {
				return nil, fmt.Errorf("%w: frame %d at %d ms: %s", ErrDetectionFailure, frame.Index, timestampMs, resp.Error)
			}
			return resp.Data.Landmarks, nil
		case <-d.exited:
			return nil, fmt.Errorf("%w: worker exited", ErrDetectionFailure)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close stops the worker. It closes stdin so the worker can exit on its own
// and kills it if it has not exited within a short grace period.
func (d *WorkerDetector) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)

		if err := d.stdin.Close(); err != nil {
			d.logf("closing worker stdin: %v", err)
		}
		select {
		case <-d.exited:
		case <-time.After(stopGracePeriod):
			if err := d.cmd.Process.Kill(); err != nil {
				d.closeErr = fmt.Errorf("kill pose worker: %w", err)
			}
			<-d.exited
		}
	})
	return d.closeErr
}

func truncate(b []byte) string {
	const max = 120
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
