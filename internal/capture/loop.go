// Package capture runs the per-frame pipeline of a session: read a frame
// pair, stamp it, detect landmarks in both views, fuse and persist.
//
// Per-frame problems never end a session. A detection failure skips the
// frame, an empty pose in either view drops it silently and a landmark count
// mismatch drops it with a log line. Only end of stream, cancellation of the
// context or a sink write error end Run.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/banshee-data/posecapture/internal/framesource"
	"github.com/banshee-data/posecapture/internal/fusion"
	"github.com/banshee-data/posecapture/internal/monitoring"
	"github.com/banshee-data/posecapture/internal/pose"
	"github.com/banshee-data/posecapture/internal/sink"
	"github.com/banshee-data/posecapture/internal/timeutil"
)

var logf = monitoring.Component("capture")

// FrameReader yields frame pairs until io.EOF.
type FrameReader interface {
	Read() (framesource.RawFramePair, error)
	Release() error
}

// Gate decides whether fused records are committed.
type Gate interface {
	IsExercising() bool
}

// Renderer receives every frame that was read and detected without error.
// Errors are logged and never end the session.
type Renderer interface {
	Render(frameIndex int64, pair framesource.RawFramePair, front, side pose.LandmarkSet) error
}

// Config wires a Loop. Source, Front, Side and Sink are owned by the Loop
// from construction on and released exactly once.
type Config struct {
	Source FrameReader
	Front  pose.Detector
	Side   pose.Detector
	Sink   sink.RecordSink
	Clock  timeutil.FrameClock

	// WallClock measures elapsed processing time. Nil uses the real clock.
	WallClock timeutil.Clock

	// Gate is consulted only when GateOnExercising is set. Ungated, records
	// are committed whatever the session state.
	Gate             Gate
	GateOnExercising bool

	Renderer Renderer
}

// Stats summarises a run.
type Stats struct {
	FramesRead        int64 `json:"frames_read"`
	FramesFused       int64 `json:"frames_fused"`
	EmptyPoseFrames   int64 `json:"empty_pose_frames"`
	DetectionFailures int64 `json:"detection_failures"`
	MismatchedFrames  int64 `json:"mismatched_frames"`
	GatedFrames       int64 `json:"gated_frames"`
	RecordsWritten    int64 `json:"records_written"`
	LastTimestampMs   int64 `json:"last_timestamp_ms"`
	ElapsedMs         int64 `json:"elapsed_ms"`
}

// ProcessingFPS returns frames read per second of wall time, or 0 before
// any time has elapsed.
func (s Stats) ProcessingFPS() float64 {
	if s.ElapsedMs <= 0 {
		return 0
	}
	return float64(s.FramesRead) * 1000 / float64(s.ElapsedMs)
}

// Loop is the capture orchestrator.
type Loop struct {
	cfg Config

	releaseOnce sync.Once
	releaseErr  error

	statsMu sync.Mutex
	live    Stats
}

// NewLoop validates cfg. On error nothing is released; the caller still owns
// the resources.
func NewLoop(cfg Config) (*Loop, error) {
	switch {
	case cfg.Source == nil:
		return nil, errors.New("capture: nil frame source")
	case cfg.Front == nil || cfg.Side == nil:
		return nil, errors.New("capture: both detectors are required")
	case sameDetector(cfg.Front, cfg.Side):
		return nil, errors.New("capture: front and side must be separate detector instances")
	case cfg.Sink == nil:
		return nil, errors.New("capture: nil record sink")
	case cfg.GateOnExercising && cfg.Gate == nil:
		return nil, errors.New("capture: gating enabled without a gate")
	}
	if cfg.Clock == (timeutil.FrameClock{}) {
		cfg.Clock = timeutil.NewFrameClock(0, 0)
	}
	if cfg.WallClock == nil {
		cfg.WallClock = timeutil.RealClock{}
	}
	return &Loop{cfg: cfg}, nil
}

// sameDetector reports whether a and b are the same instance. Detectors of an
// uncomparable dynamic type cannot alias one another through the interface,
// so they are treated as distinct.
func sameDetector(a, b pose.Detector) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// Run processes frames until end of stream or ctx is cancelled, both of which
// are normal termination. It returns an error only when the sink fails.
// Every owned resource is released before Run returns.
func (l *Loop) Run(ctx context.Context) (stats Stats, err error) {
	defer func() {
		l.publish(stats)
		if rerr := l.Close(); rerr != nil {
			logf("releasing resources: %v", rerr)
			if err == nil {
				err = rerr
			}
		}
	}()

	logf("starting at %.2f fps, first timestamp %d ms", l.cfg.Clock.FPS(), l.cfg.Clock.StartOffsetMs())

	started := l.cfg.WallClock.Now()
	var frameIndex int64
	for {
		if ctx.Err() != nil {
			logf("stopped after %d frames: %v", stats.FramesRead, ctx.Err())
			return stats, nil
		}

		pair, rerr := l.cfg.Source.Read()
		if errors.Is(rerr, io.EOF) {
			logf("end of stream after %d frames", stats.FramesRead)
			return stats, nil
		}
		if rerr != nil {
			logf("frame source: %v", rerr)
			return stats, nil
		}
		stats.FramesRead++

		ts := l.cfg.Clock.Timestamp(frameIndex)
		stats.LastTimestampMs = ts

		err := l.step(ctx, frameIndex, ts, pair, &stats)
		stats.ElapsedMs = l.cfg.WallClock.Since(started).Milliseconds()
		if err != nil {
			return stats, err
		}
		l.publish(stats)
		frameIndex++
	}
}

func (l *Loop) publish(s Stats) {
	l.statsMu.Lock()
	l.live = s
	l.statsMu.Unlock()
}

// Stats returns the counters as of the last completed frame. It is safe to
// call while Run is in progress.
func (l *Loop) Stats() Stats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.live
}

// step runs one iteration after the pair has been read. It returns an error
// only for sink failures.
func (l *Loop) step(ctx context.Context, frameIndex, ts int64, pair framesource.RawFramePair, stats *Stats) error {
	front, side, derr := l.detect(ctx, pair, ts)
	if derr != nil {
		if ctx.Err() != nil {
			return nil
		}
		stats.DetectionFailures++
		logf("frame %d (ts %d ms) skipped: %v", frameIndex, ts, derr)
		return nil
	}

	switch {
	case front.Empty() || side.Empty():
		stats.EmptyPoseFrames++
	default:
		records, ferr := fusion.Fuse(ts, front, side)
		if ferr != nil {
			stats.MismatchedFrames++
			logf("frame %d (ts %d ms) dropped: %v", frameIndex, ts, ferr)
			break
		}
		if l.cfg.GateOnExercising && !l.cfg.Gate.IsExercising() {
			stats.GatedFrames++
			break
		}
		if err := l.cfg.Sink.Append(records); err != nil {
			return fmt.Errorf("append frame %d (ts %d ms): %w", frameIndex, ts, err)
		}
		stats.FramesFused++
		stats.RecordsWritten += int64(len(records))
	}

	if l.cfg.Renderer != nil {
		if err := l.cfg.Renderer.Render(frameIndex, pair, front, side); err != nil {
			logf("render frame %d: %v", frameIndex, err)
		}
	}
	return nil
}

// detect runs both detectors on the same timestamp concurrently and waits
// for both. Each detector is only ever called from this goroutine pair, one
// call at a time.
func (l *Loop) detect(ctx context.Context, pair framesource.RawFramePair, ts int64) (front, side pose.LandmarkSet, err error) {
	var (
		wg         sync.WaitGroup
		ferr, serr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		front, ferr = l.cfg.Front.Detect(ctx, pair.Front, ts)
	}()
	go func() {
		defer wg.Done()
		side, serr = l.cfg.Side.Detect(ctx, pair.Side, ts)
	}()
	wg.Wait()

	if ferr != nil {
		ferr = fmt.Errorf("front: %w", ferr)
	}
	if serr != nil {
		serr = fmt.Errorf("side: %w", serr)
	}
	if err := errors.Join(ferr, serr); err != nil {
		return nil, nil, err
	}
	return front, side, nil
}

// Close releases the frame source, both detectors and the sink. It is safe
// to call more than once and is called by Run.
func (l *Loop) Close() error {
	l.releaseOnce.Do(func() {
		l.releaseErr = errors.Join(
			l.cfg.Source.Release(),
			l.cfg.Front.Close(),
			l.cfg.Side.Close(),
			l.cfg.Sink.Close(),
		)
	})
	return l.releaseErr
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(frameIndex int64, pair framesource.RawFramePair, front, side pose.LandmarkSet) error

// Render calls f.
func (f RendererFunc) Render(frameIndex int64, pair framesource.RawFramePair, front, side pose.LandmarkSet) error {
	return f(frameIndex, pair, front, side)
}
