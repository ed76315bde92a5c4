package pose

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/posecapture/internal/framesource"
	"github.com/banshee-data/posecapture/internal/fsutil"
	"github.com/banshee-data/posecapture/internal/monitoring"
)

const helperEnv = "POSECAPTURE_FAKE_POSE_WORKER"

// TestFakeWorkerProcess is not a real test. It is re-executed by the worker
// tests as the child process and speaks the worker line protocol.
func TestFakeWorkerProcess(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		return
	}
	defer os.Exit(0)

	out := json.NewEncoder(os.Stdout)
	if mode == "fail-start" {
		_ = out.Encode(map[string]any{"error": "model load failed"})
		return
	}
	_ = out.Encode(map[string]any{"ready": true})
	fmt.Fprintln(os.Stderr, "fake worker ready")

	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for in.Scan() {
		var req workerRequest
		if err := json.Unmarshal(in.Bytes(), &req); err != nil {
			_ = out.Encode(map[string]any{"error": err.Error()})
			continue
		}
		if mode == "reject-2" && req.Seq == 2 {
			_ = out.Encode(map[string]any{"seq": 0, "error": "unreadable request"})
			continue
		}
		if mode == "error-on-2" && req.Seq == 2 {
			_ = out.Encode(map[string]any{"seq": req.Seq, "error": "inference failed"})
			continue
		}
		landmarks := make([]Landmark, 3)
		for i := range landmarks {
			landmarks[i] = Landmark{X: float64(req.Width) / 100, Y: float64(i) / 10, Z: float64(req.TimestampMs), Visibility: 1}
		}
		_ = out.Encode(map[string]any{
			"seq":    req.Seq,
			"data":   map[string]any{"landmarks": landmarks},
			"timing": map[string]any{"total_ms": 1.5},
		})
	}
}

func fakeWorkerOptions(t *testing.T, mode string) Options {
	t.Helper()
	t.Setenv(helperEnv, mode)
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	fsys := fsutil.NewMemoryFileSystem()
	fsys.AddFile("/models/pose.task", []byte("model"))
	return Options{
		View:      ViewFront,
		ModelPath: "/models/pose.task",
		Command:   []string{os.Args[0], "-test.run=^TestFakeWorkerProcess$", "--"},
		FS:        fsys,
	}
}

func TestWorkerDetector_DetectsThroughSubprocess(t *testing.T) {
	d, err := NewWorkerDetector(context.Background(), fakeWorkerOptions(t, "ok"))
	require.NoError(t, err)
	defer d.Close()

	frame := framesource.Frame{Index: 0, Width: 50, Height: 2, Pix: make([]byte, 50*2*3)}
	set, err := d.Detect(context.Background(), frame, 100)
	require.NoError(t, err)
	require.Len(t, set, 3)
	assert.Equal(t, 0.5, set[0].X)
	assert.Equal(t, 100.0, set[2].Z)

	_, err = d.Detect(context.Background(), frame, 90)
	assert.ErrorIs(t, err, ErrDetectionFailure, "timestamps may not go backwards")

	set, err = d.Detect(context.Background(), frame, 140)
	require.NoError(t, err)
	assert.Equal(t, 140.0, set[0].Z)
}

func TestWorkerDetector_WorkerErrorIsRecoverable(t *testing.T) {
	d, err := NewWorkerDetector(context.Background(), fakeWorkerOptions(t, "error-on-2"))
	require.NoError(t, err)
	defer d.Close()

	frame := framesource.Frame{Width: 10, Height: 1, Pix: make([]byte, 30)}
	_, err = d.Detect(context.Background(), frame, 100)
	require.NoError(t, err)

	_, err = d.Detect(context.Background(), frame, 140)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDetectionFailure)
	assert.Contains(t, err.Error(), "inference failed")

	_, err = d.Detect(context.Background(), frame, 180)
	assert.NoError(t, err)
}

func TestWorkerDetector_UnparsedRequestFailsCall(t *testing.T) {
	d, err := NewWorkerDetector(context.Background(), fakeWorkerOptions(t, "reject-2"))
	require.NoError(t, err)
	defer d.Close()

	frame := framesource.Frame{Width: 10, Height: 1, Pix: make([]byte, 30)}
	_, err = d.Detect(context.Background(), frame, 100)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = d.Detect(ctx, frame, 140)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDetectionFailure)
	assert.Contains(t, err.Error(), "unreadable request")

	set, err := d.Detect(context.Background(), frame, 180)
	require.NoError(t, err)
	assert.Equal(t, 180.0, set[0].Z)
}

func TestWorkerDetector_StartupFailure(t *testing.T) {
	_, err := NewWorkerDetector(context.Background(), fakeWorkerOptions(t, "fail-start"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Contains(t, err.Error(), "model load failed")
}

func TestWorkerDetector_MissingModel(t *testing.T) {
	opts := fakeWorkerOptions(t, "ok")
	opts.ModelPath = "/models/absent.task"

	_, err := NewWorkerDetector(context.Background(), opts)
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestWorkerDetector_CloseIsIdempotent(t *testing.T) {
	d, err := NewWorkerDetector(context.Background(), fakeWorkerOptions(t, "ok"))
	require.NoError(t, err)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	_, err = d.Detect(context.Background(), framesource.Frame{}, 100)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWorkerArgs(t *testing.T) {
	args := workerArgs(Options{
		View:                       ViewSide,
		ModelPath:                  "m.task",
		MinPoseDetectionConfidence: 0.5,
		MinTrackingConfidence:      0.25,
	})
	assert.Equal(t, []string{
		"--model", "m.task",
		"--view", "side",
		"--min-pose-detection-confidence", "0.5",
		"--min-tracking-confidence", "0.25",
	}, args)
}
