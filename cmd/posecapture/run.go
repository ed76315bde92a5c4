package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/posecapture/internal/capture"
	"github.com/banshee-data/posecapture/internal/commandmux"
	"github.com/banshee-data/posecapture/internal/config"
	"github.com/banshee-data/posecapture/internal/db"
	"github.com/banshee-data/posecapture/internal/framesource"
	"github.com/banshee-data/posecapture/internal/httputil"
	"github.com/banshee-data/posecapture/internal/pose"
	"github.com/banshee-data/posecapture/internal/session"
	"github.com/banshee-data/posecapture/internal/sink"
	"github.com/banshee-data/posecapture/internal/timeutil"
)

// captureEnv holds the process-level collaborators of a capture run.
type captureEnv struct {
	stdin       io.Reader
	stdout      io.Writer
	opener      framesource.Opener
	newDetector func(ctx context.Context, opts pose.Options) (pose.Detector, error)
}

type captureResult struct {
	Stats      capture.Stats
	SessionID  string
	FinalState session.State
}

// runCapture performs one session. Errors before the first frame is read
// are startup failures; after that only a sink failure is returned.
func runCapture(ctx context.Context, cfg *config.SessionConfig, env captureEnv) (captureResult, error) {
	var res captureResult
	if err := cfg.ValidateForCapture(); err != nil {
		return res, err
	}
	exercise := cfg.GetExercise()

	frontOrigin, err := framesource.ParseOrigin(cfg.GetFrontOrigin())
	if err != nil {
		return res, fmt.Errorf("front origin: %w", err)
	}
	sideOrigin, err := framesource.ParseOrigin(cfg.GetSideOrigin())
	if err != nil {
		return res, fmt.Errorf("side origin: %w", err)
	}

	// Resources handed to the loop are released by it; until then they are
	// released here on failure.
	var undo []func() error
	fail := func(err error) (captureResult, error) {
		for i := len(undo) - 1; i >= 0; i-- {
			if cerr := undo[i](); cerr != nil {
				logf("cleanup: %v", cerr)
			}
		}
		return res, err
	}

	pair, err := framesource.Open(ctx, env.opener, frontOrigin, sideOrigin)
	if err != nil {
		return res, err
	}
	undo = append(undo, pair.Release)

	fps := pair.FPS()
	if fps <= 0 {
		fps = cfg.GetFallbackFPS()
		logf("source reports no frame rate, using %.2f fps", fps)
	}
	clock := timeutil.NewFrameClock(fps, cfg.GetStartOffsetMs())

	frontDet, err := env.newDetector(ctx, detectorOptions(cfg, pose.ViewFront))
	if err != nil {
		return fail(fmt.Errorf("front detector: %w", err))
	}
	undo = append(undo, frontDet.Close)
	sideDet, err := env.newDetector(ctx, detectorOptions(cfg, pose.ViewSide))
	if err != nil {
		return fail(fmt.Errorf("side detector: %w", err))
	}
	undo = append(undo, sideDet.Close)

	var store *db.DB
	if path := cfg.GetOutputDB(); path != "" {
		store, err = db.NewDB(path)
		if err != nil {
			return fail(fmt.Errorf("open session database: %w", err))
		}
		defer store.Close()
		res.SessionID, err = store.StartSession(ctx, db.Session{
			Exercise:      exercise.Key(),
			FrontOrigin:   frontOrigin.String(),
			SideOrigin:    sideOrigin.String(),
			FPS:           clock.FPS(),
			StartOffsetMs: clock.StartOffsetMs(),
		})
		if err != nil {
			return fail(err)
		}
	}

	csvSink, err := sink.CreateCSVFile(cfg.GetOutputCSV())
	if err != nil {
		return fail(err)
	}
	var recordSink sink.RecordSink = csvSink
	if store != nil {
		recordSink = sink.Multi{csvSink, sink.NewDBSink(ctx, store, res.SessionID)}
	}
	undo = append(undo, recordSink.Close)

	src, err := newCommandSource(cfg, env)
	if err != nil {
		return fail(fmt.Errorf("command source: %w", err))
	}
	defer src.Close()

	sm := session.NewStateMachine(exercise)
	sm.OnTransition(transitionRecorder(ctx, store, res.SessionID, src))

	cmdCtx, cancelCmds := context.WithCancel(ctx)
	defer cancelCmds()
	var wg sync.WaitGroup

	loopCfg := capture.Config{
		Source:           pair,
		Front:            frontDet,
		Side:             sideDet,
		Sink:             recordSink,
		Clock:            clock,
		Gate:             sm,
		GateOnExercising: cfg.GetGateOnExercising(),
	}
	if dir, every := cfg.GetSnapshotDir(), cfg.GetSnapshotEvery(); dir != "" && every > 0 {
		loopCfg.Renderer = capture.NewSnapshotRenderer(dir, every)
	}
	loop, err := capture.NewLoop(loopCfg)
	if err != nil {
		return fail(err)
	}
	undo = nil

	if addr := cfg.GetAdminListen(); addr != "" {
		status := func() (interface{}, error) {
			return sessionStatus{
				SessionID: res.SessionID,
				Exercise:  exercise.Key(),
				State:     sm.State().String(),
				Stats:     loop.Stats(),
			}, nil
		}
		if err := startAdmin(cmdCtx, &wg, addr, src, store, status); err != nil {
			cancelCmds()
			wg.Wait()
			loop.Close()
			return res, fmt.Errorf("admin listener: %w", err)
		}
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := src.Monitor(cmdCtx); err != nil && !errors.Is(err, context.Canceled) {
			logf("command source: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		commandmux.Pump(cmdCtx, src, sm)
	}()

	logf("capturing %s session: front %s, side %s, %.2f fps", exercise, frontOrigin, sideOrigin, clock.FPS())
	stats, runErr := loop.Run(ctx)
	cancelCmds()
	wg.Wait()

	res.Stats = stats
	res.FinalState = sm.State()
	if store != nil {
		endCtx := context.WithoutCancel(ctx)
		if err := store.EndSession(endCtx, res.SessionID, db.SessionTotals{
			FramesRead:     stats.FramesRead,
			FramesFused:    stats.FramesFused,
			RecordsWritten: stats.RecordsWritten,
		}); err != nil {
			logf("end session: %v", err)
		}
	}
	return res, runErr
}

func detectorOptions(cfg *config.SessionConfig, view pose.View) pose.Options {
	conf := cfg.GetMinDetectConfidence()
	return pose.Options{
		View:                       view,
		ModelPath:                  cfg.GetModelPath(),
		Command:                    cfg.GetDetectorCommand(),
		MinPoseDetectionConfidence: conf,
		MinPosePresenceConfidence:  conf,
		MinTrackingConfidence:      conf,
	}
}

func newCommandSource(cfg *config.SessionConfig, env captureEnv) (commandmux.Source, error) {
	switch cfg.GetCommandSource() {
	case config.CommandSourceSerial:
		m, err := commandmux.NewSerialCommandMux(cfg.GetSerialPort(), commandmux.PortOptions{BaudRate: cfg.GetSerialBaudRate()})
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.CommandSourceNone:
		return commandmux.NewDisabledCommandMux(), nil
	default:
		return commandmux.NewReaderCommandMux(env.stdin, env.stdout), nil
	}
}

// transitionRecorder logs each state change, echoes it to the command
// device as "STATE <name>" and persists it when a store is configured.
func transitionRecorder(ctx context.Context, store *db.DB, sessionID string, src commandmux.Source) session.TransitionFunc {
	ctx = context.WithoutCancel(ctx)
	return func(from, to session.State, command string) {
		logf("session %s -> %s (%q)", from, to, command)
		if err := src.SendCommand("STATE " + to.String()); err != nil {
			logf("echo state: %v", err)
		}
		if store == nil {
			return
		}
		if err := store.RecordStateEvent(ctx, db.StateEvent{
			SessionID: sessionID,
			From:      from.String(),
			To:        to.String(),
			Command:   command,
		}); err != nil {
			logf("record state event: %v", err)
		}
	}
}

// sessionStatus is served at /debug/session.json while a capture runs.
type sessionStatus struct {
	SessionID string        `json:"session_id,omitempty"`
	Exercise  string        `json:"exercise"`
	State     string        `json:"state"`
	Stats     capture.Stats `json:"stats"`
}

func startAdmin(ctx context.Context, wg *sync.WaitGroup, addr string, src commandmux.Source, store *db.DB, status func() (interface{}, error)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	tsweb.Debugger(mux).HandleFunc("session.json", "Live capture status", httputil.JSONSnapshot(status))
	src.AttachAdminRoutes(mux)
	if store != nil {
		if err := store.AttachAdminRoutes(mux); err != nil {
			ln.Close()
			return err
		}
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	wg.Add(1)
	go func() {
		defer wg.Done()
		go func() {
			if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
				logf("admin server: %v", err)
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logf("admin server shutdown: %v", err)
			if err := server.Close(); err != nil {
				logf("admin server force close: %v", err)
			}
		}
	}()
	logf("debug routes on http://%s/debug/", ln.Addr())
	return nil
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
