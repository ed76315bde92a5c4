package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/posecapture/internal/config"
	"github.com/banshee-data/posecapture/internal/pose"
)

type captureFlags struct {
	front, side   string
	output        string
	dbPath        string
	model         string
	detector      string
	exercise      string
	gate          bool
	commands      string
	serialPort    string
	baud          int
	snapshotDir   string
	snapshotEvery int
	startOffsetMs int64
	fallbackFPS   float64
	admin         string
	backend       string
	dev           string
}

// overrides returns a SessionConfig holding only the flags the user set.
func (f *captureFlags) overrides(cmd *cobra.Command) *config.SessionConfig {
	o := config.EmptySessionConfig()
	changed := cmd.Flags().Changed

	if changed("front") {
		o.FrontOrigin = config.String(f.front)
	}
	if changed("side") {
		o.SideOrigin = config.String(f.side)
	}
	if changed("output") {
		o.OutputCSV = config.String(f.output)
	}
	if changed("db") {
		o.OutputDB = config.String(f.dbPath)
	}
	if changed("model") {
		o.ModelPath = config.String(f.model)
	}
	if changed("detector") {
		o.DetectorCommand = config.String(f.detector)
	}
	if changed("exercise") {
		o.Exercise = config.String(f.exercise)
	}
	if changed("gate") {
		o.GateOnExercising = config.Bool(f.gate)
	}
	if changed("commands") {
		o.CommandSource = config.String(f.commands)
	}
	if changed("serial-port") {
		o.SerialPort = config.String(f.serialPort)
	}
	if changed("baud") {
		o.SerialBaudRate = config.Int(f.baud)
	}
	if changed("snapshot-dir") {
		o.SnapshotDir = config.String(f.snapshotDir)
	}
	if changed("snapshot-every") {
		o.SnapshotEvery = config.Int(f.snapshotEvery)
	}
	if changed("start-offset-ms") {
		o.StartOffsetMs = config.Int64(f.startOffsetMs)
	}
	if changed("fallback-fps") {
		o.FallbackFPS = config.Float64(f.fallbackFPS)
	}
	if changed("admin") {
		o.AdminListen = config.String(f.admin)
	}
	return o
}

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	var f captureFlags

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record fused landmarks from a front and a side camera",
		Long: "Reads frame pairs from the front and side origins, detects pose landmarks in both,\n" +
			"fuses them into (x, y, z) records and appends them to the CSV output and, with --db,\n" +
			"to a SQLite session store. Session commands (start, stop, an exact reset) are read from\n" +
			"stdin or a serial device. Interrupt to stop.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg := *base
			cfg.Apply(f.overrides(cmd))
			if err := cfg.Validate(); err != nil {
				return err
			}

			env := captureEnv{
				stdin:  cmd.InOrStdin(),
				stdout: cmd.OutOrStdout(),
				newDetector: func(ctx context.Context, opts pose.Options) (pose.Detector, error) {
					return pose.NewWorkerDetector(ctx, opts)
				},
			}
			if f.dev != "" {
				if err := applyFixture(f.dev, &cfg, &env); err != nil {
					return err
				}
			} else {
				opener, err := openerFor(f.backend, &cfg)
				if err != nil {
					return err
				}
				env.opener = opener
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := runCapture(runCtx, &cfg, env)
			if err != nil {
				return err
			}
			printCaptureSummary(env.stdout, res)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.front, "front", "", "Front camera: device index or video file")
	flags.StringVar(&f.side, "side", "", "Side camera: device index or video file")
	flags.StringVarP(&f.output, "output", "o", "", "CSV output path (default dane_3d.csv)")
	flags.StringVar(&f.dbPath, "db", "", "Also mirror records into this SQLite database")
	flags.StringVar(&f.model, "model", "", "Pose landmarker model file")
	flags.StringVar(&f.detector, "detector", "", "Detector worker command line")
	flags.StringVar(&f.exercise, "exercise", "", "Exercise type: shoulder or lunge")
	flags.BoolVar(&f.gate, "gate", false, "Only record frames while the session is exercising")
	flags.StringVar(&f.commands, "commands", "", "Command source: stdin, serial or none")
	flags.StringVar(&f.serialPort, "serial-port", "", "Serial device for --commands serial")
	flags.IntVar(&f.baud, "baud", 0, "Serial baud rate")
	flags.StringVar(&f.snapshotDir, "snapshot-dir", "", "Write annotated PNG snapshots here")
	flags.IntVar(&f.snapshotEvery, "snapshot-every", 0, "Snapshot every N frames (0 disables)")
	flags.Int64Var(&f.startOffsetMs, "start-offset-ms", 0, "Timestamp of the first frame")
	flags.Float64Var(&f.fallbackFPS, "fallback-fps", 0, "Frame rate used when the source reports none")
	flags.StringVar(&f.admin, "admin", "", "Serve debug routes on this address, e.g. localhost:8080")
	flags.StringVar(&f.backend, "backend", defaultBackend, "Capture backend")
	flags.StringVar(&f.dev, "dev", "", "Replay a recorded landmark fixture instead of cameras and detector")
	return cmd
}

func printCaptureSummary(w io.Writer, res captureResult) {
	rows := [][]string{
		{"frames read", itoa(res.Stats.FramesRead)},
		{"frames fused", itoa(res.Stats.FramesFused)},
		{"records written", itoa(res.Stats.RecordsWritten)},
		{"empty pose", itoa(res.Stats.EmptyPoseFrames)},
		{"detection failures", itoa(res.Stats.DetectionFailures)},
		{"mismatched", itoa(res.Stats.MismatchedFrames)},
		{"gated", itoa(res.Stats.GatedFrames)},
		{"wall time", (time.Duration(res.Stats.ElapsedMs) * time.Millisecond).String()},
		{"processing fps", strconv.FormatFloat(res.Stats.ProcessingFPS(), 'f', 1, 64)},
		{"final state", res.FinalState.String()},
	}
	if res.SessionID != "" {
		rows = append(rows, []string{"session", res.SessionID})
	}
	io.WriteString(w, renderTable([]string{"capture", "value"}, rows, []columnAlignment{alignLeft, alignRight}, isTerminal(w))+"\n")
}
