package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/posecapture/internal/db"
	"github.com/banshee-data/posecapture/internal/fusion"
	"github.com/banshee-data/posecapture/internal/report"
)

type reportOptions struct {
	dbPath    string
	sessionID string
	landmark  int
	landmarks []int
	chartPath string
	plotPath  string
}

func newReportCommand() *cobra.Command {
	var opts reportOptions

	cmd := &cobra.Command{
		Use:   "report [CSV]",
		Short: "Summarise a recording and plot one landmark's trajectory",
		Long: "Reads a CSV written by capture, or a session from the SQLite mirror with --db and\n" +
			"--session, prints per-landmark statistics and optionally writes an HTML chart and\n" +
			"a PNG plot of one landmark.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, title, err := loadRecords(cmd, args, opts)
			if err != nil {
				return err
			}
			return runReport(cmd, records, title, opts)
		},
	}
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "Read from this SQLite database instead of a CSV")
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "Session ID to read with --db")
	cmd.Flags().IntVar(&opts.landmark, "landmark", 0, "Landmark index to chart")
	cmd.Flags().IntSliceVar(&opts.landmarks, "only", nil, "Limit the table to these landmark indices")
	cmd.Flags().StringVar(&opts.chartPath, "chart", "", "Write an interactive HTML chart to this path")
	cmd.Flags().StringVar(&opts.plotPath, "plot", "", "Write a PNG plot to this path")
	return cmd
}

func loadRecords(cmd *cobra.Command, args []string, opts reportOptions) ([]fusion.Record, string, error) {
	switch {
	case opts.dbPath != "" && len(args) > 0:
		return nil, "", errors.New("pass either a CSV path or --db, not both")
	case opts.dbPath != "":
		if opts.sessionID == "" {
			return nil, "", errors.New("--session is required with --db")
		}
		store, err := db.OpenDB(opts.dbPath)
		if err != nil {
			return nil, "", err
		}
		defer store.Close()
		sess, err := store.GetSession(cmd.Context(), opts.sessionID)
		if err != nil {
			return nil, "", err
		}
		records, err := store.Records(cmd.Context(), opts.sessionID)
		if err != nil {
			return nil, "", err
		}
		return records, fmt.Sprintf("%s session %s", sess.Exercise, sess.ID), nil
	case len(args) == 1:
		records, err := report.LoadCSV(args[0])
		return records, args[0], err
	default:
		return nil, "", errors.New("a CSV path or --db is required")
	}
}

func runReport(cmd *cobra.Command, records []fusion.Record, title string, opts reportOptions) error {
	out := cmd.OutOrStdout()
	summary, err := report.Summarize(records)
	if err != nil {
		return fmt.Errorf("%s: %w", title, err)
	}
	if err := report.WriteTable(out, summary, report.TableOptions{Pretty: isTerminal(out), Landmarks: opts.landmarks}); err != nil {
		return err
	}

	if opts.chartPath == "" && opts.plotPath == "" {
		return nil
	}
	tr, err := report.ExtractTrajectory(records, opts.landmark)
	if err != nil {
		return err
	}
	chartTitle := fmt.Sprintf("%s, landmark %d", title, opts.landmark)
	if opts.chartPath != "" {
		if err := report.SaveChart(opts.chartPath, tr, chartTitle); err != nil {
			return fmt.Errorf("write chart: %w", err)
		}
		fmt.Fprintf(out, "chart written to %s\n", opts.chartPath)
	}
	if opts.plotPath != "" {
		if err := report.SavePlot(opts.plotPath, tr, chartTitle); err != nil {
			return fmt.Errorf("write plot: %w", err)
		}
		fmt.Fprintf(out, "plot written to %s\n", opts.plotPath)
	}
	return nil
}

func newSessionsCommand() *cobra.Command {
	var dbPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions stored in the SQLite mirror",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = defaultDBPath
			}
			store, err := db.OpenDB(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.Sessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				_, err := fmt.Fprintln(out, "no sessions")
				return err
			}
			fmt.Fprintln(out, renderSessions(sessions, isTerminal(out)))
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default "+defaultDBPath+")")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions to list")
	return cmd
}

func renderSessions(sessions []db.Session, pretty bool) string {
	headers := []string{"session", "exercise", "started", "duration", "frames", "fused", "records"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight}
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		duration := "running"
		if s.EndedAt != nil {
			duration = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		rows = append(rows, []string{
			s.ID,
			s.Exercise,
			s.StartedAt.Local().Format(time.DateTime),
			duration,
			strconv.FormatInt(s.FramesRead, 10),
			strconv.FormatInt(s.FramesFused, 10),
			strconv.FormatInt(s.RecordsWritten, 10),
		})
	}
	return renderTable(headers, rows, aligns, pretty)
}
