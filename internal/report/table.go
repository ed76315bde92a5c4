package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TableOptions controls WriteTable.
type TableOptions struct {
	// Pretty selects rounded box drawing. Otherwise plain ASCII is used,
	// which is friendlier to pipes and logs.
	Pretty bool
	// Landmarks limits the rows to these indices. Empty means all.
	Landmarks []int
}

// WriteTable prints the per-landmark summary.
func WriteTable(w io.Writer, s Summary, o TableOptions) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	if o.Pretty {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleDefault)
	}
	tw.SetTitle(fmt.Sprintf("%d frames, %d records, %d ms", s.Frames, s.Records, s.DurationMs()))
	tw.AppendHeader(table.Row{"landmark", "samples", "x mean", "x sd", "y mean", "y sd", "z mean", "z sd", "z range"})

	want := make(map[int]bool, len(o.Landmarks))
	for _, idx := range o.Landmarks {
		want[idx] = true
	}
	for _, l := range s.Landmarks {
		if len(want) > 0 && !want[l.Index] {
			continue
		}
		tw.AppendRow(table.Row{
			l.Index, l.Samples,
			num(l.X.Mean), num(l.X.StdDev),
			num(l.Y.Mean), num(l.Y.StdDev),
			num(l.Z.Mean), num(l.Z.StdDev),
			num(l.Z.Range()),
		})
	}

	configs := make([]table.ColumnConfig, 0, 9)
	for i := 1; i <= 9; i++ {
		configs = append(configs, table.ColumnConfig{Number: i, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	tw.Render()
	return nil
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
