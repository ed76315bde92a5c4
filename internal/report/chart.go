package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteChart renders an interactive HTML line chart of a trajectory's three
// coordinates against frame timestamp.
func WriteChart(w io.Writer, tr Trajectory, title string) error {
	if tr.Len() == 0 {
		return ErrNoRecords
	}

	xAxis := make([]string, tr.Len())
	for i, ts := range tr.TimestampMs {
		xAxis[i] = strconv.FormatInt(ts, 10)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("landmark=%d samples=%d", tr.Landmark, tr.Len())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame (ms)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "normalised", NameLocation: "middle", NameGap: 40}),
	)
	noSymbol := charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)})
	line.SetXAxis(xAxis).
		AddSeries("x", lineData(tr.X), noSymbol).
		AddSeries("y", lineData(tr.Y), noSymbol).
		AddSeries("z (side x)", lineData(tr.Z), noSymbol)

	return line.Render(w)
}

func lineData(v []float64) []opts.LineData {
	out := make([]opts.LineData, len(v))
	for i, f := range v {
		out[i] = opts.LineData{Value: f}
	}
	return out
}

// SaveChart writes WriteChart's output to path.
func SaveChart(path string, tr Trajectory, title string) error {
	return writeAll(path, func(w io.Writer) error { return WriteChart(w, tr, title) })
}
