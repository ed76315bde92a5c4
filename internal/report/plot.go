package report

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var axisColors = []color.Color{
	color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
}

func newTrajectoryPlot(tr Trajectory, title string) (*plot.Plot, error) {
	if tr.Len() == 0 {
		return nil, ErrNoRecords
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Frame (ms)"
	p.Y.Label.Text = fmt.Sprintf("Landmark %d", tr.Landmark)

	series := []struct {
		label string
		v     []float64
	}{
		{"x", tr.X},
		{"y", tr.Y},
		{"z (side x)", tr.Z},
	}
	for i, s := range series {
		pts := make(plotter.XYs, tr.Len())
		for j := range pts {
			pts[j] = plotter.XY{X: float64(tr.TimestampMs[j]), Y: s.v[j]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = axisColors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.label, line)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// WritePlot renders a trajectory as a PNG.
func WritePlot(w io.Writer, tr Trajectory, title string) error {
	p, err := newTrajectoryPlot(tr, title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePlot writes a trajectory plot to path. The image format follows the
// file extension.
func SavePlot(path string, tr Trajectory, title string) error {
	p, err := newTrajectoryPlot(tr, title)
	if err != nil {
		return err
	}
	return p.Save(10*vg.Inch, 5*vg.Inch, path)
}
