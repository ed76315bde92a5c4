// Package report summarises and visualises fused landmark recordings.
package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/posecapture/internal/fusion"
	"github.com/banshee-data/posecapture/internal/sink"
)

// ErrNoRecords is returned when a recording has nothing to summarise.
var ErrNoRecords = errors.New("no records")

// ErrLandmarkNotFound is returned when a trajectory is requested for a
// landmark index that never appears in the recording.
var ErrLandmarkNotFound = errors.New("landmark not found")

// AxisStats holds the distribution of one coordinate.
type AxisStats struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Range returns Max - Min.
func (a AxisStats) Range() float64 { return a.Max - a.Min }

// LandmarkStats summarises one landmark index across all frames.
type LandmarkStats struct {
	Index   int
	Samples int
	X, Y, Z AxisStats
}

// Summary describes a whole recording.
type Summary struct {
	Frames      int
	Records     int
	FirstMs     int64
	LastMs      int64
	Landmarks   []LandmarkStats
	MaxLandmark int
}

// DurationMs returns the span between the first and last frame.
func (s Summary) DurationMs() int64 { return s.LastMs - s.FirstMs }

// LoadCSV reads a CSV recording from path.
func LoadCSV(path string) ([]fusion.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	records, err := sink.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

// Summarize computes per-landmark statistics. Landmarks are ordered by
// index.
func Summarize(records []fusion.Record) (Summary, error) {
	if len(records) == 0 {
		return Summary{}, ErrNoRecords
	}

	type axes struct{ x, y, z []float64 }
	byIndex := make(map[int]*axes)
	frames := make(map[int64]struct{})
	sum := Summary{Records: len(records), FirstMs: records[0].TimestampMs, LastMs: records[0].TimestampMs}

	for _, r := range records {
		frames[r.TimestampMs] = struct{}{}
		sum.FirstMs = min(sum.FirstMs, r.TimestampMs)
		sum.LastMs = max(sum.LastMs, r.TimestampMs)
		sum.MaxLandmark = max(sum.MaxLandmark, r.LandmarkIndex)

		a, ok := byIndex[r.LandmarkIndex]
		if !ok {
			a = &axes{}
			byIndex[r.LandmarkIndex] = a
		}
		a.x = append(a.x, r.X)
		a.y = append(a.y, r.Y)
		a.z = append(a.z, r.Z)
	}
	sum.Frames = len(frames)

	indices := make([]int, 0, len(byIndex))
	for idx := range byIndex {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	for _, idx := range indices {
		a := byIndex[idx]
		sum.Landmarks = append(sum.Landmarks, LandmarkStats{
			Index:   idx,
			Samples: len(a.x),
			X:       axisStats(a.x),
			Y:       axisStats(a.y),
			Z:       axisStats(a.z),
		})
	}
	return sum, nil
}

func axisStats(v []float64) AxisStats {
	mean, std := stat.MeanStdDev(v, nil)
	if len(v) < 2 {
		std = 0
	}
	return AxisStats{Mean: mean, StdDev: std, Min: floats.Min(v), Max: floats.Max(v)}
}

// Trajectory is one landmark's coordinates over time.
type Trajectory struct {
	Landmark    int
	TimestampMs []int64
	X, Y, Z     []float64
}

// Len returns the number of samples.
func (t Trajectory) Len() int { return len(t.TimestampMs) }

// ExtractTrajectory returns the samples of one landmark in timestamp order.
func ExtractTrajectory(records []fusion.Record, landmark int) (Trajectory, error) {
	var picked []fusion.Record
	for _, r := range records {
		if r.LandmarkIndex == landmark {
			picked = append(picked, r)
		}
	}
	if len(picked) == 0 {
		return Trajectory{}, fmt.Errorf("%w: index %d", ErrLandmarkNotFound, landmark)
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].TimestampMs < picked[j].TimestampMs })

	tr := Trajectory{Landmark: landmark}
	for _, r := range picked {
		tr.TimestampMs = append(tr.TimestampMs, r.TimestampMs)
		tr.X = append(tr.X, r.X)
		tr.Y = append(tr.Y, r.Y)
		tr.Z = append(tr.Z, r.Z)
	}
	return tr, nil
}

// writeAll writes the output of fn to path, creating or truncating it.
func writeAll(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
