// Package fusion combines the front and side landmark sets of one frame into
// pseudo-3D records.
//
// X and Y come from the front view. Z is the side view's X coordinate used
// as a depth proxy; it is not a calibrated reconstruction.
package fusion

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/banshee-data/posecapture/internal/pose"
)

// ErrMismatchedLandmarkCount is returned when the two views disagree on the
// number of landmarks.
var ErrMismatchedLandmarkCount = errors.New("mismatched landmark count")

// Record is one fused landmark of one frame.
type Record struct {
	TimestampMs   int64
	LandmarkIndex int
	X             float64
	Y             float64
	Z             float64
}

// CSVHeader returns the column names of the record stream.
func (Record) CSVHeader() []string {
	return []string{"frame_ms", "landmark_index", "x", "y", "z"}
}

// CSVRow returns the record as CSV fields.
func (r Record) CSVRow() []string {
	return []string{
		strconv.FormatInt(r.TimestampMs, 10),
		strconv.Itoa(r.LandmarkIndex),
		formatCoord(r.X),
		formatCoord(r.Y),
		formatCoord(r.Z),
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseCSVRow is the inverse of CSVRow.
func ParseCSVRow(row []string) (Record, error) {
	if len(row) != 5 {
		return Record{}, fmt.Errorf("expected 5 fields, got %d", len(row))
	}
	ts, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("frame_ms: %w", err)
	}
	idx, err := strconv.Atoi(row[1])
	if err != nil {
		return Record{}, fmt.Errorf("landmark_index: %w", err)
	}
	var xyz [3]float64
	for i, name := range []string{"x", "y", "z"} {
		v, err := strconv.ParseFloat(row[2+i], 64)
		if err != nil {
			return Record{}, fmt.Errorf("%s: %w", name, err)
		}
		xyz[i] = v
	}
	return Record{TimestampMs: ts, LandmarkIndex: idx, X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

// Fuse returns one record per landmark index, taking x and y from front and
// z from side[i].X. Callers drop frames where either set is empty before
// calling Fuse.
func Fuse(timestampMs int64, front, side pose.LandmarkSet) ([]Record, error) {
	if len(front) != len(side) {
		return nil, fmt.Errorf("%w: front has %d, side has %d", ErrMismatchedLandmarkCount, len(front), len(side))
	}
	out := make([]Record, len(front))
	for i := range front {
		out[i] = Record{
			TimestampMs:   timestampMs,
			LandmarkIndex: i,
			X:             front[i].X,
			Y:             front[i].Y,
			Z:             side[i].X,
		}
	}
	return out, nil
}
