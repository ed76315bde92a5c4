package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gofrs/flock"

	"github.com/banshee-data/posecapture/internal/fusion"
)

// ErrOutputLocked is returned when another process holds the output file.
var ErrOutputLocked = errors.New("output file is locked by another process")

// CSVSink writes records as CSV rows with a frame_ms,landmark_index,x,y,z
// header. Each Append is flushed before returning so a crash loses at most
// the frame in flight.
type CSVSink struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
	lock   *flock.Flock
	closed bool
	rows   int64
}

// NewCSVSink writes the header to w and returns a sink over it. If w is an
// io.Closer it is closed by Close.
func NewCSVSink(w io.Writer) (*CSVSink, error) {
	s := &CSVSink{w: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	if err := s.w.Write(fusion.Record{}.CSVHeader()); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return s, nil
}

// CreateCSVFile takes an exclusive lock on path+".lock", truncates path and
// returns a sink writing to it. The lock is held until Close.
func CreateCSVFile(path string) (*CSVSink, error) {
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock for %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOutputLocked, path)
	}

	f, err := os.Create(path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	s, err := NewCSVSink(f)
	if err != nil {
		f.Close()
		_ = lock.Unlock()
		return nil, err
	}
	s.lock = lock
	return s, nil
}

// Append writes one row per record and flushes.
func (s *CSVSink) Append(records []fusion.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, r := range records {
		if err := s.w.Write(r.CSVRow()); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	s.rows += int64(len(records))
	return nil
}

// Rows returns the number of data rows written.
func (s *CSVSink) Rows() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Close flushes, closes the underlying file and releases the lock.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.w.Flush()
	errs := []error{s.w.Error()}
	if s.closer != nil {
		errs = append(errs, s.closer.Close())
	}
	if s.lock != nil {
		errs = append(errs, s.lock.Unlock())
	}
	return errors.Join(errs...)
}

// ReadCSV parses a record stream written by CSVSink.
func ReadCSV(r io.Reader) ([]fusion.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 5
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	want := fusion.Record{}.CSVHeader()
	for i := range want {
		if header[i] != want[i] {
			return nil, fmt.Errorf("unexpected csv header %v, want %v", header, want)
		}
	}

	var out []fusion.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		rec, err := fusion.ParseCSVRow(row)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		out = append(out, rec)
	}
}
