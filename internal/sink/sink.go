// Package sink persists fused landmark records. Sinks have a single writer:
// the capture loop appends one frame's records per call.
package sink

import (
	"errors"

	"github.com/banshee-data/posecapture/internal/fusion"
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("sink closed")

// RecordSink is an append-only destination for fused records.
type RecordSink interface {
	// Append writes the records of one frame. An error is fatal to the
	// session.
	Append(records []fusion.Record) error
	// Close flushes and releases the sink. Calls after the first are no-ops.
	Close() error
}

// Multi fans each Append out to every sink in order, stopping at the first
// error.
type Multi []RecordSink

// Append writes records to every sink.
func (m Multi) Append(records []fusion.Record) error {
	for _, s := range m {
		if err := s.Append(records); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Memory collects records in memory. It is used by tests and dry runs.
type Memory struct {
	Records []fusion.Record
	Frames  int
	closed  bool
}

// Append stores a copy of records.
func (m *Memory) Append(records []fusion.Record) error {
	if m.closed {
		return ErrClosed
	}
	m.Records = append(m.Records, records...)
	m.Frames++
	return nil
}

// Close marks the sink closed.
func (m *Memory) Close() error {
	m.closed = true
	return nil
}
