package framesource

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStream replays a fixed list of frames. It is used by tests and by
// the CLI's fixture mode.
type MemoryStream struct {
	mu     sync.Mutex
	frames []Frame
	fps    float64
	pos    int
	err    error
	closed int
}

// NewMemoryStream returns a stream that yields frames in order, then io.EOF.
// Frame indices are rewritten to their position in the slice.
func NewMemoryStream(fps float64, frames ...Frame) *MemoryStream {
	cp := make([]Frame, len(frames))
	for i, f := range frames {
		f.Index = int64(i)
		cp[i] = f
	}
	return &MemoryStream{frames: cp, fps: fps}
}

// BlankFrames returns n black frames of the given size.
func BlankFrames(n, width, height int) []Frame {
	out := make([]Frame, n)
	for i := range out {
		out[i] = Frame{Index: int64(i), Width: width, Height: height, Pix: make([]byte, width*height*3)}
	}
	return out
}

// FailAfterEnd makes Read return err instead of io.EOF once frames run out.
func (s *MemoryStream) FailAfterEnd(err error) *MemoryStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// Read returns the next frame.
func (s *MemoryStream) Read() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed > 0 {
		return Frame{}, fmt.Errorf("read on closed memory stream")
	}
	if s.pos >= len(s.frames) {
		if s.err != nil {
			return Frame{}, s.err
		}
		return Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// FPS returns the configured frame rate.
func (s *MemoryStream) FPS() float64 { return s.fps }

// Close marks the stream closed.
func (s *MemoryStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// CloseCount reports how many times Close was called.
func (s *MemoryStream) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// MemoryOpener serves pre-registered streams keyed by Origin.String().
type MemoryOpener struct {
	mu      sync.Mutex
	streams map[string]Stream
}

// NewMemoryOpener returns an empty MemoryOpener.
func NewMemoryOpener() *MemoryOpener {
	return &MemoryOpener{streams: make(map[string]Stream)}
}

// Add registers s for origin.
func (m *MemoryOpener) Add(origin Origin, s Stream) *MemoryOpener {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[origin.String()] = s
	return m
}

// Open returns the stream registered for origin.
func (m *MemoryOpener) Open(_ context.Context, origin Origin) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[origin.String()]
	if !ok {
		return nil, fmt.Errorf("%w: no stream registered for %q", ErrSourceUnavailable, origin)
	}
	return s, nil
}
