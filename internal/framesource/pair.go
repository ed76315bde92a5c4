package framesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/banshee-data/posecapture/internal/monitoring"
)

var logf = monitoring.Component("framesource")

// RawFramePair holds the front and side frames read in one step.
type RawFramePair struct {
	Front Frame
	Side  Frame
}

// Pair reads the front and side streams in lockstep.
type Pair struct {
	front Stream
	side  Stream

	mu       sync.Mutex
	done     bool
	released bool
}

// Open opens both origins. If the side origin fails, the already opened
// front stream is closed before the error is returned.
func Open(ctx context.Context, opener Opener, front, side Origin) (*Pair, error) {
	if opener == nil {
		return nil, fmt.Errorf("%w: no opener configured", ErrSourceUnavailable)
	}

	frontStream, err := opener.Open(ctx, front)
	if err != nil {
		return nil, wrapUnavailable("front", front, err)
	}
	sideStream, err := opener.Open(ctx, side)
	if err != nil {
		if cerr := frontStream.Close(); cerr != nil {
			logf("closing front stream %s: %v", front, cerr)
		}
		return nil, wrapUnavailable("side", side, err)
	}

	return NewPair(frontStream, sideStream), nil
}

// NewPair pairs two already open streams. The Pair takes ownership of both.
func NewPair(front, side Stream) *Pair {
	return &Pair{front: front, side: side}
}

func wrapUnavailable(view string, origin Origin, err error) error {
	if errors.Is(err, ErrSourceUnavailable) {
		return fmt.Errorf("open %s origin %q: %w", view, origin, err)
	}
	return fmt.Errorf("open %s origin %q: %w: %v", view, origin, ErrSourceUnavailable, err)
}

// FPS returns the frame rate reported by the front stream.
func (p *Pair) FPS() float64 {
	return p.front.FPS()
}

// Read returns the next frame pair. It returns io.EOF once either stream
// ends or fails, and keeps returning io.EOF afterwards.
func (p *Pair) Read() (RawFramePair, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done || p.released {
		return RawFramePair{}, io.EOF
	}

	front, ferr := p.front.Read()
	side, serr := p.side.Read()
	if ferr != nil || serr != nil {
		p.done = true
		if ferr != nil && !errors.Is(ferr, io.EOF) {
			logf("front stream read: %v", ferr)
		}
		if serr != nil && !errors.Is(serr, io.EOF) {
			logf("side stream read: %v", serr)
		}
		return RawFramePair{}, io.EOF
	}
	return RawFramePair{Front: front, Side: side}, nil
}

// Release closes both streams. Only the first call has any effect.
func (p *Pair) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return nil
	}
	p.released = true
	return errors.Join(p.front.Close(), p.side.Close())
}
