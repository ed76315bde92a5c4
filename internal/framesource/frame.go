package framesource

import (
	"context"
	"image"
)

// Frame is one decoded video frame in packed RGB24.
type Frame struct {
	Index  int64
	Width  int
	Height int
	Pix    []byte
}

// Image converts the frame into an *image.RGBA. The result does not alias
// f.Pix.
func (f Frame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	n := f.Width * f.Height
	if len(f.Pix) < n*3 {
		return img
	}
	for i := 0; i < n; i++ {
		img.Pix[i*4+0] = f.Pix[i*3+0]
		img.Pix[i*4+1] = f.Pix[i*3+1]
		img.Pix[i*4+2] = f.Pix[i*3+2]
		img.Pix[i*4+3] = 0xff
	}
	return img
}

// Stream is a single sequential source of frames.
type Stream interface {
	// Read returns the next frame or io.EOF when the stream is exhausted.
	Read() (Frame, error)
	// FPS returns the nominal frame rate, or 0 when unknown.
	FPS() float64
	// Close releases the stream. It must be safe to call more than once.
	Close() error
}

// Opener opens a Stream for an origin. Implementations return an error
// wrapping ErrSourceUnavailable when the origin cannot be opened.
type Opener interface {
	Open(ctx context.Context, origin Origin) (Stream, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, origin Origin) (Stream, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, origin Origin) (Stream, error) {
	return f(ctx, origin)
}
