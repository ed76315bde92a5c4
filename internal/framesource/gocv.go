//go:build gocv

package framesource

import (
	"context"
	"fmt"
	"io"
	"sync"

	"gocv.io/x/gocv"
)

// GoCVOpener opens origins through OpenCV's VideoCapture.
type GoCVOpener struct{}

// Open opens a device index or file with OpenCV.
func (GoCVOpener) Open(_ context.Context, origin Origin) (Stream, error) {
	var src interface{} = origin.Path
	if origin.IsDevice() {
		src = origin.Device
	}
	vc, err := gocv.OpenVideoCapture(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: capture for %s is not opened", ErrSourceUnavailable, origin)
	}
	return &gocvStream{
		origin: origin,
		vc:     vc,
		fps:    vc.Get(gocv.VideoCaptureFPS),
		bgr:    gocv.NewMat(),
		rgb:    gocv.NewMat(),
	}, nil
}

type gocvStream struct {
	origin Origin
	vc     *gocv.VideoCapture
	fps    float64
	bgr    gocv.Mat
	rgb    gocv.Mat
	next   int64

	closeOnce sync.Once
	closeErr  error
}

func (s *gocvStream) Read() (Frame, error) {
	if ok := s.vc.Read(&s.bgr); !ok || s.bgr.Empty() {
		return Frame{}, io.EOF
	}
	if err := gocv.CvtColor(s.bgr, &s.rgb, gocv.ColorBGRToRGB); err != nil {
		return Frame{}, fmt.Errorf("convert %s frame: %w", s.origin, err)
	}
	f := Frame{
		Index:  s.next,
		Width:  s.rgb.Cols(),
		Height: s.rgb.Rows(),
		Pix:    append([]byte(nil), s.rgb.ToBytes()...),
	}
	s.next++
	return f, nil
}

func (s *gocvStream) FPS() float64 { return s.fps }

func (s *gocvStream) Close() error {
	s.closeOnce.Do(func() {
		s.bgr.Close()
		s.rgb.Close()
		s.closeErr = s.vc.Close()
	})
	return s.closeErr
}
