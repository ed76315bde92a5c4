package capture

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"path/filepath"

	"github.com/banshee-data/posecapture/internal/framesource"
	"github.com/banshee-data/posecapture/internal/fsutil"
	"github.com/banshee-data/posecapture/internal/pose"
)

var landmarkColor = color.RGBA{R: 255, G: 255, B: 0, A: 255}

const landmarkRadius = 4

// SnapshotRenderer writes an annotated side-by-side PNG of the front and
// side frames every Every frames. Landmarks are drawn as filled dots.
type SnapshotRenderer struct {
	FS    fsutil.FileSystem
	Dir   string
	Every int

	written int
}

// NewSnapshotRenderer returns a renderer writing into dir on the real
// filesystem. every <= 0 disables it.
func NewSnapshotRenderer(dir string, every int) *SnapshotRenderer {
	return &SnapshotRenderer{FS: fsutil.OSFileSystem{}, Dir: dir, Every: every}
}

// Written returns the number of snapshots written so far.
func (r *SnapshotRenderer) Written() int { return r.written }

// Render implements Renderer.
func (r *SnapshotRenderer) Render(frameIndex int64, pair framesource.RawFramePair, front, side pose.LandmarkSet) error {
	if r.Every <= 0 || frameIndex%int64(r.Every) != 0 {
		return nil
	}
	if r.written == 0 {
		if err := r.FS.MkdirAll(r.Dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	img := Annotate(pair, front, side)
	name := filepath.Join(r.Dir, fmt.Sprintf("frame_%06d.png", frameIndex))
	w, err := r.FS.Create(name)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := png.Encode(w, img); err != nil {
		w.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	r.written++
	return nil
}

// Annotate draws both landmark sets onto their frames and places the front
// view left of the side view.
func Annotate(pair framesource.RawFramePair, front, side pose.LandmarkSet) *image.RGBA {
	f := pair.Front.Image()
	s := pair.Side.Image()
	drawLandmarks(f, front)
	drawLandmarks(s, side)

	fb, sb := f.Bounds(), s.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, fb.Dx()+sb.Dx(), max(fb.Dy(), sb.Dy())))
	draw.Draw(out, fb, f, fb.Min, draw.Src)
	draw.Draw(out, sb.Add(image.Pt(fb.Dx(), 0)), s, sb.Min, draw.Src)
	return out
}

func drawLandmarks(img *image.RGBA, set pose.LandmarkSet) {
	b := img.Bounds()
	for _, lm := range set {
		cx := int(lm.X * float64(b.Dx()))
		cy := int(lm.Y * float64(b.Dy()))
		for dy := -landmarkRadius; dy <= landmarkRadius; dy++ {
			for dx := -landmarkRadius; dx <= landmarkRadius; dx++ {
				if dx*dx+dy*dy > landmarkRadius*landmarkRadius {
					continue
				}
				p := image.Pt(cx+dx, cy+dy)
				if p.In(b) {
					img.SetRGBA(p.X, p.Y, landmarkColor)
				}
			}
		}
	}
}
