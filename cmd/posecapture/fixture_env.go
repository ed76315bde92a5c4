package main

import (
	"context"
	"fmt"

	"github.com/banshee-data/posecapture/internal/config"
	"github.com/banshee-data/posecapture/internal/framesource"
	"github.com/banshee-data/posecapture/internal/fsutil"
	"github.com/banshee-data/posecapture/internal/pose"
)

const (
	fixtureFrontOrigin = "fixture-front"
	fixtureSideOrigin  = "fixture-side"
)

// applyFixture replaces the camera and detector backends with a recorded
// fixture: blank frames at the fixture's size and rate, and detectors that
// replay the recorded landmarks. Unset origins get placeholder names.
func applyFixture(path string, cfg *config.SessionConfig, env *captureEnv) error {
	fx, err := pose.LoadFixture(fsutil.OSFileSystem{}, path)
	if err != nil {
		return err
	}

	if cfg.GetFrontOrigin() == "" {
		cfg.FrontOrigin = config.String(fixtureFrontOrigin)
	}
	if cfg.GetSideOrigin() == "" {
		cfg.SideOrigin = config.String(fixtureSideOrigin)
	}
	front, err := framesource.ParseOrigin(cfg.GetFrontOrigin())
	if err != nil {
		return err
	}
	side, err := framesource.ParseOrigin(cfg.GetSideOrigin())
	if err != nil {
		return err
	}
	if front.String() == side.String() {
		return fmt.Errorf("fixture mode needs distinct origins, both are %q", front)
	}

	n := fx.Frames()
	env.opener = framesource.NewMemoryOpener().
		Add(front, framesource.NewMemoryStream(fx.FPS, framesource.BlankFrames(n, fx.Width, fx.Height)...)).
		Add(side, framesource.NewMemoryStream(fx.FPS, framesource.BlankFrames(n, fx.Width, fx.Height)...))
	env.newDetector = func(_ context.Context, opts pose.Options) (pose.Detector, error) {
		frames := fx.Front
		if opts.View == pose.ViewSide {
			frames = fx.Side
		}
		return pose.NewFixtureDetector(opts, frames), nil
	}
	logf("fixture %s: %d frame pairs at %.2f fps", path, n, fx.FPS)
	return nil
}
