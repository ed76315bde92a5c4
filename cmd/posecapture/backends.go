package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/banshee-data/posecapture/internal/config"
	"github.com/banshee-data/posecapture/internal/framesource"
)

const defaultBackend = "ffmpeg"

// backends maps --backend names to frame openers. Builds with the gocv tag
// add "gocv".
var backends = map[string]func(cfg *config.SessionConfig) framesource.Opener{
	"ffmpeg": func(cfg *config.SessionConfig) framesource.Opener {
		return framesource.NewFFmpegOpener(cfg.GetFFmpegPath(), cfg.GetFFprobePath())
	},
}

func backendNames() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func openerFor(name string, cfg *config.SessionConfig) (framesource.Opener, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = defaultBackend
	}
	fn, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown capture backend %q (available: %s)", name, strings.Join(backendNames(), ", "))
	}
	return fn(cfg), nil
}
