package commandmux

import (
	"context"
	"strings"

	"github.com/banshee-data/posecapture/internal/monitoring"
)

var logf = monitoring.Component("commands")

// Updater consumes session commands.
type Updater interface {
	Update(command string)
}

// Resetter is implemented by updaters that support an explicit reset.
type Resetter interface {
	Reset()
}

// resetCommand forces the session back to idle when the updater is a
// Resetter. Any other line goes to Update unchanged.
const resetCommand = "reset"

// Pump subscribes to src and applies every command to u until ctx is done
// or src is closed.
func Pump(ctx context.Context, src Source, u Updater) {
	id, ch := src.Subscribe()
	defer src.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-ch:
			if !ok {
				return
			}
			logf("received %q", cmd)
			if r, ok := u.(Resetter); ok && strings.EqualFold(strings.TrimSpace(cmd), resetCommand) {
				r.Reset()
				continue
			}
			u.Update(cmd)
		}
	}
}
