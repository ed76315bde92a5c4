package commandmux

import (
	"context"
	"net/http"
	"sync"
)

// DisabledCommandMux is the Source used when no command device is configured.
// Monitor blocks until ctx is done; commands can still be injected through
// the admin routes.
type DisabledCommandMux struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	closing     bool
}

func NewDisabledCommandMux() *DisabledCommandMux {
	return &DisabledCommandMux{
		subscribers: make(map[string]chan string),
	}
}

func (d *DisabledCommandMux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *DisabledCommandMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

func (d *DisabledCommandMux) SendCommand(string) error { return nil }

func (d *DisabledCommandMux) Inject(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
}

func (d *DisabledCommandMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledCommandMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

func (d *DisabledCommandMux) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, d, "no command device")
}
