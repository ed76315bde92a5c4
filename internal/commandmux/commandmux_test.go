package commandmux

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/banshee-data/posecapture/internal/monitoring"
	"github.com/banshee-data/posecapture/internal/session"
)

func init() {
	monitoring.SetLogger(nil)
}

// pipePort is an in-memory Porter: tests write device lines to in and read
// what the mux sent from out.
type pipePort struct {
	*io.PipeReader
	in  *io.PipeWriter
	out bytes.Buffer
	mu  sync.Mutex
}

func newPipePort() *pipePort {
	r, w := io.Pipe()
	return &pipePort{PipeReader: r, in: w}
}

func (p *pipePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Write(b)
}

func (p *pipePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.String()
}

func (p *pipePort) Close() error {
	p.in.Close()
	return p.PipeReader.Close()
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command")
		return ""
	}
}

func TestCommandMux_MonitorBroadcastsParsedLines(t *testing.T) {
	port := newPipePort()
	mux := NewCommandMux(port)

	id1, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	go func() {
		io.WriteString(port.in, "START now\n\n# comment\n")
		io.WriteString(port.in, `{"command":"please stop"}`+"\n")
	}()

	assert.Equal(t, "START now", receive(t, ch1))
	assert.Equal(t, "START now", receive(t, ch2))
	assert.Equal(t, "please stop", receive(t, ch1))
	assert.Equal(t, "please stop", receive(t, ch2))

	mux.Unsubscribe(id1)
	_, ok := <-ch1
	assert.False(t, ok, "unsubscribe closes the channel")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
	require.NoError(t, mux.Close())
}

func TestCommandMux_MonitorReturnsOnEOF(t *testing.T) {
	mux := NewReaderCommandMux(strings.NewReader("start\nstop\n"), nil)
	_, ch := mux.Subscribe()

	err := mux.Monitor(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "start", receive(t, ch))
	assert.Equal(t, "stop", receive(t, ch))
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("device unplugged") }

func TestCommandMux_MonitorReturnsReadError(t *testing.T) {
	mux := NewReaderCommandMux(errReader{}, nil)
	err := mux.Monitor(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device unplugged")
}

func TestCommandMux_SendCommandAppendsNewline(t *testing.T) {
	port := newPipePort()
	mux := NewCommandMux(port)
	defer mux.Close()

	require.NoError(t, mux.SendCommand("STATE exercising"))
	require.NoError(t, mux.SendCommand("ACK\n"))
	assert.Equal(t, "STATE exercising\nACK\n", port.Written())
}

func TestCommandMux_CloseClosesSubscribers(t *testing.T) {
	mux := NewReaderCommandMux(strings.NewReader(""), nil)
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Close())
	_, ok := <-ch
	assert.False(t, ok)

	_, late := mux.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribing after close yields a closed channel")

	mux.Inject("start") // must not panic
}

func TestCommandMux_Inject(t *testing.T) {
	mux := NewReaderCommandMux(strings.NewReader(""), nil)
	defer mux.Close()
	_, ch := mux.Subscribe()

	mux.Inject("restart")
	assert.Equal(t, "restart", receive(t, ch))
}

func TestDisabledCommandMux(t *testing.T) {
	d := NewDisabledCommandMux()
	id, ch := d.Subscribe()

	d.Inject("start")
	assert.Equal(t, "start", receive(t, ch))
	assert.NoError(t, d.SendCommand("anything"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Monitor(ctx), context.DeadlineExceeded)

	d.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)

	_, ch2 := d.Subscribe()
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	_, ok = <-ch2
	assert.False(t, ok)
}

type recorder struct {
	mu   sync.Mutex
	cmds []string
}

func (r *recorder) Update(cmd string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
}

func (r *recorder) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.cmds...)
}

func TestPump(t *testing.T) {
	d := NewDisabledCommandMux()
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Pump(ctx, d, rec)
		close(done)
	}()

	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.subscribers) == 1
	}, time.Second, 5*time.Millisecond)

	d.Inject("start")
	d.Inject("stop")
	require.Eventually(t, func() bool { return len(rec.Commands()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"start", "stop"}, rec.Commands())

	cancel()
	<-done
}

type resettingRecorder struct {
	recorder
	resets atomic.Int32
}

func (r *resettingRecorder) Reset() { r.resets.Add(1) }

func startPump(t *testing.T, u Updater) *DisabledCommandMux {
	t.Helper()
	d := NewDisabledCommandMux()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Pump(ctx, d, u)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.subscribers) == 1
	}, time.Second, 5*time.Millisecond)
	return d
}

func TestPump_ResetGoesToResetter(t *testing.T) {
	rec := &resettingRecorder{}
	d := startPump(t, rec)

	d.Inject("start")
	d.Inject("RESET")
	d.Inject("reset please")
	require.Eventually(t, func() bool { return len(rec.Commands()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"start", "reset please"}, rec.Commands())
	assert.Equal(t, int32(1), rec.resets.Load())
}

func TestPump_ResetReturnsStateMachineToIdle(t *testing.T) {
	sm := session.NewStateMachine(session.ShoulderMobility)
	d := startPump(t, sm)

	d.Inject("start")
	require.Eventually(t, sm.IsExercising, time.Second, 5*time.Millisecond)

	d.Inject("reset")
	require.Eventually(t, sm.IsIdle, time.Second, 5*time.Millisecond)
}

func TestPump_ResetWithoutResetterIsUpdate(t *testing.T) {
	rec := &recorder{}
	d := startPump(t, rec)

	d.Inject("reset")
	require.Eventually(t, func() bool { return len(rec.Commands()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"reset"}, rec.Commands())
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"start", "start"},
		{"  Please STOP  \r", "Please STOP"},
		{"", ""},
		{"# button box v2", ""},
		{`{"command": "start"}`, "start"},
		{`{"text": "okay stop now"}`, "okay stop now"},
		{`{"command": "", "text": "restart"}`, "restart"},
		{`{not json`, "{not json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseCommand(tt.in), tt.in)
	}
}

func TestPortOptions(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "N"}, opts)

	mode, err := PortOptions{BaudRate: 115200, StopBits: 2, Parity: "even"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, 115200, mode.BaudRate)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.EvenParity, mode.Parity)

	for _, bad := range []PortOptions{{DataBits: 9}, {StopBits: 3}, {Parity: "mark"}} {
		_, err := bad.SerialMode()
		assert.Error(t, err, "%+v", bad)
	}
}

func TestAdminRoutes_InjectCommand(t *testing.T) {
	d := NewDisabledCommandMux()
	defer d.Close()
	_, ch := d.Subscribe()

	mux := http.NewServeMux()
	d.AttachAdminRoutes(mux)

	form := url.Values{"command": {"start"}}
	req := httptest.NewRequest(http.MethodPost, "/debug/send-command-api", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "127.0.0.1:4000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.NotEqual(t, http.StatusNotFound, rec.Code)
	if rec.Code == http.StatusOK {
		assert.Contains(t, rec.Body.String(), `"start"`)
		assert.Equal(t, "start", receive(t, ch))
	}

	req = httptest.NewRequest(http.MethodGet, "/debug/send-command-api", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}
