package commandmux

import (
	"io"
	"sync"
)

// Porter is the minimal device interface a CommandMux needs.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// ReaderPort adapts a plain reader, such as os.Stdin, to Porter. Writes go
// to w, or are discarded when w is nil. Close closes r if it is an
// io.Closer; later Reads report io.EOF.
type ReaderPort struct {
	r io.Reader
	w io.Writer

	mu     sync.Mutex
	closed bool
}

// NewReaderPort returns a Porter reading commands from r.
func NewReaderPort(r io.Reader, w io.Writer) *ReaderPort {
	if w == nil {
		w = io.Discard
	}
	return &ReaderPort{r: r, w: w}
}

func (p *ReaderPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, io.EOF
	}
	return p.r.Read(b)
}

func (p *ReaderPort) Write(b []byte) (int, error) {
	return p.w.Write(b)
}

func (p *ReaderPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if c, ok := p.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
