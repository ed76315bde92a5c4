package commandmux

import (
	"io"

	"go.bug.st/serial"
)

// NewSerialCommandMux opens the serial device at path and returns a mux over
// it.
func NewSerialCommandMux(path string, opts PortOptions) (*CommandMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewCommandMux[serial.Port](port), nil
}

// NewReaderCommandMux returns a mux reading commands from r, typically
// os.Stdin. Device writes go to w.
func NewReaderCommandMux(r io.Reader, w io.Writer) *CommandMux[*ReaderPort] {
	return NewCommandMux(NewReaderPort(r, w))
}
