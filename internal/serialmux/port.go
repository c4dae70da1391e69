package serialmux

import (
	"io"
	"time"
)

// SerialPorter is the minimal port surface the mux needs.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// SerialPortFactory opens ports, so tests can inject fakes.
type SerialPortFactory interface {
	Open(path string, opts PortOptions) (SerialPorter, error)
}

// SerialPortOpener adapts a function to SerialPortFactory.
type SerialPortOpener func(path string, opts PortOptions) (SerialPorter, error)

// Open calls f.
func (f SerialPortOpener) Open(path string, opts PortOptions) (SerialPorter, error) {
	return f(path, opts)
}

// TimeoutSerialPorter is implemented by ports that support read timeouts.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}
