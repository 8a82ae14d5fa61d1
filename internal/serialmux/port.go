package serialmux

import (
	"io"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// SerialPortOpener opens the port at path with the given options. Sensors take
// an opener so tests can hand them a TestableSerialPort.
type SerialPortOpener func(path string, opts PortOptions) (SerialPorter, error)
