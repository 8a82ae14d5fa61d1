package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenPort opens a real serial port. It satisfies SerialPortOpener.
func OpenPort(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return port, nil
}
