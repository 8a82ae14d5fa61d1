package serialmux

import (
	"bytes"
	"errors"
	"sync"
)

// ErrPortClosed is returned by TestableSerialPort after Close.
var ErrPortClosed = errors.New("serial port closed")

// TestableSerialPort is an in-memory SerialPorter. Reads drain lines queued
// with AddReadData; writes are captured for GetWrittenData.
type TestableSerialPort struct {
	mu       sync.Mutex
	readCond *sync.Cond
	in       bytes.Buffer
	out      bytes.Buffer

	// BlockReads makes Read wait for data or Close instead of returning io.EOF.
	BlockReads bool
	// ReadError and WriteError fail the next call once.
	ReadError  error
	WriteError error
	Closed     bool
}

func NewTestableSerialPort() *TestableSerialPort {
	t := &TestableSerialPort{}
	t.readCond = sync.NewCond(&t.mu)
	return t
}

func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.takeErr(&t.ReadError); err != nil {
		return 0, err
	}
	for t.BlockReads && !t.Closed && t.in.Len() == 0 {
		t.readCond.Wait()
	}
	if t.Closed {
		return 0, ErrPortClosed
	}
	return t.in.Read(p)
}

func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.takeErr(&t.WriteError); err != nil {
		return 0, err
	}
	if t.Closed {
		return 0, ErrPortClosed
	}
	return t.out.Write(p)
}

func (t *TestableSerialPort) takeErr(slot *error) error {
	err := *slot
	*slot = nil
	return err
}

// Close wakes blocked readers; later reads and writes fail with ErrPortClosed.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	t.readCond.Broadcast()
	return nil
}

func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.in.Write(data)
	t.readCond.Signal()
}

func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.out.Bytes()...)
}

// MockOpener is a SerialPortOpener for tests that records every open.
type MockOpener struct {
	mu sync.Mutex

	// Port is the port to return from Open
	Port SerialPorter

	// Error is returned by Open if set
	Error error

	// OpenCalls records all Open calls
	OpenCalls []MockOpenCall
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Path string
	Opts PortOptions
}

// NewMockOpener creates a MockOpener that hands out port.
func NewMockOpener(port SerialPorter) *MockOpener {
	return &MockOpener{Port: port}
}

// Open returns the configured port or error. Its method value is a
// SerialPortOpener.
func (f *MockOpener) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Opts: opts})
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Port, nil
}

// LastCall returns the most recent Open call, or nil if none.
func (f *MockOpener) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.OpenCalls) == 0 {
		return nil
	}
	return &f.OpenCalls[len(f.OpenCalls)-1]
}
