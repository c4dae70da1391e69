package serialmux

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var errPortClosed = errors.New("serial port closed")

// TestableSerialPort is an in-memory port for tests. Reads drain
// ReadBuffer, writes append to WriteBuffer, and each error field fails the
// next matching call once.
type TestableSerialPort struct {
	mu       sync.Mutex
	readCond *sync.Cond

	ReadBuffer  *bytes.Buffer
	WriteBuffer *bytes.Buffer

	ReadLatency  time.Duration
	WriteLatency time.Duration

	ReadError  error
	WriteError error
	CloseError error

	// BlockReads makes Read wait for data or Close instead of returning EOF.
	BlockReads bool

	Closed      bool
	ReadCalls   int
	WriteCalls  int
	ReadTimeout time.Duration
}

// NewTestableSerialPort returns an empty, non-blocking port.
func NewTestableSerialPort() *TestableSerialPort {
	t := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	t.readCond = sync.NewCond(&t.mu)
	return t
}

// NewBridgeSimPort returns a blocking port, as a real bridge behaves.
func NewBridgeSimPort() *TestableSerialPort {
	t := NewTestableSerialPort()
	t.BlockReads = true
	return t
}

func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadCalls++

	if t.Closed {
		return 0, errPortClosed
	}
	if err := t.ReadError; err != nil {
		t.ReadError = nil
		return 0, err
	}
	if t.ReadLatency > 0 {
		t.mu.Unlock()
		time.Sleep(t.ReadLatency)
		t.mu.Lock()
	}
	for t.BlockReads && !t.Closed && t.ReadBuffer.Len() == 0 {
		t.readCond.Wait()
	}
	if t.Closed {
		return 0, errPortClosed
	}
	return t.ReadBuffer.Read(p)
}

func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.WriteCalls++

	if t.Closed {
		return 0, errPortClosed
	}
	if err := t.WriteError; err != nil {
		t.WriteError = nil
		return 0, err
	}
	if t.WriteLatency > 0 {
		t.mu.Unlock()
		time.Sleep(t.WriteLatency)
		t.mu.Lock()
	}
	return t.WriteBuffer.Write(p)
}

func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	t.readCond.Broadcast()
	return t.CloseError
}

// SetReadTimeout records the timeout.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadTimeout = timeout
	return nil
}

// AddReadData queues bytes for Read.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(data)
	t.readCond.Broadcast()
}

// EmitButtons queues a bridge button-level line.
func (t *TestableSerialPort) EmitButtons(levels uint16) {
	t.AddReadData([]byte(fmt.Sprintf("B %04x\n", levels)))
}

// GetWrittenData returns a copy of everything written.
func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return bytes.Clone(t.WriteBuffer.Bytes())
}

// Commands returns the written data split into lines.
func (t *TestableSerialPort) Commands() []string {
	s := strings.TrimRight(string(t.GetWrittenData()), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// Reset clears buffers, counters and injected errors.
func (t *TestableSerialPort) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Reset()
	t.WriteBuffer.Reset()
	t.ReadCalls, t.WriteCalls = 0, 0
	t.Closed = false
	t.ReadError, t.WriteError, t.CloseError = nil, nil, nil
	t.ReadLatency, t.WriteLatency = 0, 0
}

// MockSerialPortFactory hands out a fixed port and records Open calls.
type MockSerialPortFactory struct {
	mu        sync.Mutex
	Port      SerialPorter
	Error     error
	OpenCalls []MockOpenCall
}

// MockOpenCall records one Open.
type MockOpenCall struct {
	Path string
	Opts PortOptions
}

// NewMockSerialPortFactory returns a factory for port.
func NewMockSerialPortFactory(port SerialPorter) *MockSerialPortFactory {
	return &MockSerialPortFactory{Port: port}
}

func (f *MockSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Opts: opts})
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Port, nil
}

// LastCall returns the most recent Open call, or nil.
func (f *MockSerialPortFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.OpenCalls) == 0 {
		return nil
	}
	c := f.OpenCalls[len(f.OpenCalls)-1]
	return &c
}
