package serialport

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// ErrPortClosed is returned by TestablePort after Close.
var ErrPortClosed = errors.New("serial port closed")

// TestablePort implements Port with configurable behaviour for testing.
// Reads drain ReadBuffer; an empty buffer behaves like a read timeout.
type TestablePort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadError is returned by every Read call if set
	ReadError error

	// WriteError is returned by every Write call if set
	WriteError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	// DTR is the current DTR line state
	DTR bool

	// Resets counts ResetInputBuffer calls
	Resets int
}

// NewTestablePort creates a TestablePort preloaded with data.
func NewTestablePort(data []byte) *TestablePort {
	return &TestablePort{
		ReadBuffer:  bytes.NewBuffer(data),
		WriteBuffer: bytes.NewBuffer(nil),
	}
}

// Feed appends data to the read buffer.
func (t *TestablePort) Feed(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(data)
}

// Read implements io.Reader. With nothing buffered it waits for the read
// timeout, like a real port, and returns 0, nil.
func (t *TestablePort) Read(p []byte) (int, error) {
	t.mu.Lock()
	if t.Closed {
		t.mu.Unlock()
		return 0, ErrPortClosed
	}
	if t.ReadError != nil {
		err := t.ReadError
		t.mu.Unlock()
		return 0, err
	}
	if t.ReadBuffer.Len() == 0 {
		wait := t.ReadTimeout
		t.mu.Unlock()
		time.Sleep(wait)
		return 0, nil
	}
	defer t.mu.Unlock()
	return t.ReadBuffer.Read(p)
}

// Write implements io.Writer.
func (t *TestablePort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Closed {
		return 0, ErrPortClosed
	}
	if t.WriteError != nil {
		return 0, t.WriteError
	}
	return t.WriteBuffer.Write(p)
}

// Written returns a copy of everything written so far.
func (t *TestablePort) Written() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.WriteBuffer.Bytes()...)
}

// Close implements io.Closer.
func (t *TestablePort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	return nil
}

// SetReadTimeout records the timeout.
func (t *TestablePort) SetReadTimeout(d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadTimeout = d
	return nil
}

// SetDTR records the DTR state.
func (t *TestablePort) SetDTR(dtr bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.DTR = dtr
	return nil
}

// ResetInputBuffer counts the call; buffered test data is kept.
func (t *TestablePort) ResetInputBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Resets++
	return nil
}

var _ Port = (*TestablePort)(nil)
