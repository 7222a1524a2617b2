// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package r30x

import (
	"context"
	"sync"
	"time"
)

// Transport moves raw bytes between the host and the module. The protocol
// engine does all framing; a transport only needs a reliable ordered byte
// stream, which is what the module's UART provides.
type Transport interface {
	// Write sends the full buffer to the module or fails.
	Write(data []byte) error

	// ReadExact returns exactly n bytes from the module. It blocks until n
	// bytes arrived, the context is done, or the transport's timeout
	// elapses. Partial data is never returned: on error the bytes read so
	// far are discarded and the link state is unknown.
	ReadExact(ctx context.Context, n int) ([]byte, error)

	// Close closes the transport connection
	Close() error

	// SetTimeout sets the read timeout for the transport
	SetTimeout(timeout time.Duration) error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// InputDiscarder is an optional transport capability: dropping bytes that
// arrived but were never consumed. The engine uses it before each command to
// clear leftovers from a timed-out exchange, since the protocol has no sync
// sequence of its own. Transports without it simply skip that step.
type InputDiscarder interface {
	// DiscardInput drops all buffered unread input.
	DiscardInput() error
}

// MockTransport provides a scripted byte-level Transport for testing. Reads
// are served from a queue filled with QueueRead/QueueFrame; writes are
// recorded for inspection. An empty read queue behaves like a silent module:
// ReadExact fails with a timeout error.
type MockTransport struct {
	readErr   error
	writeErr  error
	readBuf   []byte
	writes    [][]byte
	timeout   time.Duration
	discards  int
	mu        sync.RWMutex
	connected bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected: true,
		timeout:   time.Second,
	}
}

// Write implements Transport interface
func (m *MockTransport) Write(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return NewTransportError("Write", "mock", ErrTransportClosed, ErrorTypePermanent)
	}
	if m.writeErr != nil {
		return m.writeErr
	}

	m.writes = append(m.writes, append([]byte(nil), data...))
	return nil
}

// ReadExact implements Transport interface
func (m *MockTransport) ReadExact(ctx context.Context, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, NewTransportError("ReadExact", "mock", ErrTransportClosed, ErrorTypePermanent)
	}
	if m.readErr != nil {
		return nil, m.readErr
	}
	if len(m.readBuf) < n {
		// A real module that never answers surfaces as a read timeout.
		return nil, NewTimeoutError("ReadExact", "mock")
	}

	data := append([]byte(nil), m.readBuf[:n]...)
	m.readBuf = m.readBuf[n:]
	return data, nil
}

// DiscardInput implements the InputDiscarder capability. It only records
// the call: queued reads stay, because tests queue them as the module's
// upcoming replies, not as stale leftovers.
func (m *MockTransport) DiscardInput() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.discards++
	return nil
}

// Close implements Transport interface
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// SetTimeout implements Transport interface
func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	m.timeout = timeout
	m.mu.Unlock()
	return nil
}

// IsConnected implements Transport interface
func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	connected := m.connected
	m.mu.RUnlock()
	return connected
}

// Type implements Transport interface
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// QueueRead appends raw bytes for ReadExact to serve
func (m *MockTransport) QueueRead(data []byte) {
	m.mu.Lock()
	m.readBuf = append(m.readBuf, data...)
	m.mu.Unlock()
}

// QueueFrame encodes one frame and appends it to the read queue
func (m *MockTransport) QueueFrame(address uint32, id PacketID, payload []byte) error {
	buf, err := EncodeFrame(address, id, payload)
	if err != nil {
		return err
	}
	m.QueueRead(buf)
	return nil
}

// SetReadError configures an error to be returned by ReadExact
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// SetWriteError configures an error to be returned by Write
func (m *MockTransport) SetWriteError(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// ClearErrors removes injected read and write errors
func (m *MockTransport) ClearErrors() {
	m.mu.Lock()
	m.readErr = nil
	m.writeErr = nil
	m.mu.Unlock()
}

// Writes returns a copy of everything written so far, one entry per call
func (m *MockTransport) Writes() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	writes := make([][]byte, len(m.writes))
	for i, w := range m.writes {
		writes[i] = append([]byte(nil), w...)
	}
	return writes
}

// LastWrite returns the most recent write, or nil if nothing was written
func (m *MockTransport) LastWrite() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.writes) == 0 {
		return nil
	}
	return append([]byte(nil), m.writes[len(m.writes)-1]...)
}

// DiscardCount returns how many times DiscardInput was called
func (m *MockTransport) DiscardCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.discards
}

// PendingReads returns how many queued bytes remain unread
func (m *MockTransport) PendingReads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.readBuf)
}

// Reset clears the read queue, write log and injected errors
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.readBuf = nil
	m.writes = nil
	m.readErr = nil
	m.writeErr = nil
	m.discards = 0
	m.connected = true
	m.mu.Unlock()
}
