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

// Package uart provides the serial transport for R30x fingerprint modules.
//
// The module side is a plain asynchronous serial line (8 data bits, no
// parity, 1 stop bit) running at a multiple of 9600 baud, 57600 by
// default. The transport is a byte pipe: framing, checksums and command
// semantics live in the parent package.
package uart

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
	"time"

	r30x "github.com/ZaparooProject/go-r30x"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the factory line speed of R30x modules
	// (baud multiplier 6, 6 x 9600).
	DefaultBaudRate = 57600

	// The module's baud rate register accepts multipliers 1 through 12.
	minBaudRate = 9600
	maxBaudRate = 115200

	// defaultReadTimeout bounds a single ReadExact call until the
	// device handle overrides it via SetTimeout.
	defaultReadTimeout = 2 * time.Second
)

// Transport implements the r30x.Transport interface for UART communication.
type Transport struct {
	port     serial.Port
	trace    *r30x.TraceBuffer // Wire history for error context (nil in bare test constructions)
	portName string
	timeout  time.Duration
	mu       sync.Mutex
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// pollInterval returns the per-Read blocking time of the serial port.
// Kept short so ReadExact stays responsive to context cancellation;
// Windows drivers need a longer slice for stability.
func pollInterval() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// windowsPostWriteDelay adds Windows-specific delay after write operations
func windowsPostWriteDelay() {
	if isWindows() {
		time.Sleep(15 * time.Millisecond) // Windows needs time for buffer flushing
	}
}

// New opens a UART transport at the factory default line speed.
func New(portName string) (*Transport, error) {
	return NewWithBaudRate(portName, DefaultBaudRate)
}

// NewWithBaudRate opens a UART transport at an explicit line speed.
// The rate must match what the module's baud rate register is set to,
// otherwise every exchange fails with corrupted frames.
func NewWithBaudRate(portName string, baudRate int) (*Transport, error) {
	if err := validateBaudRate(baudRate); err != nil {
		return nil, err
	}

	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	// Port reads block only for the poll interval; the overall deadline
	// is enforced in ReadExact so cancellation stays responsive.
	if err := port.SetReadTimeout(pollInterval()); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	return &Transport{
		port:     port,
		portName: portName,
		timeout:  defaultReadTimeout,
		trace:    r30x.NewTraceBuffer("UART", portName, 16),
	}, nil
}

// validateBaudRate checks the rate against the module's supported range.
func validateBaudRate(baudRate int) error {
	if baudRate < minBaudRate || baudRate > maxBaudRate || baudRate%9600 != 0 {
		return fmt.Errorf("invalid baud rate %d: must be a multiple of 9600 between %d and %d",
			baudRate, minBaudRate, maxBaudRate)
	}
	return nil
}

// traceTX records a TX operation if trace buffer is active
func (t *Transport) traceTX(data []byte, note string) {
	if t.trace != nil {
		t.trace.RecordTX(data, note)
	}
}

// traceRX records an RX operation if trace buffer is active
func (t *Transport) traceRX(data []byte, note string) {
	if t.trace != nil {
		t.trace.RecordRX(data, note)
	}
}

// traceTimeout records a timeout if trace buffer is active
func (t *Transport) traceTimeout(note string) {
	if t.trace != nil {
		t.trace.RecordTimeout(note)
	}
}

// wrapTrace attaches recent wire history to an error
func (t *Transport) wrapTrace(err error) error {
	if t.trace == nil {
		return err
	}
	return t.trace.WrapError(err)
}

// Write sends raw bytes to the module.
func (t *Transport) Write(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return r30x.NewTransportError("Write", t.portName, r30x.ErrTransportClosed, r30x.ErrorTypePermanent)
	}

	n, err := t.port.Write(data)
	if err != nil {
		return t.wrapTrace(r30x.NewTransportWriteError("Write", t.portName, err))
	}
	if n != len(data) {
		return t.wrapTrace(r30x.NewTransportWriteError("Write", t.portName, io.ErrShortWrite))
	}
	t.traceTX(data, "")

	if err := t.drainWithRetry("write"); err != nil {
		return t.wrapTrace(err)
	}
	windowsPostWriteDelay()
	return nil
}

// ReadExact reads exactly n bytes from the module. The deadline is an
// idle timeout: it resets whenever bytes arrive, so a slow multi-packet
// transfer is not cut off mid-stream as long as the module keeps sending.
func (t *Transport) ReadExact(ctx context.Context, n int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil, r30x.NewTransportError("ReadExact", t.portName, r30x.ErrTransportClosed, r30x.ErrorTypePermanent)
	}
	if n <= 0 {
		return []byte{}, nil
	}

	buf := make([]byte, n)
	got := 0
	deadline := time.Now().Add(t.timeout)

	for got < n {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("UART read cancelled: %w", err)
		}

		nr, err := t.port.Read(buf[got:])
		if err != nil {
			if isInterruptedSystemCall(err) {
				continue
			}
			if got > 0 {
				t.traceRX(buf[:got], "partial")
			}
			return nil, t.wrapTrace(r30x.NewTransportReadError("ReadExact", t.portName, err))
		}
		if nr == 0 {
			// Port poll expired with no data
			if time.Now().After(deadline) {
				t.traceTimeout(fmt.Sprintf("wanted %d bytes, got %d", n, got))
				return nil, t.wrapTrace(r30x.NewTimeoutError("ReadExact", t.portName))
			}
			continue
		}
		got += nr
		deadline = time.Now().Add(t.timeout)
	}

	t.traceRX(buf, "")
	return buf, nil
}

// DiscardInput drops any stale bytes sitting in the OS receive buffer.
// Called by the device handle before each command so a desynchronized
// module (a late reply after a timeout) cannot poison the next exchange.
func (t *Transport) DiscardInput() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return r30x.NewTransportError("DiscardInput", t.portName, r30x.ErrTransportClosed, r30x.ErrorTypePermanent)
	}
	if t.trace != nil {
		t.trace.Clear()
	}
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("UART discard input failed: %w", err)
	}
	return nil
}

// SetTimeout sets the idle read deadline for ReadExact.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// SetBaudRate reconfigures the host side of the serial line. Call it
// after changing the module's baud rate register so both ends agree.
func (t *Transport) SetBaudRate(baudRate int) error {
	if err := validateBaudRate(baudRate); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return r30x.NewTransportError("SetBaudRate", t.portName, r30x.ErrTransportClosed, r30x.ErrorTypePermanent)
	}
	if err := t.port.SetMode(&serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}); err != nil {
		return fmt.Errorf("UART set baud rate failed: %w", err)
	}
	return nil
}

// Close closes the transport connection
func (t *Transport) Close() error {
	if t.port != nil {
		err := t.port.Close()
		t.port = nil
		if err != nil {
			return fmt.Errorf("UART close failed: %w", err)
		}
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	return t.port != nil
}

// Type returns the transport type
func (*Transport) Type() r30x.TransportType {
	return r30x.TransportUART
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := t.port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) {
			if attempt < maxRetries-1 {
				delay := baseDelay * time.Duration(1<<attempt) // 2ms, 4ms, 8ms
				time.Sleep(delay)
				continue
			}
		}

		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}

	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}

// Ensure Transport implements the transport contracts
var (
	_ r30x.Transport      = (*Transport)(nil)
	_ r30x.InputDiscarder = (*Transport)(nil)
)
