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

package uart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	r30x "github.com/ZaparooProject/go-r30x"
	"github.com/ZaparooProject/go-r30x/internal/sensortest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

// errPortClosed mimics the driver error for operations on a closed port.
var errPortClosed = errors.New("port is closed")

// MockSerialPort adapts the virtual sensor to the serial.Port interface.
// maxRead caps how many bytes one Read returns and readDelay stalls each
// Read first, so tests can emulate fragmented, slow serial delivery.
type MockSerialPort struct {
	sensor    *sensortest.VirtualSensor
	lastMode  *serial.Mode
	readDelay time.Duration
	maxRead   int
	mu        sync.Mutex
	closed    bool
}

// NewMockSerialPort creates a mock serial port backed by the sensor simulator.
func NewMockSerialPort(sensor *sensortest.VirtualSensor) *MockSerialPort {
	return &MockSerialPort{sensor: sensor}
}

func (m *MockSerialPort) SetMode(mode *serial.Mode) error {
	m.mu.Lock()
	m.lastMode = mode
	m.mu.Unlock()
	return nil
}

func (m *MockSerialPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	closed, delay, maxRead := m.closed, m.readDelay, m.maxRead
	m.mu.Unlock()

	if closed {
		return 0, errPortClosed
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if maxRead > 0 && len(p) > maxRead {
		p = p[:maxRead]
	}

	n, err := m.sensor.Read(p)
	if err != nil {
		return n, fmt.Errorf("mock read: %w", err)
	}
	return n, nil
}

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return 0, errPortClosed
	}

	n, err := m.sensor.Write(p)
	if err != nil {
		return n, fmt.Errorf("mock write: %w", err)
	}
	return n, nil
}

func (*MockSerialPort) Drain() error { return nil }

// ResetInputBuffer drops everything the sensor has queued for the host,
// like the OS flushing its receive buffer.
func (m *MockSerialPort) ResetInputBuffer() error {
	scratch := make([]byte, 256)
	for {
		n, err := m.sensor.Read(scratch)
		if err != nil {
			return fmt.Errorf("mock reset input: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
}

func (*MockSerialPort) ResetOutputBuffer() error { return nil }

func (*MockSerialPort) SetDTR(_ bool) error { return nil }

func (*MockSerialPort) SetRTS(_ bool) error { return nil }

func (*MockSerialPort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}

func (*MockSerialPort) SetReadTimeout(_ time.Duration) error { return nil }

func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (*MockSerialPort) Break(_ time.Duration) error { return nil }

var _ serial.Port = (*MockSerialPort)(nil)

// shortWritePort always writes one byte less than asked.
type shortWritePort struct {
	*MockSerialPort
}

func (s *shortWritePort) Write(p []byte) (int, error) {
	n, err := s.MockSerialPort.Write(p)
	if err != nil {
		return n, err
	}
	return n - 1, nil
}

// newTestTransport builds a Transport over a mock port, bypassing the real
// serial open.
func newTestTransport(sensor *sensortest.VirtualSensor) (*Transport, *MockSerialPort) {
	port := NewMockSerialPort(sensor)
	tr := &Transport{
		port:     port,
		portName: "mock://r30x",
		timeout:  500 * time.Millisecond,
		trace:    r30x.NewTraceBuffer("UART", "mock://r30x", 16),
	}
	return tr, port
}

// The full password handshake and parameter read over the serial byte pipe.
func TestUART_DeviceHandshake(t *testing.T) {
	t.Parallel()

	sensor := sensortest.NewVirtualSensor()
	tr, _ := newTestTransport(sensor)

	device, err := r30x.New(tr)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, device.Init(ctx))

	params, err := device.ReadSystemParameters(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(1000), params.Capacity)
}

func TestUART_TemplateTransfer(t *testing.T) {
	t.Parallel()

	sensor := sensortest.NewVirtualSensor()
	sensor.SeedTemplate(3, 12)
	tr, _ := newTestTransport(sensor)

	device, err := r30x.New(tr)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, device.Init(ctx))
	require.NoError(t, device.LoadTemplate(ctx, r30x.CharBuffer1, 3))

	data, err := device.DownloadTemplate(ctx, r30x.CharBuffer1)
	require.NoError(t, err)
	assert.Equal(t, sensortest.TemplateForFinger(12), data)
}

// Serial drivers deliver bytes in arbitrary fragments; byte-at-a-time is the
// worst case and everything must still reassemble.
func TestUART_FragmentedReads(t *testing.T) {
	t.Parallel()

	sensor := sensortest.NewVirtualSensor()
	sensor.SeedTemplate(0, 7)
	tr, port := newTestTransport(sensor)
	port.maxRead = 1

	device, err := r30x.New(tr)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, device.Init(ctx))

	count, err := device.TemplateCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), count)

	require.NoError(t, device.LoadTemplate(ctx, r30x.CharBuffer1, 0))
	data, err := device.DownloadTemplate(ctx, r30x.CharBuffer1)
	require.NoError(t, err)
	assert.Equal(t, sensortest.TemplateForFinger(7), data)
}

// The read deadline is an idle timeout: slow but steady delivery must not
// trip it even when the whole frame takes longer than the timeout.
func TestUART_SlowDeliveryResetsDeadline(t *testing.T) {
	t.Parallel()

	sensor := sensortest.NewVirtualSensor()
	tr, port := newTestTransport(sensor)
	port.readDelay = 20 * time.Millisecond
	port.maxRead = 4

	device, err := r30x.New(tr, r30x.WithTimeout(100*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, device.VerifyPassword(context.Background(), 0))
}

func TestUART_ReadExactZeroBytes(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTransport(sensortest.NewVirtualSensor())

	data, err := tr.ReadExact(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestUART_ReadExactIdleTimeout(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTransport(sensortest.NewVirtualSensor())
	require.NoError(t, tr.SetTimeout(80*time.Millisecond))

	start := time.Now()
	_, err := tr.ReadExact(context.Background(), 1)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, r30x.ErrTransportTimeout)
	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)

	// The timeout error carries the wire trace for diagnostics.
	assert.True(t, r30x.HasTrace(err))
}

func TestUART_ReadExactPortError(t *testing.T) {
	t.Parallel()

	tr, port := newTestTransport(sensortest.NewVirtualSensor())
	require.NoError(t, port.Close())

	_, err := tr.ReadExact(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, r30x.ErrTransportRead)
	assert.True(t, r30x.IsRetryable(err))
}

func TestUART_WriteShortWrite(t *testing.T) {
	t.Parallel()

	sensor := sensortest.NewVirtualSensor()
	tr := &Transport{
		port:     &shortWritePort{NewMockSerialPort(sensor)},
		portName: "mock://short",
		timeout:  100 * time.Millisecond,
	}

	err := tr.Write([]byte{0xEF, 0x01, 0x02})
	require.Error(t, err)
	assert.ErrorIs(t, err, r30x.ErrTransportWrite)
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

func TestUART_ClosedTransport(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTransport(sensortest.NewVirtualSensor())
	require.True(t, tr.IsConnected())

	require.NoError(t, tr.Close())
	assert.False(t, tr.IsConnected())

	err := tr.Write([]byte{0x01})
	require.ErrorIs(t, err, r30x.ErrTransportClosed)
	assert.True(t, r30x.IsFatal(err))

	_, err = tr.ReadExact(context.Background(), 1)
	require.ErrorIs(t, err, r30x.ErrTransportClosed)

	require.ErrorIs(t, tr.DiscardInput(), r30x.ErrTransportClosed)
	require.ErrorIs(t, tr.SetBaudRate(DefaultBaudRate), r30x.ErrTransportClosed)

	// Closing twice is fine.
	require.NoError(t, tr.Close())
}

func TestUART_DiscardInputDropsPendingReply(t *testing.T) {
	t.Parallel()

	sensor := sensortest.NewVirtualSensor()
	tr, _ := newTestTransport(sensor)

	// Provoke a reply, then throw it away unread.
	frame, err := r30x.EncodeFrame(r30x.AddressBroadcast, r30x.PacketCommand, []byte{0x13, 0, 0, 0, 0})
	require.NoError(t, err)
	require.NoError(t, tr.Write(frame))
	require.True(t, sensor.HasPendingResponse())

	require.NoError(t, tr.DiscardInput())
	assert.False(t, sensor.HasPendingResponse())

	require.NoError(t, tr.SetTimeout(50*time.Millisecond))
	_, err = tr.ReadExact(context.Background(), 1)
	assert.ErrorIs(t, err, r30x.ErrTransportTimeout)
}

func TestValidateBaudRate(t *testing.T) {
	t.Parallel()

	valid := []int{9600, 19200, 57600, 115200}
	for _, rate := range valid {
		assert.NoError(t, validateBaudRate(rate), "rate %d should be valid", rate)
	}

	invalid := []int{0, -9600, 4800, 9601, 14400, 230400}
	for _, rate := range invalid {
		err := validateBaudRate(rate)
		require.Error(t, err, "rate %d should be rejected", rate)
		assert.Contains(t, err.Error(), "invalid baud rate")
	}
}

func TestUART_SetBaudRate(t *testing.T) {
	t.Parallel()

	tr, port := newTestTransport(sensortest.NewVirtualSensor())

	require.NoError(t, tr.SetBaudRate(115200))
	require.NotNil(t, port.lastMode)
	assert.Equal(t, 115200, port.lastMode.BaudRate)
	assert.Equal(t, 8, port.lastMode.DataBits)
	assert.Equal(t, serial.NoParity, port.lastMode.Parity)
	assert.Equal(t, serial.OneStopBit, port.lastMode.StopBits)

	// Invalid rates are rejected before touching the port.
	port.lastMode = nil
	require.Error(t, tr.SetBaudRate(12345))
	assert.Nil(t, port.lastMode)
}

func TestNewWithBaudRate_InvalidRate(t *testing.T) {
	t.Parallel()

	_, err := NewWithBaudRate("/dev/ttyUSB0", 1234)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid baud rate")
}

func TestUART_Type(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTransport(sensortest.NewVirtualSensor())
	assert.Equal(t, r30x.TransportUART, tr.Type())
}
