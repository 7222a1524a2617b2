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

//go:build !prod

package r30x

import (
	"context"
	"testing"
	"time"

	"github.com/ZaparooProject/go-r30x/internal/sensortest"
	"github.com/stretchr/testify/require"
)

// createMockDeviceWithTransport creates a device over a scripted mock
// transport. Tests queue acknowledge frames on the mock before issuing
// commands; nothing is handshaken, so the device talks to the factory
// broadcast address with factory defaults.
func createMockDeviceWithTransport(t *testing.T) (*Device, *MockTransport) {
	t.Helper()

	mockTransport := NewMockTransport()
	device, err := New(mockTransport)
	require.NoError(t, err)
	return device, mockTransport
}

// simTransport bridges the byte-level Transport interface to the virtual
// sensor, which answers commands synchronously inside Write. ReadExact
// polls because the sensor's Read never blocks.
type simTransport struct {
	sensor  *sensortest.VirtualSensor
	timeout time.Duration
}

func newSimTransport(sensor *sensortest.VirtualSensor) *simTransport {
	return &simTransport{sensor: sensor, timeout: 500 * time.Millisecond}
}

func (s *simTransport) Write(data []byte) error {
	_, err := s.sensor.Write(data)
	return err
}

func (s *simTransport) ReadExact(ctx context.Context, n int) ([]byte, error) {
	buf := make([]byte, 0, n)
	tmp := make([]byte, n)
	deadline := time.Now().Add(s.timeout)

	for len(buf) < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		k, err := s.sensor.Read(tmp[:n-len(buf)])
		if err != nil {
			return nil, err
		}
		if k > 0 {
			buf = append(buf, tmp[:k]...)
			deadline = time.Now().Add(s.timeout)
			continue
		}

		if time.Now().After(deadline) {
			return nil, NewTimeoutError("ReadExact", "sim")
		}
		time.Sleep(time.Millisecond)
	}

	return buf, nil
}

func (*simTransport) Close() error { return nil }

func (s *simTransport) SetTimeout(timeout time.Duration) error {
	s.timeout = timeout
	return nil
}

func (*simTransport) IsConnected() bool { return true }

func (*simTransport) Type() TransportType { return TransportMock }

// createSimulatedDevice builds an initialized device handle talking to a
// factory-default virtual sensor, wire protocol included.
func createSimulatedDevice(t *testing.T, opts ...Option) (*Device, *sensortest.VirtualSensor) {
	t.Helper()

	sensor := sensortest.NewVirtualSensor()
	device, err := New(newSimTransport(sensor), opts...)
	require.NoError(t, err)
	require.NoError(t, device.Init(context.Background()))
	return device, sensor
}

// queueAck encodes an acknowledge frame onto the mock transport's read
// queue. payload starts with the confirmation code.
func queueAck(t *testing.T, mock *MockTransport, address uint32, payload ...byte) {
	t.Helper()
	require.NoError(t, mock.QueueFrame(address, PacketAck, payload))
}
