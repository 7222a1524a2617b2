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
	"testing"

	"github.com/ZaparooProject/go-r30x/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProbe replaces the real port probe for the duration of a test.
// Tests touching probeDeviceFn share package state and must not run in
// parallel.
func stubProbe(t *testing.T, answer bool) *int {
	t.Helper()
	calls := new(int)
	saved := probeDeviceFn
	probeDeviceFn = func(context.Context, string, detection.Mode) bool {
		*calls++
		return answer
	}
	t.Cleanup(func() { probeDeviceFn = saved })
	return calls
}

func TestTransportName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "uart", New().Transport())
}

func TestDescriptorConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		port      serialPort
		want      detection.Confidence
		plausible bool
	}{
		{
			name:      "known bridge chip",
			port:      serialPort{Path: "/dev/ttyUSB0", VIDPID: "1A86:7523"},
			want:      detection.Medium,
			plausible: true,
		},
		{
			name:      "bridge chip lowercase vidpid",
			port:      serialPort{Path: "/dev/ttyUSB0", VIDPID: "1a86:7523"},
			want:      detection.Medium,
			plausible: true,
		},
		{
			name:      "module keyword in product",
			port:      serialPort{Path: "/dev/ttyUSB0", Product: "Fingerprint Reader"},
			want:      detection.Medium,
			plausible: true,
		},
		{
			name:      "grow keyword in manufacturer",
			port:      serialPort{Path: "/dev/ttyUSB0", Manufacturer: "GROW Technology"},
			want:      detection.Medium,
			plausible: true,
		},
		{
			name:      "generic usbserial adapter",
			port:      serialPort{Path: "/dev/cu.usbserial-0001", Name: "cu.usbserial-0001"},
			want:      detection.Low,
			plausible: true,
		},
		{
			name:      "ftdi manufacturer unknown pid",
			port:      serialPort{Path: "/dev/ttyUSB0", VIDPID: "0403:FFFF", Manufacturer: "FTDI"},
			want:      detection.Low,
			plausible: true,
		},
		{
			name:      "bare built-in port",
			port:      serialPort{Path: "/dev/ttyS0", Name: "ttyS0"},
			plausible: false,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, plausible := descriptorConfidence(&tt.port)
			assert.Equal(t, tt.plausible, plausible)
			if tt.plausible {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestExaminePassiveMode(t *testing.T) {
	calls := stubProbe(t, true)
	det := &detector{}

	// Descriptor match is reported without opening the port.
	info, ok := det.examine(context.Background(), &serialPort{
		Path: "/dev/ttyUSB0", VIDPID: "10C4:EA60",
	}, detection.Passive)
	require.True(t, ok)
	assert.Equal(t, detection.Medium, info.Confidence)
	assert.Zero(t, *calls, "passive mode must not probe")

	// A generic adapter is too weak a signal without a probe.
	_, ok = det.examine(context.Background(), &serialPort{
		Path: "/dev/cu.usbserial-0001", Name: "cu.usbserial-0001",
	}, detection.Passive)
	assert.False(t, ok)
}

func TestExamineSafeModeAnsweringPort(t *testing.T) {
	calls := stubProbe(t, true)
	det := &detector{}

	info, ok := det.examine(context.Background(), &serialPort{
		Path: "/dev/ttyUSB0", VIDPID: "1A86:7523",
	}, detection.Safe)
	require.True(t, ok)
	assert.Equal(t, detection.High, info.Confidence)
	assert.Equal(t, 1, *calls)
}

func TestExamineSafeModeSilentPort(t *testing.T) {
	// A CH340 bridge matches the descriptor heuristics, but the same chip
	// ships on countless unrelated gadgets. Safe mode drops ports that do
	// not answer the protocol.
	stubProbe(t, false)
	det := &detector{}

	_, ok := det.examine(context.Background(), &serialPort{
		Path: "/dev/ttyUSB0", VIDPID: "1A86:7523",
	}, detection.Safe)
	assert.False(t, ok)
}

func TestExamineFullModeKeepsSilentPort(t *testing.T) {
	stubProbe(t, false)
	det := &detector{}

	info, ok := det.examine(context.Background(), &serialPort{
		Path: "/dev/ttyUSB0", VIDPID: "1A86:7523",
	}, detection.Full)
	require.True(t, ok)
	assert.Equal(t, detection.Medium, info.Confidence)
}

func TestPortInfoMetadata(t *testing.T) {
	t.Parallel()

	info := portInfo(&serialPort{
		Path:         "/dev/ttyUSB0",
		Name:         "ttyUSB0",
		VIDPID:       "1A86:7523",
		Manufacturer: "QinHeng",
		Product:      "USB Serial",
		SerialNumber: "A1B2C3",
	}, detection.High)

	assert.Equal(t, "uart", info.Transport)
	assert.Equal(t, "/dev/ttyUSB0", info.Path)
	assert.Equal(t, detection.High, info.Confidence)
	assert.Equal(t, map[string]string{
		"vidpid":       "1A86:7523",
		"manufacturer": "QinHeng",
		"product":      "USB Serial",
		"serial":       "A1B2C3",
	}, info.Metadata)

	bare := portInfo(&serialPort{Path: "/dev/ttyS0", Name: "ttyS0"}, detection.Low)
	assert.Empty(t, bare.Metadata)
}
