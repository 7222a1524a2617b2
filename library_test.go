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
	"testing"

	"github.com/ZaparooProject/go-r30x/internal/sensortest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateCount(t *testing.T) {
	t.Parallel()

	device, sensor := createSimulatedDevice(t)
	ctx := context.Background()

	count, err := device.TemplateCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	sensor.SeedTemplate(0, 1)
	sensor.SeedTemplate(10, 2)
	sensor.SeedTemplate(999, 3)

	count, err = device.TemplateCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), count)
}

func TestDeleteTemplate(t *testing.T) {
	t.Parallel()

	device, sensor := createSimulatedDevice(t)
	for p := uint16(1); p <= 3; p++ {
		sensor.SeedTemplate(p, p)
	}

	ctx := context.Background()
	require.NoError(t, device.DeleteTemplate(ctx, 2, 1))
	assert.False(t, sensor.HasTemplate(2))
	assert.True(t, sensor.HasTemplate(1))
	assert.True(t, sensor.HasTemplate(3))
}

func TestDeleteTemplate_Range(t *testing.T) {
	t.Parallel()

	device, sensor := createSimulatedDevice(t)
	for p := uint16(10); p < 15; p++ {
		sensor.SeedTemplate(p, p)
	}
	sensor.SeedTemplate(15, 15)

	require.NoError(t, device.DeleteTemplate(context.Background(), 10, 5))
	for p := uint16(10); p < 15; p++ {
		assert.False(t, sensor.HasTemplate(p), "page %d should be deleted", p)
	}
	assert.True(t, sensor.HasTemplate(15))
}

func TestDeleteTemplate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		pageID uint16
		count  uint16
	}{
		{name: "zero count", pageID: 0, count: 0},
		{name: "range beyond capacity", pageID: 998, count: 5},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			device, _ := createSimulatedDevice(t)

			err := device.DeleteTemplate(context.Background(), tt.pageID, tt.count)
			require.Error(t, err)

			var devErr *DeviceError
			require.ErrorAs(t, err, &devErr)
			assert.Equal(t, CodeDeleteFailed, devErr.Code)
		})
	}
}

func TestEmptyLibrary(t *testing.T) {
	t.Parallel()

	device, sensor := createSimulatedDevice(t)
	for p := uint16(0); p < 4; p++ {
		sensor.SeedTemplate(p, p)
	}

	ctx := context.Background()
	require.NoError(t, device.EmptyLibrary(ctx))
	assert.Zero(t, sensor.TemplateCount())

	count, err := device.TemplateCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIndexTable_Occupied(t *testing.T) {
	t.Parallel()

	var table IndexTable
	table[0] = 0x01 // slot 0
	table[3] = 0x80 // slot 31

	assert.True(t, table.Occupied(0))
	assert.False(t, table.Occupied(1))
	assert.True(t, table.Occupied(31))
	assert.False(t, table.Occupied(32))
	assert.False(t, table.Occupied(-1))
	assert.False(t, table.Occupied(256))
}

func TestIndexTable_Pages(t *testing.T) {
	t.Parallel()

	var table IndexTable
	table[0] = 0x04 // slot 2
	table[1] = 0x02 // slot 9

	assert.Equal(t, []uint16{2, 9}, table.Pages(0))
	assert.Equal(t, []uint16{258, 265}, table.Pages(1))
}

func TestReadIndexTable(t *testing.T) {
	t.Parallel()

	device, sensor := createSimulatedDevice(t)
	for _, page := range []uint16{0, 7, 255, 256, 300} {
		sensor.SeedTemplate(page, page)
	}

	ctx := context.Background()

	table, err := device.ReadIndexTable(ctx, 0)
	require.NoError(t, err)
	assert.True(t, table.Occupied(0))
	assert.True(t, table.Occupied(7))
	assert.True(t, table.Occupied(255))
	assert.False(t, table.Occupied(1))
	assert.Equal(t, []uint16{0, 7, 255}, table.Pages(0))

	table, err = device.ReadIndexTable(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{256, 300}, table.Pages(1))

	table, err = device.ReadIndexTable(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, table.Pages(2))
}

func TestReadIndexTable_SegmentOutOfRange(t *testing.T) {
	t.Parallel()

	device, _ := createSimulatedDevice(t)
	ctx := context.Background()

	_, err := device.ReadIndexTable(ctx, 4)
	require.EqualError(t, err, "index table segment out of range: 4")

	_, err = device.ReadIndexTable(ctx, -1)
	require.EqualError(t, err, "index table segment out of range: -1")
}

func TestNextFreePageID(t *testing.T) {
	t.Parallel()

	device, sensor := createSimulatedDevice(t)
	ctx := context.Background()

	page, err := device.NextFreePageID(ctx)
	require.NoError(t, err)
	assert.Zero(t, page)

	// Occupy the first ten pages except one hole.
	for p := uint16(0); p < 10; p++ {
		if p == 5 {
			continue
		}
		sensor.SeedTemplate(p, p)
	}

	page, err = device.NextFreePageID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(5), page)
}

func TestNextFreePageID_SecondSegment(t *testing.T) {
	t.Parallel()

	device, sensor := createSimulatedDevice(t)
	for p := uint16(0); p < 256; p++ {
		sensor.SeedTemplate(p, p)
	}

	page, err := device.NextFreePageID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(256), page)
}

func TestNextFreePageID_FullLibrary(t *testing.T) {
	t.Parallel()

	// Capacity is read during Init, so shrink it before the handshake.
	sensor := sensortest.NewVirtualSensor()
	sensor.SetCapacity(8)
	device, err := New(newSimTransport(sensor))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, device.Init(ctx))

	for p := uint16(0); p < 8; p++ {
		sensor.SeedTemplate(p, p)
	}

	_, err = device.NextFreePageID(ctx)
	require.ErrorIs(t, err, ErrNoFreePages)
}

func TestTemplateCount_ReplyFromWrongAddress(t *testing.T) {
	t.Parallel()

	device, sensor := createSimulatedDevice(t)

	sensor.ReplyFromWrongAddress()
	_, err := device.TemplateCount(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAddressMismatch)
}

func TestTemplateCount_SilentSensor(t *testing.T) {
	t.Parallel()

	device, sensor := createSimulatedDevice(t)

	sensor.SilenceNextCommand()
	_, err := device.TemplateCount(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportTimeout)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsFatal(err))
}

func TestTemplateCount_UnknownConfirmationCode(t *testing.T) {
	t.Parallel()

	device, sensor := createSimulatedDevice(t)

	sensor.ForceNextCode(0x21)
	_, err := device.TemplateCount(context.Background())
	require.Error(t, err)

	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, ConfirmationCode(0x21), devErr.Code)
	assert.Contains(t, err.Error(), "unknown confirmation code 0x21")
}
