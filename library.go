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
	"encoding/binary"
	"fmt"
)

// indexSegmentSlots is how many library pages one index table segment
// covers.
const indexSegmentSlots = 256

// IndexTable is the occupancy bitmap of one 256-page segment of the
// library. Bits are ordered LSB first within each byte.
type IndexTable [32]byte

// Occupied reports whether the slot (0-255, relative to the segment) holds
// a template.
func (t IndexTable) Occupied(slot int) bool {
	if slot < 0 || slot >= indexSegmentSlots {
		return false
	}
	return t[slot/8]&(1<<(slot%8)) != 0
}

// Pages returns the absolute page IDs of every occupied slot, given the
// segment the table was read from.
func (t IndexTable) Pages(segment int) []uint16 {
	base := segment * indexSegmentSlots
	var pages []uint16
	for slot := 0; slot < indexSegmentSlots; slot++ {
		if t.Occupied(slot) {
			pages = append(pages, uint16(base+slot))
		}
	}
	return pages
}

// DeleteTemplate removes count consecutive templates starting at library
// page pageID (vendor instruction DeletChar).
func (d *Device) DeleteTemplate(ctx context.Context, pageID, count uint16) error {
	params := make([]byte, 0, 4)
	params = binary.BigEndian.AppendUint16(params, pageID)
	params = binary.BigEndian.AppendUint16(params, count)
	_, err := d.command(ctx, cmdDeletChar, params...)
	return err
}

// EmptyLibrary erases every template in the library (vendor instruction
// Empty). There is no undo.
func (d *Device) EmptyLibrary(ctx context.Context) error {
	_, err := d.command(ctx, cmdEmpty)
	return err
}

// TemplateCount returns the number of stored templates (vendor instruction
// TempleteNum).
func (d *Device) TemplateCount(ctx context.Context) (uint16, error) {
	res, err := d.command(ctx, cmdTempleteNum)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(res[0:2]), nil
}

// ReadIndexTable returns the occupancy bitmap of one 256-page segment of
// the library (vendor instruction ReadIndexTable). Segment 0 covers pages
// 0-255, segment 1 pages 256-511, and so on up to segment 3.
func (d *Device) ReadIndexTable(ctx context.Context, segment int) (IndexTable, error) {
	var table IndexTable
	if segment < 0 || segment > 3 {
		return table, fmt.Errorf("index table segment out of range: %d", segment)
	}
	res, err := d.command(ctx, cmdReadIndexTable, byte(segment))
	if err != nil {
		return table, err
	}
	copy(table[:], res)
	return table, nil
}

// NextFreePageID walks the index table for the lowest vacant library page,
// for callers that enroll without tracking slot assignments themselves.
// Returns ErrNoFreePages when every page below the module's capacity is
// occupied.
func (d *Device) NextFreePageID(ctx context.Context) (uint16, error) {
	params, err := d.parameters(ctx)
	if err != nil {
		return 0, err
	}

	capacity := int(params.Capacity)
	for segment := 0; segment*indexSegmentSlots < capacity; segment++ {
		table, err := d.ReadIndexTable(ctx, segment)
		if err != nil {
			return 0, err
		}
		for slot := 0; slot < indexSegmentSlots; slot++ {
			page := segment*indexSegmentSlots + slot
			if page >= capacity {
				break
			}
			if !table.Occupied(slot) {
				return uint16(page), nil
			}
		}
	}
	return 0, ErrNoFreePages
}
