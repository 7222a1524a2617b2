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
)

// CharBuffer selects one of the module's two character file buffers. The
// firmware treats any other value as CharBuffer2.
type CharBuffer byte

const (
	// CharBuffer1 is the module's first character file buffer.
	CharBuffer1 CharBuffer = 0x01
	// CharBuffer2 is the module's second character file buffer.
	CharBuffer2 CharBuffer = 0x02
)

// SearchResult is a successful library search: the page of the matching
// template and the score the module assigned to the match.
type SearchResult struct {
	PageID uint16
	Score  uint16
}

// GenerateTemplate converts the image buffer into a character file in buf
// (vendor instruction Img2Tz). Poor captures answer CodeImageTooMessy or
// CodeTooFewFeatures.
func (d *Device) GenerateTemplate(ctx context.Context, buf CharBuffer) error {
	_, err := d.command(ctx, cmdImg2Tz, byte(buf))
	return err
}

// Match compares character buffers 1 and 2 and returns the match score
// (vendor instruction Match). Different fingers answer CodeNoMatch; see
// IsNoMatch.
func (d *Device) Match(ctx context.Context) (uint16, error) {
	res, err := d.command(ctx, cmdMatch)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(res[0:2]), nil
}

// Search looks for the character file in buf among count library pages
// starting at page start (vendor instruction Search). A miss answers
// CodeNotFound; see IsNotFound. Identify wraps this with a capture and the
// full library range.
func (d *Device) Search(ctx context.Context, buf CharBuffer, start, count uint16) (SearchResult, error) {
	return d.search(ctx, cmdSearch, buf, start, count)
}

// HighSpeedSearch is Search using the module's fast path (vendor instruction
// HighSpeedSearch). It can miss templates enrolled from poor captures; the
// plain Search is exhaustive.
func (d *Device) HighSpeedSearch(ctx context.Context, buf CharBuffer, start, count uint16) (SearchResult, error) {
	return d.search(ctx, cmdHighSpeedSearch, buf, start, count)
}

// search runs either search instruction; the two share their parameter and
// response layouts.
func (d *Device) search(ctx context.Context, cmd byte, buf CharBuffer, start, count uint16) (SearchResult, error) {
	params := make([]byte, 0, 5)
	params = append(params, byte(buf))
	params = binary.BigEndian.AppendUint16(params, start)
	params = binary.BigEndian.AppendUint16(params, count)

	res, err := d.command(ctx, cmd, params...)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{
		PageID: binary.BigEndian.Uint16(res[0:2]),
		Score:  binary.BigEndian.Uint16(res[2:4]),
	}, nil
}

// CreateModel merges character buffers 1 and 2 into a template model stored
// back into both buffers (vendor instruction RegModel). Captures of
// different fingers answer CodeCombineMismatch.
func (d *Device) CreateModel(ctx context.Context) error {
	_, err := d.command(ctx, cmdRegModel)
	return err
}

// StoreTemplate writes the model in buf to library page pageID (vendor
// instruction Store). Pages beyond the library capacity answer
// CodePageOutOfRange.
func (d *Device) StoreTemplate(ctx context.Context, buf CharBuffer, pageID uint16) error {
	params := make([]byte, 0, 3)
	params = append(params, byte(buf))
	params = binary.BigEndian.AppendUint16(params, pageID)
	_, err := d.command(ctx, cmdStore, params...)
	return err
}

// LoadTemplate reads library page pageID into buf (vendor instruction
// LoadChar).
func (d *Device) LoadTemplate(ctx context.Context, buf CharBuffer, pageID uint16) error {
	params := make([]byte, 0, 3)
	params = append(params, byte(buf))
	params = binary.BigEndian.AppendUint16(params, pageID)
	_, err := d.command(ctx, cmdLoadChar, params...)
	return err
}

// DownloadTemplate transfers the character file in buf to the host (vendor
// instruction UpChar). Template size depends on the module family, commonly
// 512 or 1536 bytes.
func (d *Device) DownloadTemplate(ctx context.Context, buf CharBuffer) ([]byte, error) {
	return d.commandReceive(ctx, cmdUpChar, byte(buf))
}

// UploadTemplate loads a previously downloaded character file back into buf
// (vendor instruction DownChar). Hosts use this with StoreTemplate to move
// enrollments between modules.
func (d *Device) UploadTemplate(ctx context.Context, buf CharBuffer, data []byte) error {
	return d.commandSend(ctx, data, cmdDownChar, byte(buf))
}
