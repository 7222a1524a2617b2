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

// SysParam selects a writable register for SetSystemParameter.
type SysParam byte

const (
	// ParamBaudRate sets the UART speed in units of 9600 bps (1-12). The
	// new speed applies as soon as the module acknowledges, so the caller
	// must reopen the transport to keep talking.
	ParamBaudRate SysParam = 4
	// ParamSecurityLevel sets the match threshold (1-5). Higher levels
	// reject more impostors and more genuine fingers alike.
	ParamSecurityLevel SysParam = 5
	// ParamPacketSize sets the transfer packet size code (0-3 for 32, 64,
	// 128, 256 bytes).
	ParamPacketSize SysParam = 6
)

// SystemParameters is the module's parameter block as returned by
// ReadSystemParameters. PacketSize and BaudRate are decoded to bytes and
// bps; the wire carries a size code and a 9600 bps multiplier.
type SystemParameters struct {
	StatusRegister uint16
	SystemID       uint16
	Capacity       uint16
	SecurityLevel  uint16
	Address        uint32
	PacketSize     int
	BaudRate       int
}

// sysParamBlockLen is the parameter block size after the confirmation code.
const sysParamBlockLen = 16

// parseSystemParameters decodes the 16-byte parameter block.
func parseSystemParameters(block []byte) (*SystemParameters, error) {
	if len(block) < sysParamBlockLen {
		return nil, fmt.Errorf("%w: parameter block %d bytes, expected %d",
			ErrShortResponse, len(block), sysParamBlockLen)
	}

	sizeCode := binary.BigEndian.Uint16(block[12:14])
	if sizeCode > 3 {
		return nil, fmt.Errorf("parameter block carries invalid packet size code %d", sizeCode)
	}

	return &SystemParameters{
		StatusRegister: binary.BigEndian.Uint16(block[0:2]),
		SystemID:       binary.BigEndian.Uint16(block[2:4]),
		Capacity:       binary.BigEndian.Uint16(block[4:6]),
		SecurityLevel:  binary.BigEndian.Uint16(block[6:8]),
		Address:        binary.BigEndian.Uint32(block[8:12]),
		PacketSize:     32 << sizeCode,
		BaudRate:       9600 * int(binary.BigEndian.Uint16(block[14:16])),
	}, nil
}

// ReadSystemParameters reads the module's parameter block (vendor
// instruction ReadSysPara) and caches it on the handle; the engine sizes
// outbound transfer chunks from the cache.
func (d *Device) ReadSystemParameters(ctx context.Context) (SystemParameters, error) {
	res, err := d.command(ctx, cmdReadSysPara)
	if err != nil {
		return SystemParameters{}, err
	}

	params, err := parseSystemParameters(res)
	if err != nil {
		return SystemParameters{}, fmt.Errorf("ReadSysPara: %w", err)
	}
	d.params = params
	return *params, nil
}

// parameters returns the cached parameter block, reading it when cold.
func (d *Device) parameters(ctx context.Context) (SystemParameters, error) {
	if d.params != nil {
		return *d.params, nil
	}
	return d.ReadSystemParameters(ctx)
}

// SetSystemParameter writes one system parameter register (vendor
// instruction SetSysPara). The cached parameter block no longer matches the
// module afterwards, so it is dropped and reread on demand.
func (d *Device) SetSystemParameter(ctx context.Context, param SysParam, value byte) error {
	if _, err := d.command(ctx, cmdSetSysPara, byte(param), value); err != nil {
		return err
	}
	d.params = nil
	return nil
}

// VerifyPassword presents the handshake password (vendor instruction
// VfyPwd). A wrong password answers CodeWrongPassword; see IsWrongPassword.
func (d *Device) VerifyPassword(ctx context.Context, password uint32) error {
	params := binary.BigEndian.AppendUint32(make([]byte, 0, 4), password)
	_, err := d.command(ctx, cmdVfyPwd, params...)
	return err
}

// SetPassword changes the handshake password (vendor instruction SetPwd)
// and updates the handle's config so a later Init presents the new value.
func (d *Device) SetPassword(ctx context.Context, password uint32) error {
	params := binary.BigEndian.AppendUint32(make([]byte, 0, 4), password)
	if _, err := d.command(ctx, cmdSetPwd, params...); err != nil {
		return err
	}
	d.config.Password = password
	return nil
}

// SetAddress assigns the module a new address (vendor instruction
// SetAdder). The module acknowledges from the new address already, and on
// success the handle switches over, since the old address is dead the
// moment the instruction lands.
func (d *Device) SetAddress(ctx context.Context, address uint32) error {
	params := binary.BigEndian.AppendUint32(make([]byte, 0, 4), address)
	if _, err := d.exchangeAddr(ctx, cmdSetAdder, params, address); err != nil {
		return err
	}

	d.address = address
	d.config.Address = address
	if d.params != nil {
		d.params.Address = address
	}
	return nil
}

// RandomNumber asks the module's hardware generator for a 32-bit random
// number (vendor instruction GetRandomCode).
func (d *Device) RandomNumber(ctx context.Context) (uint32, error) {
	res, err := d.command(ctx, cmdGetRandomCode)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(res[0:4]), nil
}

// Notepad geometry. The module keeps a small flash scratch area for host
// use, unrelated to the template library.
const (
	// NotepadPageSize is the size of one notepad page in bytes.
	NotepadPageSize = 32
	// NotepadPages is the number of notepad pages.
	NotepadPages = 16
)

// WriteNotepad stores data in one notepad page (vendor instruction
// WriteNotepad). Data shorter than the page is zero-padded; longer data is
// an error rather than a silent truncation.
func (d *Device) WriteNotepad(ctx context.Context, page int, data []byte) error {
	if page < 0 || page >= NotepadPages {
		return fmt.Errorf("notepad page out of range: %d", page)
	}
	if len(data) > NotepadPageSize {
		return fmt.Errorf("notepad data is %d bytes, a page holds %d", len(data), NotepadPageSize)
	}

	params := make([]byte, 1+NotepadPageSize)
	params[0] = byte(page)
	copy(params[1:], data)
	_, err := d.command(ctx, cmdWriteNotepad, params...)
	return err
}

// ReadNotepad returns the 32-byte content of one notepad page (vendor
// instruction ReadNotepad).
func (d *Device) ReadNotepad(ctx context.Context, page int) ([]byte, error) {
	if page < 0 || page >= NotepadPages {
		return nil, fmt.Errorf("notepad page out of range: %d", page)
	}
	res, err := d.command(ctx, cmdReadNotepad, byte(page))
	if err != nil {
		return nil, err
	}
	return res[:NotepadPageSize], nil
}
