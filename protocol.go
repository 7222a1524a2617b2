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
	"errors"
	"fmt"
)

// The exchange path below is the protocol's whole lifecycle in straight-line
// code: send command frame, await acknowledge, decode, then optionally run
// the data phase. The link is half-duplex with one command in flight, so
// there is nothing to pipeline or interleave. Any error is final for that
// exchange; retry policy belongs to callers (see Retry), which can reissue a
// command safely because the engine discards stale input before sending.

// exchange runs one command exchange and returns the acknowledge payload
// with the confirmation code stripped. A non-zero confirmation code becomes
// a *DeviceError; transport and framing failures pass through unchanged.
func (d *Device) exchange(ctx context.Context, cmd byte, params []byte) ([]byte, error) {
	return d.exchangeAddr(ctx, cmd, params, d.address)
}

// exchangeAddr is exchange with an explicit acknowledge address. SetAdder is
// the one instruction whose acknowledge arrives from a different address
// than the command went to.
func (d *Device) exchangeAddr(ctx context.Context, cmd byte, params []byte, ackAddress uint32) ([]byte, error) {
	spec, ok := commandTable[cmd]
	if !ok {
		return nil, fmt.Errorf("instruction 0x%02X not in command table", cmd)
	}
	op := spec.name

	// Leftovers from a timed-out exchange would desynchronize this one, and
	// the protocol has no resync sequence. Drop them when the transport can.
	if discarder, ok := d.transport.(InputDiscarder); ok {
		if err := discarder.DiscardInput(); err != nil {
			return nil, fmt.Errorf("%s: discard stale input: %w", op, err)
		}
	}

	payload := make([]byte, 0, 1+len(params))
	payload = append(payload, cmd)
	payload = append(payload, params...)

	frame, err := EncodeFrame(d.address, PacketCommand, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	debugf("%s: TX % X", op, frame)
	if err := d.transport.Write(frame); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ack, err := d.readAck(ctx, op, ackAddress)
	if err != nil {
		return nil, err
	}

	if code := ConfirmationCode(ack[0]); code != CodeOK {
		return nil, newDeviceError(op, code)
	}
	if len(ack) < spec.ackLen {
		return nil, fmt.Errorf("%s: %w: %d bytes, expected %d", op, ErrShortResponse, len(ack), spec.ackLen)
	}
	return ack[1:], nil
}

// readAck reads the acknowledge frame of an exchange and validates packet ID
// and address before anyone looks at the payload.
func (d *Device) readAck(ctx context.Context, op string, ackAddress uint32) ([]byte, error) {
	f, err := d.readFrame(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if f.ID != PacketAck {
		return nil, fmt.Errorf("%s: %w: %s while awaiting acknowledge", op, ErrUnexpectedPacket, f.ID)
	}
	if f.Address != ackAddress {
		return nil, fmt.Errorf("%s: %w: got 0x%08X, want 0x%08X", op, ErrAddressMismatch, f.Address, ackAddress)
	}
	if len(f.Payload) == 0 {
		return nil, fmt.Errorf("%s: %w: acknowledge carries no confirmation code", op, ErrShortResponse)
	}
	return f.Payload, nil
}

// readFrame reads one complete frame from the transport. The header is
// validated before the body is requested, so a corrupt length field cannot
// trigger an enormous read, and a bad marker fails in nine bytes.
func (d *Device) readFrame(ctx context.Context) (*Frame, error) {
	header, err := d.transport.ReadExact(ctx, frameHeaderLen)
	if err != nil {
		return nil, err
	}
	if marker := binary.BigEndian.Uint16(header[0:2]); marker != startMarker {
		return nil, fmt.Errorf("%w: 0x%04X", ErrBadStartMarker, marker)
	}
	length := binary.BigEndian.Uint16(header[7:9])
	if length < frameChecksumLen {
		return nil, fmt.Errorf("%w: length field %d cannot hold a checksum", ErrTruncatedFrame, length)
	}

	body, err := d.transport.ReadExact(ctx, int(length))
	if err != nil {
		return nil, err
	}

	frame, _, err := DecodeFrame(append(header, body...))
	if err != nil {
		return nil, err
	}
	debugf("RX %s frame, %d byte payload", frame.ID, len(frame.Payload))
	return frame, nil
}

// receiveTransfer reads the data phase that follows an acknowledged inbound
// transfer command: data packets assembled in order until the end-of-data
// packet. A read timeout before the terminator means the transfer died
// mid-stream and surfaces as ErrIncompleteTransfer.
func (d *Device) receiveTransfer(ctx context.Context) ([]byte, error) {
	var asm transferAssembler
	for {
		f, err := d.readFrame(ctx)
		if err != nil {
			if errors.Is(err, ErrTransportTimeout) {
				return nil, fmt.Errorf("%w after %d bytes: %w", ErrIncompleteTransfer, len(asm.bytes()), err)
			}
			return nil, err
		}
		if f.Address != d.address {
			return nil, fmt.Errorf("%w: got 0x%08X, want 0x%08X", ErrAddressMismatch, f.Address, d.address)
		}

		done, err := asm.add(f)
		if err != nil {
			return nil, err
		}
		if done {
			return asm.bytes(), nil
		}
	}
}

// sendTransfer streams a payload to the module as the data phase of an
// outbound transfer command, chunked to the module's negotiated packet size.
// The module does not acknowledge individual chunks; failures surface in the
// next exchange.
func (d *Device) sendTransfer(ctx context.Context, payload []byte) error {
	chunks, err := SplitPayload(payload, d.packetSize())
	if err != nil {
		return err
	}

	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := EncodeFrame(d.address, chunk.ID, chunk.Data)
		if err != nil {
			return err
		}
		if err := d.transport.Write(frame); err != nil {
			return err
		}
	}
	return nil
}

// command runs an exchange with no data phase.
func (d *Device) command(ctx context.Context, cmd byte, params ...byte) ([]byte, error) {
	return d.exchange(ctx, cmd, params)
}

// commandReceive runs an exchange whose success is followed by an inbound
// data stream, and returns the assembled transfer payload.
func (d *Device) commandReceive(ctx context.Context, cmd byte, params ...byte) ([]byte, error) {
	if _, err := d.exchange(ctx, cmd, params); err != nil {
		return nil, err
	}
	data, err := d.receiveTransfer(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", commandName(cmd), err)
	}
	return data, nil
}

// commandSend runs an exchange whose success is followed by an outbound
// data stream carrying payload.
func (d *Device) commandSend(ctx context.Context, payload []byte, cmd byte, params ...byte) error {
	if _, err := d.exchange(ctx, cmd, params); err != nil {
		return err
	}
	if err := d.sendTransfer(ctx, payload); err != nil {
		return fmt.Errorf("%s: %w", commandName(cmd), err)
	}
	return nil
}
