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
	"encoding/binary"
	"fmt"
)

// Wire format constants. Every frame on the link looks like:
//
//	[Start 0xEF01] [Address 4B] [PacketID 1B] [Length 2B] [Payload ...] [Checksum 2B]
//
// Length counts the payload plus the two checksum bytes. The checksum is the
// 16-bit truncated sum of the packet ID, both length bytes and every payload
// byte. All multi-byte fields are big-endian.
const (
	// startMarker opens every frame in both directions.
	startMarker uint16 = 0xEF01

	// AddressBroadcast is the factory default module address. A module
	// answers to it until SetAddress assigns a specific one.
	AddressBroadcast uint32 = 0xFFFFFFFF

	// frameHeaderLen covers start marker, address, packet ID and length field.
	frameHeaderLen = 9

	// frameChecksumLen is the trailing 16-bit checksum.
	frameChecksumLen = 2

	// MaxFramePayload is the largest payload a single frame can carry. The
	// 16-bit length field counts payload plus checksum, so payloads above
	// 0xFFFF-2 bytes cannot be represented.
	MaxFramePayload = 0xFFFF - frameChecksumLen
)

// PacketID classifies a frame on the wire.
type PacketID byte

const (
	// PacketCommand carries an instruction from host to module.
	PacketCommand PacketID = 0x01
	// PacketData carries one chunk of a multi-packet transfer.
	PacketData PacketID = 0x02
	// PacketAck carries the module's confirmation code and response fields.
	PacketAck PacketID = 0x07
	// PacketEndOfData closes a multi-packet transfer. It may carry the final
	// chunk of the transfer payload.
	PacketEndOfData PacketID = 0x08
)

// String returns a short name for debug and error output.
func (p PacketID) String() string {
	switch p {
	case PacketCommand:
		return "command"
	case PacketData:
		return "data"
	case PacketAck:
		return "ack"
	case PacketEndOfData:
		return "end-of-data"
	default:
		return fmt.Sprintf("unknown(0x%02X)", byte(p))
	}
}

// Frame is one packet of the module protocol, with the framing (marker,
// length, checksum) stripped.
type Frame struct {
	Payload []byte
	Address uint32
	ID      PacketID
}

// frameChecksum computes the 16-bit additive checksum over the packet ID,
// both length field bytes and the payload. Overflow wraps, matching the
// module's mod-65536 arithmetic.
func frameChecksum(id PacketID, length uint16, payload []byte) uint16 {
	sum := uint16(id)
	sum += length >> 8
	sum += length & 0x00FF
	for _, b := range payload {
		sum += uint16(b)
	}
	return sum
}

// encodedFrameLen returns the full on-wire size of a frame carrying payload.
func encodedFrameLen(payload []byte) int {
	return frameHeaderLen + len(payload) + frameChecksumLen
}

// EncodeFrame serializes one frame for the wire. The payload may be empty;
// the length field then counts only the checksum. Payloads above
// MaxFramePayload return ErrPayloadTooLarge.
func EncodeFrame(address uint32, id PacketID, payload []byte) ([]byte, error) {
	if len(payload) > MaxFramePayload {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxFramePayload)
	}

	length := uint16(len(payload) + frameChecksumLen)
	buf := make([]byte, 0, encodedFrameLen(payload))
	buf = binary.BigEndian.AppendUint16(buf, startMarker)
	buf = binary.BigEndian.AppendUint32(buf, address)
	buf = append(buf, byte(id))
	buf = binary.BigEndian.AppendUint16(buf, length)
	buf = append(buf, payload...)
	buf = binary.BigEndian.AppendUint16(buf, frameChecksum(id, length, payload))
	return buf, nil
}

// DecodeFrame parses one complete frame from the head of buf and returns the
// number of bytes it consumed. The checksum is verified before the frame is
// returned, and the returned payload is a copy rather than a view into buf.
//
// Errors: ErrBadStartMarker when buf does not open with 0xEF01,
// ErrTruncatedFrame when buf is shorter than the frame announces itself to
// be, ErrChecksumMismatch when the trailing checksum does not match the
// recomputed sum.
func DecodeFrame(buf []byte) (*Frame, int, error) {
	if len(buf) < frameHeaderLen {
		return nil, 0, fmt.Errorf("%w: %d bytes, header needs %d", ErrTruncatedFrame, len(buf), frameHeaderLen)
	}
	if marker := binary.BigEndian.Uint16(buf[0:2]); marker != startMarker {
		return nil, 0, fmt.Errorf("%w: 0x%04X", ErrBadStartMarker, marker)
	}

	address := binary.BigEndian.Uint32(buf[2:6])
	id := PacketID(buf[6])
	length := binary.BigEndian.Uint16(buf[7:9])
	if length < frameChecksumLen {
		return nil, 0, fmt.Errorf("%w: length field %d cannot hold a checksum", ErrTruncatedFrame, length)
	}

	total := frameHeaderLen + int(length)
	if len(buf) < total {
		return nil, 0, fmt.Errorf("%w: %d bytes of %d", ErrTruncatedFrame, len(buf), total)
	}

	payload := buf[frameHeaderLen : total-frameChecksumLen]
	want := binary.BigEndian.Uint16(buf[total-frameChecksumLen : total])
	if got := frameChecksum(id, length, payload); got != want {
		return nil, 0, fmt.Errorf("%w: computed 0x%04X, frame carries 0x%04X", ErrChecksumMismatch, got, want)
	}

	frame := &Frame{
		Payload: append([]byte(nil), payload...),
		Address: address,
		ID:      id,
	}
	return frame, total, nil
}
