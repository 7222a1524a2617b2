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

import "fmt"

// Chunk is one slice of a payload prepared for a multi-packet transfer. ID
// is PacketData for every chunk except the last, which is PacketEndOfData.
type Chunk struct {
	Data []byte
	ID   PacketID
}

// SplitPayload cuts a transfer payload into chunks of at most maxChunk
// bytes. The final chunk is marked PacketEndOfData so the receiver knows the
// transfer is complete; an empty payload still produces that terminator as a
// single empty end-of-data chunk. Chunk data aliases payload, so the caller
// must not modify payload until the chunks are sent.
func SplitPayload(payload []byte, maxChunk int) ([]Chunk, error) {
	if maxChunk < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, maxChunk)
	}
	if maxChunk > MaxFramePayload {
		maxChunk = MaxFramePayload
	}

	chunks := make([]Chunk, 0, len(payload)/maxChunk+1)
	for len(payload) > maxChunk {
		chunks = append(chunks, Chunk{Data: payload[:maxChunk], ID: PacketData})
		payload = payload[maxChunk:]
	}
	return append(chunks, Chunk{Data: payload, ID: PacketEndOfData}), nil
}

// transferAssembler folds inbound transfer frames into a payload until the
// end-of-data packet arrives. The zero value is ready to use.
type transferAssembler struct {
	buf  []byte
	done bool
}

// add consumes one frame and reports whether the transfer is complete.
// Frames after the terminator and packet IDs that do not belong in a data
// transfer are rejected.
func (a *transferAssembler) add(f *Frame) (bool, error) {
	if a.done {
		return true, fmt.Errorf("%w: %s packet after the terminator", ErrUnexpectedTerminator, f.ID)
	}
	switch f.ID {
	case PacketData:
		a.buf = append(a.buf, f.Payload...)
		return false, nil
	case PacketEndOfData:
		a.buf = append(a.buf, f.Payload...)
		a.done = true
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s packet inside a data transfer", ErrUnexpectedPacket, f.ID)
	}
}

// bytes returns the payload assembled so far.
func (a *transferAssembler) bytes() []byte { return a.buf }

// Reassemble reverses SplitPayload: it concatenates the payloads of a
// complete transfer sequence. The sequence must be zero or more data packets
// closed by exactly one end-of-data packet. A missing terminator returns
// ErrIncompleteTransfer; anything after the terminator returns
// ErrUnexpectedTerminator.
func Reassemble(frames []*Frame) ([]byte, error) {
	var asm transferAssembler
	for _, f := range frames {
		if _, err := asm.add(f); err != nil {
			return nil, err
		}
	}
	if !asm.done {
		return nil, fmt.Errorf("%w: no end-of-data packet in %d frames", ErrIncompleteTransfer, len(frames))
	}
	return asm.bytes(), nil
}
