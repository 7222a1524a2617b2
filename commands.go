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

// Instruction codes of the R30x command set. The byte values are fixed by
// the module firmware and shared across the R30x/R5xx family; names follow
// the vendor datasheet, vendor spellings included.
const (
	cmdGenImg          byte = 0x01 // capture a finger image into the image buffer
	cmdImg2Tz          byte = 0x02 // generate a character file from the image buffer
	cmdMatch           byte = 0x03 // compare character buffers 1 and 2
	cmdSearch          byte = 0x04 // search the library for the buffer template
	cmdRegModel        byte = 0x05 // combine character buffers 1 and 2 into a model
	cmdStore           byte = 0x06 // write a buffer template to the flash library
	cmdLoadChar        byte = 0x07 // load a flash template into a buffer
	cmdUpChar          byte = 0x08 // transfer a buffer template to the host
	cmdDownChar        byte = 0x09 // receive a template from the host into a buffer
	cmdUpImage         byte = 0x0A // transfer the image buffer to the host
	cmdDownImage       byte = 0x0B // receive an image from the host into the image buffer
	cmdDeletChar       byte = 0x0C // delete a range of library templates
	cmdEmpty           byte = 0x0D // erase the whole library
	cmdSetSysPara      byte = 0x0E // write a system parameter register
	cmdReadSysPara     byte = 0x0F // read the system parameter block
	cmdSetPwd          byte = 0x12 // set the handshake password
	cmdVfyPwd          byte = 0x13 // verify the handshake password
	cmdGetRandomCode   byte = 0x14 // generate a 32-bit random number
	cmdSetAdder        byte = 0x15 // set the module address
	cmdWriteNotepad    byte = 0x18 // write one 32-byte notepad page
	cmdReadNotepad     byte = 0x19 // read one 32-byte notepad page
	cmdHighSpeedSearch byte = 0x1B // fast library search
	cmdTempleteNum     byte = 0x1D // count stored templates
	cmdReadIndexTable  byte = 0x1F // read the library occupancy bitmap
)

// transferKind describes the data phase that follows an acknowledged
// command.
type transferKind int

const (
	// transferNone means the acknowledge packet completes the exchange.
	transferNone transferKind = iota
	// transferInbound means the module streams data packets to the host
	// after a successful acknowledge.
	transferInbound
	// transferOutbound means the host streams data packets to the module
	// after a successful acknowledge.
	transferOutbound
)

// commandSpec fixes the wire contract of one instruction: the acknowledge
// payload length on success (confirmation code included) and the direction
// of the data phase, if the instruction has one.
type commandSpec struct {
	name     string
	ackLen   int
	transfer transferKind
}

// commandTable drives the exchange path in protocol.go. ackLen is a
// minimum and is only enforced on success; modules answer failures with a
// bare confirmation code.
var commandTable = map[byte]commandSpec{
	cmdGenImg:          {name: "GenImg", ackLen: 1},
	cmdImg2Tz:          {name: "Img2Tz", ackLen: 1},
	cmdMatch:           {name: "Match", ackLen: 3},
	cmdSearch:          {name: "Search", ackLen: 5},
	cmdRegModel:        {name: "RegModel", ackLen: 1},
	cmdStore:           {name: "Store", ackLen: 1},
	cmdLoadChar:        {name: "LoadChar", ackLen: 1},
	cmdUpChar:          {name: "UpChar", ackLen: 1, transfer: transferInbound},
	cmdDownChar:        {name: "DownChar", ackLen: 1, transfer: transferOutbound},
	cmdUpImage:         {name: "UpImage", ackLen: 1, transfer: transferInbound},
	cmdDownImage:       {name: "DownImage", ackLen: 1, transfer: transferOutbound},
	cmdDeletChar:       {name: "DeletChar", ackLen: 1},
	cmdEmpty:           {name: "Empty", ackLen: 1},
	cmdSetSysPara:      {name: "SetSysPara", ackLen: 1},
	cmdReadSysPara:     {name: "ReadSysPara", ackLen: 17},
	cmdSetPwd:          {name: "SetPwd", ackLen: 1},
	cmdVfyPwd:          {name: "VfyPwd", ackLen: 1},
	cmdGetRandomCode:   {name: "GetRandomCode", ackLen: 5},
	cmdSetAdder:        {name: "SetAdder", ackLen: 1},
	cmdWriteNotepad:    {name: "WriteNotepad", ackLen: 1},
	cmdReadNotepad:     {name: "ReadNotepad", ackLen: 33},
	cmdHighSpeedSearch: {name: "HighSpeedSearch", ackLen: 5},
	cmdTempleteNum:     {name: "TempleteNum", ackLen: 3},
	cmdReadIndexTable:  {name: "ReadIndexTable", ackLen: 33},
}

// commandName resolves an instruction code for error and debug output.
func commandName(cmd byte) string {
	if spec, ok := commandTable[cmd]; ok {
		return spec.name
	}
	return fmt.Sprintf("0x%02X", cmd)
}
