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

// Package sensortest provides test utilities including a wire-level R30x simulator.
//
// The VirtualSensor type implements io.ReadWriter and simulates an R30x
// fingerprint module at the packet protocol level, as specified in the
// R307 user manual.
//
// Protocol Reference: R307 Fingerprint Identification Module User Manual
//   - Data package format: §II.2
//   - Checksum and package identifiers: §II.2.3
//   - System related instructions: §III.4.1
//   - Fingerprint processing instructions: §III.4.2
//
// The simulator duplicates the protocol constants instead of importing
// the root package so that root package tests can import it without a cycle.
package sensortest

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ZaparooProject/go-r30x/internal/syncutil"
)

// Frame constants from R307 user manual §II.2
const (
	markerHi  = 0xEF
	markerLo  = 0x01
	headerLen = 9 // marker(2) + address(4) + pid(1) + length(2)

	pidCommand   = 0x01
	pidData      = 0x02
	pidAck       = 0x07
	pidEndOfData = 0x08
)

// Instruction codes from R307 user manual §III.4
const (
	cmdGenImg          = 0x01
	cmdImg2Tz          = 0x02
	cmdMatch           = 0x03
	cmdSearch          = 0x04
	cmdRegModel        = 0x05
	cmdStore           = 0x06
	cmdLoadChar        = 0x07
	cmdUpChar          = 0x08
	cmdDownChar        = 0x09
	cmdUpImage         = 0x0A
	cmdDownImage       = 0x0B
	cmdDeletChar       = 0x0C
	cmdEmpty           = 0x0D
	cmdSetSysPara      = 0x0E
	cmdReadSysPara     = 0x0F
	cmdSetPwd          = 0x12
	cmdVfyPwd          = 0x13
	cmdGetRandomCode   = 0x14
	cmdSetAdder        = 0x15
	cmdWriteNotepad    = 0x18
	cmdReadNotepad     = 0x19
	cmdHighSpeedSearch = 0x1B
	cmdTempleteNum     = 0x1D
	cmdReadIndexTable  = 0x1F
)

// Confirmation codes from R307 user manual §III.3 (Table: confirmation code definitions)
const (
	codeOK              = 0x00 // command executed
	codePacketErr       = 0x01 // error when receiving data package
	codeNoFinger        = 0x02 // no finger on the sensor
	codeNoMatch         = 0x08 // character files do not match
	codeNotFound        = 0x09 // no matching finger in the library
	codeCombineMismatch = 0x0A // failed to combine the character files
	codeBadLocation     = 0x0B // PageID beyond the finger library
	codeReadTemplate    = 0x0C // error reading template from library
	codeUploadTemplate  = 0x0D // error uploading template
	codePacketFollow    = 0x0E // module cannot receive following packets
	codeUploadImage     = 0x0F // error uploading image
	codeDeleteFail      = 0x10 // failed to delete templates
	codeEmptyFail       = 0x11 // failed to clear the library
	codeWrongPassword   = 0x13 // incorrect password
	codeNoImage         = 0x15 // no valid primary image in the buffer
	codeFlashError      = 0x18 // error writing flash
	codeInvalidRegister = 0x1A // invalid register number

	// codeMustVerify is returned by newer firmware when the password
	// handshake has not been performed. It sits outside the documented
	// 0x00-0x1F range, which makes it useful for exercising unknown-code
	// handling in the driver.
	codeMustVerify = 0x21
)

// Buffer and library geometry. Values match an R307 at factory defaults.
const (
	// TemplateSize is the size of a character file or template in bytes.
	TemplateSize = 512

	// ImageSize is the size of the raw image buffer in bytes
	// (256x288 pixels at 4 bits per pixel).
	ImageSize = 36864

	// NotepadPages and NotepadPageSize describe the user flash notepad.
	NotepadPages    = 16
	NotepadPageSize = 32

	indexSegmentSlots = 256
)

// downloadTarget identifies where an inbound data transfer lands.
type downloadTarget int

const (
	targetNone downloadTarget = iota
	targetCharBuffer
	targetImage
)

type pendingDownload struct {
	data   []byte
	target downloadTarget
	buffer int
	active bool
}

// VirtualSensor simulates an R30x fingerprint module at the wire protocol level.
// It implements io.ReadWriter to plug directly into transport layer tests.
//
// The simulator enforces the packet protocol as specified in the user manual:
//   - Frame format validation (start marker, length, checksum)
//   - Address filtering (frames for another address are silently ignored)
//   - Acknowledge packets carrying confirmation codes
//   - Multi-packet data transfers in both directions
//
// Finger identity is modelled by a 16-bit finger ID: PresentFinger places a
// finger on the virtual sensor window, GenImg captures it into the image
// buffer and Img2Tz encodes it into a character file. Match and Search
// compare the encoded IDs, which is enough to test every driver code path
// without real biometric data.
type VirtualSensor struct {
	library  map[uint16][]byte
	rxBuffer bytes.Buffer
	txBuffer bytes.Buffer
	download pendingDownload
	mu       syncutil.Mutex

	address  uint32
	password uint32
	verified bool

	// Image and character buffer pipeline
	currentFinger uint16
	fingerPresent bool
	imageValid    bool
	imageData     []byte
	charValid     [2]bool
	charData      [2][]byte

	// System parameters (ReadSysPara block)
	statusRegister uint16
	systemID       uint16
	capacity       uint16
	securityLevel  uint16
	packetSizeCode uint16
	baudMultiplier uint16

	notepad [NotepadPages][NotepadPageSize]byte

	randState  uint32
	matchScore uint16

	// Fault injection
	requirePassword     bool
	corruptNextChecksum bool
	dropTerminator      bool
	silenceNextCommand  bool
	replyWrongAddress   bool
	forcedCode          byte
	forcedCodeSet       bool
}

// NewVirtualSensor creates a wire-level R30x simulator at factory defaults:
// address 0xFFFFFFFF, password 0, a 1000 template library, security level 3,
// 128 byte data packets and 57600 baud.
func NewVirtualSensor() *VirtualSensor {
	return &VirtualSensor{
		library:        make(map[uint16][]byte),
		address:        0xFFFFFFFF,
		password:       0,
		systemID:       0x0009,
		capacity:       1000,
		securityLevel:  3,
		packetSizeCode: 2,
		baudMultiplier: 6,
		randState:      0x9E3779B9,
		matchScore:     196,
	}
}

// Write implements io.Writer - receives data from the host.
// Complete frames are parsed and answered immediately.
func (v *VirtualSensor) Write(data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rxBuffer.Write(data)
	v.processReceivedData()
	return len(data), nil
}

// Read implements io.Reader - returns response data to the host.
func (v *VirtualSensor) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.txBuffer.Len() == 0 {
		return 0, nil // No data available
	}

	n, err := v.txBuffer.Read(buf)
	if err != nil {
		return n, fmt.Errorf("read from tx buffer: %w", err)
	}
	return n, nil
}

// ============================================================================
// Test configuration
// ============================================================================

// PresentFinger places a finger with the given identity on the sensor window.
func (v *VirtualSensor) PresentFinger(id uint16) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fingerPresent = true
	v.currentFinger = id
}

// RemoveFinger lifts the finger off the sensor window.
func (v *VirtualSensor) RemoveFinger() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fingerPresent = false
}

// SeedTemplate stores a template for the given finger identity directly in
// the library, bypassing the enrollment flow.
func (v *VirtualSensor) SeedTemplate(pageID, finger uint16) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.library[pageID] = TemplateForFinger(finger)
}

// HasTemplate reports whether a library page is occupied.
func (v *VirtualSensor) HasTemplate(pageID uint16) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.library[pageID]
	return ok
}

// Template returns a copy of the template stored at a library page.
func (v *VirtualSensor) Template(pageID uint16) []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	t, ok := v.library[pageID]
	if !ok {
		return nil
	}
	out := make([]byte, len(t))
	copy(out, t)
	return out
}

// TemplateCount returns the number of occupied library pages.
func (v *VirtualSensor) TemplateCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.library)
}

// Address returns the module's current address.
func (v *VirtualSensor) Address() uint32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.address
}

// Password returns the module's current password.
func (v *VirtualSensor) Password() uint32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.password
}

// SetAddressValue overrides the module address without a SetAdder exchange.
func (v *VirtualSensor) SetAddressValue(address uint32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.address = address
}

// SetPasswordValue overrides the module password without a SetPwd exchange.
func (v *VirtualSensor) SetPasswordValue(password uint32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.password = password
}

// SetCapacity overrides the library capacity reported by ReadSysPara.
func (v *VirtualSensor) SetCapacity(capacity uint16) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.capacity = capacity
}

// SetPacketSizeCode overrides the data packet size register (0-3 for 32-256 bytes).
func (v *VirtualSensor) SetPacketSizeCode(code uint16) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.packetSizeCode = code
}

// NotepadPage returns a copy of a notepad page.
func (v *VirtualSensor) NotepadPage(page int) []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]byte, NotepadPageSize)
	copy(out, v.notepad[page][:])
	return out
}

// RequirePassword makes the simulator reject all commands except VfyPwd and
// SetPwd with confirmation 0x21 until the password handshake succeeds,
// matching newer GROW firmware.
func (v *VirtualSensor) RequirePassword(require bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.requirePassword = require
}

// CorruptNextChecksum flips a checksum byte in the next response frame.
func (v *VirtualSensor) CorruptNextChecksum() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.corruptNextChecksum = true
}

// DropTerminator makes the next outbound data transfer omit its final
// end-of-data packet, leaving the host waiting.
func (v *VirtualSensor) DropTerminator() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropTerminator = true
}

// SilenceNextCommand makes the simulator swallow the next command without
// any response, simulating a wedged module.
func (v *VirtualSensor) SilenceNextCommand() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.silenceNextCommand = true
}

// ReplyFromWrongAddress makes the next acknowledge carry a mismatched address.
func (v *VirtualSensor) ReplyFromWrongAddress() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.replyWrongAddress = true
}

// ForceNextCode makes the next command acknowledge with the given
// confirmation code regardless of its normal outcome.
func (v *VirtualSensor) ForceNextCode(code byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.forcedCode = code
	v.forcedCodeSet = true
}

// HasPendingResponse returns true if response data is waiting to be read.
func (v *VirtualSensor) HasPendingResponse() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.txBuffer.Len() > 0
}

// Reset clears all buffers, the library and every fault injection flag,
// returning the simulator to factory defaults.
func (v *VirtualSensor) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rxBuffer.Reset()
	v.txBuffer.Reset()
	v.download = pendingDownload{}
	v.library = make(map[uint16][]byte)
	v.address = 0xFFFFFFFF
	v.password = 0
	v.verified = false
	v.fingerPresent = false
	v.imageValid = false
	v.imageData = nil
	v.charValid = [2]bool{}
	v.charData = [2][]byte{}
	v.notepad = [NotepadPages][NotepadPageSize]byte{}
	v.requirePassword = false
	v.corruptNextChecksum = false
	v.dropTerminator = false
	v.silenceNextCommand = false
	v.replyWrongAddress = false
	v.forcedCode = 0
	v.forcedCodeSet = false
}

// TemplateForFinger builds the deterministic character file the simulator
// produces for a finger identity. Tests use it to assert transfer contents.
func TemplateForFinger(id uint16) []byte {
	t := make([]byte, TemplateSize)
	binary.BigEndian.PutUint16(t, id)
	for i := 2; i < len(t); i++ {
		t[i] = byte(i)
	}
	return t
}

// ImageForFinger builds the deterministic raw image the simulator captures
// for a finger identity.
func ImageForFinger(id uint16) []byte {
	img := make([]byte, ImageSize)
	binary.BigEndian.PutUint16(img, id)
	for i := 2; i < len(img); i++ {
		img[i] = byte(i * 31)
	}
	return img
}

func fingerIDOf(data []byte) uint16 {
	if len(data) < 2 {
		return 0
	}
	return binary.BigEndian.Uint16(data)
}

// ============================================================================
// Frame parsing
// ============================================================================

// processReceivedData parses frames from the receive buffer and generates responses.
func (v *VirtualSensor) processReceivedData() {
	for {
		data := v.rxBuffer.Bytes()

		start := findMarker(data)
		if start < 0 {
			// Keep the final byte, it may be the first half of a marker
			if v.rxBuffer.Len() > 1 {
				v.rxBuffer.Next(v.rxBuffer.Len() - 1)
			}
			return
		}
		if start > 0 {
			v.rxBuffer.Next(start)
			data = v.rxBuffer.Bytes()
		}

		if len(data) < headerLen {
			return // Wait for a complete header
		}

		address := binary.BigEndian.Uint32(data[2:6])
		pid := data[6]
		length := int(binary.BigEndian.Uint16(data[7:9]))
		if length < 2 {
			// Malformed length, skip the marker and rescan
			v.rxBuffer.Next(2)
			continue
		}

		total := headerLen + length
		if len(data) < total {
			return // Wait for the rest of the frame
		}

		payload := append([]byte(nil), data[headerLen:total-2]...)
		wantSum := binary.BigEndian.Uint16(data[total-2 : total])
		v.rxBuffer.Next(total)

		// Frames for another module on the bus are ignored entirely
		if address != v.address {
			continue
		}

		if frameChecksum(pid, uint16(length), payload) != wantSum {
			// Manual §III.3: a corrupted package is answered with 0x01
			v.sendAck(codePacketErr)
			continue
		}

		v.dispatch(pid, payload)
	}
}

// findMarker locates the 0xEF 0x01 start marker
func findMarker(data []byte) int {
	for i := 0; i+1 < len(data); i++ {
		if data[i] == markerHi && data[i+1] == markerLo {
			return i
		}
	}
	return -1
}

func frameChecksum(pid byte, length uint16, payload []byte) uint16 {
	sum := uint16(pid) + (length >> 8) + (length & 0xFF)
	for _, b := range payload {
		sum += uint16(b)
	}
	return sum
}

func (v *VirtualSensor) buildFrame(pid byte, payload []byte) []byte {
	address := v.address
	if v.replyWrongAddress {
		v.replyWrongAddress = false
		address ^= 0x000000FF
	}

	length := uint16(len(payload) + 2)
	f := make([]byte, 0, headerLen+len(payload)+2)
	f = append(f, markerHi, markerLo)
	f = binary.BigEndian.AppendUint32(f, address)
	f = append(f, pid)
	f = binary.BigEndian.AppendUint16(f, length)
	f = append(f, payload...)
	f = binary.BigEndian.AppendUint16(f, frameChecksum(pid, length, payload))

	if v.corruptNextChecksum {
		v.corruptNextChecksum = false
		f[len(f)-1] ^= 0xFF
	}
	return f
}

func (v *VirtualSensor) sendAck(code byte, extra ...byte) {
	payload := append([]byte{code}, extra...)
	v.txBuffer.Write(v.buildFrame(pidAck, payload))
}

// sendDataStream chunks data into data packets followed by an end-of-data
// packet, honoring the configured packet size register.
func (v *VirtualSensor) sendDataStream(data []byte) {
	chunk := v.packetSize()
	for len(data) > chunk {
		v.txBuffer.Write(v.buildFrame(pidData, data[:chunk]))
		data = data[chunk:]
	}
	if v.dropTerminator {
		v.dropTerminator = false
		return
	}
	v.txBuffer.Write(v.buildFrame(pidEndOfData, data))
}

func (v *VirtualSensor) packetSize() int {
	return 32 << v.packetSizeCode
}

// ============================================================================
// Command dispatch
// ============================================================================

func (v *VirtualSensor) dispatch(pid byte, payload []byte) {
	switch pid {
	case pidCommand:
		v.handleCommand(payload)
	case pidData:
		if v.download.active {
			v.download.data = append(v.download.data, payload...)
		}
	case pidEndOfData:
		if v.download.active {
			v.download.data = append(v.download.data, payload...)
			v.commitDownload()
		}
	}
}

func (v *VirtualSensor) commitDownload() {
	switch v.download.target {
	case targetCharBuffer:
		v.charData[v.download.buffer] = v.download.data
		v.charValid[v.download.buffer] = true
	case targetImage:
		v.imageData = v.download.data
		v.imageValid = true
	case targetNone:
	}
	v.download = pendingDownload{}
}

//nolint:gocognit,cyclop // High cyclomatic complexity expected for command dispatch
func (v *VirtualSensor) handleCommand(payload []byte) {
	if v.silenceNextCommand {
		v.silenceNextCommand = false
		return
	}
	if len(payload) == 0 {
		v.sendAck(codePacketErr)
		return
	}

	cmd := payload[0]
	params := payload[1:]

	if v.forcedCodeSet {
		v.forcedCodeSet = false
		v.sendAck(v.forcedCode)
		return
	}

	if v.requirePassword && !v.verified && cmd != cmdVfyPwd && cmd != cmdSetPwd {
		v.sendAck(codeMustVerify)
		return
	}

	switch cmd {
	case cmdGenImg:
		v.handleGenImg()
	case cmdImg2Tz:
		v.handleImg2Tz(params)
	case cmdMatch:
		v.handleMatch()
	case cmdSearch, cmdHighSpeedSearch:
		v.handleSearch(params)
	case cmdRegModel:
		v.handleRegModel()
	case cmdStore:
		v.handleStore(params)
	case cmdLoadChar:
		v.handleLoadChar(params)
	case cmdUpChar:
		v.handleUpChar(params)
	case cmdDownChar:
		v.handleDownChar(params)
	case cmdUpImage:
		v.handleUpImage()
	case cmdDownImage:
		v.handleDownImage()
	case cmdDeletChar:
		v.handleDeletChar(params)
	case cmdEmpty:
		v.handleEmpty()
	case cmdSetSysPara:
		v.handleSetSysPara(params)
	case cmdReadSysPara:
		v.handleReadSysPara()
	case cmdSetPwd:
		v.handleSetPwd(params)
	case cmdVfyPwd:
		v.handleVfyPwd(params)
	case cmdGetRandomCode:
		v.handleGetRandomCode()
	case cmdSetAdder:
		v.handleSetAdder(params)
	case cmdWriteNotepad:
		v.handleWriteNotepad(params)
	case cmdReadNotepad:
		v.handleReadNotepad(params)
	case cmdTempleteNum:
		v.handleTempleteNum()
	case cmdReadIndexTable:
		v.handleReadIndexTable(params)
	default:
		v.sendAck(codePacketErr)
	}
}

// bufferIndex maps a CharBuffer parameter to an internal index.
// The firmware treats any value other than 1 as buffer 2.
func bufferIndex(id byte) int {
	if id == 1 {
		return 0
	}
	return 1
}

// ============================================================================
// Command handlers
// ============================================================================

// handleGenImg captures the finger on the window into the image buffer (§III.4.2 GenImg)
func (v *VirtualSensor) handleGenImg() {
	if !v.fingerPresent {
		v.sendAck(codeNoFinger)
		return
	}
	v.imageData = ImageForFinger(v.currentFinger)
	v.imageValid = true
	v.sendAck(codeOK)
}

// handleImg2Tz converts the image buffer into a character file (§III.4.2 Img2Tz)
func (v *VirtualSensor) handleImg2Tz(params []byte) {
	if len(params) < 1 {
		v.sendAck(codePacketErr)
		return
	}
	if !v.imageValid {
		v.sendAck(codeNoImage)
		return
	}
	idx := bufferIndex(params[0])
	v.charData[idx] = TemplateForFinger(fingerIDOf(v.imageData))
	v.charValid[idx] = true
	v.sendAck(codeOK)
}

// handleMatch compares the two character buffers (§III.4.2 Match)
func (v *VirtualSensor) handleMatch() {
	if !v.charValid[0] || !v.charValid[1] ||
		fingerIDOf(v.charData[0]) != fingerIDOf(v.charData[1]) {
		v.sendAck(codeNoMatch, 0x00, 0x00)
		return
	}
	var score [2]byte
	binary.BigEndian.PutUint16(score[:], v.matchScore)
	v.sendAck(codeOK, score[0], score[1])
}

// handleSearch looks for the character buffer's finger in the library
// (§III.4.2 Search and HighSpeedSearch)
func (v *VirtualSensor) handleSearch(params []byte) {
	if len(params) < 5 {
		v.sendAck(codePacketErr)
		return
	}
	idx := bufferIndex(params[0])
	start := binary.BigEndian.Uint16(params[1:3])
	count := binary.BigEndian.Uint16(params[3:5])

	if !v.charValid[idx] {
		v.sendAck(codeNotFound, 0, 0, 0, 0)
		return
	}

	want := fingerIDOf(v.charData[idx])
	for page := uint32(start); page < uint32(start)+uint32(count); page++ {
		if page > 0xFFFF {
			break
		}
		t, ok := v.library[uint16(page)]
		if ok && fingerIDOf(t) == want {
			var res [4]byte
			binary.BigEndian.PutUint16(res[0:2], uint16(page))
			binary.BigEndian.PutUint16(res[2:4], v.matchScore)
			v.sendAck(codeOK, res[0], res[1], res[2], res[3])
			return
		}
	}
	v.sendAck(codeNotFound, 0, 0, 0, 0)
}

// handleRegModel merges the character buffers into a template (§III.4.2 RegModel)
func (v *VirtualSensor) handleRegModel() {
	if !v.charValid[0] || !v.charValid[1] ||
		fingerIDOf(v.charData[0]) != fingerIDOf(v.charData[1]) {
		v.sendAck(codeCombineMismatch)
		return
	}
	// The merged template lands back in both character buffers
	v.charData[1] = v.charData[0]
	v.sendAck(codeOK)
}

// handleStore writes a character buffer to a library page (§III.4.2 Store)
func (v *VirtualSensor) handleStore(params []byte) {
	if len(params) < 3 {
		v.sendAck(codePacketErr)
		return
	}
	idx := bufferIndex(params[0])
	pageID := binary.BigEndian.Uint16(params[1:3])

	if pageID >= v.capacity {
		v.sendAck(codeBadLocation)
		return
	}
	if !v.charValid[idx] {
		v.sendAck(codeBadLocation)
		return
	}
	stored := make([]byte, len(v.charData[idx]))
	copy(stored, v.charData[idx])
	v.library[pageID] = stored
	v.sendAck(codeOK)
}

// handleLoadChar reads a library page into a character buffer (§III.4.2 LoadChar)
func (v *VirtualSensor) handleLoadChar(params []byte) {
	if len(params) < 3 {
		v.sendAck(codePacketErr)
		return
	}
	idx := bufferIndex(params[0])
	pageID := binary.BigEndian.Uint16(params[1:3])

	t, ok := v.library[pageID]
	if !ok {
		v.sendAck(codeReadTemplate)
		return
	}
	v.charData[idx] = append([]byte(nil), t...)
	v.charValid[idx] = true
	v.sendAck(codeOK)
}

// handleUpChar streams a character buffer to the host (§III.4.2 UpChar)
func (v *VirtualSensor) handleUpChar(params []byte) {
	if len(params) < 1 {
		v.sendAck(codePacketErr)
		return
	}
	idx := bufferIndex(params[0])
	if !v.charValid[idx] {
		v.sendAck(codeUploadTemplate)
		return
	}
	v.sendAck(codeOK)
	v.sendDataStream(v.charData[idx])
}

// handleDownChar accepts a character file from the host (§III.4.2 DownChar)
func (v *VirtualSensor) handleDownChar(params []byte) {
	if len(params) < 1 {
		v.sendAck(codePacketErr)
		return
	}
	v.download = pendingDownload{
		active: true,
		target: targetCharBuffer,
		buffer: bufferIndex(params[0]),
	}
	v.sendAck(codeOK)
}

// handleUpImage streams the image buffer to the host (§III.4.2 UpImage)
func (v *VirtualSensor) handleUpImage() {
	if !v.imageValid {
		v.sendAck(codeUploadImage)
		return
	}
	v.sendAck(codeOK)
	v.sendDataStream(v.imageData)
}

// handleDownImage accepts a raw image from the host (§III.4.2 DownImage)
func (v *VirtualSensor) handleDownImage() {
	v.download = pendingDownload{
		active: true,
		target: targetImage,
	}
	v.sendAck(codeOK)
}

// handleDeletChar deletes a range of library pages (§III.4.1 DeletChar)
func (v *VirtualSensor) handleDeletChar(params []byte) {
	if len(params) < 4 {
		v.sendAck(codePacketErr)
		return
	}
	pageID := binary.BigEndian.Uint16(params[0:2])
	count := binary.BigEndian.Uint16(params[2:4])

	if count == 0 || int(pageID)+int(count) > int(v.capacity) {
		v.sendAck(codeDeleteFail)
		return
	}
	for i := uint16(0); i < count; i++ {
		delete(v.library, pageID+i)
	}
	v.sendAck(codeOK)
}

// handleEmpty clears the whole library (§III.4.1 Empty)
func (v *VirtualSensor) handleEmpty() {
	v.library = make(map[uint16][]byte)
	v.sendAck(codeOK)
}

// handleSetSysPara writes a system register (§III.4.1 SetSysPara)
func (v *VirtualSensor) handleSetSysPara(params []byte) {
	if len(params) < 2 {
		v.sendAck(codePacketErr)
		return
	}
	value := uint16(params[1])
	switch params[0] {
	case 4:
		v.baudMultiplier = value
	case 5:
		v.securityLevel = value
	case 6:
		v.packetSizeCode = value
	default:
		v.sendAck(codeInvalidRegister)
		return
	}
	v.sendAck(codeOK)
}

// handleReadSysPara returns the 16 byte system parameter block (§III.4.1 ReadSysPara)
func (v *VirtualSensor) handleReadSysPara() {
	block := make([]byte, 16)
	binary.BigEndian.PutUint16(block[0:2], v.statusRegister)
	binary.BigEndian.PutUint16(block[2:4], v.systemID)
	binary.BigEndian.PutUint16(block[4:6], v.capacity)
	binary.BigEndian.PutUint16(block[6:8], v.securityLevel)
	binary.BigEndian.PutUint32(block[8:12], v.address)
	binary.BigEndian.PutUint16(block[12:14], v.packetSizeCode)
	binary.BigEndian.PutUint16(block[14:16], v.baudMultiplier)
	v.sendAck(codeOK, block...)
}

// handleSetPwd sets the module password (§III.4.1 SetPwd)
func (v *VirtualSensor) handleSetPwd(params []byte) {
	if len(params) < 4 {
		v.sendAck(codePacketErr)
		return
	}
	v.password = binary.BigEndian.Uint32(params[0:4])
	v.verified = true
	v.sendAck(codeOK)
}

// handleVfyPwd performs the password handshake (§III.4.1 VfyPwd)
func (v *VirtualSensor) handleVfyPwd(params []byte) {
	if len(params) < 4 {
		v.sendAck(codePacketErr)
		return
	}
	if binary.BigEndian.Uint32(params[0:4]) != v.password {
		v.sendAck(codeWrongPassword)
		return
	}
	v.verified = true
	v.sendAck(codeOK)
}

// handleGetRandomCode returns a deterministic pseudo random number (§III.4.1 GetRandomCode)
func (v *VirtualSensor) handleGetRandomCode() {
	v.randState = v.randState*2654435761 + 1
	var val [4]byte
	binary.BigEndian.PutUint32(val[:], v.randState)
	v.sendAck(codeOK, val[0], val[1], val[2], val[3])
}

// handleSetAdder changes the module address (§III.4.1 SetAdder).
// The acknowledge is already sent from the new address.
func (v *VirtualSensor) handleSetAdder(params []byte) {
	if len(params) < 4 {
		v.sendAck(codePacketErr)
		return
	}
	v.address = binary.BigEndian.Uint32(params[0:4])
	v.sendAck(codeOK)
}

// handleWriteNotepad writes a 32 byte notepad page (§III.4.1 WriteNotepad)
func (v *VirtualSensor) handleWriteNotepad(params []byte) {
	if len(params) < 1+NotepadPageSize {
		v.sendAck(codePacketErr)
		return
	}
	page := int(params[0])
	if page >= NotepadPages {
		v.sendAck(codeFlashError)
		return
	}
	copy(v.notepad[page][:], params[1:1+NotepadPageSize])
	v.sendAck(codeOK)
}

// handleReadNotepad reads a 32 byte notepad page (§III.4.1 ReadNotepad)
func (v *VirtualSensor) handleReadNotepad(params []byte) {
	if len(params) < 1 {
		v.sendAck(codePacketErr)
		return
	}
	page := int(params[0])
	if page >= NotepadPages {
		v.sendAck(codeFlashError)
		return
	}
	v.sendAck(codeOK, v.notepad[page][:]...)
}

// handleTempleteNum returns the number of stored templates (§III.4.1 TempleteNum)
func (v *VirtualSensor) handleTempleteNum() {
	var count [2]byte
	binary.BigEndian.PutUint16(count[:], uint16(len(v.library)))
	v.sendAck(codeOK, count[0], count[1])
}

// handleReadIndexTable returns a 256 slot occupancy bitmap (§III.4.1 ReadIndexTable)
func (v *VirtualSensor) handleReadIndexTable(params []byte) {
	if len(params) < 1 {
		v.sendAck(codePacketErr)
		return
	}
	segment := int(params[0])
	if segment > 3 {
		v.sendAck(codeBadLocation)
		return
	}

	var table [32]byte
	base := segment * indexSegmentSlots
	for slot := 0; slot < indexSegmentSlots; slot++ {
		page := base + slot
		if page > 0xFFFF {
			break
		}
		if _, ok := v.library[uint16(page)]; ok {
			table[slot/8] |= 1 << (slot % 8)
		}
	}
	v.sendAck(codeOK, table[:]...)
}
