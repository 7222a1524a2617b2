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
	"errors"
	"fmt"
)

// ConfirmationCode is the first byte of every acknowledge payload. CodeOK
// means the instruction succeeded; every other value is a failure reported
// by the module itself.
type ConfirmationCode byte

// Confirmation codes from the R30x acknowledge table. The set is fixed by
// firmware; codes outside it still decode (see DeviceError) but have no
// named constant.
const (
	CodeOK                   ConfirmationCode = 0x00
	CodePacketReceiveError   ConfirmationCode = 0x01
	CodeNoFinger             ConfirmationCode = 0x02
	CodeCaptureFailed        ConfirmationCode = 0x03
	CodeImageTooMessy        ConfirmationCode = 0x06
	CodeTooFewFeatures       ConfirmationCode = 0x07
	CodeNoMatch              ConfirmationCode = 0x08
	CodeNotFound             ConfirmationCode = 0x09
	CodeCombineMismatch      ConfirmationCode = 0x0A
	CodePageOutOfRange       ConfirmationCode = 0x0B
	CodeTemplateReadError    ConfirmationCode = 0x0C
	CodeTemplateUploadError  ConfirmationCode = 0x0D
	CodePacketResponseFailed ConfirmationCode = 0x0E
	CodeImageUploadError     ConfirmationCode = 0x0F
	CodeDeleteFailed         ConfirmationCode = 0x10
	CodeClearFailed          ConfirmationCode = 0x11
	CodeWrongPassword        ConfirmationCode = 0x13
	CodeNoValidImage         ConfirmationCode = 0x15
	CodeFlashWriteError      ConfirmationCode = 0x18
	CodeUndefinedError       ConfirmationCode = 0x19
	CodeInvalidRegister      ConfirmationCode = 0x1A
	CodeRegisterConfig       ConfirmationCode = 0x1B
	CodeNotepadPageError     ConfirmationCode = 0x1C
	CodePortFailure          ConfirmationCode = 0x1D
	CodeLibraryFull          ConfirmationCode = 0x1F
)

// confirmationMeaning maps confirmation codes to the descriptions in the
// vendor acknowledge table.
var confirmationMeaning = map[ConfirmationCode]string{
	CodeOK:                   "success",
	CodePacketReceiveError:   "error receiving data packet",
	CodeNoFinger:             "no finger on the sensor",
	CodeCaptureFailed:        "failed to capture finger image",
	CodeImageTooMessy:        "image too messy to generate features",
	CodeTooFewFeatures:       "too few feature points in image",
	CodeNoMatch:              "fingers do not match",
	CodeNotFound:             "no matching template in library",
	CodeCombineMismatch:      "character files do not belong to the same finger",
	CodePageOutOfRange:       "page ID beyond library capacity",
	CodeTemplateReadError:    "error reading template from library",
	CodeTemplateUploadError:  "error transferring template to host",
	CodePacketResponseFailed: "module cannot receive following data packets",
	CodeImageUploadError:     "error transferring image to host",
	CodeDeleteFailed:         "failed to delete template",
	CodeClearFailed:          "failed to clear library",
	CodeWrongPassword:        "wrong password",
	CodeNoValidImage:         "no valid image in buffer",
	CodeFlashWriteError:      "error writing to flash",
	CodeUndefinedError:       "undefined error",
	CodeInvalidRegister:      "invalid register number",
	CodeRegisterConfig:       "incorrect register configuration",
	CodeNotepadPageError:     "wrong notepad page number",
	CodePortFailure:          "failed to operate communication port",
	CodeLibraryFull:          "fingerprint library is full",
}

// String returns the vendor description, or the raw value for codes outside
// the documented set.
func (c ConfirmationCode) String() string {
	if meaning, ok := confirmationMeaning[c]; ok {
		return meaning
	}
	return fmt.Sprintf("unknown confirmation code 0x%02X", byte(c))
}

// DeviceError is a failure reported by the module: the exchange itself
// completed, but the acknowledge carried a non-zero confirmation code. Codes
// outside the documented set are preserved as-is so callers can still
// compare Code against the raw byte.
type DeviceError struct {
	Op   string
	Code ConfirmationCode
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: %s (code 0x%02X)", e.Op, e.Code, byte(e.Code))
}

func newDeviceError(op string, code ConfirmationCode) *DeviceError {
	return &DeviceError{Op: op, Code: code}
}

// Predicates for confirmation codes callers routinely branch on.

// IsNoFinger reports whether err is the module saying no finger was on the
// sensor window. Capture loops treat this as "poll again".
func IsNoFinger(err error) bool { return hasCode(err, CodeNoFinger) }

// IsNoMatch reports whether err is a failed comparison of the two character
// buffers.
func IsNoMatch(err error) bool { return hasCode(err, CodeNoMatch) }

// IsNotFound reports whether err is a search miss: no library template
// matched the probe.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsWrongPassword reports whether err is a rejected handshake password.
func IsWrongPassword(err error) bool { return hasCode(err, CodeWrongPassword) }

// IsLibraryFull reports whether err is the module refusing a store because
// every page is occupied.
func IsLibraryFull(err error) bool { return hasCode(err, CodeLibraryFull) }

func hasCode(err error, code ConfirmationCode) bool {
	var devErr *DeviceError
	return errors.As(err, &devErr) && devErr.Code == code
}
