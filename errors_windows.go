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

//go:build windows

package r30x

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// isDeviceGoneErrno reports error codes a serial read or write returns once
// the USB bridge behind the COM port has been unplugged. ERROR_ACCESS_DENIED
// shows up when the port node lingers after the device is gone.
func isDeviceGoneErrno(errno syscall.Errno) bool {
	switch errno {
	case windows.ERROR_ACCESS_DENIED, windows.ERROR_GEN_FAILURE, windows.ERROR_NO_SUCH_DEVICE:
		return true
	default:
		return false
	}
}
