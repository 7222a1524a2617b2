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

//go:build unix

package r30x

import (
	"fmt"
	"syscall"
	"testing"
)

func TestIsFatal_SyscallErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		name string
		want bool
	}{
		// Errnos a serial read returns once the USB bridge is unplugged
		{
			name: "EIO (input/output error) is fatal",
			err:  syscall.EIO,
			want: true,
		},
		{
			name: "ENXIO (no such device or address) is fatal",
			err:  syscall.ENXIO,
			want: true,
		},
		{
			name: "ENODEV (no such device) is fatal",
			err:  syscall.ENODEV,
			want: true,
		},
		// Wrapped syscall errors should also be detected
		{
			name: "wrapped EIO is fatal",
			err:  fmt.Errorf("write failed: %w", syscall.EIO),
			want: true,
		},
		{
			name: "double-wrapped ENXIO is fatal",
			err:  fmt.Errorf("operation failed: %w", fmt.Errorf("write: %w", syscall.ENXIO)),
			want: true,
		},
		// Transient errnos stay non-fatal
		{
			name: "EAGAIN is not fatal",
			err:  syscall.EAGAIN,
			want: false,
		},
		{
			name: "EINTR is not fatal",
			err:  syscall.EINTR,
			want: false,
		},
		{
			name: "ETIMEDOUT is not fatal",
			err:  syscall.ETIMEDOUT,
			want: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := IsFatal(tt.err)
			if got != tt.want {
				t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
