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

import "context"

// CaptureImage scans the sensor window once into the module's image buffer
// (vendor instruction GenImg). An empty window answers CodeNoFinger; see
// IsNoFinger and WaitFinger for polling.
func (d *Device) CaptureImage(ctx context.Context) error {
	_, err := d.command(ctx, cmdGenImg)
	return err
}

// DownloadImage transfers the module's image buffer to the host (vendor
// instruction UpImage). The stream is the raw grayscale image the module
// works from; dimensions and bit depth depend on the sensor model, and the
// transfer takes several seconds at the default baud rate.
func (d *Device) DownloadImage(ctx context.Context) ([]byte, error) {
	return d.commandReceive(ctx, cmdUpImage)
}

// UploadImage replaces the module's image buffer with host-supplied data
// (vendor instruction DownImage). The data must be an image previously
// produced by the same sensor family or GenerateTemplate will reject it.
func (d *Device) UploadImage(ctx context.Context, data []byte) error {
	return d.commandSend(ctx, data, cmdDownImage)
}
