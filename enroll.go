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
	"time"
)

// defaultPollInterval paces the capture loops. The sensor needs tens of
// milliseconds per scan anyway, so polling faster buys nothing.
const defaultPollInterval = 50 * time.Millisecond

// WaitFinger polls the sensor until a finger image is captured. poll sets
// the delay between attempts; zero or negative uses a 50ms default. The
// context bounds the whole wait, so callers decide how long a prompt like
// "place your finger" stays open.
func (d *Device) WaitFinger(ctx context.Context, poll time.Duration) error {
	if poll <= 0 {
		poll = defaultPollInterval
	}

	for {
		err := d.CaptureImage(ctx)
		switch {
		case err == nil:
			return nil
		case IsNoFinger(err):
			// window still empty, keep polling
		default:
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// WaitFingerRemoved polls until the sensor window is empty, so an enroll
// flow can ask for the same finger twice and actually get two captures
// instead of one long touch.
func (d *Device) WaitFingerRemoved(ctx context.Context, poll time.Duration) error {
	if poll <= 0 {
		poll = defaultPollInterval
	}

	for {
		err := d.CaptureImage(ctx)
		switch {
		case IsNoFinger(err):
			return nil
		case err == nil:
			// finger still on the window
		default:
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// Identify waits for a finger and searches the whole library for it. A
// finger the library does not know answers CodeNotFound; see IsNotFound.
func (d *Device) Identify(ctx context.Context) (SearchResult, error) {
	params, err := d.parameters(ctx)
	if err != nil {
		return SearchResult{}, err
	}

	if err := d.WaitFinger(ctx, 0); err != nil {
		return SearchResult{}, err
	}
	if err := d.GenerateTemplate(ctx, CharBuffer1); err != nil {
		return SearchResult{}, err
	}
	return d.Search(ctx, CharBuffer1, 0, params.Capacity)
}

// Enroll registers the finger on the sensor under pageID using the module's
// two-capture flow: capture to buffer 1, wait for the finger to lift,
// capture to buffer 2, merge, store. Captures of two different fingers fail
// at the merge with CodeCombineMismatch. Callers pick the page; compose
// with NextFreePageID for automatic slot assignment.
func (d *Device) Enroll(ctx context.Context, pageID uint16) error {
	if err := d.WaitFinger(ctx, 0); err != nil {
		return err
	}
	if err := d.GenerateTemplate(ctx, CharBuffer1); err != nil {
		return err
	}

	if err := d.WaitFingerRemoved(ctx, 0); err != nil {
		return err
	}

	if err := d.WaitFinger(ctx, 0); err != nil {
		return err
	}
	if err := d.GenerateTemplate(ctx, CharBuffer2); err != nil {
		return err
	}

	if err := d.CreateModel(ctx); err != nil {
		return err
	}
	return d.StoreTemplate(ctx, CharBuffer2, pageID)
}
