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

// Package touch monitors the touch-induction output of R502/R503 modules.
//
// Those modules expose a WAKEUP pin that goes high while a finger rests on
// the sensor window. Watching it lets a host leave the UART idle between
// touches instead of polling GenImg in a loop.
package touch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// ErrPinNotFound indicates the named GPIO pin is not known to the host.
var ErrPinNotFound = errors.New("gpio pin not found")

// edgePollInterval bounds each WaitForEdge call so Wait can notice
// context cancellation between hardware waits.
const edgePollInterval = 100 * time.Millisecond

// Monitor watches a touch line for finger contact.
type Monitor struct {
	pin gpio.PinIO
}

// New opens the named GPIO pin and configures it for rising-edge
// detection. Pin names follow periph conventions ("GPIO17", "P1_11").
func New(pinName string) (*Monitor, error) {
	// Initialize host
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("%w: %q", ErrPinNotFound, pinName)
	}

	return NewWithPin(pin)
}

// NewWithPin builds a Monitor on an already-resolved pin. It is used by
// New and by tests running against gpiotest pins.
func NewWithPin(pin gpio.PinIO) (*Monitor, error) {
	// The touch line rests low, so pull down and watch for the rise
	if err := pin.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("failed to configure pin %s: %w", pin.Name(), err)
	}

	return &Monitor{pin: pin}, nil
}

// Touched returns whether a finger is currently on the sensor window.
func (m *Monitor) Touched() bool {
	return m.pin.Read() == gpio.High
}

// Wait blocks until the touch line rises or the context is canceled.
func (m *Monitor) Wait(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if m.pin.WaitForEdge(edgePollInterval) {
			return nil
		}
	}
}

// Events returns a channel that delivers a timestamp for each touch.
// The channel is closed when the context is canceled. A held finger
// produces a single event; the line must fall before the next one.
func (m *Monitor) Events(ctx context.Context) <-chan time.Time {
	events := make(chan time.Time)

	go func() {
		defer close(events)
		for {
			if err := m.Wait(ctx); err != nil {
				return
			}

			select {
			case events <- time.Now():
			case <-ctx.Done():
				return
			}
		}
	}()

	return events
}

// Close stops edge detection on the pin.
func (m *Monitor) Close() error {
	if err := m.pin.Halt(); err != nil {
		return fmt.Errorf("failed to halt pin %s: %w", m.pin.Name(), err)
	}
	return nil
}
