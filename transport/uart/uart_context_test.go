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

package uart

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ZaparooProject/go-r30x/internal/sensortest"
)

// TestUARTReadCancelledBeforeStart verifies that a read against an
// already-cancelled context returns immediately without waiting for the
// idle deadline.
func TestUARTReadCancelledBeforeStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	transport, _ := newTestTransport(sensortest.NewVirtualSensor())
	if err := transport.SetTimeout(5 * time.Second); err != nil {
		t.Fatalf("SetTimeout failed: %v", err)
	}

	start := time.Now()
	_, err := transport.ReadExact(ctx, 12)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Expected context cancellation error, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "UART read cancelled") {
		t.Errorf("Expected cancellation wrapper in message, got: %v", err)
	}

	// The read should return well before the 5s idle deadline
	if elapsed > 10*time.Millisecond {
		t.Errorf("Read took too long: %v, expected < 10ms for immediate cancellation", elapsed)
	}
}

// TestUARTReadCancelledMidWait verifies that cancelling the context while
// a read is blocked waiting for module bytes unblocks it promptly.
func TestUARTReadCancelledMidWait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	// Silent module: nothing was written, so nothing will ever arrive
	transport, _ := newTestTransport(sensortest.NewVirtualSensor())
	if err := transport.SetTimeout(5 * time.Second); err != nil {
		t.Fatalf("SetTimeout failed: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := transport.ReadExact(ctx, 1)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Expected context cancellation error, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled error, got: %v", err)
	}

	// The read should unblock around the cancel, not at the idle deadline
	if elapsed < 40*time.Millisecond || elapsed > 500*time.Millisecond {
		t.Errorf("Read timing unexpected: %v, expected ~50ms for mid-wait cancellation", elapsed)
	}
}

// TestUARTReadContextDeadline verifies that a context deadline interrupts
// a read even when the transport's own idle timeout is much longer.
func TestUARTReadContextDeadline(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	transport, _ := newTestTransport(sensortest.NewVirtualSensor())
	if err := transport.SetTimeout(5 * time.Second); err != nil {
		t.Fatalf("SetTimeout failed: %v", err)
	}

	start := time.Now()
	_, err := transport.ReadExact(ctx, 1)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Expected context timeout error, got nil")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded error, got: %v", err)
	}

	// Should trip at the ~50ms context deadline, with margin for scheduling
	if elapsed < 40*time.Millisecond || elapsed > 150*time.Millisecond {
		t.Errorf("Read timing unexpected: %v, expected ~50ms for context deadline", elapsed)
	}
}
