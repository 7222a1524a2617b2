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
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// RetryConfig shapes caller-level retry for operations that fail
// transiently, such as serial reads hit by line noise. The protocol engine
// itself never retries: a half-duplex link with no resume semantics makes
// silent reissue unsafe, so retry stays a visible caller decision.
type RetryConfig struct {
	// MaxAttempts caps the total number of attempts; 0 disables retry.
	MaxAttempts int
	// InitialBackoff is the delay after the first failed attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps the grown delay.
	MaxBackoff time.Duration
	// BackoffMultiplier grows the delay between attempts.
	BackoffMultiplier float64
	// Jitter widens each delay by up to this fraction of itself.
	Jitter float64
	// RetryTimeout bounds all attempts together; 0 means no overall bound.
	RetryTimeout time.Duration
}

// DefaultRetryConfig returns the policy ConnectDevice uses during setup.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        1 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      5 * time.Second,
	}
}

// RetryableFunc is one attempt of a retried operation.
type RetryableFunc func() error

// Retry runs fn under the default retry policy.
func Retry(ctx context.Context, fn RetryableFunc) error {
	return RetryWithConfig(ctx, nil, fn)
}

// RetryWithConfig runs fn until it succeeds, fails permanently, or the
// policy is exhausted. Only errors IsRetryable reports as transient are
// retried; device confirmation failures and fatal transport errors return
// immediately. A nil config uses DefaultRetryConfig.
func RetryWithConfig(ctx context.Context, config *RetryConfig, fn RetryableFunc) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts <= 0 {
		return fn()
	}
	if config.RetryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.RetryTimeout)
		defer cancel()
	}

	var lastErr error
	delay := config.InitialBackoff
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}

		lastErr = fn()
		if lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(withJitter(delay, config.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * config.BackoffMultiplier)
		if config.MaxBackoff > 0 && delay > config.MaxBackoff {
			delay = config.MaxBackoff
		}
	}

	if lastErr == nil {
		// Context expired before the first attempt ran.
		return fmt.Errorf("retry context cancelled: %w", ctx.Err())
	}
	return lastErr
}

// withJitter widens d by a random fraction up to jitter of itself, breaking
// lockstep when several callers back off against the same device.
func withJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return d
	}
	frac := float64(binary.LittleEndian.Uint64(raw[:])) / float64(1<<64)
	return d + time.Duration(frac*jitter*float64(d))
}
