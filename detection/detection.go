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

// Package detection discovers R30x fingerprint modules attached to the host.
//
// Transport-specific detectors register themselves with RegisterDetector,
// normally from an init function so that a blank import is enough to enable
// one. DetectAll fans out over every registered detector and merges what
// they find.
package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Mode sets how invasive a detection pass may be.
type Mode int

const (
	// Passive inspects port descriptors only. Candidate ports are never
	// opened, so nothing plugged into the host is disturbed.
	Passive Mode = iota
	// Safe opens candidate ports and issues a single VfyPwd handshake.
	Safe
	// Full performs the handshake plus a system parameter read.
	Full
)

// Confidence grades how sure a detector is that a port hosts a module.
type Confidence int

const (
	// Low: the port could plausibly host a module (generic USB bridge).
	Low Confidence = iota
	// Medium: the port's descriptors match known module breakout boards.
	Medium
	// High: the port answered the packet protocol.
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// DeviceInfo describes one detected fingerprint module.
type DeviceInfo struct {
	// Metadata carries extra descriptor fields, e.g. "vidpid" for USB ports.
	Metadata map[string]string
	// Transport names the detector that found the device (currently "uart").
	Transport string
	// Path is the connection path, e.g. "/dev/ttyUSB0" or "COM3".
	Path string
	// Name is a human-readable device name.
	Name string
	// Confidence grades the detection.
	Confidence Confidence
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s device at %s (confidence: %s)", d.Transport, d.Path, d.Confidence)
}

// Options configures a detection pass.
type Options struct {
	// Blocklist holds USB VID:PID pairs that must never be probed.
	Blocklist []string
	// IgnorePaths holds device paths to skip outright.
	IgnorePaths []string
	// Transports restricts the pass to these detector names; empty means all.
	Transports []string
	// CacheTTL bounds how long a cached scan stays valid.
	CacheTTL time.Duration
	// Timeout bounds the whole pass (enforced through ctx by callers).
	Timeout time.Duration
	// Mode sets the invasiveness level.
	Mode Mode
	// EnableCache reuses recent scan results instead of re-enumerating.
	EnableCache bool
}

// DefaultOptions returns the options ConnectDevice uses for auto-detection.
func DefaultOptions() Options {
	return Options{
		Mode:        Safe,
		Timeout:     5 * time.Second,
		Blocklist:   DefaultBlocklist(),
		EnableCache: true,
		CacheTTL:    30 * time.Second,
	}
}

// Detector finds modules reachable over one transport kind.
type Detector interface {
	// Detect scans for modules. Finding none is reported with
	// ErrNoDevicesFound rather than an empty slice.
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	// Transport names the transport this detector covers.
	Transport() string
}

var (
	// ErrNoDevicesFound means the pass completed but found no modules.
	ErrNoDevicesFound = errors.New("no fingerprint modules found")
	// ErrDetectionTimeout means the pass was cut off by its deadline.
	ErrDetectionTimeout = errors.New("detection timeout")
	// ErrUnsupportedPlatform means this host cannot run the detector.
	ErrUnsupportedPlatform = errors.New("platform not supported")
	// ErrNoDetectors means nothing is registered for the requested transports.
	ErrNoDetectors = errors.New("no detectors available for specified transports")
)

var (
	registryMu sync.Mutex
	registry   []Detector
)

// RegisterDetector adds a detector to the shared registry.
func RegisterDetector(d Detector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, d)
}

// registered returns the detectors to run, optionally narrowed by transport
// name.
func registered(transports []string) []Detector {
	registryMu.Lock()
	defer registryMu.Unlock()

	if len(transports) == 0 {
		return append([]Detector(nil), registry...)
	}
	var picked []Detector
	for _, d := range registry {
		for _, t := range transports {
			if d.Transport() == t {
				picked = append(picked, d)
				break
			}
		}
	}
	return picked
}

// DetectAll runs every applicable detector concurrently and merges their
// results. Devices found by one detector are returned even when another
// detector fails; an error surfaces only when nothing was found at all.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	detectors := registered(opts.Transports)
	if len(detectors) == 0 {
		return nil, ErrNoDetectors
	}

	found := make([][]DeviceInfo, len(detectors))
	errs := make([]error, len(detectors))

	var wg sync.WaitGroup
	for i, d := range detectors {
		wg.Add(1)
		go func(i int, d Detector) {
			defer wg.Done()
			found[i], errs[i] = detectOne(ctx, d, opts)
		}(i, d)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		return nil, ErrDetectionTimeout
	}

	var devices []DeviceInfo
	for _, f := range found {
		devices = append(devices, f...)
	}
	if len(devices) > 0 {
		return devices, nil
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return nil, ErrNoDevicesFound
}

// detectOne runs a single detector, consulting and maintaining the scan
// cache when the options enable it.
func detectOne(ctx context.Context, d Detector, opts *Options) ([]DeviceInfo, error) {
	transport := d.Transport()

	if opts.EnableCache {
		if hit, ok := scans.lookup(transport, opts.CacheTTL); ok {
			// Cached entries were filtered with the options of the scan
			// that produced them, so the current pass's blocklist and
			// ignore list must be applied again.
			return applyFilters(hit, opts), nil
		}
	}

	devices, err := d.Detect(ctx, opts)
	if err != nil && !errors.Is(err, ErrNoDevicesFound) {
		return nil, err
	}

	if opts.EnableCache {
		if len(devices) > 0 {
			scans.store(transport, devices)
		} else {
			// An empty scan invalidates the cache. Keeping the previous
			// entry would hand out a disconnected device's path until the
			// TTL ran down.
			scans.drop(transport)
		}
	}
	return devices, nil
}

// applyFilters drops devices matching the ignore list or the USB blocklist.
func applyFilters(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 && len(opts.Blocklist) == 0 {
		return devices
	}
	kept := devices[:0:0]
	for _, device := range devices {
		if IsPathIgnored(device.Path, opts.IgnorePaths) {
			continue
		}
		if vidpid, ok := device.Metadata["vidpid"]; ok && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		kept = append(kept, device)
	}
	return kept
}

// ClearDetectionCache forgets all cached scan results.
func ClearDetectionCache() {
	scans.reset()
}

// ClearDetectionCacheForTransport forgets cached results for one transport.
func ClearDetectionCacheForTransport(transport string) {
	scans.drop(transport)
}
