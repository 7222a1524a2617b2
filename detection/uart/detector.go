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

// Package uart detects R30x fingerprint modules on serial ports.
// Importing it registers the detector with the detection registry.
package uart

import (
	"context"
	"fmt"
	"strings"
	"time"

	r30x "github.com/ZaparooProject/go-r30x"
	"github.com/ZaparooProject/go-r30x/detection"
	"github.com/ZaparooProject/go-r30x/transport/uart"
)

// serialPort is one enumerated port plus whatever USB descriptor fields the
// platform exposes. Non-USB ports carry only Path and Name.
type serialPort struct {
	Path         string
	Name         string
	VIDPID       string
	Manufacturer string
	Product      string
	SerialNumber string
}

// bridgeIDs are the USB serial bridges R30x breakout boards and adapter
// cables ship with. Matching one raises a port to Medium confidence.
var bridgeIDs = map[string]string{
	"067B:2303": "Prolific PL2303",
	"0403:6001": "FTDI FT232",
	"10C4:EA60": "Silicon Labs CP210x",
	"1A86:7523": "QinHeng CH340",
}

// moduleWords in a product or manufacturer descriptor mark a port as a
// likely module even without a recognized bridge chip.
var moduleWords = []string{"fingerprint", "r30", "zfm", "grow", "biometric"}

// serialNameHints are device-name fragments of generic USB serial adapters
// (FTDI cables, CP210x on macOS, CDC-ACM gadgets). They justify probing a
// port but not calling it a module on descriptors alone.
var serialNameHints = []string{"usbserial", "slab_usbtouart", "usbmodem"}

// serialMakerHints are manufacturer strings of the common bridge vendors.
var serialMakerHints = []string{
	"ftdi", "silicon labs", "prolific", "qinheng",
	"future technology devices international",
}

// descriptorConfidence grades a port from its descriptors alone:
// Medium for known module boards, Low for generic serial hardware worth
// probing, and false for ports that should not be touched at all.
func descriptorConfidence(port *serialPort) (detection.Confidence, bool) {
	if _, known := bridgeIDs[strings.ToUpper(port.VIDPID)]; known {
		return detection.Medium, true
	}
	descr := strings.ToLower(port.Product + " " + port.Manufacturer)
	for _, word := range moduleWords {
		if strings.Contains(descr, word) {
			return detection.Medium, true
		}
	}

	name := strings.ToLower(port.Name + " " + port.Path)
	for _, hint := range serialNameHints {
		if strings.Contains(name, hint) {
			return detection.Low, true
		}
	}
	maker := strings.ToLower(port.Manufacturer)
	for _, hint := range serialMakerHints {
		if strings.Contains(maker, hint) {
			return detection.Low, true
		}
	}
	return 0, false
}

type detector struct{}

// New creates a UART detector. Most callers rely on the init registration
// instead of calling this directly.
func New() detection.Detector { return &detector{} }

func init() {
	detection.RegisterDetector(New())
}

func (*detector) Transport() string { return "uart" }

// Detect enumerates serial ports, filters them against the options, and
// grades or probes the survivors according to the detection mode.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := getSerialPorts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var found []detection.DeviceInfo
	for i := range ports {
		if ctx.Err() != nil {
			break
		}
		port := &ports[i]

		if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}
		if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if info, ok := d.examine(ctx, port, opts.Mode); ok {
			found = append(found, info)
		}
	}

	if len(found) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return found, nil
}

// examine grades one port and, outside Passive mode, probes it over the
// packet protocol.
func (d *detector) examine(ctx context.Context, port *serialPort, mode detection.Mode) (detection.DeviceInfo, bool) {
	confidence, plausible := descriptorConfidence(port)
	if !plausible {
		return detection.DeviceInfo{}, false
	}

	if mode == detection.Passive {
		// Without probing, only descriptor-level matches are worth
		// reporting; a bare bridge chip is too weak a signal.
		if confidence < detection.Medium {
			return detection.DeviceInfo{}, false
		}
		return portInfo(port, confidence), true
	}

	if d.probe(ctx, port.Path, mode) {
		confidence = detection.High
	} else if mode == detection.Safe {
		// A silent port is not a module no matter how plausible its USB
		// bridge looks. The known bridge chips ship on countless unrelated
		// serial gadgets, and keeping a non-answering one would shadow
		// real modules that enumerate after it.
		return detection.DeviceInfo{}, false
	}
	return portInfo(port, confidence), true
}

// probeDeviceFn is swapped out in tests to avoid touching real ports.
var probeDeviceFn = probeDevice

func (*detector) probe(ctx context.Context, path string, mode detection.Mode) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return probeDeviceFn(probeCtx, path, mode)
}

// portInfo builds the DeviceInfo reported for a graded port.
func portInfo(port *serialPort, confidence detection.Confidence) detection.DeviceInfo {
	info := detection.DeviceInfo{
		Transport:  "uart",
		Path:       port.Path,
		Name:       port.Name,
		Confidence: confidence,
		Metadata:   make(map[string]string),
	}
	for key, value := range map[string]string{
		"vidpid":       port.VIDPID,
		"manufacturer": port.Manufacturer,
		"product":      port.Product,
		"serial":       port.SerialNumber,
	} {
		if value != "" {
			info.Metadata[key] = value
		}
	}
	return info
}

// probeDevice opens the port and checks whether an R30x answers the packet
// protocol.
//
// Single attempt only, deliberately. Auto-detection walks ports that may
// belong to unrelated hardware; hammering an unknown device with repeated
// handshakes risks confusing it and slows the whole pass. Connection
// retries belong at the device level once the path is known.
func probeDevice(ctx context.Context, path string, mode detection.Mode) bool {
	transport, err := uart.New(path)
	if err != nil {
		return false
	}
	defer func() { _ = transport.Close() }()

	device, err := r30x.New(transport)
	if err != nil {
		return false
	}

	switch mode {
	case detection.Safe:
		// A wrong-password confirmation still proves an R30x is answering
		// the packet protocol on this port.
		err := device.VerifyPassword(ctx, 0)
		return err == nil || r30x.IsWrongPassword(err)
	case detection.Full:
		return device.Init(ctx) == nil
	case detection.Passive:
		return false
	default:
		return false
	}
}
