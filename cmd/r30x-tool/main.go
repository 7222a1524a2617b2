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

// r30x-tool exercises an R30x fingerprint module from the command line.
//
//	r30x-tool [flags] <action>
//
// Actions: info, count, enroll, identify, delete, empty.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	r30x "github.com/ZaparooProject/go-r30x"
	"github.com/ZaparooProject/go-r30x/detection"
	_ "github.com/ZaparooProject/go-r30x/detection/uart"
	"github.com/ZaparooProject/go-r30x/touch"
	"github.com/ZaparooProject/go-r30x/transport/uart"
)

type config struct {
	action     string
	devicePath string
	touchPin   string
	address    uint32
	password   uint32
	pageID     int
	count      uint
	debug      bool
	logSession bool
}

// Package-level flag variables
var (
	flagDevicePath string
	flagAddress    string
	flagPassword   string
	flagTouchPin   string
	flagPageID     int
	flagCount      uint
	flagDebug      bool
	flagLogSession bool
)

func init() {
	flag.StringVar(&flagDevicePath, "device", "", "Serial port path (auto-detect if empty)")
	flag.StringVar(&flagAddress, "address", "ffffffff", "Module address as 8 hex digits")
	flag.StringVar(&flagPassword, "password", "00000000", "Module password as 8 hex digits")
	flag.StringVar(&flagTouchPin, "touch", "", "GPIO pin of the touch line, e.g. GPIO17 (identify only)")
	flag.IntVar(&flagPageID, "page", -1, "Template page ID (enroll picks the next free one if unset)")
	flag.UintVar(&flagCount, "count", 1, "Number of consecutive pages to delete")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.BoolVar(&flagLogSession, "log", false, "Write a session log file")

	flag.Usage = func() {
		out := flag.CommandLine.Output()
		_, _ = fmt.Fprintf(out, "Usage: %s [flags] <action>\n\nActions:\n", os.Args[0])
		_, _ = fmt.Fprintln(out, "  info      Show module parameters and template count (default)")
		_, _ = fmt.Fprintln(out, "  count     Show the number of stored templates")
		_, _ = fmt.Fprintln(out, "  enroll    Register the finger on the sensor")
		_, _ = fmt.Fprintln(out, "  identify  Match fingers against the library until interrupted")
		_, _ = fmt.Fprintln(out, "  delete    Remove templates starting at -page")
		_, _ = fmt.Fprintln(out, "  empty     Erase the whole template library")
		_, _ = fmt.Fprintln(out, "\nFlags:")
		flag.PrintDefaults()
	}
}

// parseHex32 parses an 8-hex-digit module address or password
func parseHex32(name, value string) (uint32, error) {
	cleaned := strings.TrimPrefix(strings.ToLower(value), "0x")
	parsed, err := strconv.ParseUint(cleaned, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid -%s value %q: %w", name, value, err)
	}
	return uint32(parsed), nil
}

func parseConfig() (*config, error) {
	address, err := parseHex32("address", flagAddress)
	if err != nil {
		return nil, err
	}
	password, err := parseHex32("password", flagPassword)
	if err != nil {
		return nil, err
	}

	cfg := &config{
		action:     flag.Arg(0),
		devicePath: flagDevicePath,
		touchPin:   flagTouchPin,
		address:    address,
		password:   password,
		pageID:     flagPageID,
		count:      flagCount,
		debug:      flagDebug,
		logSession: flagLogSession,
	}
	if cfg.action == "" {
		cfg.action = "info"
	}

	// Enable debug output if --debug flag is set
	if cfg.debug {
		r30x.SetDebugEnabled(true)
	}

	return cfg, nil
}

// newTransportFromDevice creates a new transport from a detected device.
func newTransportFromDevice(device detection.DeviceInfo) (r30x.Transport, error) {
	if !strings.EqualFold(device.Transport, "uart") {
		return nil, fmt.Errorf("unsupported transport type: %s", device.Transport)
	}

	transport, err := uart.New(device.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport: %w", err)
	}
	return transport, nil
}

// newTransport creates a new transport from a device path.
func newTransport(path string) (r30x.Transport, error) {
	if path == "" {
		return nil, errors.New("empty device path")
	}

	transport, err := uart.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport for %s: %w", path, err)
	}
	return transport, nil
}

func connectToDevice(ctx context.Context, cfg *config) (*r30x.Device, error) {
	connectOpts := []r30x.ConnectOption{
		r30x.WithDeviceOptions(
			r30x.WithAddress(cfg.address),
			r30x.WithPassword(cfg.password),
		),
	}

	if cfg.devicePath == "" {
		// Auto-detection case
		connectOpts = append(connectOpts,
			r30x.WithAutoDetection(),
			r30x.WithTransportFromDeviceFactory(newTransportFromDevice))
		if cfg.debug {
			_, _ = fmt.Println("Auto-detecting fingerprint modules...")
		}
	} else {
		// Specific device path
		connectOpts = append(connectOpts, r30x.WithTransportFactory(newTransport))
		if cfg.debug {
			_, _ = fmt.Printf("Opening device: %s\n", cfg.devicePath)
		}
	}

	// Set reasonable timeout
	connectOpts = append(connectOpts, r30x.WithConnectTimeout(10*time.Second))

	device, err := r30x.ConnectDevice(cfg.devicePath, connectOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to fingerprint module: %w", err)
	}

	if cfg.debug {
		if params, paramsErr := device.ReadSystemParameters(ctx); paramsErr == nil {
			_, _ = fmt.Printf("Module 0x%08X, library capacity %d\n", params.Address, params.Capacity)
		}
	}

	return device, nil
}

func runInfo(ctx context.Context, device *r30x.Device, _ *config) error {
	params, err := device.ReadSystemParameters(ctx)
	if err != nil {
		return fmt.Errorf("failed to read system parameters: %w", err)
	}

	templateCount, err := device.TemplateCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to read template count: %w", err)
	}

	_, _ = fmt.Printf("Address:          0x%08X\n", params.Address)
	_, _ = fmt.Printf("System ID:        0x%04X\n", params.SystemID)
	_, _ = fmt.Printf("Status register:  0x%04X\n", params.StatusRegister)
	_, _ = fmt.Printf("Security level:   %d\n", params.SecurityLevel)
	_, _ = fmt.Printf("Packet size:      %d bytes\n", params.PacketSize)
	_, _ = fmt.Printf("Baud rate:        %d\n", params.BaudRate)
	_, _ = fmt.Printf("Templates:        %d / %d\n", templateCount, params.Capacity)
	return nil
}

func runCount(ctx context.Context, device *r30x.Device, _ *config) error {
	templateCount, err := device.TemplateCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to read template count: %w", err)
	}

	_, _ = fmt.Printf("%d templates stored\n", templateCount)
	return nil
}

func runEnroll(ctx context.Context, device *r30x.Device, cfg *config) error {
	pageID, err := resolveEnrollPage(ctx, device, cfg)
	if err != nil {
		return err
	}

	_, _ = fmt.Println("Place your finger on the sensor...")
	if err := device.WaitFinger(ctx, 0); err != nil {
		return fmt.Errorf("failed to capture first image: %w", err)
	}
	if err := device.GenerateTemplate(ctx, r30x.CharBuffer1); err != nil {
		return fmt.Errorf("failed to process first capture: %w", err)
	}

	_, _ = fmt.Println("Lift your finger...")
	if err := device.WaitFingerRemoved(ctx, 0); err != nil {
		return fmt.Errorf("failed waiting for finger removal: %w", err)
	}

	_, _ = fmt.Println("Place the same finger again...")
	if err := device.WaitFinger(ctx, 0); err != nil {
		return fmt.Errorf("failed to capture second image: %w", err)
	}
	if err := device.GenerateTemplate(ctx, r30x.CharBuffer2); err != nil {
		return fmt.Errorf("failed to process second capture: %w", err)
	}

	if err := device.CreateModel(ctx); err != nil {
		return fmt.Errorf("failed to merge captures (same finger both times?): %w", err)
	}
	if err := device.StoreTemplate(ctx, r30x.CharBuffer2, pageID); err != nil {
		return fmt.Errorf("failed to store template: %w", err)
	}

	_, _ = fmt.Printf("Enrolled finger at page %d\n", pageID)
	return nil
}

func resolveEnrollPage(ctx context.Context, device *r30x.Device, cfg *config) (uint16, error) {
	if cfg.pageID >= 0 {
		return uint16(cfg.pageID), nil
	}

	pageID, err := device.NextFreePageID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to find a free page: %w", err)
	}
	return pageID, nil
}

func runIdentify(ctx context.Context, device *r30x.Device, cfg *config) error {
	var monitor *touch.Monitor
	if cfg.touchPin != "" {
		var err error
		monitor, err = touch.New(cfg.touchPin)
		if err != nil {
			return fmt.Errorf("failed to open touch pin: %w", err)
		}
		defer func() {
			if err := monitor.Close(); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "Failed to close touch pin: %v\n", err)
			}
		}()
	}

	_, _ = fmt.Println("Identifying fingers. Press Ctrl+C to stop...")

	for {
		if monitor != nil {
			if err := monitor.Wait(ctx); err != nil {
				return err
			}
		}

		if err := identifyOnce(ctx, device); err != nil {
			return err
		}

		if err := device.WaitFingerRemoved(ctx, 0); err != nil {
			return err
		}
	}
}

func identifyOnce(ctx context.Context, device *r30x.Device) error {
	result, err := device.Identify(ctx)
	switch {
	case err == nil:
		_, _ = fmt.Printf("Match: page %d (score %d)\n", result.PageID, result.Score)
		return nil
	case r30x.IsNotFound(err):
		_, _ = fmt.Println("No match.")
		return nil
	default:
		return fmt.Errorf("identification failed: %w", err)
	}
}

func runDelete(ctx context.Context, device *r30x.Device, cfg *config) error {
	if cfg.pageID < 0 {
		return errors.New("delete requires -page")
	}

	if err := device.DeleteTemplate(ctx, uint16(cfg.pageID), uint16(cfg.count)); err != nil {
		return fmt.Errorf("failed to delete templates: %w", err)
	}

	_, _ = fmt.Printf("Deleted %d template(s) starting at page %d\n", cfg.count, cfg.pageID)
	return nil
}

func runEmpty(ctx context.Context, device *r30x.Device, _ *config) error {
	if err := device.EmptyLibrary(ctx); err != nil {
		return fmt.Errorf("failed to empty library: %w", err)
	}

	_, _ = fmt.Println("Template library emptied.")
	return nil
}

func run(ctx context.Context, cfg *config) error {
	// Connect to device
	device, err := connectToDevice(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := device.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close device: %v\n", err)
		}
	}()

	switch cfg.action {
	case "info":
		return runInfo(ctx, device, cfg)
	case "count":
		return runCount(ctx, device, cfg)
	case "enroll":
		return runEnroll(ctx, device, cfg)
	case "identify":
		return runIdentify(ctx, device, cfg)
	case "delete":
		return runDelete(ctx, device, cfg)
	case "empty":
		return runEmpty(ctx, device, cfg)
	default:
		return fmt.Errorf("unknown action %q (see -h)", cfg.action)
	}
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	// Parse command-line flags
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	if cfg.logSession {
		path, logErr := r30x.InitSessionLog()
		if logErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to open session log: %v\n", logErr)
		} else {
			_, _ = fmt.Printf("Session log: %s\n", path)
			defer func() { _ = r30x.CloseSessionLog() }()
		}
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	// Run the main application logic
	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			// User requested shutdown, exit cleanly
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
