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
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-r30x/detection"
)

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// Address is the module address commands are sent to. Factory modules
	// answer to AddressBroadcast until SetAddress assigns something else.
	Address uint32
	// Password is the handshake password VerifyPassword presents. Factory
	// default is zero.
	Password uint32
	// Timeout bounds each read of a command exchange.
	Timeout time.Duration
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		Address:  AddressBroadcast,
		Password: 0x00000000,
		Timeout:  2 * time.Second,
	}
}

// defaultPacketSize is the transfer chunk size assumed before the module's
// parameter block has been read. Factory firmware ships with size code 2.
const defaultPacketSize = 128

// Device represents one fingerprint module on the other end of a transport.
//
// Thread Safety: Device is NOT thread-safe. The link is half-duplex with
// exactly one command in flight, so all methods must be called from a single
// goroutine or protected with external synchronization. For concurrent
// access, wrap the Device with a mutex; separate Device instances must use
// separate transports.
type Device struct {
	transport Transport
	config    *DeviceConfig
	params    *SystemParameters
	address   uint32
}

// Option configures a Device at construction time
type Option func(*Device) error

// WithAddress sets the module address commands are sent to
func WithAddress(address uint32) Option {
	return func(d *Device) error {
		d.config.Address = address
		d.address = address
		return nil
	}
}

// WithPassword sets the handshake password used by Init and VerifyPassword
func WithPassword(password uint32) Option {
	return func(d *Device) error {
		d.config.Password = password
		return nil
	}
}

// WithTimeout sets the per-read timeout for command exchanges
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", timeout)
		}
		d.config.Timeout = timeout
		return nil
	}
}

// New creates a new device handle on the given transport
func New(transport Transport, opts ...Option) (*Device, error) {
	device := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
	}
	device.address = device.config.Address

	// Apply options
	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}

	if err := transport.SetTimeout(device.config.Timeout); err != nil {
		return nil, fmt.Errorf("failed to set transport timeout: %w", err)
	}

	return device, nil
}

// Address returns the module address the handle currently talks to. It
// changes only through WithAddress and a successful SetAddress.
func (d *Device) Address() uint32 {
	return d.address
}

// Transport returns the underlying transport
func (d *Device) Transport() Transport {
	return d.transport
}

// Init verifies the handshake password and reads the module's parameter
// block so later transfers know the negotiated packet size.
func (d *Device) Init(ctx context.Context) error {
	if err := d.VerifyPassword(ctx, d.config.Password); err != nil {
		return fmt.Errorf("password handshake failed: %w", err)
	}
	if _, err := d.ReadSystemParameters(ctx); err != nil {
		return fmt.Errorf("failed to read system parameters: %w", err)
	}
	return nil
}

// SetTimeout sets the per-read timeout for command exchanges
func (d *Device) SetTimeout(timeout time.Duration) error {
	d.config.Timeout = timeout
	if err := d.transport.SetTimeout(timeout); err != nil {
		return fmt.Errorf("failed to set timeout on transport: %w", err)
	}
	return nil
}

// packetSize returns the transfer chunk size the module negotiated, falling
// back to the factory default when the parameter block has not been read.
func (d *Device) packetSize() int {
	if d.params != nil {
		return d.params.PacketSize
	}
	return defaultPacketSize
}

// Close closes the device connection
func (d *Device) Close() error {
	if d.transport != nil {
		if err := d.transport.Close(); err != nil {
			return fmt.Errorf("failed to close transport: %w", err)
		}
	}
	return nil
}

// TransportFactory is a function type for creating transports
type TransportFactory func(path string) (Transport, error)

// TransportFromDeviceFactory is a function type for creating transports from detected devices
type TransportFromDeviceFactory func(device detection.DeviceInfo) (Transport, error)

// ConnectOption represents a functional option for ConnectDevice
type ConnectOption func(*connectConfig) error

// connectConfig holds configuration options for device connection
type connectConfig struct {
	transportFactory       TransportFactory
	transportDeviceFactory TransportFromDeviceFactory
	deviceDetector         func(context.Context, *detection.Options) ([]detection.DeviceInfo, error)
	deviceOptions          []Option
	timeout                time.Duration
	autoDetect             bool
	connectionRetries      int
}

// WithAutoDetection enables automatic device detection instead of using a specific path
func WithAutoDetection() ConnectOption {
	return func(c *connectConfig) error {
		c.autoDetect = true
		return nil
	}
}

// WithDeviceOptions adds device-level options
func WithDeviceOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceOptions = append(c.deviceOptions, opts...)
		return nil
	}
}

// WithConnectTimeout bounds the whole connection attempt, detection and
// handshake included
func WithConnectTimeout(timeout time.Duration) ConnectOption {
	return func(c *connectConfig) error {
		c.timeout = timeout
		return nil
	}
}

// WithTransportFactory sets the transport factory function
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportFactory = factory
		return nil
	}
}

// WithTransportFromDeviceFactory sets the transport from device factory function
func WithTransportFromDeviceFactory(factory TransportFromDeviceFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportDeviceFactory = factory
		return nil
	}
}

// WithConnectionRetries sets the number of connection retry attempts
func WithConnectionRetries(maxAttempts int) ConnectOption {
	return func(c *connectConfig) error {
		if maxAttempts < 1 {
			return fmt.Errorf("connection retries must be at least 1, got %d", maxAttempts)
		}
		c.connectionRetries = maxAttempts
		return nil
	}
}

// WithDeviceDetector sets a custom device detector function for auto-detection
func WithDeviceDetector(
	detector func(context.Context, *detection.Options) ([]detection.DeviceInfo, error),
) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceDetector = detector
		return nil
	}
}

// ConnectDevice creates and initializes a fingerprint module from a path or
// auto-detection. It handles transport creation, the password handshake and
// the initial parameter read.
//
// Transport construction is injected through factories so that this package
// never imports its own transport implementations:
//
//	// Connect to a specific port
//	device, err := r30x.ConnectDevice("/dev/ttyUSB0",
//	    r30x.WithTransportFactory(func(path string) (r30x.Transport, error) {
//	        return uart.New(path)
//	    }))
//
//	// Auto-detect a module
//	device, err := r30x.ConnectDevice("", r30x.WithAutoDetection(),
//	    r30x.WithTransportFromDeviceFactory(func(d detection.DeviceInfo) (r30x.Transport, error) {
//	        return uart.New(d.Path)
//	    }))
func ConnectDevice(path string, opts ...ConnectOption) (*Device, error) {
	config, err := applyConnectOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to apply connect options: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.timeout)
	defer cancel()

	transport, err := createTransport(ctx, path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	device, err := setupDeviceWithRetry(ctx, transport, config)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}

	return device, nil
}

func applyConnectOptions(opts []ConnectOption) (*connectConfig, error) {
	config := &connectConfig{
		autoDetect:        false,
		timeout:           30 * time.Second,
		connectionRetries: 3, // Default to 3 attempts for manual connections
	}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply connect option: %w", err)
		}
	}

	return config, nil
}

func createTransport(ctx context.Context, path string, config *connectConfig) (Transport, error) {
	if config.autoDetect || path == "" {
		return createAutoDetectedTransport(ctx, config.transportDeviceFactory, config.deviceDetector)
	}
	return createManualTransport(path, config.transportFactory)
}

func setupDevice(ctx context.Context, transport Transport, config *connectConfig) (*Device, error) {
	device, err := New(transport, config.deviceOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	if err := device.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize device: %w", err)
	}

	return device, nil
}

// setupDeviceWithRetry wraps setupDevice with retry logic for connection attempts
func setupDeviceWithRetry(ctx context.Context, transport Transport, config *connectConfig) (*Device, error) {
	// Auto-detection already probed the module; a second failure here is real
	if config.autoDetect {
		return setupDevice(ctx, transport, config)
	}

	retryConfig := &RetryConfig{
		MaxAttempts:       config.connectionRetries,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      10 * time.Second,
	}

	var device *Device
	err := RetryWithConfig(ctx, retryConfig, func() error {
		var err error
		device, err = setupDevice(ctx, transport, config)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup device after %d attempts: %w", config.connectionRetries, err)
	}

	return device, nil
}

// createManualTransport handles creation of transport for a specific path
func createManualTransport(path string, factory TransportFactory) (Transport, error) {
	if factory == nil {
		return nil, errors.New("transport factory not provided")
	}

	transport, err := factory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for path %s: %w", path, err)
	}

	return transport, nil
}

// createAutoDetectedTransport handles auto-detection of devices
func createAutoDetectedTransport(
	ctx context.Context,
	factory TransportFromDeviceFactory,
	detector func(context.Context, *detection.Options) ([]detection.DeviceInfo, error),
) (Transport, error) {
	opts := detection.DefaultOptions()
	opts.Mode = detection.Safe

	var devices []detection.DeviceInfo
	var err error

	if detector != nil {
		devices, err = detector(ctx, &opts)
	} else {
		devices, err = detection.DetectAll(ctx, &opts)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to detect devices: %w", err)
	}

	if len(devices) == 0 {
		return nil, ErrDeviceNotFound
	}

	// Use the first detected device
	device := devices[0]
	if factory == nil {
		return nil, errors.New("transport device factory not provided")
	}
	return factory(device)
}
