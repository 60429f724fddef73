// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"errors"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// DeviceHandle provides GPU device access from the host application.
//
// Marks RECEIVE the device from the host, they never create one. The host
// application (e.g. gogpu.App) implements DeviceHandle; OpenDevice wraps
// it into the gpucore.Device the channel compiler allocates through.
//
// DeviceHandle is an alias for gpucontext.DeviceProvider.
type DeviceHandle = gpucontext.DeviceProvider

// ErrNoHAL is returned by OpenDevice when the provider does not expose
// hal.Device and hal.Queue, or when the binary was built with nogpu.
var ErrNoHAL = errors.New("render: provider does not expose HAL device")

// halProvider is implemented by hosts that share their HAL device and queue.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// NullDeviceHandle is a DeviceHandle that provides nil implementations.
// Used for headless compilation where no GPU is available.
type NullDeviceHandle struct{}

// Device returns nil for the null device.
func (NullDeviceHandle) Device() gpucontext.Device { return nil }

// Queue returns nil for the null device.
func (NullDeviceHandle) Queue() gpucontext.Queue { return nil }

// Adapter returns nil for the null device.
func (NullDeviceHandle) Adapter() gpucontext.Adapter { return nil }

// SurfaceFormat returns undefined format for the null device.
func (NullDeviceHandle) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatUndefined
}

// Ensure NullDeviceHandle implements DeviceHandle.
var _ DeviceHandle = NullDeviceHandle{}

// surfaceFormat picks the color target format of mark pipelines.
func surfaceFormat(provider any) gputypes.TextureFormat {
	if h, ok := provider.(DeviceHandle); ok {
		if f := h.SurfaceFormat(); f != gputypes.TextureFormatUndefined {
			return f
		}
	}
	return gputypes.TextureFormatBGRA8Unorm
}
