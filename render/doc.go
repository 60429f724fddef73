// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render binds marks to a GPU device provided by the host
// application.
//
// # Key Principle
//
// markgpu RECEIVES a GPU device from the host application, it does NOT
// create its own. The host hands over its gpucontext.DeviceProvider and
// OpenDevice returns a gpucore.Device backed by gogpu/wgpu HAL:
//
//	app.OnInit(func(gc *gogpu.Context) {
//	    dev, err := render.OpenDevice(gc.DeviceHandle())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    globals := markgpu.RendererGlobals{Device: dev}
//	    mark, err := markgpu.NewMark(globals, channels, markgpu.InferCount,
//	        markgpu.WithShaderBody(body))
//	    ...
//	})
//
// WGSL produced by the channel compiler is translated to SPIR-V with naga
// before it reaches the HAL.
//
// Builds tagged nogpu drop the HAL dependency; OpenDevice then always
// returns ErrNoHAL and callers fall back to gpucore.NewMemoryDevice.
//
// # Thread Safety
//
// HALDevice is safe for concurrent use. Marks themselves are not.
package render
