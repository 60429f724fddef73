// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build nogpu

package render

import "github.com/gogpu/markgpu/gpucore"

// OpenDevice always fails in nogpu builds.
func OpenDevice(any) (gpucore.Device, error) {
	return nil, ErrNoHAL
}
