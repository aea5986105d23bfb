// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halrt

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/raypipe/backend"
)

func init() {
	backend.Register(backend.BackendNoop, OpenNoop)
}

// OpenNoop opens the offline noop HAL device.
func OpenNoop() (*backend.Device, error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("halrt: create noop instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, errors.New("halrt: noop instance has no adapters")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("halrt: open noop device: %w", err)
	}
	return backend.NewDevice(backend.BackendNoop, openDev.Device, func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}), nil
}
