// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halrt

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/raypipe"
)

// DefaultMaxRecursionDepth is the recursion limit reported by devices that
// implement ray tracing through the Vulkan and D3D12 minimum guarantees.
const DefaultMaxRecursionDepth = 31

// Backend implements raypipe.Backend on a HAL device.
type Backend struct {
	device       hal.Device
	nextID       atomic.Uint64
	concurrency  int
	maxRecursion uint32
}

var _ raypipe.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithModuleConcurrency limits how many shader modules a single library
// build creates in parallel. n <= 0 uses GOMAXPROCS.
func WithModuleConcurrency(n int) Option {
	return func(b *Backend) {
		b.concurrency = n
	}
}

// WithMaxRecursionDepth sets the largest recursion depth pipelines may
// request.
func WithMaxRecursionDepth(n uint32) Option {
	return func(b *Backend) {
		b.maxRecursion = n
	}
}

// New creates a backend on device.
func New(device hal.Device, opts ...Option) (*Backend, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	b := &Backend{
		device:       device,
		maxRecursion: DefaultMaxRecursionDepth,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.concurrency <= 0 {
		b.concurrency = runtime.GOMAXPROCS(0)
	}
	return b, nil
}

// halProvider is implemented by device providers that expose their
// underlying HAL objects.
type halProvider interface {
	HalDevice() any
}

// NewFromProvider creates a backend on the HAL device behind provider.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Backend, error) {
	if provider == nil {
		return nil, ErrNilDevice
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHALDevice
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, ErrNoHALDevice
	}
	return New(device, opts...)
}

// Device returns the HAL device the backend creates objects on.
func (b *Backend) Device() hal.Device {
	return b.device
}

// MaxRecursionDepth returns the recursion limit.
func (b *Backend) MaxRecursionDepth() uint32 {
	return b.maxRecursion
}

func (b *Backend) newID() uint64 {
	return b.nextID.Add(1)
}

// prepare checks the arguments every build method shares.
func (b *Backend) prepare(ctx context.Context, layout raypipe.Layout, info raypipe.CreateInfo,
	cache raypipe.PipelineCache) (*Layout, *ModuleCache, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	l, err := b.layoutOf(layout)
	if err != nil {
		return nil, nil, err
	}
	if info.MaxRecursionDepth > b.maxRecursion {
		return nil, nil, fmt.Errorf("%w: %d > %d", ErrRecursionDepth, info.MaxRecursionDepth, b.maxRecursion)
	}
	mc, err := b.cacheOf(cache)
	if err != nil {
		return nil, nil, err
	}
	return l, mc, nil
}

func (b *Backend) layoutOf(layout raypipe.Layout) (*Layout, error) {
	l, ok := layout.(*Layout)
	if !ok || l == nil || l.device != b.device {
		return nil, fmt.Errorf("%w: layout %T", ErrForeignObject, layout)
	}
	if l.destroyed.Load() {
		return nil, fmt.Errorf("layout %q: %w", l.label, ErrDestroyed)
	}
	return l, nil
}

func (b *Backend) cacheOf(cache raypipe.PipelineCache) (*ModuleCache, error) {
	if cache == nil {
		return nil, nil
	}
	mc, ok := cache.(*ModuleCache)
	if !ok || mc == nil || mc.device != b.device {
		return nil, fmt.Errorf("%w: cache %T", ErrForeignObject, cache)
	}
	return mc, nil
}
