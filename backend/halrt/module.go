// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halrt

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/raypipe"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// spirvHeaderWords is the size of the SPIR-V module header.
const spirvHeaderWords = 5

// shaderModule is a reference-counted HAL shader module. The module is
// destroyed when the last reference is released.
type shaderModule struct {
	device hal.Device
	raw    hal.ShaderModule
	hash   uint64
	refs   atomic.Int32
}

func (m *shaderModule) acquire() *shaderModule {
	m.refs.Add(1)
	return m
}

func (m *shaderModule) release() {
	switch n := m.refs.Add(-1); {
	case n == 0:
		m.device.DestroyShaderModule(m.raw)
	case n < 0:
		panic("halrt: shader module released too many times")
	}
}

// createModule compiles code into a new module holding one reference.
func createModule(device hal.Device, code *raypipe.ShaderCode, label string) (*shaderModule, error) {
	if err := validateSPIRV(code); err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	raw, err := device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: label,
		Source: hal.ShaderSource{
			SPIRV: code.SPIRV,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("halrt: create shader module %s: %w", label, err)
	}
	m := &shaderModule{device: device, raw: raw, hash: codeHash(code)}
	m.refs.Store(1)
	return m, nil
}

func validateSPIRV(code *raypipe.ShaderCode) error {
	switch {
	case code == nil:
		return fmt.Errorf("%w: no bytecode", ErrInvalidSPIRV)
	case len(code.SPIRV) < spirvHeaderWords:
		return fmt.Errorf("%w: %d words", ErrInvalidSPIRV, len(code.SPIRV))
	case code.SPIRV[0] != spirvMagic:
		return fmt.Errorf("%w: bad magic %#08x", ErrInvalidSPIRV, code.SPIRV[0])
	}
	return nil
}

// codeHash returns the store-provided hash, or hashes the words when the
// store left it unset.
func codeHash(code *raypipe.ShaderCode) uint64 {
	if code.Hash != 0 {
		return code.Hash
	}
	h := fnv.New64a()
	var buf [4]byte
	for _, w := range code.SPIRV {
		binary.LittleEndian.PutUint32(buf[:], w)
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

// ModuleCache caches shader modules by SPIR-V hash. It implements
// raypipe.PipelineCache and is shared by every concurrent build.
//
// Thread Safety:
// ModuleCache is safe for concurrent use. It uses RWMutex with
// double-check locking for efficient reads and safe writes.
type ModuleCache struct {
	device hal.Device

	// mu protects modules.
	mu      sync.RWMutex
	modules map[uint64]*shaderModule

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewModuleCache creates an empty module cache for the backend's device.
func (b *Backend) NewModuleCache() *ModuleCache {
	return &ModuleCache{
		device:  b.device,
		modules: make(map[uint64]*shaderModule),
	}
}

// acquire returns a referenced module for code, creating it on a miss.
// The cache keeps its own reference on every module it holds.
func (c *ModuleCache) acquire(code *raypipe.ShaderCode, label string) (*shaderModule, error) {
	if err := validateSPIRV(code); err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	key := codeHash(code)

	// Fast path: read lock
	c.mu.RLock()
	if m, ok := c.modules[key]; ok {
		m.acquire()
		c.mu.RUnlock()
		c.hits.Add(1)
		return m, nil
	}
	c.mu.RUnlock()

	// Slow path: write lock with double-check
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.modules[key]; ok {
		c.hits.Add(1)
		return m.acquire(), nil
	}

	m, err := createModule(c.device, code, label)
	if err != nil {
		return nil, err
	}
	c.modules[key] = m
	c.misses.Add(1)
	return m.acquire(), nil
}

// Contains reports whether a module for the given SPIR-V hash is cached.
func (c *ModuleCache) Contains(hash uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.modules[hash]
	return ok
}

// Size returns the number of cached modules.
func (c *ModuleCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.modules)
}

// Stats returns cache hit and miss counts.
func (c *ModuleCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// HitRate returns the cache hit rate (0.0 to 1.0).
// Returns 0 if no lookups have been performed.
func (c *ModuleCache) HitRate() float64 {
	hits, misses := c.Stats()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Evict drops the cache reference on the module with the given hash, e.g.
// after the shader it was compiled from was reloaded. Libraries still
// using the module keep it alive.
func (c *ModuleCache) Evict(hash uint64) bool {
	c.mu.Lock()
	m, ok := c.modules[hash]
	delete(c.modules, hash)
	c.mu.Unlock()

	if ok {
		m.release()
	}
	return ok
}

// DestroyAll drops every cache reference and resets the statistics.
// Modules still referenced by libraries or pipelines are destroyed when
// those are.
func (c *ModuleCache) DestroyAll() {
	c.mu.Lock()
	modules := c.modules
	c.modules = make(map[uint64]*shaderModule)
	c.mu.Unlock()

	for _, m := range modules {
		m.release()
	}
	c.hits.Store(0)
	c.misses.Store(0)
}
