// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package halrt builds raypipe pipeline objects on a gogpu/wgpu HAL device.
//
// Every shader stage is compiled into a HAL shader module. Libraries record
// the shader groups built from those modules, and linking concatenates the
// groups of several libraries into a pipeline whose shader-binding-table
// handles are derived from the group contents.
//
// Shader modules are shared: a [ModuleCache] passed as the
// raypipe.PipelineCache deduplicates modules by SPIR-V hash across every
// concurrent build, and each library or pipeline holds a reference on the
// modules it uses, so a linked pipeline stays valid after the libraries it
// was linked from are destroyed.
//
// # Usage
//
//	dev, err := backend.Open(backend.BackendNoop)
//	if err != nil {
//		return err
//	}
//	defer dev.Close()
//
//	rt, err := halrt.New(dev.HAL)
//	if err != nil {
//		return err
//	}
//	layout, err := rt.CreateLayout(halrt.LayoutDesc{Label: "scene"})
//	if err != nil {
//		return err
//	}
//	defer layout.Destroy()
//
//	cache := rt.NewModuleCache()
//	defer cache.DestroyAll()
//
// # Thread Safety
//
// Backend, ModuleCache, Library and Pipeline are safe for concurrent use.
package halrt
