// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halrt

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// LayoutDesc describes a pipeline layout as a list of bind groups.
type LayoutDesc struct {
	Label  string
	Groups [][]gputypes.BindGroupLayoutEntry
}

// Layout is a pipeline layout together with its bind group layouts.
// It implements raypipe.Layout.
type Layout struct {
	label     string
	device    hal.Device
	groups    []hal.BindGroupLayout
	raw       hal.PipelineLayout
	destroyed atomic.Bool
	once      sync.Once
}

// CreateLayout creates the bind group layouts and the pipeline layout
// described by desc.
func (b *Backend) CreateLayout(desc LayoutDesc) (*Layout, error) {
	l := &Layout{label: desc.Label, device: b.device}

	for i, entries := range desc.Groups {
		bgl, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s_group%d", desc.Label, i),
			Entries: entries,
		})
		if err != nil {
			l.destroyGroups()
			return nil, fmt.Errorf("halrt: create bind group layout %d of %q: %w", i, desc.Label, err)
		}
		l.groups = append(l.groups, bgl)
	}

	raw, err := b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: l.groups,
	})
	if err != nil {
		l.destroyGroups()
		return nil, fmt.Errorf("halrt: create pipeline layout %q: %w", desc.Label, err)
	}
	l.raw = raw

	logger.Load().Debug("halrt: layout created", "label", desc.Label, "groups", len(l.groups))
	return l, nil
}

// Label returns the layout label.
func (l *Layout) Label() string {
	return l.label
}

// Raw returns the HAL pipeline layout.
func (l *Layout) Raw() hal.PipelineLayout {
	return l.raw
}

// GroupCount returns the number of bind groups.
func (l *Layout) GroupCount() int {
	return len(l.groups)
}

// Destroy releases the pipeline layout and its bind group layouts.
// It is safe to call more than once.
func (l *Layout) Destroy() {
	l.once.Do(func() {
		l.destroyed.Store(true)
		if l.raw != nil {
			l.device.DestroyPipelineLayout(l.raw)
			l.raw = nil
		}
		l.destroyGroups()
	})
}

func (l *Layout) destroyGroups() {
	for _, g := range l.groups {
		l.device.DestroyBindGroupLayout(g)
	}
	l.groups = nil
}
