// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halrt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/raypipe"
)

// Pipeline is a linked ray-tracing pipeline. It implements
// raypipe.Pipeline.
//
// Group handles are laid out general groups first, then hit groups, both
// in the order of the libraries the pipeline was linked from.
type Pipeline struct {
	id           uint64
	label        string
	layout       *Layout
	general      []group
	hits         []group
	maxRecursion uint32
	flags        raypipe.PipelineFlags
	destroyed    atomic.Bool
	once         sync.Once
}

var _ raypipe.Pipeline = (*Pipeline)(nil)

// ID returns the backend-unique pipeline ID.
func (p *Pipeline) ID() uint64 {
	return p.id
}

// Label returns the label the pipeline was created with.
func (p *Pipeline) Label() string {
	return p.label
}

// Layout returns the layout the pipeline was created with.
func (p *Pipeline) Layout() raypipe.Layout {
	return p.layout
}

// MaxRecursionDepth returns the recursion depth the pipeline was created with.
func (p *Pipeline) MaxRecursionDepth() uint32 {
	return p.maxRecursion
}

// Flags returns the creation flags.
func (p *Pipeline) Flags() raypipe.PipelineFlags {
	return p.flags
}

// HitgroupCount returns the number of hit groups.
func (p *Pipeline) HitgroupCount() int {
	return len(p.hits)
}

// GeneralCount returns the number of general groups.
func (p *Pipeline) GeneralCount() int {
	return len(p.general)
}

// HitgroupKind returns the kind of hit group i.
func (p *Pipeline) HitgroupKind(i int) GroupKind {
	return p.hits[i].kind
}

// HitgroupHandle returns the HandleSize-byte handle of hit group i, or nil
// if i is out of range.
func (p *Pipeline) HitgroupHandle(i int) []byte {
	if i < 0 || i >= len(p.hits) {
		return nil
	}
	return groupHandle(p.id, p.hits[i], len(p.general)+i)
}

// GeneralHandle returns the HandleSize-byte handle of general group i, or
// nil if i is out of range.
func (p *Pipeline) GeneralHandle(i int) []byte {
	if i < 0 || i >= len(p.general) {
		return nil
	}
	return groupHandle(p.id, p.general[i], i)
}

// Destroy releases the pipeline's module references.
func (p *Pipeline) Destroy() {
	p.once.Do(func() {
		p.destroyed.Store(true)
		releaseGroups(p.general)
		releaseGroups(p.hits)
		logger.Load().Debug("halrt: pipeline destroyed", "pipeline", p.id, "label", p.label)
	})
}

// LinkLibraries links libs into a pipeline. Every library must have been
// created with layout.
func (b *Backend) LinkLibraries(ctx context.Context, layout raypipe.Layout, libs []raypipe.Library,
	info raypipe.CreateInfo, cache raypipe.PipelineCache) (raypipe.Pipeline, error) {
	l, _, err := b.prepare(ctx, layout, info, cache)
	if err != nil {
		return nil, err
	}

	own := make([]*Library, len(libs))
	var nGeneral, nHits int
	for i, lib := range libs {
		hl, ok := lib.(*Library)
		if !ok || hl == nil {
			return nil, fmt.Errorf("%w: library %T", ErrForeignObject, lib)
		}
		if hl.layout != l {
			return nil, fmt.Errorf("%w: library %d built with %q, linking with %q",
				ErrLayoutMismatch, hl.id, hl.layout.label, l.label)
		}
		if hl.destroyed.Load() {
			return nil, fmt.Errorf("library %d: %w", hl.id, ErrDestroyed)
		}
		own[i] = hl
		nGeneral += len(hl.general)
		nHits += len(hl.hits)
	}

	p := &Pipeline{
		id:           b.newID(),
		label:        info.Label,
		layout:       l,
		general:      make([]group, 0, nGeneral),
		hits:         make([]group, 0, nHits),
		maxRecursion: info.MaxRecursionDepth,
		flags:        info.Flags,
	}
	for _, lib := range own {
		for _, g := range lib.general {
			p.general = append(p.general, g.retain())
		}
	}
	for _, lib := range own {
		for _, g := range lib.hits {
			p.hits = append(p.hits, g.retain())
		}
	}

	logger.Load().Debug("halrt: pipeline linked", "pipeline", p.id, "label", info.Label,
		"libraries", len(libs), "general", nGeneral, "hitgroups", nHits)
	return p, nil
}

// CreatePipeline builds a pipeline from stages and hit groups without
// keeping intermediate libraries.
func (b *Backend) CreatePipeline(ctx context.Context, layout raypipe.Layout, stages []raypipe.ResolvedShader,
	groups []raypipe.HitgroupDesc, info raypipe.CreateInfo, cache raypipe.PipelineCache) (raypipe.Pipeline, error) {
	shaders, err := b.createShaderLibrary(ctx, layout, stages, info, cache)
	if err != nil {
		return nil, err
	}
	defer shaders.Destroy()

	hits, err := b.createHitgroupLibrary(ctx, layout, groups, info, cache)
	if err != nil {
		return nil, err
	}
	defer hits.Destroy()

	return b.LinkLibraries(ctx, layout, []raypipe.Library{shaders, hits}, info, cache)
}
