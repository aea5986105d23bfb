// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halrt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/raypipe"
)

// Library is a compiled set of shader groups. It implements
// raypipe.Library.
type Library struct {
	id        uint64
	label     string
	layout    *Layout
	general   []group
	hits      []group
	destroyed atomic.Bool
	once      sync.Once
}

var _ raypipe.Library = (*Library)(nil)

// ID returns the backend-unique library ID.
func (l *Library) ID() uint64 {
	return l.id
}

// HitgroupCount returns the number of hit groups.
func (l *Library) HitgroupCount() int {
	return len(l.hits)
}

// GeneralCount returns the number of general shader groups.
func (l *Library) GeneralCount() int {
	return len(l.general)
}

// Destroy releases the library's module references. Pipelines linked from
// the library keep their own references.
func (l *Library) Destroy() {
	l.once.Do(func() {
		l.destroyed.Store(true)
		releaseGroups(l.general)
		releaseGroups(l.hits)
		logger.Load().Debug("halrt: library destroyed", "library", l.id, "label", l.label)
	})
}

// stageJob is one shader module to create for a library.
type stageJob struct {
	group  int
	shader *raypipe.ResolvedShader
}

// CreateLibraryForShaders compiles raygen, miss and callable stages. Each
// stage becomes its own general group, in order.
func (b *Backend) CreateLibraryForShaders(ctx context.Context, layout raypipe.Layout, stages []raypipe.ResolvedShader,
	info raypipe.CreateInfo, cache raypipe.PipelineCache) (raypipe.Library, error) {
	lib, err := b.createShaderLibrary(ctx, layout, stages, info, cache)
	if err != nil {
		return nil, err
	}
	return lib, nil
}

func (b *Backend) createShaderLibrary(ctx context.Context, layout raypipe.Layout, stages []raypipe.ResolvedShader,
	info raypipe.CreateInfo, cache raypipe.PipelineCache) (*Library, error) {
	l, mc, err := b.prepare(ctx, layout, info, cache)
	if err != nil {
		return nil, err
	}

	groups := make([]group, len(stages))
	jobs := make([]stageJob, len(stages))
	for i := range stages {
		switch stages[i].Stage {
		case raypipe.StageRayGen, raypipe.StageMiss, raypipe.StageCallable:
		default:
			return nil, fmt.Errorf("%w: %s stage %q in a general group", ErrInvalidGroup, stages[i].Stage, stages[i].Shader)
		}
		groups[i].kind = GroupGeneral
		jobs[i] = stageJob{group: i, shader: &stages[i]}
	}

	if err := b.compileStages(ctx, mc, info.Label, groups, jobs); err != nil {
		return nil, err
	}
	return b.newLibrary(l, info.Label, groups, nil), nil
}

// CreateLibraryForHitgroups compiles hit groups in order.
func (b *Backend) CreateLibraryForHitgroups(ctx context.Context, layout raypipe.Layout, groups []raypipe.HitgroupDesc,
	info raypipe.CreateInfo, cache raypipe.PipelineCache) (raypipe.Library, error) {
	lib, err := b.createHitgroupLibrary(ctx, layout, groups, info, cache)
	if err != nil {
		return nil, err
	}
	return lib, nil
}

func (b *Backend) createHitgroupLibrary(ctx context.Context, layout raypipe.Layout, descs []raypipe.HitgroupDesc,
	info raypipe.CreateInfo, cache raypipe.PipelineCache) (*Library, error) {
	l, mc, err := b.prepare(ctx, layout, info, cache)
	if err != nil {
		return nil, err
	}

	groups := make([]group, len(descs))
	var jobs []stageJob
	for i := range descs {
		d := &descs[i]
		if err := validateHitgroup(d, info.Flags); err != nil {
			return nil, fmt.Errorf("hit group %d: %w", i, err)
		}
		groups[i].kind = GroupTriangles
		if d.Type == raypipe.MaterialProcedural {
			groups[i].kind = GroupProcedural
		}
		for _, s := range []*raypipe.ResolvedShader{d.ClosestHit, d.AnyHit, d.Intersection} {
			if s != nil {
				jobs = append(jobs, stageJob{group: i, shader: s})
			}
		}
	}

	if err := b.compileStages(ctx, mc, info.Label, groups, jobs); err != nil {
		return nil, err
	}
	return b.newLibrary(l, info.Label, nil, groups), nil
}

func validateHitgroup(d *raypipe.HitgroupDesc, flags raypipe.PipelineFlags) error {
	empty := d.ClosestHit == nil && d.AnyHit == nil && d.Intersection == nil
	switch {
	case d.ClosestHit == nil && flags&raypipe.FlagNoNullClosestHit != 0:
		return fmt.Errorf("%w: missing closest-hit shader", ErrInvalidGroup)
	case d.Type == raypipe.MaterialTriangles && d.Intersection != nil:
		return fmt.Errorf("%w: intersection shader in a triangle group", ErrInvalidGroup)
	case d.Type == raypipe.MaterialProcedural && !empty && d.Intersection == nil:
		return fmt.Errorf("%w: procedural group without intersection shader", ErrInvalidGroup)
	}
	return nil
}

// compileStages creates the modules for jobs concurrently and appends the
// stages to their groups in job order. On failure every module already
// created is released.
func (b *Backend) compileStages(ctx context.Context, mc *ModuleCache, label string, groups []group, jobs []stageJob) error {
	modules := make([]*shaderModule, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s := jobs[i].shader
			name := fmt.Sprintf("%s/%s:%s", label, s.Shader, s.EntryPoint)
			var (
				m   *shaderModule
				err error
			)
			if mc != nil {
				m, err = mc.acquire(s.Code, name)
			} else {
				m, err = createModule(b.device, s.Code, name)
			}
			if err != nil {
				return err
			}
			modules[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, m := range modules {
			if m != nil {
				m.release()
			}
		}
		return err
	}

	for i, job := range jobs {
		s := job.shader
		groups[job.group].stages = append(groups[job.group].stages, stage{
			stage:     s.Stage,
			module:    modules[i],
			entry:     s.EntryPoint,
			constants: s.Constants,
		})
	}
	for i := range groups {
		groups[i].seal()
	}
	return nil
}

func (b *Backend) newLibrary(layout *Layout, label string, general, hits []group) *Library {
	lib := &Library{
		id:      b.newID(),
		label:   label,
		layout:  layout,
		general: general,
		hits:    hits,
	}
	logger.Load().Debug("halrt: library created", "library", lib.id, "label", label,
		"general", len(general), "hitgroups", len(hits))
	return lib
}
