package raypipe

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// buildWithLibraries composes the pipeline for mask from the base library
// and one library per slot in mask. Missing libraries are scheduled; the
// link is only scheduled once all of them are ready.
func (m *Manager) buildWithLibraries(mask Mask, assets AssetStore) {
	ready := true

	base, ok := m.ensureBaseLibrary(assets)
	if !ok {
		ready = false
	}

	slots := mask.Slots()
	libs := make([]*sharedLibrary, 0, len(slots)+1)
	libs = append(libs, base)
	for _, slot := range slots {
		lib, ok := m.ensureMaterialLibrary(slot, assets)
		if !ok {
			// Keep going so every missing library starts building now.
			ready = false
			continue
		}
		libs = append(libs, lib)
	}
	if !ready {
		return
	}

	mapping := newHitgroupMapping(mask, len(m.rayTypes))
	for _, lib := range libs {
		lib.retain()
	}

	var (
		backend = m.backend
		layout  = m.chars.Layout()
		info    = m.chars.CreateInfo()
		cache   = m.cache
		tracer  = m.tracer
		buildID = uuid.NewString()
		want    = int(mapping.Span())
	)
	Logger().Debug("scheduling pipeline link", "mask", mask, "libraries", len(libs), "build", buildID)

	var started atomic.Bool
	task := Spawn(m.scheduler, func() (Pipeline, error) {
		started.Store(true)
		defer func() {
			for _, lib := range libs {
				lib.release()
			}
		}()
		raw := make([]Library, len(libs))
		for i, lib := range libs {
			raw[i] = lib.lib
		}
		attrs := buildAttrs(buildID,
			attribute.Int64("raypipe.mask", int64(mask)), //nolint:gosec // attribute carries the bit pattern
			attribute.Int("raypipe.libraries", len(raw)))
		return traced(tracer, spanBuildLink, attrs, func(ctx context.Context) (Pipeline, error) {
			p, err := backend.LinkLibraries(ctx, layout, raw, info, cache)
			if err != nil {
				return nil, fmt.Errorf("link pipeline %v: %w", mask, err)
			}
			if err := checkHitgroupCount(p, want); err != nil {
				p.Destroy()
				return nil, fmt.Errorf("link pipeline %v: %w", mask, err)
			}
			Logger().Info("linked specialized pipeline", "mask", mask, "hitgroups", want, "build", buildID)
			return p, nil
		})
	})
	if task.State() == Failed && !started.Load() {
		// Rejected by the scheduler; the task will never release its references.
		for _, lib := range libs {
			lib.release()
		}
	}

	m.entries[mask] = &pipelineEntry{pipeline: task, mapping: mapping, buildID: buildID}
}

// ensureBaseLibrary returns the base library if it is ready and schedules
// its build if the slot is empty.
func (m *Manager) ensureBaseLibrary(assets AssetStore) (*sharedLibrary, bool) {
	if m.base.lib == nil {
		m.scheduleBaseLibrary(assets)
		return nil, false
	}
	return m.base.poll("base", -1)
}

// ensureMaterialLibrary returns the library of slot if it is ready and
// schedules its build if the slot is empty.
func (m *Manager) ensureMaterialLibrary(slot int, assets AssetStore) (*sharedLibrary, bool) {
	ls := &m.materials[slot]
	if ls.lib == nil {
		m.scheduleMaterialLibrary(slot, assets)
		return nil, false
	}
	return ls.poll("material", slot)
}

func (m *Manager) scheduleBaseLibrary(assets AssetStore) {
	stages, ok := resolveAll(assets, m.stages)
	if !ok {
		return
	}

	var (
		backend  = m.backend
		layout   = m.chars.Layout()
		info     = m.chars.CreateInfo()
		cache    = m.cache
		disposer = m.disposer
		tracer   = m.tracer
		buildID  = uuid.NewString()
	)
	Logger().Debug("scheduling base library", "stages", len(stages), "build", buildID)

	m.base = librarySlot{
		buildID: buildID,
		lib: Spawn(m.scheduler, func() (*sharedLibrary, error) {
			attrs := buildAttrs(buildID, attribute.Int("raypipe.stages", len(stages)))
			return traced(tracer, spanBuildBase, attrs, func(ctx context.Context) (*sharedLibrary, error) {
				lib, err := backend.CreateLibraryForShaders(ctx, layout, stages, info, cache)
				if err != nil {
					return nil, fmt.Errorf("build base library: %w", err)
				}
				Logger().Info("built base library", "stages", len(stages), "build", buildID)
				return newSharedLibrary(lib, disposer), nil
			})
		}),
	}
}

func (m *Manager) scheduleMaterialLibrary(slot int, assets AssetStore) {
	mat := m.chars.Material(slot)
	groups, ok := resolveHitgroups(assets, mat, m.rayTypes)
	if !ok {
		return
	}

	var (
		backend  = m.backend
		layout   = m.chars.Layout()
		info     = m.chars.CreateInfo()
		cache    = m.cache
		disposer = m.disposer
		tracer   = m.tracer
		buildID  = uuid.NewString()
		id       = mat.ID
	)
	Logger().Debug("scheduling material library", "slot", slot, "material", id, "build", buildID)

	m.materials[slot] = librarySlot{
		buildID: buildID,
		lib: Spawn(m.scheduler, func() (*sharedLibrary, error) {
			attrs := buildAttrs(buildID,
				attribute.Int("raypipe.slot", slot),
				attribute.String("raypipe.material", string(id)))
			return traced(tracer, spanBuildMaterial, attrs, func(ctx context.Context) (*sharedLibrary, error) {
				lib, err := backend.CreateLibraryForHitgroups(ctx, layout, groups, info, cache)
				if err != nil {
					return nil, fmt.Errorf("build library for material %q: %w", id, err)
				}
				if lib.HitgroupCount() != len(groups) {
					lib.Destroy()
					return nil, fmt.Errorf("build library for material %q: %w: got %d, want %d",
						id, ErrHitgroupCount, lib.HitgroupCount(), len(groups))
				}
				Logger().Info("built material library", "slot", slot, "material", id, "build", buildID)
				return newSharedLibrary(lib, disposer), nil
			})
		}),
	}
}

func checkHitgroupCount(p Pipeline, want int) error {
	if got := p.HitgroupCount(); got != want {
		return fmt.Errorf("%w: got %d, want %d", ErrHitgroupCount, got, want)
	}
	return nil
}
