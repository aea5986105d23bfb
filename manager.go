package raypipe

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// pipelineEntry is one specialized pipeline in the cache.
type pipelineEntry struct {
	pipeline *Deferred[Pipeline]
	mapping  HitgroupMapping
	buildID  string
	reported bool
}

// poll returns the pipeline if it is ready. A failure is logged the first
// time it is observed and then treated as not ready.
func (e *pipelineEntry) poll(mask Mask) (Pipeline, bool) {
	p, state, err := e.pipeline.Poll()
	switch state {
	case Ready:
		return p, true
	case Failed:
		if !e.reported {
			e.reported = true
			Logger().Warn("specialized pipeline build failed",
				"mask", mask, "build", e.buildID, "err", err)
		}
	}
	return nil, false
}

// Manager owns the specialized pipelines of one pipeline family.
//
// Every frame the host reports material instance changes and calls
// GetPipeline. The manager returns the best ready pipeline, if any, and
// schedules background builds for the pipelines it is missing. Builds only
// make progress when GetPipeline polls them, so a long gap between calls
// delays completion but never breaks it.
//
// Thread safety: Manager is not safe for concurrent use. It is owned by
// the frame thread; build work runs on the configured Scheduler and never
// touches manager state.
type Manager struct {
	chars    *Characteristics
	backend  Backend
	rayTypes []uint32

	// stages holds the raygen, miss and callable shaders in that order.
	stages []SpecializedShader

	strategy  Strategy
	scheduler Scheduler
	disposer  Disposer
	cache     PipelineCache
	tracer    trace.Tracer

	active    activation
	base      librarySlot
	materials []librarySlot
	entries   map[Mask]*pipelineEntry
}

// NewManager creates a manager for the pipeline family described by chars.
//
// rayTypes lists the global ray types this manager's pipelines trace, in
// the order their hitgroups are laid out per material. raygen is the ray
// generation shader; miss and callable shaders are set with options.
func NewManager(chars *Characteristics, backend Backend, rayTypes []uint32, raygen SpecializedShader, opts ...ManagerOption) (*Manager, error) {
	if chars == nil {
		return nil, ErrNilCharacteristics
	}
	if backend == nil {
		return nil, ErrNilBackend
	}
	if raygen.Shader == "" {
		return nil, ErrNoRayGen
	}
	if len(rayTypes) == 0 {
		return nil, fmt.Errorf("%w: no ray types configured", ErrInvalidRayType)
	}
	seen := make(map[uint32]bool, len(rayTypes))
	for _, rt := range rayTypes {
		if int(rt) >= chars.RayTypeCount() || seen[rt] {
			return nil, fmt.Errorf("%w: %d", ErrInvalidRayType, rt)
		}
		seen[rt] = true
	}

	o := defaultManagerOptions()
	for _, opt := range opts {
		opt(&o)
	}

	stages := make([]SpecializedShader, 0, 1+len(o.miss)+len(o.callable))
	stages = append(stages, *withStage(&raygen, StageRayGen))
	for i := range o.miss {
		stages = append(stages, *withStage(&o.miss[i], StageMiss))
	}
	for i := range o.callable {
		stages = append(stages, *withStage(&o.callable[i], StageCallable))
	}

	return &Manager{
		chars:     chars,
		backend:   backend,
		rayTypes:  append([]uint32(nil), rayTypes...),
		stages:    stages,
		strategy:  o.strategy,
		scheduler: o.scheduler,
		disposer:  o.disposer,
		cache:     o.cache,
		tracer:    o.tracerProvider().Tracer(tracerName),
		active:    newActivation(chars.MaterialCount()),
		materials: make([]librarySlot, chars.MaterialCount()),
		entries:   make(map[Mask]*pipelineEntry),
	}, nil
}

// Characteristics returns the pipeline family description.
func (m *Manager) Characteristics() *Characteristics { return m.chars }

// Layout returns the pipeline layout shared by every specialized pipeline.
func (m *Manager) Layout() Layout { return m.chars.Layout() }

// RayTypes returns the configured ray types in hitgroup order.
func (m *Manager) RayTypes() []uint32 { return append([]uint32(nil), m.rayTypes...) }

// Strategy returns the build strategy.
func (m *Manager) Strategy() Strategy { return m.strategy }

// ActiveMask returns the slots that currently have live instances.
func (m *Manager) ActiveMask() Mask { return m.active.mask }

// MaterialInstanceCount returns the number of live instances of slot.
func (m *Manager) MaterialInstanceCount(slot int) int { return m.active.count(slot) }

// MaterialInstanceAdded records a new live instance of the material in slot.
// It panics if slot is out of range.
func (m *Manager) MaterialInstanceAdded(slot int) {
	m.active.add(slot)
}

// MaterialInstanceRemoved records the removal of a live instance of the
// material in slot. Removing more instances than were added is a
// programming error and panics.
func (m *Manager) MaterialInstanceRemoved(slot int) {
	m.active.remove(slot)
}

// MaterialInstanceAddedByID is MaterialInstanceAdded for a material ID.
func (m *Manager) MaterialInstanceAddedByID(id MaterialID) {
	m.active.add(m.mustSlot(id))
}

// MaterialInstanceRemovedByID is MaterialInstanceRemoved for a material ID.
func (m *Manager) MaterialInstanceRemovedByID(id MaterialID) {
	m.active.remove(m.mustSlot(id))
}

func (m *Manager) mustSlot(id MaterialID) int {
	slot, ok := m.chars.SlotOf(id)
	if !ok {
		panic(fmt.Sprintf("raypipe: unknown material %q", id))
	}
	return slot
}

// GetPipeline returns the pipeline to trace with this frame, or nil if
// none is ready. It never blocks.
//
// The pipeline specialized for exactly the active materials is preferred.
// Until it is ready, the pipeline containing every material is returned as
// a fallback; its hitgroup mapping covers every slot, so binding-table
// lookups stay valid. Missing pipelines for both masks are scheduled.
func (m *Manager) GetPipeline(assets AssetStore) *SpecializedPipeline {
	current := m.active.mask
	full := m.chars.FullMask()

	if _, ok := m.entries[current]; !ok {
		m.build(current, assets)
	}
	if full != current {
		if _, ok := m.entries[full]; !ok {
			m.build(full, assets)
		}
	}

	if e, ok := m.entries[current]; ok {
		if p, ok := e.poll(current); ok {
			return m.view(current, p, e.mapping, false)
		}
	}
	if full != current {
		if e, ok := m.entries[full]; ok {
			if p, ok := e.poll(full); ok {
				Logger().Debug("using fallback pipeline", "mask", current, "fallback", full)
				traceEvent(m.tracer, spanFallback,
					attribute.Int64("raypipe.mask", int64(current)), //nolint:gosec // attribute carries the bit pattern
					attribute.Int64("raypipe.fallback", int64(full))) //nolint:gosec // attribute carries the bit pattern
				return m.view(full, p, e.mapping, true)
			}
		}
	}
	return nil
}

func (m *Manager) view(mask Mask, p Pipeline, mapping HitgroupMapping, fallback bool) *SpecializedPipeline {
	return &SpecializedPipeline{
		pipeline: p,
		mapping:  mapping,
		mask:     mask,
		fallback: fallback,
		chars:    m.chars,
		rayTypes: m.rayTypes,
	}
}

// build requests a specialized pipeline for mask. It is a no-op while any
// dependency is missing; the next GetPipeline retries.
func (m *Manager) build(mask Mask, assets AssetStore) {
	switch m.strategy {
	case StrategyNative:
		m.buildNative(mask, assets)
	default:
		m.buildWithLibraries(mask, assets)
	}
}

// Close drops every cached pipeline and library. Results of builds that
// are still running are disposed when they arrive. The manager must not be
// used afterwards.
func (m *Manager) Close() {
	m.dropEntries(func(Mask) bool { return true })
	m.base.drop()
	for i := range m.materials {
		m.materials[i].drop()
	}
}

// dropEntries removes every entry whose mask matches and returns how many
// were removed.
func (m *Manager) dropEntries(match func(Mask) bool) int {
	disposer := m.disposer
	removed := 0
	for mask, e := range m.entries {
		if !match(mask) {
			continue
		}
		e.pipeline.discard(func(p Pipeline) { disposer.DisposeWhenSafe(p) })
		delete(m.entries, mask)
		removed++
	}
	return removed
}
