package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/raypipe"
	"github.com/gogpu/raypipe/assets"
	"github.com/gogpu/raypipe/backend"
	"github.com/gogpu/raypipe/backend/halrt"
	"github.com/gogpu/raypipe/internal/config"
	"github.com/gogpu/raypipe/internal/dispose"
	"github.com/gogpu/raypipe/internal/parallel"
)

// scene wires a manager to the HAL backend, worker pool, disposal queue
// and shader store described by a config.
type scene struct {
	cfg      *config.Config
	device   *backend.Device
	rt       *halrt.Backend
	layout   *halrt.Layout
	modules  *halrt.ModuleCache
	pool     *parallel.WorkerPool
	disposer *dispose.Queue
	disk     *assets.DiskCache
	store    *assets.Store
	manager  *raypipe.Manager

	// loads holds shader file loads that have not been checked yet.
	loads map[raypipe.ShaderHandle]*raypipe.Deferred[*raypipe.ShaderCode]

	// generation counts synthetic reloads per handle.
	generation map[raypipe.ShaderHandle]uint32

	// stale holds the code hashes replaced by reloads, evicted from the
	// module cache once the manager has seen the reload.
	stale []uint64
}

func openScene(cfg *config.Config) (_ *scene, err error) {
	s := &scene{
		cfg:        cfg,
		loads:      make(map[raypipe.ShaderHandle]*raypipe.Deferred[*raypipe.ShaderCode]),
		generation: make(map[raypipe.ShaderHandle]uint32),
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if s.device, err = backend.Open(cfg.Simulate.Backend); err != nil {
		return nil, err
	}
	if s.rt, err = halrt.New(s.device.HAL); err != nil {
		return nil, err
	}
	if s.layout, err = s.rt.CreateLayout(layoutDesc(cfg)); err != nil {
		return nil, err
	}
	s.modules = s.rt.NewModuleCache()
	s.pool = parallel.NewWorkerPool(cfg.Workers.Count)
	s.disposer = dispose.New(cfg.Dispose.FramesInFlight)

	storeOpts := []assets.Option{assets.WithMemoSize(cfg.Shaders.MemoSize)}
	if cfg.Shaders.DiskCache != "" {
		if s.disk, err = assets.OpenDiskCache(cfg.Shaders.DiskCache); err != nil {
			return nil, err
		}
		storeOpts = append(storeOpts, assets.WithDiskCache(s.disk))
	}
	s.store = assets.NewStore(storeOpts...)

	chars, err := characteristics(cfg, s.layout)
	if err != nil {
		return nil, err
	}
	strategy, err := raypipe.ParseStrategy(cfg.Pipeline.Strategy)
	if err != nil {
		return nil, err
	}
	s.manager, err = raypipe.NewManager(chars, s.rt, cfg.Pipeline.RayTypes,
		raypipe.NewShader(raypipe.ShaderHandle(cfg.Shaders.RayGen), raypipe.StageRayGen),
		raypipe.WithStrategy(strategy),
		raypipe.WithScheduler(s.pool),
		raypipe.WithDisposer(s.disposer),
		raypipe.WithPipelineCache(s.modules),
		raypipe.WithMissShaders(shaders(cfg.Shaders.Miss, raypipe.StageMiss)...),
		raypipe.WithCallableShaders(shaders(cfg.Shaders.Callable, raypipe.StageCallable)...),
	)
	if err != nil {
		return nil, err
	}

	for _, h := range shaderHandles(cfg) {
		if err := s.load(h); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// load makes h available in the store. Synthetic shaders are inserted
// immediately; files are read on the worker pool.
func (s *scene) load(h raypipe.ShaderHandle) error {
	if s.cfg.Shaders.Dir == "" {
		_, err := s.store.InsertSPIRV(h, synthSPIRV(h, s.generation[h]))
		return err
	}
	s.loads[h] = s.store.LoadFile(s.pool, h, filepath.Join(s.cfg.Shaders.Dir, string(h)))
	return nil
}

// reload replaces the code behind h. Synthetic shaders get a new
// generation so the bytecode actually changes.
func (s *scene) reload(h raypipe.ShaderHandle) error {
	if code, ok := s.store.Lookup(h); ok {
		s.stale = append(s.stale, code.Hash)
	}
	s.generation[h]++
	return s.load(h)
}

// checkLoads reports finished file loads and returns the first failure.
func (s *scene) checkLoads() error {
	var errs []error
	for h, d := range s.loads {
		switch d.State() {
		case raypipe.Ready:
			delete(s.loads, h)
		case raypipe.Failed:
			delete(s.loads, h)
			errs = append(errs, d.Err())
		}
	}
	return errors.Join(errs...)
}

// applyStep performs one scripted change.
func (s *scene) applyStep(step config.Step) error {
	switch step.Action {
	case config.ActionAdd:
		for range step.Count {
			s.manager.MaterialInstanceAddedByID(raypipe.MaterialID(step.Material))
		}
	case config.ActionRemove:
		id := raypipe.MaterialID(step.Material)
		slot, _ := s.manager.Characteristics().SlotOf(id)
		if n := s.manager.MaterialInstanceCount(slot); n < step.Count {
			return fmt.Errorf("frame %d: cannot remove %d instances of %q, only %d active",
				step.Frame, step.Count, step.Material, n)
		}
		for range step.Count {
			s.manager.MaterialInstanceRemovedByID(id)
		}
	case config.ActionReload:
		return s.reload(raypipe.ShaderHandle(step.Shader))
	default:
		return fmt.Errorf("frame %d: unknown action %q", step.Frame, step.Action)
	}
	return nil
}

// propagateReloads forwards store reloads to the manager and evicts the
// replaced modules from the module cache.
func (s *scene) propagateReloads() []raypipe.ShaderHandle {
	reloaded := s.store.Reloaded()
	for _, h := range reloaded {
		s.manager.ShaderUpdated(h)
	}
	if len(reloaded) > 0 {
		for _, hash := range s.stale {
			s.modules.Evict(hash)
		}
		s.stale = s.stale[:0]
	}
	return reloaded
}

// Close tears the scene down in dependency order. In-flight builds finish
// before their results are destroyed.
func (s *scene) Close() {
	if s.manager != nil {
		s.manager.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	if s.disposer != nil {
		s.disposer.Flush()
	}
	if s.modules != nil {
		s.modules.DestroyAll()
	}
	if s.layout != nil {
		s.layout.Destroy()
	}
	if s.disk != nil {
		if err := s.disk.Close(); err != nil {
			raypipe.Logger().Warn("close shader cache", "err", err)
		}
	}
	s.device.Close()
}

func layoutDesc(cfg *config.Config) halrt.LayoutDesc {
	desc := halrt.LayoutDesc{Label: cfg.Pipeline.Label}
	for _, b := range cfg.Layout.Bindings {
		for int(b.Group) >= len(desc.Groups) {
			desc.Groups = append(desc.Groups, nil)
		}
		desc.Groups[b.Group] = append(desc.Groups[b.Group], gputypes.BindGroupLayoutEntry{
			Binding:    b.Binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer: &gputypes.BufferBindingLayout{
				Type: bufferBindingType(b.Type),
			},
		})
	}
	for _, entries := range desc.Groups {
		slices.SortFunc(entries, func(a, b gputypes.BindGroupLayoutEntry) int {
			return int(a.Binding) - int(b.Binding)
		})
	}
	return desc
}

func bufferBindingType(name string) gputypes.BufferBindingType {
	switch name {
	case "storage":
		return gputypes.BufferBindingTypeStorage
	case "read_only_storage":
		return gputypes.BufferBindingTypeReadOnlyStorage
	default:
		return gputypes.BufferBindingTypeUniform
	}
}

func characteristics(cfg *config.Config, layout raypipe.Layout) (*raypipe.Characteristics, error) {
	info := raypipe.CreateInfo{
		Label:             cfg.Pipeline.Label,
		MaxRecursionDepth: cfg.Pipeline.MaxRecursionDepth,
	}
	if cfg.Pipeline.NoNullClosestHit {
		info.Flags |= raypipe.FlagNoNullClosestHit
	}

	descs := make([]raypipe.MaterialDesc, len(cfg.Materials))
	for i, m := range cfg.Materials {
		typ := raypipe.MaterialTriangles
		if m.Type == "procedural" {
			typ = raypipe.MaterialProcedural
		}
		groups := make([]raypipe.Hitgroup, cfg.Pipeline.RayTypeCount)
		for rt := range groups {
			g := &groups[rt]
			g.ClosestHit = shaderAt(m.ClosestHit, rt, raypipe.StageClosestHit)
			g.AnyHit = shaderAt(m.AnyHit, rt, raypipe.StageAnyHit)
			if typ == raypipe.MaterialProcedural && !g.IsEmpty() {
				isect := raypipe.NewShader(raypipe.ShaderHandle(m.Intersection), raypipe.StageIntersection)
				g.Intersection = &isect
			}
		}
		descs[i] = raypipe.MaterialDesc{ID: raypipe.MaterialID(m.Name), Type: typ, Hitgroups: groups}
	}
	return raypipe.NewCharacteristics(layout, cfg.Pipeline.RayTypeCount, info, descs...)
}

func shaderAt(names []string, i int, stage raypipe.ShaderStage) *raypipe.SpecializedShader {
	if i >= len(names) || names[i] == "" {
		return nil
	}
	s := raypipe.NewShader(raypipe.ShaderHandle(names[i]), stage)
	return &s
}

func shaders(names []string, stage raypipe.ShaderStage) []raypipe.SpecializedShader {
	out := make([]raypipe.SpecializedShader, len(names))
	for i, n := range names {
		out[i] = raypipe.NewShader(raypipe.ShaderHandle(n), stage)
	}
	return out
}

// shaderHandles returns every shader the config references, sorted.
func shaderHandles(cfg *config.Config) []raypipe.ShaderHandle {
	set := map[raypipe.ShaderHandle]struct{}{raypipe.ShaderHandle(cfg.Shaders.RayGen): {}}
	add := func(names ...string) {
		for _, n := range names {
			if n != "" {
				set[raypipe.ShaderHandle(n)] = struct{}{}
			}
		}
	}
	add(cfg.Shaders.Miss...)
	add(cfg.Shaders.Callable...)
	for _, m := range cfg.Materials {
		add(m.ClosestHit...)
		add(m.AnyHit...)
		add(m.Intersection)
	}
	out := make([]raypipe.ShaderHandle, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// synthSPIRV returns a header-only SPIR-V module whose content is derived
// from the handle and generation.
func synthSPIRV(h raypipe.ShaderHandle, generation uint32) []uint32 {
	f := fnv.New64a()
	_, _ = f.Write([]byte(h))
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], generation)
	_, _ = f.Write(buf[:])
	sum := f.Sum64()
	return []uint32{
		0x07230203, // magic
		0x00010500, // version 1.5
		0x52415950, // generator
		1,          // bound
		0,          // schema
		uint32(sum), uint32(sum >> 32), generation,
	}
}

// waitLoads blocks until every pending shader file load has finished.
func (s *scene) waitLoads(ctx context.Context) error {
	for _, d := range s.loads {
		if _, err := d.Wait(ctx); err != nil && ctx.Err() != nil {
			return err
		}
	}
	return s.checkLoads()
}
