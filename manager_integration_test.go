package raypipe_test

import (
	"fmt"
	"hash/fnv"
	"testing"
	"time"

	"github.com/gogpu/raypipe"
	"github.com/gogpu/raypipe/assets"
	"github.com/gogpu/raypipe/backend/halrt"
	"github.com/gogpu/raypipe/internal/dispose"
	"github.com/gogpu/raypipe/internal/parallel"
)

// stack is a manager wired to the noop HAL device with the real worker
// pool, disposal queue and shader store.
type stack struct {
	rt       *halrt.Backend
	layout   *halrt.Layout
	modules  *halrt.ModuleCache
	pool     *parallel.WorkerPool
	disposer *dispose.Queue
	store    *assets.Store
	chars    *raypipe.Characteristics
}

const rayTypes = 2

func hitName(slot, rt int) raypipe.ShaderHandle {
	return raypipe.ShaderHandle(fmt.Sprintf("mat%d.rt%d.rchit", slot, rt))
}

// spirvFor returns a small module unique to name and version.
func spirvFor(name raypipe.ShaderHandle, version uint32) []uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return []uint32{0x07230203, 0x00010500, 0, 1, 0, h.Sum32(), version}
}

func newStack(t *testing.T) *stack {
	t.Helper()
	dev, err := halrt.OpenNoop()
	if err != nil {
		t.Fatalf("OpenNoop: %v", err)
	}
	t.Cleanup(dev.Close)

	s := &stack{}
	if s.rt, err = halrt.New(dev.HAL, halrt.WithModuleConcurrency(2)); err != nil {
		t.Fatalf("halrt.New: %v", err)
	}
	if s.layout, err = s.rt.CreateLayout(halrt.LayoutDesc{Label: "integration"}); err != nil {
		t.Fatalf("CreateLayout: %v", err)
	}
	s.modules = s.rt.NewModuleCache()
	s.pool = parallel.NewWorkerPool(4)
	s.disposer = dispose.New(dispose.DefaultFramesInFlight)
	s.store = assets.NewStore()
	t.Cleanup(func() {
		s.pool.Close()
		s.disposer.Flush()
		s.modules.DestroyAll()
		s.layout.Destroy()
	})

	// Slot 1 is procedural; slots 0 and 2 hit triangles.
	isect := raypipe.NewShader("mat1.rint", raypipe.StageIntersection)
	descs := make([]raypipe.MaterialDesc, 3)
	for slot := range descs {
		d := raypipe.MaterialDesc{ID: raypipe.MaterialID(fmt.Sprintf("mat%d", slot))}
		if slot == 1 {
			d.Type = raypipe.MaterialProcedural
		}
		for rt := range rayTypes {
			chit := raypipe.NewShader(hitName(slot, rt), raypipe.StageClosestHit)
			g := raypipe.Hitgroup{ClosestHit: &chit}
			if slot == 1 {
				g.Intersection = &isect
			}
			d.Hitgroups = append(d.Hitgroups, g)
		}
		descs[slot] = d
	}
	s.chars, err = raypipe.NewCharacteristics(s.layout, rayTypes, raypipe.CreateInfo{Label: "integration"}, descs...)
	if err != nil {
		t.Fatalf("NewCharacteristics: %v", err)
	}

	handles := []raypipe.ShaderHandle{"primary.rgen", "sky.rmiss", "mat1.rint"}
	for slot := range 3 {
		for rt := range rayTypes {
			handles = append(handles, hitName(slot, rt))
		}
	}
	for _, h := range handles {
		if _, err := s.store.InsertSPIRV(h, spirvFor(h, 0)); err != nil {
			t.Fatalf("InsertSPIRV(%s): %v", h, err)
		}
	}
	return s
}

func (s *stack) manager(t *testing.T, strategy raypipe.Strategy) *raypipe.Manager {
	t.Helper()
	m, err := raypipe.NewManager(s.chars, s.rt, []uint32{0, 1},
		raypipe.NewShader("primary.rgen", raypipe.StageRayGen),
		raypipe.WithStrategy(strategy),
		raypipe.WithScheduler(s.pool),
		raypipe.WithDisposer(s.disposer),
		raypipe.WithPipelineCache(s.modules),
		raypipe.WithMissShaders(raypipe.NewShader("sky.rmiss", raypipe.StageMiss)),
	)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func setMask(m *raypipe.Manager, mask raypipe.Mask) {
	for slot := range m.Characteristics().MaterialCount() {
		have := m.MaterialInstanceCount(slot) > 0
		switch want := mask.Has(slot); {
		case want && !have:
			m.MaterialInstanceAdded(slot)
		case !want && have:
			m.MaterialInstanceRemoved(slot)
		}
	}
}

// waitExact polls until the manager returns the pipeline built for the
// active mask.
func waitExact(t *testing.T, m *raypipe.Manager, store raypipe.AssetStore) *raypipe.SpecializedPipeline {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		v := m.GetPipeline(store)
		if v != nil && !v.IsFallback() && v.Mask() == m.ActiveMask() {
			return v
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no pipeline for mask %s: %+v", m.ActiveMask(), m.Snapshot())
	return nil
}

func TestIntegrationHitgroupLayout(t *testing.T) {
	s := newStack(t)
	for _, strategy := range []raypipe.Strategy{raypipe.StrategyLibraries, raypipe.StrategyNative} {
		t.Run(strategy.String(), func(t *testing.T) {
			m := s.manager(t, strategy)
			for mask := raypipe.Mask(1); mask < 8; mask++ {
				setMask(m, mask)
				v := waitExact(t, m, s.store)

				p := v.Pipeline().(*halrt.Pipeline)
				if want := mask.Count() * rayTypes; p.HitgroupCount() != want {
					t.Fatalf("mask %s: HitgroupCount() = %d, want %d", mask, p.HitgroupCount(), want)
				}
				for _, slot := range mask.Slots() {
					wantKind := halrt.GroupTriangles
					if slot == 1 {
						wantKind = halrt.GroupProcedural
					}
					for rt := range uint32(rayTypes) {
						idx := v.HitgroupIndex(slot, rt)
						if got := p.HitgroupKind(int(idx)); got != wantKind {
							t.Errorf("mask %s slot %d ray type %d: kind %v, want %v", mask, slot, rt, got, wantKind)
						}
						if rec := v.SBTRecord(slot, rt); len(rec) != halrt.HandleSize {
							t.Errorf("mask %s slot %d ray type %d: record has %d bytes", mask, slot, rt, len(rec))
						}
					}
				}
			}
		})
	}

	hits, _ := s.modules.Stats()
	if hits == 0 {
		t.Error("module cache was never hit across builds")
	}
}

func TestIntegrationShaderReload(t *testing.T) {
	s := newStack(t)
	m := s.manager(t, raypipe.StrategyLibraries)

	m.MaterialInstanceAdded(0)
	before := waitExact(t, m, s.store).Pipeline()

	h := hitName(0, 1)
	if _, err := s.store.InsertSPIRV(h, spirvFor(h, 1)); err != nil {
		t.Fatalf("InsertSPIRV: %v", err)
	}
	for _, r := range s.store.Reloaded() {
		m.ShaderUpdated(r)
	}

	after := waitExact(t, m, s.store).Pipeline()
	if after == before {
		t.Fatal("pipeline was not rebuilt after the shader reload")
	}
	if s.disposer.Pending() == 0 {
		t.Fatal("replaced pipeline was not queued for disposal")
	}

	for range dispose.DefaultFramesInFlight + 1 {
		s.disposer.Advance()
	}
	if s.disposer.Destroyed() == 0 {
		t.Error("replaced pipeline was never destroyed")
	}
}
