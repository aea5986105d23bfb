package raypipe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

// manualScheduler queues submitted work until the test runs it.
type manualScheduler struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
}

func (s *manualScheduler) Submit(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("closed")
	}
	s.queue = append(s.queue, fn)
	return nil
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *manualScheduler) take(i int) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn := s.queue[i]
	s.queue = append(s.queue[:i], s.queue[i+1:]...)
	return fn
}

// runAll runs queued work in submission order until the queue is empty.
func (s *manualScheduler) runAll() {
	for s.pending() > 0 {
		s.take(0)()
	}
}

// runLast runs only the most recently submitted work item.
func (s *manualScheduler) runLast() {
	s.take(s.pending() - 1)()
}

// mapStore is an AssetStore backed by a map.
type mapStore map[ShaderHandle]*ShaderCode

func (s mapStore) Lookup(h ShaderHandle) (*ShaderCode, bool) {
	code, ok := s[h]
	return code, ok
}

func (s mapStore) load(handles ...ShaderHandle) {
	for i, h := range handles {
		s[h] = &ShaderCode{SPIRV: []uint32{0x07230203, uint32(i)}, Hash: uint64(len(h))}
	}
}

type fakeLayout struct{ label string }

func (l fakeLayout) Label() string { return l.label }

type fakeLibrary struct {
	stages    []string
	hitgroups []string
	destroyed atomic.Bool
}

func (l *fakeLibrary) Destroy()           { l.destroyed.Store(true) }
func (l *fakeLibrary) HitgroupCount() int { return len(l.hitgroups) }

type fakePipeline struct {
	layout    Layout
	stages    []string
	hitgroups []string
	destroyed atomic.Bool
}

func (p *fakePipeline) Destroy()                    { p.destroyed.Store(true) }
func (p *fakePipeline) Layout() Layout              { return p.layout }
func (p *fakePipeline) HitgroupCount() int          { return len(p.hitgroups) }
func (p *fakePipeline) HitgroupHandle(i int) []byte { return []byte(p.hitgroups[i]) }

// fakeBackend names every hit group after its closest-hit shader so tests
// can check which hit group a binding-table lookup lands on.
type fakeBackend struct {
	mu        sync.Mutex
	libraries []*fakeLibrary
	pipelines []*fakePipeline

	baseBuilds     atomic.Int32
	materialBuilds atomic.Int32
	links          atomic.Int32
	natives        atomic.Int32

	// fail, if set, is consulted before every build. kind is one of
	// "base", "material", "link", "native"; key is the first hit group
	// name or the number of libraries for links.
	fail func(kind, key string) error
}

func (b *fakeBackend) check(kind, key string) error {
	b.mu.Lock()
	fail := b.fail
	b.mu.Unlock()
	if fail != nil {
		return fail(kind, key)
	}
	return nil
}

func (b *fakeBackend) setFail(fn func(kind, key string) error) {
	b.mu.Lock()
	b.fail = fn
	b.mu.Unlock()
}

func groupName(g HitgroupDesc) string {
	if g.ClosestHit == nil {
		return "<null>"
	}
	return string(g.ClosestHit.Shader)
}

func stageNames(stages []ResolvedShader) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = string(s.Shader)
	}
	return out
}

func (b *fakeBackend) CreateLibraryForShaders(_ context.Context, _ Layout, stages []ResolvedShader, _ CreateInfo, _ PipelineCache) (Library, error) {
	b.baseBuilds.Add(1)
	if err := b.check("base", ""); err != nil {
		return nil, err
	}
	lib := &fakeLibrary{stages: stageNames(stages)}
	b.mu.Lock()
	b.libraries = append(b.libraries, lib)
	b.mu.Unlock()
	return lib, nil
}

func (b *fakeBackend) CreateLibraryForHitgroups(_ context.Context, _ Layout, groups []HitgroupDesc, _ CreateInfo, _ PipelineCache) (Library, error) {
	b.materialBuilds.Add(1)
	lib := &fakeLibrary{}
	for _, g := range groups {
		lib.hitgroups = append(lib.hitgroups, groupName(g))
	}
	key := ""
	if len(lib.hitgroups) > 0 {
		key = lib.hitgroups[0]
	}
	if err := b.check("material", key); err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.libraries = append(b.libraries, lib)
	b.mu.Unlock()
	return lib, nil
}

func (b *fakeBackend) LinkLibraries(_ context.Context, layout Layout, libs []Library, _ CreateInfo, _ PipelineCache) (Pipeline, error) {
	b.links.Add(1)
	if err := b.check("link", fmt.Sprint(len(libs))); err != nil {
		return nil, err
	}
	p := &fakePipeline{layout: layout}
	for _, l := range libs {
		fl := l.(*fakeLibrary)
		if fl.destroyed.Load() {
			return nil, errors.New("link: library already destroyed")
		}
		p.stages = append(p.stages, fl.stages...)
		p.hitgroups = append(p.hitgroups, fl.hitgroups...)
	}
	b.mu.Lock()
	b.pipelines = append(b.pipelines, p)
	b.mu.Unlock()
	return p, nil
}

func (b *fakeBackend) CreatePipeline(_ context.Context, layout Layout, stages []ResolvedShader, groups []HitgroupDesc, _ CreateInfo, _ PipelineCache) (Pipeline, error) {
	b.natives.Add(1)
	if err := b.check("native", fmt.Sprint(len(groups))); err != nil {
		return nil, err
	}
	p := &fakePipeline{layout: layout, stages: stageNames(stages)}
	for _, g := range groups {
		p.hitgroups = append(p.hitgroups, groupName(g))
	}
	b.mu.Lock()
	b.pipelines = append(b.pipelines, p)
	b.mu.Unlock()
	return p, nil
}

// libraryWith returns the most recent library whose first hit group is name.
func (b *fakeBackend) libraryWith(name string) *fakeLibrary {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.libraries) - 1; i >= 0; i-- {
		l := b.libraries[i]
		if len(l.hitgroups) > 0 && l.hitgroups[0] == name {
			return l
		}
	}
	return nil
}

const (
	raygenShader ShaderHandle = "primary.rgen"
	missShader   ShaderHandle = "sky.rmiss"
	shadowMiss   ShaderHandle = "shadow.rmiss"
)

// hitShader names the closest-hit shader of material slot for ray type rt.
func hitShader(slot int, rt uint32) ShaderHandle {
	return ShaderHandle(fmt.Sprintf("mat%d.rt%d.rchit", slot, rt))
}

type fixture struct {
	t         *testing.T
	chars     *Characteristics
	backend   *fakeBackend
	scheduler *manualScheduler
	store     mapStore
	mgr       *Manager
}

// newFixture creates a manager with the given number of triangle materials
// and ray types. Every material has a distinct closest-hit shader per ray
// type and every shader is loaded.
func newFixture(t *testing.T, materials, rayTypes int, opts ...ManagerOption) *fixture {
	t.Helper()

	descs := make([]MaterialDesc, materials)
	store := mapStore{}
	store.load(raygenShader, missShader, shadowMiss)
	for i := range descs {
		groups := make([]Hitgroup, rayTypes)
		for rt := range groups {
			h := hitShader(i, uint32(rt))
			store.load(h)
			s := NewShader(h, StageClosestHit)
			groups[rt] = Hitgroup{ClosestHit: &s}
		}
		descs[i] = MaterialDesc{ID: MaterialID(fmt.Sprintf("mat%d", i)), Hitgroups: groups}
	}

	chars, err := NewCharacteristics(fakeLayout{"test"}, rayTypes, CreateInfo{MaxRecursionDepth: 2}, descs...)
	if err != nil {
		t.Fatalf("NewCharacteristics: %v", err)
	}

	rts := make([]uint32, rayTypes)
	for i := range rts {
		rts[i] = uint32(i)
	}

	f := &fixture{
		t:         t,
		chars:     chars,
		backend:   &fakeBackend{},
		scheduler: &manualScheduler{},
		store:     store,
	}
	opts = append([]ManagerOption{
		WithScheduler(f.scheduler),
		WithMissShaders(NewShader(missShader, StageMiss), NewShader(shadowMiss, StageMiss)),
	}, opts...)
	f.mgr, err = NewManager(chars, f.backend, rts, NewShader(raygenShader, StageRayGen), opts...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return f
}

func (f *fixture) get() *SpecializedPipeline {
	return f.mgr.GetPipeline(f.store)
}

// settle alternates polling and running work until nothing is left to run.
func (f *fixture) settle() *SpecializedPipeline {
	for i := 0; i < 16; i++ {
		p := f.get()
		if f.scheduler.pending() == 0 {
			return p
		}
		f.scheduler.runAll()
	}
	f.t.Fatal("builds did not settle")
	return nil
}

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}

func rangesEqual(got []HitgroupRange, want map[int]uint32) bool {
	if len(got) != len(want) {
		return false
	}
	for _, r := range got {
		if base, ok := want[r.Slot]; !ok || base != r.Base {
			return false
		}
	}
	return true
}
