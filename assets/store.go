package assets

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gogpu/raypipe"
	"github.com/gogpu/raypipe/internal/cache"
)

// DefaultMemoSize is the number of compiled WGSL modules kept in memory.
const DefaultMemoSize = 256

var logger atomic.Pointer[slog.Logger]

func init() {
	raypipe.OnLoggerChange(func(l *slog.Logger) { logger.Store(l) })
}

// Option configures a Store.
type Option func(*Store)

// WithDiskCache persists compiled WGSL in dc. The store does not own dc;
// the caller closes it.
func WithDiskCache(dc *DiskCache) Option {
	return func(s *Store) {
		s.disk = dc
	}
}

// WithMemoSize sets the number of compiled WGSL modules kept in memory.
func WithMemoSize(n int) Option {
	return func(s *Store) {
		s.memo = cache.New[uint64, []uint32](n)
	}
}

// Store holds the compiled code of every loaded shader. It implements
// raypipe.AssetStore.
//
// Store is safe for concurrent use: the frame thread looks shaders up
// while background loads insert them.
type Store struct {
	mu       sync.RWMutex
	shaders  map[raypipe.ShaderHandle]*raypipe.ShaderCode
	reloaded []raypipe.ShaderHandle
	bytes    int

	memo *cache.Cache[uint64, []uint32]
	disk *DiskCache
}

var _ raypipe.AssetStore = (*Store)(nil)

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		shaders: make(map[raypipe.ShaderHandle]*raypipe.ShaderCode),
		memo:    cache.New[uint64, []uint32](DefaultMemoSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lookup returns the code of a loaded shader.
func (s *Store) Lookup(h raypipe.ShaderHandle) (*raypipe.ShaderCode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	code, ok := s.shaders[h]
	return code, ok
}

// InsertSPIRV stores SPIR-V words under h. If h was already loaded with
// different code, h is recorded as reloaded.
func (s *Store) InsertSPIRV(h raypipe.ShaderHandle, words []uint32) (*raypipe.ShaderCode, error) {
	if err := validate(words); err != nil {
		return nil, fmt.Errorf("shader %q: %w", h, err)
	}
	code := &raypipe.ShaderCode{
		SPIRV: slices.Clone(words),
		Hash:  hashWords(words),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.shaders[h]; ok {
		if old.Hash == code.Hash {
			return old, nil
		}
		s.bytes -= len(old.SPIRV) * 4
		s.markReloaded(h)
		logger.Load().Debug("shader reloaded", "shader", h)
	}
	s.shaders[h] = code
	s.bytes += len(code.SPIRV) * 4
	return code, nil
}

// InsertSPIRVBytes stores a little-endian SPIR-V binary under h.
func (s *Store) InsertSPIRVBytes(h raypipe.ShaderHandle, b []byte) (*raypipe.ShaderCode, error) {
	words, err := wordsFromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", h, err)
	}
	return s.InsertSPIRV(h, words)
}

// CompileWGSL compiles src with naga and stores the result under h.
// Results are memoized by source hash in memory and, if configured, on
// disk.
func (s *Store) CompileWGSL(h raypipe.ShaderHandle, src string) (*raypipe.ShaderCode, error) {
	key := hashSource(src)
	words, err := s.memo.GetOrCreate(key, func() ([]uint32, error) {
		return s.compileCached(key, src)
	})
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", h, err)
	}
	return s.InsertSPIRV(h, words)
}

func (s *Store) compileCached(key uint64, src string) ([]uint32, error) {
	ctx := context.Background()
	if s.disk != nil {
		words, ok, err := s.disk.Get(ctx, key)
		if err != nil {
			logger.Load().Warn("shader cache read failed", "err", err)
		} else if ok {
			return words, nil
		}
	}

	words, err := compileWGSL(src)
	if err != nil {
		return nil, err
	}
	if s.disk != nil {
		if err := s.disk.Put(ctx, key, words); err != nil {
			logger.Load().Warn("shader cache write failed", "err", err)
		}
	}
	return words, nil
}

// Load reads the shader file at path and stores it under h. Files ending
// in .wgsl are compiled; anything else is treated as a SPIR-V binary.
func (s *Store) Load(h raypipe.ShaderHandle, path string) (*raypipe.ShaderCode, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load shader %q: %w", h, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".wgsl") {
		return s.CompileWGSL(h, string(b))
	}
	return s.InsertSPIRVBytes(h, b)
}

// LoadFile loads path on sched and returns a handle to the result. The
// shader becomes visible to Lookup as soon as the load finishes.
func (s *Store) LoadFile(sched raypipe.Scheduler, h raypipe.ShaderHandle, path string) *raypipe.Deferred[*raypipe.ShaderCode] {
	return raypipe.Spawn(sched, func() (*raypipe.ShaderCode, error) {
		code, err := s.Load(h, path)
		if err != nil {
			logger.Load().Warn("shader load failed", "shader", h, "path", path, "err", err)
			return nil, err
		}
		logger.Load().Debug("shader loaded", "shader", h, "path", path, "words", len(code.SPIRV))
		return code, nil
	})
}

// Remove unloads h and reports whether it was loaded. A removed handle is
// recorded as reloaded so pipelines built from its code get invalidated.
func (s *Store) Remove(h raypipe.ShaderHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.shaders[h]
	if !ok {
		return false
	}
	s.bytes -= len(old.SPIRV) * 4
	delete(s.shaders, h)
	s.markReloaded(h)
	return true
}

func (s *Store) markReloaded(h raypipe.ShaderHandle) {
	if !slices.Contains(s.reloaded, h) {
		s.reloaded = append(s.reloaded, h)
	}
}

// Reloaded returns the handles whose code was replaced since the last call,
// in replacement order, and clears the list.
func (s *Store) Reloaded() []raypipe.ShaderHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.reloaded
	s.reloaded = nil
	return out
}

// Len returns the number of loaded shaders.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.shaders)
}

// Bytes returns the total size of the loaded SPIR-V.
func (s *Store) Bytes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bytes
}

// Handles returns the loaded handles in sorted order.
func (s *Store) Handles() []raypipe.ShaderHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.shaders))
}

// CompileStats reports the in-memory WGSL compile memo.
type CompileStats struct {
	Cached int
	Hits   uint64
	Misses uint64
}

// CompileStats returns the statistics of the in-memory compile memo.
func (s *Store) CompileStats() CompileStats {
	st := s.memo.Stats()
	return CompileStats{Cached: st.Len, Hits: st.Hits, Misses: st.Misses}
}
