package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gogpu/raypipe/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raypipe.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimal = `
[pipeline]
ray_type_count = 2

[shaders]
raygen = "primary.rgen"

[[materials]]
name = "diffuse"
closest_hit = ["diffuse.rchit"]
`

func TestLoadEmbeddedSample(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, source, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if source != config.EmbeddedSource {
		t.Fatalf("unexpected source: %q", source)
	}
	if len(cfg.Materials) != 3 {
		t.Fatalf("expected 3 sample materials, got %d", len(cfg.Materials))
	}
	if cfg.Pipeline.Strategy != "libraries" {
		t.Fatalf("unexpected strategy: %q", cfg.Pipeline.Strategy)
	}
	for i := 1; i < len(cfg.Script); i++ {
		if cfg.Script[i].Frame < cfg.Script[i-1].Frame {
			t.Fatalf("script not ordered by frame: %+v", cfg.Script)
		}
	}
	if cfg.Simulate.FrameInterval() != 16*time.Millisecond {
		t.Fatalf("unexpected frame interval: %v", cfg.Simulate.FrameInterval())
	}
}

func TestLoadProjectConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, "raypipe.toml"), []byte(minimal), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, source, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if filepath.Base(source) != "raypipe.toml" {
		t.Fatalf("expected project config, got %q", source)
	}
	if len(cfg.Materials) != 1 {
		t.Fatalf("expected 1 material, got %d", len(cfg.Materials))
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, _, err := config.Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	def := config.Default()
	if cfg.Pipeline.Label != def.Pipeline.Label {
		t.Fatalf("unexpected label: %q", cfg.Pipeline.Label)
	}
	if got := cfg.Pipeline.RayTypes; len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("expected all ray types by default, got %v", got)
	}
	if cfg.Dispose.FramesInFlight != def.Dispose.FramesInFlight {
		t.Fatalf("unexpected frames in flight: %d", cfg.Dispose.FramesInFlight)
	}
	if cfg.Materials[0].Type != "triangles" {
		t.Fatalf("expected triangles material type by default, got %q", cfg.Materials[0].Type)
	}
	if cfg.Shaders.MemoSize != def.Shaders.MemoSize {
		t.Fatalf("unexpected memo size: %d", cfg.Shaders.MemoSize)
	}
	if cfg.Simulate.Backend != "noop" {
		t.Fatalf("unexpected backend: %q", cfg.Simulate.Backend)
	}
	level, err := cfg.LogLevel()
	if err != nil || level != slog.LevelInfo {
		t.Fatalf("LogLevel() = %v, %v", level, err)
	}
}

func TestLoadExpandsPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	body := strings.Replace(minimal, `raygen = "primary.rgen"`,
		"raygen = \"primary.rgen\"\ndir = \"~/shaders\"\ndisk_cache = \"~/.cache/raypipe.db\"", 1)
	cfg, _, err := config.Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Shaders.Dir != filepath.Join(home, "shaders") {
		t.Fatalf("unexpected shader dir: %q", cfg.Shaders.Dir)
	}
	if cfg.Shaders.DiskCache != filepath.Join(home, ".cache", "raypipe.db") {
		t.Fatalf("unexpected disk cache path: %q", cfg.Shaders.DiskCache)
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	if _, _, err := config.Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, _, err := config.Load(writeConfig(t, minimal+"\n[bogus]\nvalue = 1\n"))
	if err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		wantErr string
	}{
		{"valid", "", ""},
		{"bad strategy", "[pipeline]\nstrategy = \"eager\"", "pipeline.strategy"},
		{"ray type out of range", "[pipeline]\nray_types = [0, 2]", "out of range"},
		{"ray types unordered", "[pipeline]\nray_types = [1, 0]", "ascending"},
		{"bad binding", "[[layout.bindings]]\ntype = \"sampler\"", "layout.bindings[0].type"},
		{"duplicate binding", "[[layout.bindings]]\ntype = \"uniform\"\n[[layout.bindings]]\ntype = \"storage\"", "declared twice"},
		{"duplicate material", "[[materials]]\nname = \"diffuse\"", "duplicate material"},
		{"procedural without intersection", "[[materials]]\nname = \"sphere\"\ntype = \"procedural\"", "intersection"},
		{"triangles with intersection", "[[materials]]\nname = \"tri\"\nintersection = \"x.rint\"", "intersection"},
		{"unknown material type", "[[materials]]\nname = \"odd\"\ntype = \"voxels\"", "must be triangles or procedural"},
		{"too many hit shaders", "[[materials]]\nname = \"many\"\nclosest_hit = [\"a\", \"b\", \"c\"]", "more hit shaders"},
		{"script frame out of range", "[[script]]\nframe = 99\naction = \"add\"\nmaterial = \"diffuse\"", "outside"},
		{"script unknown material", "[[script]]\naction = \"add\"\nmaterial = \"metal\"", "unknown material"},
		{"script reload without shader", "[[script]]\naction = \"reload\"", "needs a shader"},
		{"script bad action", "[[script]]\naction = \"explode\"", "must be add, remove or reload"},
		{"bad log format", "[logging]\nformat = \"xml\"", "logging.format"},
		{"bad log level", "[logging]\nlevel = \"loud\"", "logging.level"},
		{"negative workers", "[workers]\ncount = -1", "workers.count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := minimal
			if strings.HasPrefix(tt.extra, "[pipeline]") {
				body = strings.Replace(body, "[pipeline]", tt.extra, 1)
			} else {
				body += "\n" + tt.extra + "\n"
			}
			_, _, err := config.Load(writeConfig(t, body))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNoNullClosestHit(t *testing.T) {
	body := strings.Replace(minimal, "[pipeline]", "[pipeline]\nno_null_closest_hit = true", 1)
	_, _, err := config.Load(writeConfig(t, body))
	if err == nil || !strings.Contains(err.Error(), "no closest-hit shader for ray type 1") {
		t.Fatalf("expected missing closest-hit error, got %v", err)
	}
}

func TestCreateSampleLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "raypipe.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if string(data) != config.Sample() {
		t.Fatal("written sample differs from embedded sample")
	}
	cfg, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(sample) returned error: %v", err)
	}
	if _, ok := cfg.MaterialByName("sphere"); !ok {
		t.Fatal("sample is missing the sphere material")
	}
	if _, ok := cfg.MaterialByName("metal"); ok {
		t.Fatal("MaterialByName found a material that does not exist")
	}
}
