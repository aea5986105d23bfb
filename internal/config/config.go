package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// EmbeddedSource is the source reported by Load when no file was found and
// the embedded sample scenario was used.
const EmbeddedSource = "<embedded sample>"

// Pipeline describes the pipeline family being specialized.
type Pipeline struct {
	Label    string `toml:"label"`
	Strategy string `toml:"strategy"`

	// RayTypeCount is the number of global ray types materials provide
	// hit shaders for.
	RayTypeCount int `toml:"ray_type_count"`

	// RayTypes is the ascending subset of global ray types the pipeline
	// traces. Empty means all of them.
	RayTypes []uint32 `toml:"ray_types"`

	MaxRecursionDepth uint32 `toml:"max_recursion_depth"`
	NoNullClosestHit  bool   `toml:"no_null_closest_hit"`
}

// Workers configures the build worker pool.
type Workers struct {
	Count int `toml:"count"` // Default: 0 (GOMAXPROCS)
}

// Dispose configures deferred destruction of replaced pipelines.
type Dispose struct {
	FramesInFlight int `toml:"frames_in_flight"`
}

// Binding is one entry of the pipeline layout.
type Binding struct {
	Group   uint32 `toml:"group"`
	Binding uint32 `toml:"binding"`
	Type    string `toml:"type"` // uniform, storage or read_only_storage
}

// Layout describes the pipeline layout bindings.
type Layout struct {
	Bindings []Binding `toml:"bindings"`
}

// Shaders configures the shader store and the general pipeline stages.
type Shaders struct {
	// Dir holds shader files named by their handles. When empty the CLI
	// synthesizes SPIR-V for every handle.
	Dir string `toml:"dir"`

	RayGen   string   `toml:"raygen"`
	Miss     []string `toml:"miss"`
	Callable []string `toml:"callable"`

	// DiskCache is the sqlite file compiled WGSL is persisted in. Empty
	// disables it.
	DiskCache string `toml:"disk_cache"`
	MemoSize  int    `toml:"memo_size"`
}

// Material describes one material type.
type Material struct {
	Name string `toml:"name"`
	Type string `toml:"type"` // triangles or procedural

	// ClosestHit and AnyHit are indexed by global ray type. An empty
	// string leaves the stage unset for that ray type.
	ClosestHit []string `toml:"closest_hit"`
	AnyHit     []string `toml:"any_hit"`

	// Intersection is used for every ray type of a procedural material.
	Intersection string `toml:"intersection"`
}

// Simulate configures the simulate command.
type Simulate struct {
	Backend         string `toml:"backend"`
	Frames          int    `toml:"frames"`
	FrameIntervalMS int    `toml:"frame_interval_ms"`
}

// FrameInterval returns the delay between simulated frames.
func (s Simulate) FrameInterval() time.Duration {
	return time.Duration(s.FrameIntervalMS) * time.Millisecond
}

// Step actions.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionReload = "reload"
)

// Step is one scripted change applied at the start of a frame.
type Step struct {
	Frame    int    `toml:"frame"`
	Action   string `toml:"action"`
	Material string `toml:"material"`
	Count    int    `toml:"count"`
	Shader   string `toml:"shader"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"` // auto, text or json
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for raypipe.
//
// Configuration sections:
//   - Pipeline: strategy, ray types and creation parameters
//   - Workers: build worker pool size
//   - Dispose: frames in flight before replaced pipelines are destroyed
//   - Layout: pipeline layout bindings
//   - Shaders: shader directory, general stages and compile caches
//   - Materials: material types and their hit shaders
//   - Simulate: frame count and pacing for the simulate command
//   - Script: material and shader changes per frame
//   - Logging: log format and level
type Config struct {
	Pipeline  Pipeline   `toml:"pipeline"`
	Workers   Workers    `toml:"workers"`
	Dispose   Dispose    `toml:"dispose"`
	Layout    Layout     `toml:"layout"`
	Shaders   Shaders    `toml:"shaders"`
	Materials []Material `toml:"materials"`
	Simulate  Simulate   `toml:"simulate"`
	Script    []Step     `toml:"script"`
	Logging   Logging    `toml:"logging"`
}

// Load locates, parses, and validates a configuration. An explicit path
// must exist. Without one, raypipe.toml in the working directory is used
// if present, else the embedded sample scenario. Load returns the config
// and the source it was read from.
func Load(path string) (*Config, string, error) {
	cfg := Default()

	resolvedPath, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", err
	}

	if resolvedPath == "" {
		if err := toml.Unmarshal([]byte(sampleConfig), &cfg); err != nil {
			return nil, "", fmt.Errorf("parse embedded sample: %w", err)
		}
		resolvedPath = EmbeddedSource
	} else {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return &cfg, resolvedPath, nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(expanded); err != nil {
			return "", fmt.Errorf("stat config: %w", err)
		}
		return expanded, nil
	}

	projectPath, err := filepath.Abs(defaultProjectConfig)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(projectPath)
	switch {
	case err == nil && !info.IsDir():
		return projectPath, nil
	case err == nil, errors.Is(err, fs.ErrNotExist):
		return "", nil
	default:
		return "", fmt.Errorf("stat config: %w", err)
	}
}

// Sample returns the embedded sample configuration.
func Sample() string {
	return sampleConfig
}

// CreateSample writes the sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// MaterialByName returns the material with the given name.
func (c *Config) MaterialByName(name string) (Material, bool) {
	for _, m := range c.Materials {
		if m.Name == name {
			return m, true
		}
	}
	return Material{}, false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
