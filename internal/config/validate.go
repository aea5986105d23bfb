package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/raypipe"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateLayout(); err != nil {
		return err
	}
	if err := c.validateShaders(); err != nil {
		return err
	}
	if err := c.validateMaterials(); err != nil {
		return err
	}
	if err := c.validateSimulate(); err != nil {
		return err
	}
	if err := c.validateScript(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if _, err := raypipe.ParseStrategy(p.Strategy); err != nil {
		return fmt.Errorf("pipeline.strategy: %w", err)
	}
	if p.RayTypeCount < 1 {
		return errors.New("pipeline.ray_type_count must be at least 1")
	}
	for i, rt := range p.RayTypes {
		if int(rt) >= p.RayTypeCount {
			return fmt.Errorf("pipeline.ray_types[%d] = %d is out of range for %d ray types", i, rt, p.RayTypeCount)
		}
		if i > 0 && rt <= p.RayTypes[i-1] {
			return errors.New("pipeline.ray_types must be strictly ascending")
		}
	}
	if c.Workers.Count < 0 {
		return errors.New("workers.count must be non-negative")
	}
	if c.Dispose.FramesInFlight < 1 {
		return errors.New("dispose.frames_in_flight must be at least 1")
	}
	return nil
}

func (c *Config) validateLayout() error {
	type slot struct{ group, binding uint32 }
	seen := make(map[slot]bool, len(c.Layout.Bindings))
	for i, b := range c.Layout.Bindings {
		switch b.Type {
		case "uniform", "storage", "read_only_storage":
		default:
			return fmt.Errorf("layout.bindings[%d].type %q must be uniform, storage or read_only_storage", i, b.Type)
		}
		key := slot{b.Group, b.Binding}
		if seen[key] {
			return fmt.Errorf("layout.bindings[%d]: group %d binding %d is declared twice", i, b.Group, b.Binding)
		}
		seen[key] = true
	}
	return nil
}

func (c *Config) validateShaders() error {
	if c.Shaders.RayGen == "" {
		return errors.New("shaders.raygen must be set")
	}
	for i, m := range c.Shaders.Miss {
		if m == "" {
			return fmt.Errorf("shaders.miss[%d] is empty", i)
		}
	}
	for i, s := range c.Shaders.Callable {
		if s == "" {
			return fmt.Errorf("shaders.callable[%d] is empty", i)
		}
	}
	if c.Shaders.MemoSize < 0 {
		return errors.New("shaders.memo_size must be non-negative")
	}
	return nil
}

func (c *Config) validateMaterials() error {
	if len(c.Materials) > raypipe.MaxMaterials {
		return fmt.Errorf("at most %d materials are supported, got %d", raypipe.MaxMaterials, len(c.Materials))
	}
	names := make(map[string]bool, len(c.Materials))
	for i, m := range c.Materials {
		if m.Name == "" {
			return fmt.Errorf("materials[%d].name must be set", i)
		}
		if names[m.Name] {
			return fmt.Errorf("materials[%d]: duplicate material %q", i, m.Name)
		}
		names[m.Name] = true

		if len(m.ClosestHit) > c.Pipeline.RayTypeCount || len(m.AnyHit) > c.Pipeline.RayTypeCount {
			return fmt.Errorf("material %q lists more hit shaders than the %d ray types", m.Name, c.Pipeline.RayTypeCount)
		}
		switch m.Type {
		case "triangles":
			if m.Intersection != "" {
				return fmt.Errorf("triangle material %q cannot have an intersection shader", m.Name)
			}
		case "procedural":
			if m.Intersection == "" {
				return fmt.Errorf("procedural material %q needs an intersection shader", m.Name)
			}
		default:
			return fmt.Errorf("material %q: type %q must be triangles or procedural", m.Name, m.Type)
		}
		if c.Pipeline.NoNullClosestHit {
			for _, rt := range c.Pipeline.RayTypes {
				if int(rt) >= len(m.ClosestHit) || m.ClosestHit[rt] == "" {
					return fmt.Errorf("material %q has no closest-hit shader for ray type %d", m.Name, rt)
				}
			}
		}
	}
	return nil
}

func (c *Config) validateSimulate() error {
	if c.Simulate.Frames < 1 {
		return errors.New("simulate.frames must be at least 1")
	}
	if c.Simulate.FrameIntervalMS < 0 {
		return errors.New("simulate.frame_interval_ms must be non-negative")
	}
	return nil
}

func (c *Config) validateScript() error {
	for i, s := range c.Script {
		if s.Frame < 0 || s.Frame >= c.Simulate.Frames {
			return fmt.Errorf("script[%d].frame %d is outside 0..%d", i, s.Frame, c.Simulate.Frames-1)
		}
		switch s.Action {
		case ActionAdd, ActionRemove:
			if _, ok := c.MaterialByName(s.Material); !ok {
				return fmt.Errorf("script[%d]: unknown material %q", i, s.Material)
			}
			if s.Count < 1 {
				return fmt.Errorf("script[%d].count must be at least 1", i)
			}
		case ActionReload:
			if s.Shader == "" {
				return fmt.Errorf("script[%d]: reload needs a shader", i)
			}
		default:
			return fmt.Errorf("script[%d].action %q must be add, remove or reload", i, s.Action)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be auto, text or json", c.Logging.Format)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}
