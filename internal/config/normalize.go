package config

import (
	"fmt"
	"slices"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizePipeline()
	if err := c.normalizeShaders(); err != nil {
		return err
	}
	c.normalizeMaterials()
	c.normalizeScript()
	c.normalizeLogging()
	if c.Dispose.FramesInFlight == 0 {
		c.Dispose.FramesInFlight = defaultFramesInFlight
	}
	if strings.TrimSpace(c.Simulate.Backend) == "" {
		c.Simulate.Backend = defaultBackend
	}
	return nil
}

func (c *Config) normalizePipeline() {
	p := &c.Pipeline
	p.Label = strings.TrimSpace(p.Label)
	if p.Label == "" {
		p.Label = defaultLabel
	}
	p.Strategy = strings.ToLower(strings.TrimSpace(p.Strategy))
	if p.Strategy == "" {
		p.Strategy = defaultStrategy
	}
	if p.MaxRecursionDepth == 0 {
		p.MaxRecursionDepth = defaultMaxRecursionDepth
	}
	if len(p.RayTypes) == 0 && p.RayTypeCount > 0 {
		p.RayTypes = make([]uint32, p.RayTypeCount)
		for i := range p.RayTypes {
			p.RayTypes[i] = uint32(i) //nolint:gosec // bounded by ray type count
		}
	}
}

func (c *Config) normalizeShaders() error {
	var err error
	if c.Shaders.Dir, err = expandPath(strings.TrimSpace(c.Shaders.Dir)); err != nil {
		return fmt.Errorf("shaders.dir: %w", err)
	}
	if c.Shaders.DiskCache, err = expandPath(strings.TrimSpace(c.Shaders.DiskCache)); err != nil {
		return fmt.Errorf("shaders.disk_cache: %w", err)
	}
	c.Shaders.RayGen = strings.TrimSpace(c.Shaders.RayGen)
	c.Shaders.Miss = trimAll(c.Shaders.Miss)
	c.Shaders.Callable = trimAll(c.Shaders.Callable)
	return nil
}

func (c *Config) normalizeMaterials() {
	for i := range c.Materials {
		m := &c.Materials[i]
		m.Name = strings.TrimSpace(m.Name)
		m.Type = strings.ToLower(strings.TrimSpace(m.Type))
		if m.Type == "" {
			m.Type = "triangles"
		}
		m.ClosestHit = trimAll(m.ClosestHit)
		m.AnyHit = trimAll(m.AnyHit)
		m.Intersection = strings.TrimSpace(m.Intersection)
	}
}

// normalizeScript orders steps by frame, keeping file order within a frame.
func (c *Config) normalizeScript() {
	for i := range c.Script {
		s := &c.Script[i]
		s.Action = strings.ToLower(strings.TrimSpace(s.Action))
		s.Material = strings.TrimSpace(s.Material)
		s.Shader = strings.TrimSpace(s.Shader)
		if s.Count == 0 && s.Action != ActionReload {
			s.Count = 1
		}
	}
	slices.SortStableFunc(c.Script, func(a, b Step) int { return a.Frame - b.Frame })
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func trimAll(values []string) []string {
	for i, v := range values {
		values[i] = strings.TrimSpace(v)
	}
	return values
}
