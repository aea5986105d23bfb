package raypipe

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// buildNative builds the pipeline for mask in one step from raw shader
// stages, without intermediate libraries. It is a no-op until every
// referenced shader is loaded.
func (m *Manager) buildNative(mask Mask, assets AssetStore) {
	stages, ok := resolveAll(assets, m.stages)
	if !ok {
		return
	}
	slots := mask.Slots()
	groups := make([]HitgroupDesc, 0, len(slots)*len(m.rayTypes))
	for _, slot := range slots {
		g, ok := resolveHitgroups(assets, m.chars.Material(slot), m.rayTypes)
		if !ok {
			return
		}
		groups = append(groups, g...)
	}

	mapping := newHitgroupMapping(mask, len(m.rayTypes))
	var (
		backend = m.backend
		layout  = m.chars.Layout()
		info    = m.chars.CreateInfo()
		cache   = m.cache
		tracer  = m.tracer
		buildID = uuid.NewString()
		want    = int(mapping.Span())
	)
	Logger().Debug("scheduling native pipeline", "mask", mask, "hitgroups", want, "build", buildID)

	task := Spawn(m.scheduler, func() (Pipeline, error) {
		attrs := buildAttrs(buildID,
			attribute.Int64("raypipe.mask", int64(mask)), //nolint:gosec // attribute carries the bit pattern
			attribute.Int("raypipe.hitgroups", want))
		return traced(tracer, spanBuildNative, attrs, func(ctx context.Context) (Pipeline, error) {
			p, err := backend.CreatePipeline(ctx, layout, stages, groups, info, cache)
			if err != nil {
				return nil, fmt.Errorf("build pipeline %v: %w", mask, err)
			}
			if err := checkHitgroupCount(p, want); err != nil {
				p.Destroy()
				return nil, fmt.Errorf("build pipeline %v: %w", mask, err)
			}
			Logger().Info("built specialized pipeline", "mask", mask, "hitgroups", want, "build", buildID)
			return p, nil
		})
	})

	m.entries[mask] = &pipelineEntry{pipeline: task, mapping: mapping, buildID: buildID}
}
