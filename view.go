package raypipe

import "fmt"

// SpecializedPipeline is the pipeline selected for a frame together with
// what is needed to fill its shader binding table. A view is only valid
// for the frame it was returned in.
type SpecializedPipeline struct {
	pipeline Pipeline
	mapping  HitgroupMapping
	mask     Mask
	fallback bool
	chars    *Characteristics
	rayTypes []uint32
}

// Pipeline returns the finalized pipeline to bind.
func (v *SpecializedPipeline) Pipeline() Pipeline { return v.pipeline }

// Layout returns the pipeline layout.
func (v *SpecializedPipeline) Layout() Layout { return v.chars.Layout() }

// Mask returns the material mask the pipeline was built for. For a
// fallback pipeline this is the full mask, not the active one.
func (v *SpecializedPipeline) Mask() Mask { return v.mask }

// IsFallback reports whether the pipeline is the all-materials fallback
// used while the specialized pipeline is being built.
func (v *SpecializedPipeline) IsFallback() bool { return v.fallback }

// Mapping returns the hitgroup mapping of the pipeline.
func (v *SpecializedPipeline) Mapping() HitgroupMapping { return v.mapping }

// HitgroupIndex returns the hitgroup index for the material in slot and
// the given global ray type. It panics if the ray type is not one of the
// manager's ray types or the slot is not part of the pipeline.
func (v *SpecializedPipeline) HitgroupIndex(slot int, rayType uint32) uint32 {
	local := -1
	for i, rt := range v.rayTypes {
		if rt == rayType {
			local = i
			break
		}
	}
	if local < 0 {
		panic(fmt.Sprintf("raypipe: ray type %d is not configured (have %v)", rayType, v.rayTypes))
	}
	base, ok := v.mapping.Base(slot)
	if !ok {
		panic(fmt.Sprintf("raypipe: material slot %d is not in pipeline %v", slot, v.mask))
	}
	return base + uint32(local) //nolint:gosec // local < len(rayTypes)
}

// SBTRecord returns the shader-binding-table handle for the material in
// slot and the given global ray type.
func (v *SpecializedPipeline) SBTRecord(slot int, rayType uint32) []byte {
	return v.pipeline.HitgroupHandle(int(v.HitgroupIndex(slot, rayType)))
}

// SBTRecordForMaterial is SBTRecord for a material ID. It panics if the
// material is unknown.
func (v *SpecializedPipeline) SBTRecordForMaterial(id MaterialID, rayType uint32) []byte {
	slot, ok := v.chars.SlotOf(id)
	if !ok {
		panic(fmt.Sprintf("raypipe: unknown material %q", id))
	}
	return v.SBTRecord(slot, rayType)
}
