package raypipe

import "sort"

// HitgroupRange is the first hitgroup index assigned to a material slot.
// The slot's hitgroups occupy [Base, Base+width) where width is the number
// of configured ray types.
type HitgroupRange struct {
	Slot int
	Base uint32
}

// HitgroupMapping translates material slots to hitgroup indices within one
// specialized pipeline. Ranges are sorted by slot, contiguous and
// non-overlapping.
type HitgroupMapping struct {
	width  uint32
	ranges []HitgroupRange
}

// newHitgroupMapping assigns ranges to the slots in mask in ascending slot
// order. Both build strategies use it, so a mask maps identically no
// matter how its pipeline was built.
func newHitgroupMapping(mask Mask, width int) HitgroupMapping {
	slots := mask.Slots()
	m := HitgroupMapping{
		width:  uint32(width), //nolint:gosec // bounded by ray type count
		ranges: make([]HitgroupRange, len(slots)),
	}
	var next uint32
	for i, slot := range slots {
		m.ranges[i] = HitgroupRange{Slot: slot, Base: next}
		next += m.width
	}
	return m
}

// Base returns the first hitgroup index of slot.
func (m HitgroupMapping) Base(slot int) (uint32, bool) {
	i := sort.Search(len(m.ranges), func(i int) bool { return m.ranges[i].Slot >= slot })
	if i < len(m.ranges) && m.ranges[i].Slot == slot {
		return m.ranges[i].Base, true
	}
	return 0, false
}

// Ranges returns a copy of the ranges in ascending slot order.
func (m HitgroupMapping) Ranges() []HitgroupRange {
	return append([]HitgroupRange(nil), m.ranges...)
}

// Width returns the number of hitgroups per slot.
func (m HitgroupMapping) Width() int { return int(m.width) }

// Len returns the number of mapped slots.
func (m HitgroupMapping) Len() int { return len(m.ranges) }

// Span returns the total number of hitgroups covered by the mapping.
func (m HitgroupMapping) Span() uint32 { return m.width * uint32(len(m.ranges)) } //nolint:gosec // at most 64 slots

// resolveHitgroups resolves the hitgroups of a material for the configured
// ray types, in ray type order. It reports false if any referenced shader
// is not loaded yet.
func resolveHitgroups(store AssetStore, mat *MaterialSlot, rayTypes []uint32) ([]HitgroupDesc, bool) {
	groups := make([]HitgroupDesc, 0, len(rayTypes))
	for _, rt := range rayTypes {
		h := mat.Hitgroup(rt)
		desc := HitgroupDesc{Type: mat.Type}
		for _, pair := range []struct {
			src *SpecializedShader
			dst **ResolvedShader
		}{
			{h.ClosestHit, &desc.ClosestHit},
			{h.Intersection, &desc.Intersection},
			{h.AnyHit, &desc.AnyHit},
		} {
			if pair.src == nil {
				continue
			}
			r, ok := resolve(store, *pair.src)
			if !ok {
				return nil, false
			}
			*pair.dst = &r
		}
		groups = append(groups, desc)
	}
	return groups, true
}
