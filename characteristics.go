package raypipe

import "fmt"

// MaterialType is the geometry kind a material's hitgroups are built for.
type MaterialType uint8

const (
	// MaterialTriangles materials hit built-in triangle geometry.
	MaterialTriangles MaterialType = iota

	// MaterialProcedural materials hit AABB geometry and provide their own
	// intersection shader.
	MaterialProcedural
)

// String returns the material type name.
func (t MaterialType) String() string {
	switch t {
	case MaterialTriangles:
		return "Triangles"
	case MaterialProcedural:
		return "Procedural"
	default:
		return "Unknown"
	}
}

// MaterialID identifies a material type across the host application.
type MaterialID string

// Hitgroup is the shader triple invoked for one (material, ray type) pair.
// Any of the shaders may be nil. The field a shader is stored in decides
// its stage.
type Hitgroup struct {
	ClosestHit   *SpecializedShader
	Intersection *SpecializedShader
	AnyHit       *SpecializedShader
}

// IsEmpty reports whether the hitgroup references no shaders.
func (h Hitgroup) IsEmpty() bool {
	return h.ClosestHit == nil && h.Intersection == nil && h.AnyHit == nil
}

// shaders returns the non-nil shaders of the hitgroup.
func (h Hitgroup) shaders() []*SpecializedShader {
	out := make([]*SpecializedShader, 0, 3)
	for _, s := range []*SpecializedShader{h.ClosestHit, h.Intersection, h.AnyHit} {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// references reports whether any shader of the hitgroup uses handle.
func (h Hitgroup) references(handle ShaderHandle) bool {
	for _, s := range h.shaders() {
		if s.Shader == handle {
			return true
		}
	}
	return false
}

// MaterialDesc describes a material when building Characteristics.
type MaterialDesc struct {
	ID   MaterialID
	Type MaterialType

	// Hitgroups is indexed by global ray type. Missing trailing entries are
	// treated as empty hitgroups.
	Hitgroups []Hitgroup
}

// MaterialSlot is a material as registered in Characteristics.
type MaterialSlot struct {
	Index     int
	ID        MaterialID
	Type      MaterialType
	Hitgroups []Hitgroup
}

// Hitgroup returns the hitgroup for the given global ray type.
func (m *MaterialSlot) Hitgroup(rayType uint32) Hitgroup {
	if int(rayType) >= len(m.Hitgroups) {
		return Hitgroup{}
	}
	return m.Hitgroups[rayType]
}

// References reports whether any hitgroup of the material uses handle.
func (m *MaterialSlot) References(handle ShaderHandle) bool {
	for _, h := range m.Hitgroups {
		if h.references(handle) {
			return true
		}
	}
	return false
}

// PipelineFlags are backend-independent pipeline creation flags.
type PipelineFlags uint32

const (
	// FlagSkipTriangles builds pipelines that ignore triangle geometry.
	FlagSkipTriangles PipelineFlags = 1 << iota

	// FlagSkipAABBs builds pipelines that ignore procedural geometry.
	FlagSkipAABBs

	// FlagNoNullClosestHit requires every hitgroup to have a closest-hit shader.
	FlagNoNullClosestHit
)

// CreateInfo holds pipeline creation parameters shared by every build.
type CreateInfo struct {
	Label             string
	MaxRecursionDepth uint32
	Flags             PipelineFlags
}

// Layout is a backend pipeline layout. raypipe treats it as opaque and
// only passes it back into the Backend.
type Layout interface {
	Label() string
}

// Characteristics is the immutable description of one pipeline family:
// its layout, the materials it can render and the creation parameters.
// It is created once and shared by pointer with every build task.
type Characteristics struct {
	layout       Layout
	rayTypeCount int
	createInfo   CreateInfo
	materials    []MaterialSlot
	slots        map[MaterialID]int
}

// NewCharacteristics validates the material descriptions and returns the
// characteristics for a pipeline family. Materials are assigned slots in
// the order given.
func NewCharacteristics(layout Layout, rayTypeCount int, info CreateInfo, materials ...MaterialDesc) (*Characteristics, error) {
	if layout == nil {
		return nil, ErrNilLayout
	}
	if len(materials) > MaxMaterials {
		return nil, fmt.Errorf("%w: got %d", ErrTooManyMaterials, len(materials))
	}
	if rayTypeCount <= 0 {
		return nil, fmt.Errorf("%w: ray type count %d", ErrInvalidRayType, rayTypeCount)
	}
	if info.MaxRecursionDepth == 0 {
		info.MaxRecursionDepth = 1
	}

	c := &Characteristics{
		layout:       layout,
		rayTypeCount: rayTypeCount,
		createInfo:   info,
		materials:    make([]MaterialSlot, 0, len(materials)),
		slots:        make(map[MaterialID]int, len(materials)),
	}
	for i, desc := range materials {
		if _, dup := c.slots[desc.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateMaterial, desc.ID)
		}
		if len(desc.Hitgroups) > rayTypeCount {
			return nil, fmt.Errorf("%w: material %q has %d hitgroups for %d ray types",
				ErrInvalidRayType, desc.ID, len(desc.Hitgroups), rayTypeCount)
		}
		slot := MaterialSlot{
			Index:     i,
			ID:        desc.ID,
			Type:      desc.Type,
			Hitgroups: make([]Hitgroup, rayTypeCount),
		}
		for rt, h := range desc.Hitgroups {
			if desc.Type == MaterialProcedural && !h.IsEmpty() && h.Intersection == nil {
				return nil, fmt.Errorf("%w: procedural material %q ray type %d has no intersection shader",
					ErrInvalidHitgroup, desc.ID, rt)
			}
			if desc.Type == MaterialTriangles && h.Intersection != nil {
				return nil, fmt.Errorf("%w: triangle material %q ray type %d has an intersection shader",
					ErrInvalidHitgroup, desc.ID, rt)
			}
			slot.Hitgroups[rt] = Hitgroup{
				ClosestHit:   withStage(h.ClosestHit, StageClosestHit),
				Intersection: withStage(h.Intersection, StageIntersection),
				AnyHit:       withStage(h.AnyHit, StageAnyHit),
			}
		}
		c.slots[desc.ID] = i
		c.materials = append(c.materials, slot)
	}
	return c, nil
}

// withStage copies s with its stage forced to stage.
func withStage(s *SpecializedShader, stage ShaderStage) *SpecializedShader {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Stage = stage
	cp.Constants = append([]SpecializationConstant(nil), s.Constants...)
	return &cp
}

// Layout returns the pipeline layout.
func (c *Characteristics) Layout() Layout { return c.layout }

// RayTypeCount returns the number of global ray types.
func (c *Characteristics) RayTypeCount() int { return c.rayTypeCount }

// CreateInfo returns the pipeline creation parameters.
func (c *Characteristics) CreateInfo() CreateInfo { return c.createInfo }

// MaterialCount returns the number of registered materials.
func (c *Characteristics) MaterialCount() int { return len(c.materials) }

// FullMask returns the mask containing every registered material.
func (c *Characteristics) FullMask() Mask { return FullMask(len(c.materials)) }

// Material returns the material registered at slot. The returned slot is
// shared and must not be modified.
func (c *Characteristics) Material(slot int) *MaterialSlot {
	return &c.materials[slot]
}

// SlotOf returns the slot of the material with the given ID.
func (c *Characteristics) SlotOf(id MaterialID) (int, bool) {
	slot, ok := c.slots[id]
	return slot, ok
}
