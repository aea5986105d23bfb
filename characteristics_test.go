package raypipe

import (
	"errors"
	"fmt"
	"testing"
)

func shaderPtr(h ShaderHandle, stage ShaderStage) *SpecializedShader {
	s := NewShader(h, stage)
	return &s
}

func TestNewCharacteristicsValidation(t *testing.T) {
	layout := fakeLayout{"l"}
	chit := shaderPtr("hit.rchit", StageClosestHit)
	isect := shaderPtr("sphere.rint", StageIntersection)

	many := make([]MaterialDesc, MaxMaterials+1)
	for i := range many {
		many[i].ID = MaterialID(fmt.Sprint(i))
	}

	tests := []struct {
		name      string
		layout    Layout
		rayTypes  int
		materials []MaterialDesc
		wantErr   error
	}{
		{"nil layout", nil, 1, nil, ErrNilLayout},
		{"no ray types", layout, 0, nil, ErrInvalidRayType},
		{"too many materials", layout, 1, many, ErrTooManyMaterials},
		{"duplicate id", layout, 1, []MaterialDesc{{ID: "a"}, {ID: "a"}}, ErrDuplicateMaterial},
		{"too many hitgroups", layout, 1, []MaterialDesc{
			{ID: "a", Hitgroups: []Hitgroup{{}, {}}},
		}, ErrInvalidRayType},
		{"procedural without intersection", layout, 1, []MaterialDesc{
			{ID: "p", Type: MaterialProcedural, Hitgroups: []Hitgroup{{ClosestHit: chit}}},
		}, ErrInvalidHitgroup},
		{"triangles with intersection", layout, 1, []MaterialDesc{
			{ID: "t", Hitgroups: []Hitgroup{{ClosestHit: chit, Intersection: isect}}},
		}, ErrInvalidHitgroup},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCharacteristics(tt.layout, tt.rayTypes, CreateInfo{}, tt.materials...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewCharacteristicsSixtyFourMaterials(t *testing.T) {
	mats := make([]MaterialDesc, MaxMaterials)
	for i := range mats {
		mats[i].ID = MaterialID(fmt.Sprint(i))
	}
	c, err := NewCharacteristics(fakeLayout{"l"}, 1, CreateInfo{}, mats...)
	if err != nil {
		t.Fatalf("NewCharacteristics: %v", err)
	}
	if c.FullMask() != ^Mask(0) {
		t.Errorf("FullMask() = %v, want all 64 bits", c.FullMask())
	}
}

func TestNewCharacteristicsSlots(t *testing.T) {
	c, err := NewCharacteristics(fakeLayout{"l"}, 2, CreateInfo{},
		MaterialDesc{ID: "diffuse", Hitgroups: []Hitgroup{{ClosestHit: shaderPtr("d.rchit", StageAnyHit)}}},
		MaterialDesc{ID: "sphere", Type: MaterialProcedural, Hitgroups: []Hitgroup{
			{ClosestHit: shaderPtr("s.rchit", StageClosestHit), Intersection: shaderPtr("s.rint", StageIntersection)},
			{Intersection: shaderPtr("s.rint", StageIntersection)},
		}},
	)
	if err != nil {
		t.Fatalf("NewCharacteristics: %v", err)
	}
	if c.MaterialCount() != 2 || c.FullMask() != 0b11 {
		t.Fatalf("MaterialCount %d FullMask %v", c.MaterialCount(), c.FullMask())
	}
	if slot, ok := c.SlotOf("sphere"); !ok || slot != 1 {
		t.Errorf("SlotOf(sphere) = %d, %v", slot, ok)
	}
	if _, ok := c.SlotOf("glass"); ok {
		t.Error("SlotOf found an unregistered material")
	}
	if c.CreateInfo().MaxRecursionDepth != 1 {
		t.Errorf("MaxRecursionDepth = %d, want default 1", c.CreateInfo().MaxRecursionDepth)
	}

	diffuse := c.Material(0)
	if got := diffuse.Hitgroup(0).ClosestHit.Stage; got != StageClosestHit {
		t.Errorf("closest hit stored with stage %v, want ClosestHit", got)
	}
	if !diffuse.Hitgroup(1).IsEmpty() {
		t.Error("missing trailing hitgroup is not empty")
	}
	if !c.Material(1).References("s.rint") || diffuse.References("s.rint") {
		t.Error("References does not follow the hitgroup shaders")
	}
}

func TestMaterialTypeString(t *testing.T) {
	if MaterialTriangles.String() != "Triangles" || MaterialProcedural.String() != "Procedural" {
		t.Error("unexpected material type names")
	}
}
