// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halrt

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/gogpu/raypipe"
)

// HandleSize is the size in bytes of a shader group handle.
const HandleSize = 32

// GroupKind is the type of a shader group.
type GroupKind uint8

const (
	// GroupGeneral holds a single raygen, miss or callable stage.
	GroupGeneral GroupKind = iota

	// GroupTriangles is a hit group for triangle geometry.
	GroupTriangles

	// GroupProcedural is a hit group with an intersection stage.
	GroupProcedural
)

// String returns the group kind name.
func (k GroupKind) String() string {
	switch k {
	case GroupGeneral:
		return "General"
	case GroupTriangles:
		return "Triangles"
	case GroupProcedural:
		return "Procedural"
	default:
		return "Unknown"
	}
}

// stage is one shader stage bound into a group.
type stage struct {
	stage     raypipe.ShaderStage
	module    *shaderModule
	entry     string
	constants []raypipe.SpecializationConstant
}

// group is a shader group. A hit group with no stages is a null group.
type group struct {
	kind   GroupKind
	stages []stage
	hash   uint64
}

// seal computes the group hash from its kind and stages.
func (g *group) seal() {
	h := fnv.New64a()
	var buf [8]byte
	writeU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	writeU64(uint64(g.kind))
	for _, s := range g.stages {
		writeU64(uint64(s.stage))
		writeU64(s.module.hash)
		_, _ = h.Write([]byte(s.entry))
		_, _ = h.Write([]byte{0})
		for _, c := range s.constants {
			writeU64(uint64(c.ID)<<32 | uint64(c.Value))
		}
	}
	g.hash = h.Sum64()
}

// retain takes another reference on every module of the group.
func (g group) retain() group {
	for _, s := range g.stages {
		s.module.acquire()
	}
	return g
}

func (g group) release() {
	for _, s := range g.stages {
		s.module.release()
	}
}

func releaseGroups(groups []group) {
	for _, g := range groups {
		g.release()
	}
}

// groupHandle derives the shader-binding-table handle of the group at
// index within pipeline id.
func groupHandle(id uint64, g group, index int) []byte {
	out := make([]byte, HandleSize)
	var buf [8]byte
	for lane := range HandleSize / 8 {
		h := fnv.New64a()
		for _, v := range [...]uint64{uint64(lane), id, g.hash, uint64(index)} { //nolint:gosec // index is non-negative
			binary.LittleEndian.PutUint64(buf[:], v)
			_, _ = h.Write(buf[:])
		}
		binary.LittleEndian.PutUint64(out[lane*8:], h.Sum64())
	}
	return out
}
