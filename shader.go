package raypipe

// ShaderHandle identifies a shader asset, typically by its asset path.
// Handles are compared by value; the bytecode behind a handle may change
// when the asset is hot-reloaded.
type ShaderHandle string

// ShaderStage is the ray-tracing pipeline stage a shader is bound to.
type ShaderStage uint8

const (
	// StageRayGen is the ray generation stage.
	StageRayGen ShaderStage = iota

	// StageMiss is invoked when a ray hits nothing.
	StageMiss

	// StageCallable is invoked explicitly from other stages.
	StageCallable

	// StageClosestHit is invoked for the closest accepted intersection.
	StageClosestHit

	// StageIntersection computes intersections with procedural geometry.
	StageIntersection

	// StageAnyHit is invoked for every candidate intersection.
	StageAnyHit
)

// String returns the stage name.
func (s ShaderStage) String() string {
	switch s {
	case StageRayGen:
		return "RayGen"
	case StageMiss:
		return "Miss"
	case StageCallable:
		return "Callable"
	case StageClosestHit:
		return "ClosestHit"
	case StageIntersection:
		return "Intersection"
	case StageAnyHit:
		return "AnyHit"
	default:
		return "Unknown"
	}
}

// SpecializationConstant overrides a constant declared in the shader module.
type SpecializationConstant struct {
	ID    uint32
	Value uint32
}

// SpecializedShader references a shader asset together with the stage and
// specialization it is used with.
type SpecializedShader struct {
	Shader     ShaderHandle
	Stage      ShaderStage
	EntryPoint string
	Flags      uint32
	Constants  []SpecializationConstant
}

// NewShader returns a specialized shader for the given asset and stage
// using the "main" entry point.
func NewShader(handle ShaderHandle, stage ShaderStage) SpecializedShader {
	return SpecializedShader{Shader: handle, Stage: stage, EntryPoint: "main"}
}

// ShaderCode is compiled shader bytecode as served by an AssetStore.
type ShaderCode struct {
	// SPIRV holds the little-endian SPIR-V words.
	SPIRV []uint32

	// Hash is a content hash of SPIRV. Stores fill it in so backends can
	// deduplicate modules without rehashing.
	Hash uint64
}

// ResolvedShader is a SpecializedShader whose bytecode has been looked up.
// Build tasks only ever see resolved shaders; they never touch the store.
type ResolvedShader struct {
	SpecializedShader
	Code *ShaderCode
}

// AssetStore serves compiled shader bytecode.
//
// Lookup returns false when the asset is not loaded yet. That is a
// not-ready condition: the manager retries on a later frame.
type AssetStore interface {
	Lookup(handle ShaderHandle) (*ShaderCode, bool)
}

// resolve looks the shader up in the store. Every entry point defaults to
// "main" so backends never see an empty name.
func resolve(store AssetStore, s SpecializedShader) (ResolvedShader, bool) {
	code, ok := store.Lookup(s.Shader)
	if !ok || code == nil {
		return ResolvedShader{}, false
	}
	if s.EntryPoint == "" {
		s.EntryPoint = "main"
	}
	return ResolvedShader{SpecializedShader: s, Code: code}, true
}

// resolveAll resolves every shader or reports false if any is missing.
func resolveAll(store AssetStore, shaders []SpecializedShader) ([]ResolvedShader, bool) {
	out := make([]ResolvedShader, 0, len(shaders))
	for _, s := range shaders {
		r, ok := resolve(store, s)
		if !ok {
			return nil, false
		}
		out = append(out, r)
	}
	return out, true
}
