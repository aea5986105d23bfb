package raypipe

import "context"

// Resource is a GPU object whose destruction must be deferred until the
// GPU no longer uses it.
type Resource interface {
	Destroy()
}

// Disposer destroys resources once in-flight GPU work referencing them has
// completed. DisposeWhenSafe is called from build goroutines as well as the
// frame thread and must be safe for concurrent use.
type Disposer interface {
	DisposeWhenSafe(r Resource)
}

// DisposeImmediately is a Disposer that destroys resources right away.
// It is only correct when the GPU is idle, e.g. in tools and tests.
type DisposeImmediately struct{}

// DisposeWhenSafe destroys r.
func (DisposeImmediately) DisposeWhenSafe(r Resource) {
	if r != nil {
		r.Destroy()
	}
}

// PipelineCache is a backend pipeline compilation cache. It is shared by
// every concurrent build task, so implementations must be safe for
// concurrent use. raypipe only passes it through; nil means no cache.
type PipelineCache interface{}

// Library is a compiled pipeline library: a set of shader groups that can
// be linked into a full pipeline.
type Library interface {
	Resource

	// HitgroupCount returns the number of hit groups in the library.
	HitgroupCount() int
}

// Pipeline is a finalized ray-tracing pipeline.
type Pipeline interface {
	Resource

	// Layout returns the layout the pipeline was created with.
	Layout() Layout

	// HitgroupCount returns the number of hit groups in the pipeline.
	HitgroupCount() int

	// HitgroupHandle returns the shader-binding-table handle of hit group i.
	HitgroupHandle(i int) []byte
}

// HitgroupDesc is a resolved hitgroup ready to be compiled.
type HitgroupDesc struct {
	Type         MaterialType
	ClosestHit   *ResolvedShader
	Intersection *ResolvedShader
	AnyHit       *ResolvedShader
}

// Backend creates pipeline objects on a graphics device. All methods are
// called from background build tasks and may run concurrently.
type Backend interface {
	// CreateLibraryForShaders compiles raygen, miss and callable stages into
	// a library. Every stage becomes its own general shader group.
	CreateLibraryForShaders(ctx context.Context, layout Layout, stages []ResolvedShader,
		info CreateInfo, cache PipelineCache) (Library, error)

	// CreateLibraryForHitgroups compiles hit groups into a library, in order.
	CreateLibraryForHitgroups(ctx context.Context, layout Layout, groups []HitgroupDesc,
		info CreateInfo, cache PipelineCache) (Library, error)

	// LinkLibraries links libraries into a pipeline. Hit groups are numbered
	// in library order, then in order within each library.
	LinkLibraries(ctx context.Context, layout Layout, libs []Library,
		info CreateInfo, cache PipelineCache) (Pipeline, error)

	// CreatePipeline builds a pipeline directly from stages and hit groups.
	CreatePipeline(ctx context.Context, layout Layout, stages []ResolvedShader, groups []HitgroupDesc,
		info CreateInfo, cache PipelineCache) (Pipeline, error)
}
