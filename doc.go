// Package raypipe manages specialized ray-tracing pipelines for a renderer
// whose set of active materials changes at runtime.
//
// # Overview
//
// A ray-tracing pipeline contains one hit group per (material, ray type)
// pair. Building a pipeline for every material up front makes it large and
// slow to trace; rebuilding it whenever a material appears or disappears
// stalls the frame. raypipe keeps a cache of pipelines keyed by the set of
// active materials (a [Mask]) and builds missing variants in the background.
//
// # Quick Start
//
//	chars, err := raypipe.NewCharacteristics(layout, 2, raypipe.CreateInfo{MaxRecursionDepth: 2},
//	    raypipe.MaterialDesc{ID: "palette", Type: raypipe.MaterialProcedural, Hitgroups: groups},
//	)
//	mgr, err := raypipe.NewManager(chars, backend, []uint32{0, 1}, raygen,
//	    raypipe.WithMissShaders(miss),
//	    raypipe.WithScheduler(pool),
//	    raypipe.WithDisposer(disposal),
//	)
//
//	// Every frame:
//	mgr.MaterialInstanceAdded(slot)
//	if p := mgr.GetPipeline(assets); p != nil {
//	    record := p.SBTRecord(slot, rayType)
//	    // bind p.Pipeline(), write records, trace
//	}
//
// # Build strategies
//
// [StrategyLibraries] compiles the raygen, miss and callable stages into a
// base library, the hit groups of each material into a per-material
// library, and links the libraries each mask needs. Libraries are shared by
// every mask that includes them. [StrategyNative] builds every mask from
// raw shader stages in one step. Both lay hit groups out identically: the
// slots of a mask in ascending order, one hit group per configured ray type.
//
// # Fallback
//
// Whenever the active mask differs from the full mask, the pipeline for all
// materials is built as well. It is returned while the specialized pipeline
// is still building, so a material change never leaves a frame without a
// pipeline once the fallback exists.
//
// # Concurrency
//
// A [Manager] is owned by a single frame thread and never blocks. Builds
// run on a [Scheduler] and are observed through [Deferred] handles that are
// polled once per [Manager.GetPipeline]. Objects dropped by invalidation are
// handed to a [Disposer] so GPU work still using them can finish.
package raypipe
