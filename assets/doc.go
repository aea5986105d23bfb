// Package assets stores compiled shader code for raypipe managers.
//
// A Store maps shader handles to SPIR-V. Code is inserted directly, compiled
// from WGSL with naga, or loaded from files in the background. Replacing
// the code of a handle that is already loaded records it as reloaded; the
// host drains Reloaded once per frame and forwards each handle to
// Manager.ShaderUpdated:
//
//	store := assets.NewStore()
//	store.LoadFile(pool, "shaders/primary.rgen", "shaders/primary.rgen.spv")
//	...
//	for _, h := range store.Reloaded() {
//	    mgr.ShaderUpdated(h)
//	}
//	p := mgr.GetPipeline(store)
//
// Compiled WGSL can be persisted across runs in a DiskCache.
package assets
