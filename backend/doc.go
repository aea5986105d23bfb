// Package backend is the registry of HAL devices pipelines are built on.
//
// Device packages register a factory from init() and are selected at
// runtime by name. The ray-tracing backend in backend/halrt registers the
// offline noop device on import:
//
//	import _ "github.com/gogpu/raypipe/backend/halrt"
//
// # Device Selection
//
// Use Default() to open the best available device, or Open() to request
// a specific one by name:
//
//	dev, err := backend.Open(backend.BackendNoop)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	rt, err := halrt.New(dev.HAL)
//
// # Available Backends
//
// - "noop": offline device that validates objects without a GPU
package backend
