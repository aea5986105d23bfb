package config

const (
	defaultLabel             = "scene"
	defaultStrategy          = "libraries"
	defaultRayTypeCount      = 1
	defaultMaxRecursionDepth = 1
	defaultFramesInFlight    = 3
	defaultMemoSize          = 256
	defaultFrames            = 8
	defaultFrameIntervalMS   = 16
	defaultBackend           = "noop"
	defaultLogFormat         = "auto"
	defaultLogLevel          = "info"
	defaultProjectConfig     = "raypipe.toml"
)

// Default returns a Config populated with repository defaults. It has no
// materials and no script.
func Default() Config {
	return Config{
		Pipeline: Pipeline{
			Label:             defaultLabel,
			Strategy:          defaultStrategy,
			RayTypeCount:      defaultRayTypeCount,
			MaxRecursionDepth: defaultMaxRecursionDepth,
		},
		Dispose: Dispose{
			FramesInFlight: defaultFramesInFlight,
		},
		Shaders: Shaders{
			MemoSize: defaultMemoSize,
		},
		Simulate: Simulate{
			Backend:         defaultBackend,
			Frames:          defaultFrames,
			FrameIntervalMS: defaultFrameIntervalMS,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
