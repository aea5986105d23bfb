package raypipe

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ManagerOption configures a Manager during creation.
//
// Example:
//
//	mgr, err := raypipe.NewManager(chars, backend, []uint32{0, 1}, raygen,
//	    raypipe.WithScheduler(pool),
//	    raypipe.WithDisposer(queue),
//	    raypipe.WithMissShaders(miss),
//	)
type ManagerOption func(*managerOptions)

// managerOptions holds optional configuration for Manager creation.
type managerOptions struct {
	strategy  Strategy
	scheduler Scheduler
	disposer  Disposer
	cache     PipelineCache
	miss      []SpecializedShader
	callable  []SpecializedShader
	tracer    trace.TracerProvider
}

// defaultManagerOptions returns the default manager options.
func defaultManagerOptions() managerOptions {
	return managerOptions{
		strategy:  StrategyLibraries,
		scheduler: GoScheduler{},
		disposer:  DisposeImmediately{},
	}
}

// WithStrategy selects the build strategy. The default is StrategyLibraries.
func WithStrategy(s Strategy) ManagerOption {
	return func(o *managerOptions) {
		o.strategy = s
	}
}

// WithScheduler sets the scheduler that runs build tasks.
// The default starts one goroutine per task.
func WithScheduler(s Scheduler) ManagerOption {
	return func(o *managerOptions) {
		if s != nil {
			o.scheduler = s
		}
	}
}

// WithDisposer sets where dropped libraries and pipelines are sent.
// The default destroys them immediately, which is only safe when the GPU
// is idle.
func WithDisposer(d Disposer) ManagerOption {
	return func(o *managerOptions) {
		if d != nil {
			o.disposer = d
		}
	}
}

// WithPipelineCache sets the backend pipeline cache passed to every build.
func WithPipelineCache(c PipelineCache) ManagerOption {
	return func(o *managerOptions) {
		o.cache = c
	}
}

// WithMissShaders sets the miss shaders, in miss index order.
func WithMissShaders(shaders ...SpecializedShader) ManagerOption {
	return func(o *managerOptions) {
		o.miss = append([]SpecializedShader(nil), shaders...)
	}
}

// WithCallableShaders sets the callable shaders, in callable index order.
func WithCallableShaders(shaders ...SpecializedShader) ManagerOption {
	return func(o *managerOptions) {
		o.callable = append([]SpecializedShader(nil), shaders...)
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider used for build
// spans. The default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) ManagerOption {
	return func(o *managerOptions) {
		o.tracer = tp
	}
}

func (o *managerOptions) tracerProvider() trace.TracerProvider {
	if o.tracer != nil {
		return o.tracer
	}
	return otel.GetTracerProvider()
}
