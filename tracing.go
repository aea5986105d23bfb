package raypipe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/gogpu/raypipe"

// Span names of background builds.
const (
	spanBuildBase     = "raypipe.build.base"
	spanBuildMaterial = "raypipe.build.material"
	spanBuildLink     = "raypipe.build.link"
	spanBuildNative   = "raypipe.build.native"

	spanFallback = "raypipe.fallback"
)

// traced runs fn inside a span and records its failure on the span.
func traced[T any](tracer trace.Tracer, name string, attrs []attribute.KeyValue, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(context.Background(), name, trace.WithAttributes(attrs...))
	defer span.End()

	v, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return v, err
}

// traceEvent records a zero-length span.
func traceEvent(tracer trace.Tracer, name string, attrs ...attribute.KeyValue) {
	_, span := tracer.Start(context.Background(), name, trace.WithAttributes(attrs...))
	span.End()
}

func buildAttrs(buildID string, extra ...attribute.KeyValue) []attribute.KeyValue {
	return append([]attribute.KeyValue{attribute.String("raypipe.build_id", buildID)}, extra...)
}
