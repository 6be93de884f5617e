package cache

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/IvanBrykalov/asynclru/cache"

func newTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName)
}

// startLoadSpan opens the span that covers one loader invocation.
func startLoadSpan[K comparable](ctx context.Context, tr trace.Tracer, req LoadRequest[K]) (context.Context, trace.Span) {
	return tr.Start(ctx, "asynclru.load",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.key", fmt.Sprint(req.Key)),
			attribute.Int("cache.load.args", len(req.Args)),
		),
	)
}

// endLoadSpan records the outcome and how many waiters shared it.
func endLoadSpan(span trace.Span, waiters int, err error) {
	span.SetAttributes(attribute.Int("cache.load.waiters", waiters))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
