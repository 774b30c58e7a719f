package logger

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "activityfeed"

// SpanContext wraps an OTel span. End must be called.
type SpanContext struct {
	ctx  context.Context
	span trace.Span
}

// StartSpan starts a child span of whatever trace ctx carries.
//
//	sc := logger.StartSpan(ctx, "worker.aggregate", trace.WithSpanKind(trace.SpanKindConsumer))
//	defer sc.End()
//	ctx = sc.Context()
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) *SpanContext {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, opts...)
	return &SpanContext{ctx: ctx, span: span}
}

// Context returns ctx with the span attached. Pass it to everything that
// runs inside the span so child spans and log records share its trace id.
func (sc *SpanContext) Context() context.Context {
	return sc.ctx
}

// End completes the span so it is exported. Calling it more than once is a
// no-op.
func (sc *SpanContext) End() {
	if sc.span != nil {
		sc.span.End()
	}
}

// RecordError records err on the span and marks it failed.
func (sc *SpanContext) RecordError(err error) {
	if sc.span != nil && err != nil {
		sc.span.RecordError(err)
		sc.span.SetStatus(codes.Error, err.Error())
	}
}

// SetAttributes annotates the span, e.g. with the stream message id.
func (sc *SpanContext) SetAttributes(attrs ...attribute.KeyValue) {
	if sc.span != nil {
		sc.span.SetAttributes(attrs...)
	}
}
