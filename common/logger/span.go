package logger

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ashtonliu88/diff-digest"

// Span is a started span. The zero value and nil are no-ops.
type Span struct {
	span trace.Span
}

// StartSpan starts a child span of ctx and returns the context carrying it.
//
//	ctx, span := logger.StartSpan(ctx, "notes.phase", attribute.String("phase", "technical"))
//	defer span.End()
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &Span{span: span}
}

// StartClientSpan is StartSpan for outgoing requests.
func StartClientSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, &Span{span: span}
}

func (s *Span) End() {
	if s != nil && s.span != nil {
		s.span.End()
	}
}

// Fail records err and marks the span as failed.
func (s *Span) Fail(err error) {
	if s == nil || s.span == nil || err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *Span) Set(attrs ...attribute.KeyValue) {
	if s != nil && s.span != nil {
		s.span.SetAttributes(attrs...)
	}
}

// Event marks a point in time on the span, e.g. the channel switch.
func (s *Span) Event(name string, attrs ...attribute.KeyValue) {
	if s != nil && s.span != nil {
		s.span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}
