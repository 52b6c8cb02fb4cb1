package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("escrowflow")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartCompileSpan starts a span covering a task graph reduction.
	StartCompileSpan(ctx context.Context, elements int) (context.Context, trace.Span)

	// StartTransitionSpan starts a span for one escrow transition, from
	// local validation through submission.
	StartTransitionSpan(ctx context.Context, escrowID, transition string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartCompileSpan(ctx context.Context, elements int) (context.Context, trace.Span) {
	return StartCompileSpan(ctx, elements)
}

func (m *otelSpanManager) StartTransitionSpan(ctx context.Context, escrowID, transition string) (context.Context, trace.Span) {
	return StartTransitionSpan(ctx, escrowID, transition)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// StartCompileSpan starts a compile span on the global tracer.
func StartCompileSpan(ctx context.Context, elements int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "escrowflow.compile",
		trace.WithAttributes(attribute.Int("graph.elements", elements)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartTransitionSpan starts a transition span on the global tracer.
func StartTransitionSpan(ctx context.Context, escrowID, transition string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "escrowflow.transition."+transition,
		trace.WithAttributes(
			attribute.String("escrow.id", escrowID),
			attribute.String("escrow.transition", transition),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
