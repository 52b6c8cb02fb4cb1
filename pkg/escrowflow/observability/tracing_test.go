package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTracingTest creates a test tracer provider with an in-memory span recorder.
func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)

	// Save the original provider
	originalProvider := otel.GetTracerProvider()

	// Set test provider
	otel.SetTracerProvider(tp)

	// Update the package-level tracer
	tracer = otel.Tracer("escrowflow")

	cleanup := func() {
		otel.SetTracerProvider(originalProvider)
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	}

	return exporter, cleanup
}

func attrValue(s tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, attr := range s.Attributes {
		if string(attr.Key) == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestStartCompileSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	_, span := StartCompileSpan(context.Background(), 9)
	require.NotNil(t, span)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "escrowflow.compile", spans[0].Name)

	v, ok := attrValue(spans[0], "graph.elements")
	require.True(t, ok)
	assert.Equal(t, int64(9), v.AsInt64())
}

func TestStartTransitionSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	t.Run("names the span after the transition", func(t *testing.T) {
		_, span := StartTransitionSpan(context.Background(), "abc#1", "run_task")
		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "escrowflow.transition.run_task", spans[0].Name)

		v, ok := attrValue(spans[0], "escrow.id")
		require.True(t, ok)
		assert.Equal(t, "abc#1", v.AsString())
	})

	t.Run("nested under a parent span", func(t *testing.T) {
		exporter.Reset()

		ctx, parent := StartCompileSpan(context.Background(), 1)
		_, child := StartTransitionSpan(ctx, "abc#1", "start")
		child.End()
		parent.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 2)
		for _, s := range spans {
			if s.Name == "escrowflow.transition.start" {
				assert.True(t, s.Parent.IsValid())
			}
		}
	})
}

func TestEndSpanWithError(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	t.Run("sets OK status for nil error", func(t *testing.T) {
		_, span := StartCompileSpan(context.Background(), 1)
		EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Ok, spans[0].Status.Code)
	})

	t.Run("sets Error status and records error", func(t *testing.T) {
		exporter.Reset()

		_, span := StartTransitionSpan(context.Background(), "e", "cancel")
		EndSpanWithError(span, errors.New("input spent"))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status.Code)
		assert.Equal(t, "input spent", spans[0].Status.Description)

		found := false
		for _, event := range spans[0].Events {
			if event.Name == "exception" {
				found = true
			}
		}
		assert.True(t, found, "Expected exception event")
	})

	t.Run("nil span does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			EndSpanWithError(nil, errors.New("test"))
		})
	})
}

func TestAddSpanEvent(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	t.Run("adds event to active span", func(t *testing.T) {
		ctx, span := StartTransitionSpan(context.Background(), "e", "run_task")
		AddSpanEvent(ctx, "signed", attribute.String("signer", "buyer"))
		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		require.Len(t, spans[0].Events, 1)
		assert.Equal(t, "signed", spans[0].Events[0].Name)
	})

	t.Run("no span in context does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			AddSpanEvent(context.Background(), "orphan")
		})
	})
}

func TestSpanManager(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()

	ctx, compile := sm.StartCompileSpan(context.Background(), 3)
	tctx, transition := sm.StartTransitionSpan(ctx, "e", "list")
	sm.AddSpanEvent(tctx, "built")
	sm.EndSpanWithError(transition, nil)
	sm.EndSpanWithError(compile, errors.New("x"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	byName := map[string]tracetest.SpanStub{}
	for _, s := range spans {
		byName[s.Name] = s
	}
	assert.Equal(t, codes.Ok, byName["escrowflow.transition.list"].Status.Code)
	assert.Len(t, byName["escrowflow.transition.list"].Events, 1)
	assert.Equal(t, codes.Error, byName["escrowflow.compile"].Status.Code)
}
