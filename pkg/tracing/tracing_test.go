package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracerUsesGlobalProvider(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := Tracer("test").Start(context.Background(), "op")
	span.End()

	if err := Shutdown(context.Background(), tp); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	ended := recorder.Ended()
	if len(ended) != 1 || ended[0].Name() != "op" {
		t.Fatalf("ended spans = %v", ended)
	}
}
