package observability

import (
	"context"
	"testing"
)

func TestNewTracer_NoEndpoint(t *testing.T) {
	tracer, shutdown, err := NewTracer(TraceConfig{})
	if err != nil {
		t.Fatalf("new tracer: %v", err)
	}
	if tracer == nil {
		t.Fatal("tracer is nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestTracer_Spans(t *testing.T) {
	tracer, shutdown, err := NewTracer(TraceConfig{ServiceName: "test"})
	if err != nil {
		t.Fatalf("new tracer: %v", err)
	}
	defer shutdown(context.Background())

	ctx := context.Background()

	ctx, turnSpan := tracer.TraceTurn(ctx, "session-1")
	if turnSpan == nil {
		t.Fatal("turn span is nil")
	}
	defer turnSpan.End()

	_, batchSpan := tracer.TraceToolBatch(ctx, 3)
	if batchSpan == nil {
		t.Fatal("batch span is nil")
	}
	batchSpan.End()

	_, toolSpan := tracer.TraceToolExecution(ctx, "web_search")
	if toolSpan == nil {
		t.Fatal("tool span is nil")
	}
	toolSpan.End()

	_, llmSpan := tracer.TraceLLMRequest(ctx, "anthropic", "test-model")
	if llmSpan == nil {
		t.Fatal("llm span is nil")
	}
	llmSpan.End()
}

func TestGetTraceID_NoSpan(t *testing.T) {
	if id := GetTraceID(context.Background()); id != "" {
		t.Errorf("trace ID without a span = %q, want empty", id)
	}
}
