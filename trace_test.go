package agentloom

import (
	"context"
	"testing"
	"time"

	"github.com/agentloom/agentloom/providers"
)

func TestTraceIDPropagation(t *testing.T) {
	mock := NewMockLLM().WithFinalResponse("done")

	agent, err := New(Config{
		Model:           "gpt-4o",
		Provider:        mock,
		StreamResponses: false,
		Logging: &LoggingConfig{
			LogPrompts: false,
		},
	})
	if err != nil {
		t.Fatalf("failed to create agent: %v", err)
	}

	ctx := WithTraceID(context.Background(), "trace-123")
	events := agent.Run(ctx, "hello")

	seen := 0
	for event := range events {
		seen++
		if event.TraceID != "trace-123" {
			t.Fatalf("expected trace_id trace-123, got %q", event.TraceID)
		}
	}

	if seen == 0 {
		t.Fatal("expected events to be emitted")
	}
}

// startTimeTracer records the start time option passed to StartTrace.
type startTimeTracer struct {
	NoOpTracer
	captured time.Time
}

func (s *startTimeTracer) StartTrace(ctx context.Context, name string, opts ...TraceOption) (context.Context, func()) {
	cfg := &TraceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.StartTime != nil {
		s.captured = *cfg.StartTime
	}
	return ctx, func() {}
}

// The trace must carry the timestamp from the Run call itself, not from
// whenever the run goroutine happened to get scheduled.
func TestRunStartTimeReachesTracer(t *testing.T) {
	tracer := &startTimeTracer{}

	agent, err := New(Config{
		Model:           "gpt-4o",
		Provider:        NewMockLLM().WithFinalResponse("catalogued"),
		StreamResponses: false,
		Tracer:          tracer,
		Logging:         &LoggingConfig{LogPrompts: false},
	})
	if err != nil {
		t.Fatalf("failed to create agent: %v", err)
	}

	before := time.Now()
	for range agent.Run(context.Background(), "catalog the new documents") {
	}

	if tracer.captured.IsZero() {
		t.Fatal("StartTrace never received a start time")
	}
	drift := tracer.captured.Sub(before)
	if drift < 0 {
		drift = -drift
	}
	if drift > 50*time.Millisecond {
		t.Errorf("trace start time drifted %v from the Run call", drift)
	}
}

func TestUsageFromEventData(t *testing.T) {
	original := providers.TokenUsage{
		PromptTokens:     100,
		CompletionTokens: 50,
		ReasoningTokens:  500,
		TotalTokens:      650,
	}

	event := AgentCompleteWithUsage("indexer", "done", original, 2, 1200)
	usage := usageFromEventData(event.Data)

	if usage != original {
		t.Errorf("expected usage %+v, got %+v", original, usage)
	}
}

func TestUsageFromEventDataMissingKeys(t *testing.T) {
	usage := usageFromEventData(map[string]any{"response": "done"})

	if usage != (providers.TokenUsage{}) {
		t.Errorf("expected zero usage for missing keys, got %+v", usage)
	}
}
