package agentloom

// Helper methods for tracing integration

import (
	"context"
	"time"

	"github.com/agentloom/agentloom/providers"
)

// llmCallTiming holds timing information for an LLM call
type llmCallTiming struct {
	startTime           time.Time
	endTime             time.Time
	completionStartTime *time.Time
}

// llmCallTimingContextKey is a custom type for context keys to avoid collisions
type llmCallTimingContextKey string

const llmCallTimingKey llmCallTimingContextKey = "agentloom.llmCallTiming"

// startLLMCallTiming records the start time of an LLM call in the context
func startLLMCallTiming(ctx context.Context) context.Context {
	timing := &llmCallTiming{
		startTime: time.Now(),
	}
	return context.WithValue(ctx, llmCallTimingKey, timing)
}

// getLLMCallTiming retrieves timing information from context
func getLLMCallTiming(ctx context.Context) *llmCallTiming {
	if timing, ok := ctx.Value(llmCallTimingKey).(*llmCallTiming); ok {
		return timing
	}
	return nil
}

// extractLLMCallTiming extracts timing information from context, returning a non-nil value
func extractLLMCallTiming(ctx context.Context) llmCallTiming {
	if timing := getLLMCallTiming(ctx); timing != nil {
		return *timing
	}
	// Return empty timing if not found
	now := time.Now()
	return llmCallTiming{
		startTime: now,
		endTime:   now,
	}
}

// logLLMGeneration records a generation observation on the active tracer.
// No-op when tracing is disabled.
func (a *Agent) logLLMGeneration(ctx context.Context, req providers.CompletionRequest, resp *providers.CompletionResponse, err error) {
	tracer := GetTracer(ctx)
	if tracer == nil || isNoOpTracer(tracer) {
		return
	}

	timing := extractLLMCallTiming(ctx)
	if timing.endTime.IsZero() || timing.endTime.Equal(timing.startTime) {
		timing.endTime = time.Now()
	}

	modelParams := map[string]any{
		"temperature":         req.Temperature,
		"top_p":               req.TopP,
		"max_tokens":          req.MaxTokens,
		"tool_choice":         req.ToolChoice,
		"parallel_tool_calls": req.ParallelToolCalls,
		"reasoning_effort":    req.ReasoningEffort,
	}

	input := map[string]any{
		"system_prompt": req.SystemPrompt,
		"messages":      req.Messages,
		"tools":         req.Tools,
	}

	var output any
	var usage *UsageInfo
	if resp != nil {
		output = map[string]any{
			"content":       resp.Content,
			"tool_calls":    resp.ToolCalls,
			"finish_reason": resp.FinishReason,
		}
		usage = &UsageInfo{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			ReasoningTokens:  resp.Usage.ReasoningTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	} else if err != nil {
		output = map[string]any{
			"error": err.Error(),
		}
	}

	gen := GenerationOptions{
		Name:                "llm.generate",
		Model:               req.Model,
		ModelParameters:     modelParams,
		Input:               input,
		Output:              output,
		Usage:               usage,
		StartTime:           timing.startTime,
		EndTime:             timing.endTime,
		CompletionStartTime: timing.completionStartTime,
		Metadata: map[string]any{
			"tool_definitions": req.Tools,
			"tool_calls": func() []providers.ToolCall {
				if resp != nil {
					return resp.ToolCalls
				}
				return nil
			}(),
		},
		Level: LogLevelDefault,
	}
	if err != nil {
		gen.Level = LogLevelError
		gen.StatusMessage = err.Error()
	}

	_ = tracer.LogGeneration(ctx, gen)
}
