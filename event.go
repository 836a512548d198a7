package agentloom

import (
	"time"

	"github.com/agentloom/agentloom/providers"
)

// EventType identifies a streaming event.
type EventType string

const (
	EventTypeAgentStart       EventType = "agent_start"
	EventTypeAgentComplete    EventType = "agent_complete"
	EventTypeThinkingChunk    EventType = "thinking_chunk"
	EventTypeActionDetected   EventType = "action_detected"
	EventTypeActionResult     EventType = "action_result"
	EventTypeToolError        EventType = "tool_error"
	EventTypeProgress         EventType = "progress"
	EventTypeDecision         EventType = "decision"
	EventTypeFinalOutput      EventType = "final_output"
	EventTypeError            EventType = "error"
	EventTypeApprovalRequired EventType = "approval_required"
	EventTypeApprovalGranted  EventType = "approval_granted"
	EventTypeApprovalDenied   EventType = "approval_denied"
	EventTypeHandoff          EventType = "handoff"
)

// Event is one item of an agent run's output stream. TraceID and SpanID are
// stamped by the emitting agent when tracing is active, so consumers can
// correlate events with trace backends.
type Event struct {
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	TraceID   string         `json:"trace_id,omitempty"`
	SpanID    string         `json:"span_id,omitempty"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType EventType, data map[string]any) Event {
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// AgentStart opens a run's event stream.
func AgentStart(agentName string) Event {
	return NewEvent(EventTypeAgentStart, map[string]any{
		"agent_name": agentName,
	})
}

// AgentCompleteWithUsage closes a run's event stream, carrying the
// accumulated token usage, iteration count and wall-clock duration.
func AgentCompleteWithUsage(agentName, response string, usage providers.TokenUsage, iterations int, durationMs int64) Event {
	return NewEvent(EventTypeAgentComplete, map[string]any{
		"agent_name":        agentName,
		"response":          response,
		"iterations":        iterations,
		"duration_ms":       durationMs,
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
		"reasoning_tokens":  usage.ReasoningTokens,
		"total_tokens":      usage.TotalTokens,
	})
}

// ThinkingChunk carries one increment of streamed model output.
func ThinkingChunk(chunk string) Event {
	return NewEvent(EventTypeThinkingChunk, map[string]any{
		"chunk": chunk,
	})
}

// ActionDetected announces a tool call the model has requested, before the
// tool runs.
func ActionDetected(description, toolID string) Event {
	return NewEvent(EventTypeActionDetected, map[string]any{
		"description": description,
		"tool_id":     toolID,
	})
}

// ActionResult reports a finished tool call and its result.
func ActionResult(description string, result any) Event {
	return NewEvent(EventTypeActionResult, map[string]any{
		"description": description,
		"result":      result,
	})
}

// ToolError reports a failed tool call. Tool errors are recoverable: the
// loop feeds them back to the model, so they are distinct from EventTypeError.
func ToolError(toolName string, err error) Event {
	return NewEvent(EventTypeToolError, map[string]any{
		"tool_name": toolName,
		"error":     err.Error(),
	})
}

// FinalOutput carries the run's final response. Summary is filled by
// coordinated runs that produce a handoff summary alongside the response.
func FinalOutput(summary, response string) Event {
	return NewEvent(EventTypeFinalOutput, map[string]any{
		"summary":  summary,
		"response": response,
	})
}

// Error reports a failure that ends the run.
func Error(err error) Event {
	return NewEvent(EventTypeError, map[string]any{
		"error": err.Error(),
	})
}

// Progress marks the start of a loop iteration. Iterations count from 1.
func Progress(iteration, maxIterations int, description string) Event {
	return NewEvent(EventTypeProgress, map[string]any{
		"iteration":      iteration,
		"max_iterations": maxIterations,
		"description":    description,
	})
}

// Decision records a routing or planning choice an agent made.
func Decision(action string, confidence float64, reasoning string) Event {
	return NewEvent(EventTypeDecision, map[string]any{
		"action":     action,
		"confidence": confidence,
		"reasoning":  reasoning,
	})
}

// ApprovalRequired asks the approval handler to rule on a pending tool call.
func ApprovalRequired(request ApprovalRequest) Event {
	return NewEvent(EventTypeApprovalRequired, map[string]any{
		"tool_name":       request.ToolName,
		"arguments":       request.Arguments,
		"description":     request.Description,
		"conversation_id": request.ConversationID,
		"call_id":         request.CallID,
	})
}

// ApprovalGranted records that a pending tool call was allowed to proceed.
func ApprovalGranted(toolName, callID string) Event {
	return NewEvent(EventTypeApprovalGranted, map[string]any{
		"tool_name": toolName,
		"call_id":   callID,
	})
}

// ApprovalDenied records that a pending tool call was rejected.
func ApprovalDenied(toolName, callID, reason string) Event {
	return NewEvent(EventTypeApprovalDenied, map[string]any{
		"tool_name": toolName,
		"call_id":   callID,
		"reason":    reason,
	})
}

// HandoffEvent records a delegation from one agent to another.
func HandoffEvent(handoffID, from, to, task string) Event {
	return NewEvent(EventTypeHandoff, map[string]any{
		"handoff_id": handoffID,
		"from":       from,
		"to":         to,
		"task":       task,
	})
}
