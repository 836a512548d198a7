// Package providers defines the provider-agnostic contract between the agent
// runtime and LLM backends. The agent core speaks only these types; concrete
// backends (openai, anthropic, mock) translate them to their wire formats.
package providers

import (
	"context"
	"time"
)

// Provider is implemented by every LLM backend.
type Provider interface {
	// Complete runs a single blocking completion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Stream runs a completion and returns a reader over its chunks.
	Stream(ctx context.Context, req CompletionRequest) (StreamReader, error)

	// Name identifies the backend, such as "openai" or "anthropic".
	Name() string
}

// StreamReader yields streaming chunks one at a time.
type StreamReader interface {
	// Next returns the next chunk, or io.EOF once the stream is done.
	Next() (*StreamChunk, error)

	// Close releases the underlying connection. Safe to call more than once.
	Close() error
}

// CompletionRequest is a backend-neutral completion request. Backends ignore
// fields their API has no equivalent for.
type CompletionRequest struct {
	Model             string
	Messages          []Message
	Tools             []ToolDefinition
	Temperature       float32
	MaxTokens         int
	SystemPrompt      string
	TopP              float32
	Stream            bool
	ToolChoice        string
	ParallelToolCalls bool
	ReasoningEffort   ReasoningEffort
	Metadata          map[string]string
}

// CompletionResponse is a backend-neutral completion result.
type CompletionResponse struct {
	ID           string
	Content      string
	ToolCalls    []ToolCall
	FinishReason FinishReason
	Usage        TokenUsage
	Model        string
	Created      time.Time
	Metadata     map[string]string
}

// Message is one turn of the conversation sent to the model. Tool result
// messages carry the ToolCallID they answer; Name is optional and only some
// backends transmit it.
type Message struct {
	Role       MessageRole
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// MessageRole identifies who produced a message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ToolCall is the model asking for a tool to run.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolDefinition describes a callable tool to the model. Parameters is a
// JSON Schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// FinishReason is why the model stopped generating.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonLength    FinishReason = "length"
	FinishReasonError     FinishReason = "error"
)

// TokenUsage counts the tokens one or more completions consumed.
// ReasoningTokens stays zero on models without a reasoning phase.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	ReasoningTokens  int
	TotalTokens      int
}

// Add accumulates the counters from u.
func (t *TokenUsage) Add(u TokenUsage) {
	t.PromptTokens += u.PromptTokens
	t.CompletionTokens += u.CompletionTokens
	t.ReasoningTokens += u.ReasoningTokens
	t.TotalTokens += u.TotalTokens
}

// StreamChunk is one increment of a streaming response. Content chunks and
// tool-call chunks arrive interleaved; IsComplete marks the final chunk,
// which is also the only one that may carry Usage.
type StreamChunk struct {
	Content      string
	ToolCallID   string
	ToolName     string
	ToolArgs     string
	IsComplete   bool
	FinishReason FinishReason
	Usage        *TokenUsage
}

// ReasoningEffort controls how much compute a reasoning model spends before
// answering. The zero value leaves the backend default in place.
type ReasoningEffort string

const (
	ReasoningEffortNone    ReasoningEffort = ""
	ReasoningEffortMinimal ReasoningEffort = "minimal"
	ReasoningEffortLow     ReasoningEffort = "low"
	ReasoningEffortMedium  ReasoningEffort = "medium"
	ReasoningEffortHigh    ReasoningEffort = "high"
)

// Valid reports whether r is one of the recognized effort levels.
func (r ReasoningEffort) Valid() bool {
	switch r {
	case ReasoningEffortNone, ReasoningEffortMinimal, ReasoningEffortLow,
		ReasoningEffortMedium, ReasoningEffortHigh:
		return true
	}
	return false
}
