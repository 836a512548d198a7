// Package conversation persists multi-turn agent conversations.
package conversation

import (
	"context"
	"time"
)

// Store is implemented by conversation backends.
type Store interface {
	// Save persists a complete conversation under its ID.
	Save(ctx context.Context, conv Conversation) error

	// Load retrieves a conversation by ID.
	Load(ctx context.Context, id string) (Conversation, error)

	// Append adds a turn to an existing conversation.
	Append(ctx context.Context, id string, turn Turn) error

	// Delete removes a conversation.
	Delete(ctx context.Context, id string) error
}

// Conversation is one thread of turns between a user and an agent.
type Conversation struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id,omitempty"`
	Turns     []Turn         `json:"turns"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Turn is a single interaction. Role is user, assistant or tool; tool turns
// carry results rather than content.
type Turn struct {
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	ResponseID  string       `json:"response_id,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// ToolCall records a tool invocation the assistant requested in a turn.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult records what a tool call produced.
type ToolResult struct {
	CallID string `json:"call_id"`
	Result any    `json:"result"`
	Error  string `json:"error,omitempty"`
}
