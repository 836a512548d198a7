package agentloom

import (
	"context"
	"slices"
)

// ApprovalHandler decides whether a gated tool call may proceed. Returning
// false (or an error) rejects the call; the model sees the rejection as the
// tool result and can adjust its plan.
type ApprovalHandler func(ctx context.Context, request ApprovalRequest) (bool, error)

// ApprovalRequest describes the tool call awaiting approval.
type ApprovalRequest struct {
	ToolName       string         `json:"tool_name"`
	Arguments      map[string]any `json:"arguments"`
	Description    string         `json:"description"`     // Human-friendly description
	ConversationID string         `json:"conversation_id"` // If available
	CallID         string         `json:"call_id"`         // Unique call identifier
}

// ApprovalConfig selects which tools are gated behind an ApprovalHandler.
type ApprovalConfig struct {
	// Tools lists tool names that require approval. Empty means no gating
	// unless AllTools is set.
	Tools []string

	// Handler evaluates approval requests. With gated tools and no handler,
	// every gated call is denied.
	Handler ApprovalHandler

	// AllTools gates every tool call regardless of Tools.
	AllTools bool
}

func (c ApprovalConfig) requiresApproval(toolName string) bool {
	return c.AllTools || slices.Contains(c.Tools, toolName)
}
