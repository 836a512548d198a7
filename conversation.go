package agentloom

import (
	"github.com/agentloom/agentloom/internal/conversation"
)

// Conversation persistence lives in internal/conversation; these aliases
// keep the public API on the root package.
type (
	// ConversationStore defines the interface for persisting conversations.
	ConversationStore = conversation.Store

	// Conversation represents a multi-turn conversation with an agent.
	Conversation = conversation.Conversation

	// ConversationTurn represents a single interaction in a conversation.
	ConversationTurn = conversation.Turn

	// ConversationToolCall represents a tool invocation recorded in a turn.
	ConversationToolCall = conversation.ToolCall

	// ConversationToolResult represents the result of a tool execution recorded in a turn.
	ConversationToolResult = conversation.ToolResult
)

var (
	// NewMemoryConversationStore creates an in-memory conversation store.
	NewMemoryConversationStore = conversation.NewMemoryStore

	// ErrConversationNotFound is returned when loading an unknown conversation.
	ErrConversationNotFound = conversation.ErrConversationNotFound
)
