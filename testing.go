package agentloom

import (
	"context"

	"github.com/agentloom/agentloom/providers"
	mockprovider "github.com/agentloom/agentloom/providers/mock"
)

// ToolCall is an alias for providers.ToolCall so tests and tool handlers can
// stay on the root package.
type ToolCall = providers.ToolCall

// MockLLM is a convenience wrapper around providers/mock.Provider for easier testing.
// It provides a builder pattern for configuring mock responses and satisfies
// providers.Provider, so it can be passed directly as Config.Provider.
//
// Usage:
//
//	mock := agentloom.NewMockLLM().
//	    WithResponse("thinking...", []agentloom.ToolCall{
//	        {Name: "search", Arguments: map[string]any{"query": "test"}},
//	    }).
//	    WithFinalResponse("done")
//
//	agent, _ := agentloom.New(agentloom.Config{
//	    Provider: mock,
//	    Model:    "test-model",
//	})
type MockLLM struct {
	provider *mockprovider.Provider
}

// NewMockLLM creates a new mock LLM provider for testing.
func NewMockLLM() *MockLLM {
	return &MockLLM{
		provider: mockprovider.New(),
	}
}

// WithResponse appends a mock response with optional tool calls.
func (m *MockLLM) WithResponse(text string, toolCalls []ToolCall) *MockLLM {
	m.provider.WithResponse(text, toolCalls)
	return m
}

// WithFinalResponse appends a mock final response without tool calls.
func (m *MockLLM) WithFinalResponse(text string) *MockLLM {
	m.provider.WithResponse(text, nil)
	return m
}

// WithStream appends a mock stream of response chunks.
func (m *MockLLM) WithStream(chunks []providers.StreamChunk) *MockLLM {
	m.provider.WithStream(chunks)
	return m
}

// CallCount reports how many completions have been served.
func (m *MockLLM) CallCount() int {
	return m.provider.CallCount()
}

// Complete implements providers.Provider.
func (m *MockLLM) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	return m.provider.Complete(ctx, req)
}

// Stream implements providers.Provider.
func (m *MockLLM) Stream(ctx context.Context, req providers.CompletionRequest) (providers.StreamReader, error) {
	return m.provider.Stream(ctx, req)
}

// Name implements providers.Provider.
func (m *MockLLM) Name() string {
	return m.provider.Name()
}
