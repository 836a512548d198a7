// Package mock provides a scripted Provider for tests. Responses and streams
// are queued up front and consumed in order, one per model call.
package mock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/agentloom/agentloom/providers"
)

var (
	ErrNoResponse = errors.New("mock: no response configured")
	ErrNoStream   = errors.New("mock: no stream configured")
)

// Provider implements providers.Provider with pre-scripted output. Safe for
// concurrent use.
type Provider struct {
	mu        sync.Mutex
	responses []*providers.CompletionResponse
	streams   [][]providers.StreamChunk
	calls     int
}

// New creates an empty scripted provider.
func New() *Provider {
	return &Provider{}
}

// WithResponse queues a completion. The finish reason follows from whether
// tool calls are present, and every canned response reports the same fixed
// token usage so cost paths have something to count.
func (m *Provider) WithResponse(content string, toolCalls []providers.ToolCall) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()

	finish := providers.FinishReasonStop
	if len(toolCalls) > 0 {
		finish = providers.FinishReasonToolCalls
	}

	m.responses = append(m.responses, &providers.CompletionResponse{
		ID:           fmt.Sprintf("mock-resp-%d", len(m.responses)+1),
		Content:      content,
		ToolCalls:    toolCalls,
		FinishReason: finish,
		Model:        "mock-model",
		Created:      time.Now(),
		Usage: providers.TokenUsage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
	})
	return m
}

// WithStream queues a stream. The chunks are copied, so the caller's slice
// can be reused.
func (m *Provider) WithStream(chunks []providers.StreamChunk) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.streams = append(m.streams, slices.Clone(chunks))
	return m
}

// Name identifies the backend.
func (m *Provider) Name() string {
	return "mock"
}

// Complete pops the next queued response, or ErrNoResponse when the script
// ran out.
func (m *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.responses) == 0 {
		return nil, ErrNoResponse
	}

	m.calls++
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

// Stream pops the next queued stream, or ErrNoStream when the script ran
// out.
func (m *Provider) Stream(ctx context.Context, req providers.CompletionRequest) (providers.StreamReader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.streams) == 0 {
		return nil, ErrNoStream
	}

	m.calls++
	reader := &streamReader{chunks: m.streams[0]}
	m.streams = m.streams[1:]
	return reader, nil
}

// CallCount reports how many times Complete or Stream was called.
func (m *Provider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type streamReader struct {
	mu     sync.Mutex
	chunks []providers.StreamChunk
	pos    int
	closed bool
}

func (s *streamReader) Next() (*providers.StreamChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrNoStream
	}
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}

	chunk := s.chunks[s.pos]
	s.pos++
	return &chunk, nil
}

func (s *streamReader) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
