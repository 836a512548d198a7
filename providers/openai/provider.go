// Package openai implements providers.Provider on top of the official
// chat completions client from github.com/sashabaranov/go-openai.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/agentloom/agentloom/internal/retry"
	"github.com/agentloom/agentloom/providers"
)

// Provider implements providers.Provider against the OpenAI API.
type Provider struct {
	client *goopenai.Client
}

// Option customizes the provider.
type Option func(*goopenai.ClientConfig)

// WithBaseURL points the client at a compatible endpoint (proxies,
// gateways, local servers).
func WithBaseURL(url string) Option {
	return func(cfg *goopenai.ClientConfig) {
		cfg.BaseURL = url
	}
}

// WithOrgID sets the OpenAI organization header.
func WithOrgID(orgID string) Option {
	return func(cfg *goopenai.ClientConfig) {
		cfg.OrgID = orgID
	}
}

// New creates an OpenAI provider.
func New(apiKey string, opts ...Option) *Provider {
	cfg := goopenai.DefaultConfig(apiKey)
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Provider{client: goopenai.NewClientWithConfig(cfg)}
}

// NewWithClient wraps an existing go-openai client.
func NewWithClient(client *goopenai.Client) *Provider {
	return &Provider{client: client}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// Complete generates a non-streaming completion.
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, buildRequest(req))
	if err != nil {
		return nil, wrapError(err)
	}

	return convertResponse(resp)
}

// Stream generates a streaming completion.
func (p *Provider) Stream(ctx context.Context, req providers.CompletionRequest) (providers.StreamReader, error) {
	apiReq := buildRequest(req)
	apiReq.Stream = true
	apiReq.StreamOptions = &goopenai.StreamOptions{IncludeUsage: true}

	stream, err := p.client.CreateChatCompletionStream(ctx, apiReq)
	if err != nil {
		return nil, wrapError(err)
	}

	return &streamReader{stream: stream}, nil
}

// buildRequest maps the provider-agnostic request onto the chat completions API.
func buildRequest(req providers.CompletionRequest) goopenai.ChatCompletionRequest {
	apiReq := goopenai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    buildMessages(req),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	}

	if req.ReasoningEffort != providers.ReasoningEffortNone {
		apiReq.ReasoningEffort = string(req.ReasoningEffort)
	}

	for _, tool := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	if req.ToolChoice != "" && len(apiReq.Tools) > 0 {
		apiReq.ToolChoice = req.ToolChoice
	}

	return apiReq
}

func buildMessages(req providers.CompletionRequest) []goopenai.ChatCompletionMessage {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages)+1)

	if req.SystemPrompt != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	for _, msg := range req.Messages {
		apiMsg := goopenai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
			Name:    msg.Name,
		}

		if msg.Role == providers.RoleTool {
			apiMsg.ToolCallID = msg.ToolCallID
		}

		for _, tc := range msg.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			apiMsg.ToolCalls = append(apiMsg.ToolCalls, goopenai.ToolCall{
				ID:   tc.ID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}

		messages = append(messages, apiMsg)
	}

	return messages
}

func convertResponse(resp goopenai.ChatCompletionResponse) (*providers.CompletionResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: response %s has no choices", resp.ID)
	}

	choice := resp.Choices[0]

	out := &providers.CompletionResponse{
		ID:           resp.ID,
		Content:      choice.Message.Content,
		FinishReason: convertFinishReason(choice.FinishReason),
		Model:        resp.Model,
		Created:      time.Unix(resp.Created, 0),
		Usage:        convertUsage(resp.Usage),
	}

	for _, tc := range choice.Message.ToolCalls {
		call, err := convertToolCall(tc)
		if err != nil {
			return nil, err
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}

	return out, nil
}

func convertToolCall(tc goopenai.ToolCall) (providers.ToolCall, error) {
	args := map[string]any{}
	if raw := tc.Function.Arguments; raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return providers.ToolCall{}, fmt.Errorf("openai: tool call %s has invalid arguments: %w", tc.ID, err)
		}
	}
	return providers.ToolCall{
		ID:        tc.ID,
		Name:      tc.Function.Name,
		Arguments: args,
	}, nil
}

func convertFinishReason(reason goopenai.FinishReason) providers.FinishReason {
	switch reason {
	case goopenai.FinishReasonStop:
		return providers.FinishReasonStop
	case goopenai.FinishReasonToolCalls, goopenai.FinishReasonFunctionCall:
		return providers.FinishReasonToolCalls
	case goopenai.FinishReasonLength:
		return providers.FinishReasonLength
	default:
		return providers.FinishReason(reason)
	}
}

func convertUsage(usage goopenai.Usage) providers.TokenUsage {
	out := providers.TokenUsage{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}
	if usage.CompletionTokensDetails != nil {
		out.ReasoningTokens = usage.CompletionTokensDetails.ReasoningTokens
	}
	return out
}

// wrapError attaches retry sentinels to API errors so the agent's retry
// policy can classify them.
func wrapError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		if sentinel := retry.ClassifyStatus(apiErr.HTTPStatusCode); sentinel != nil {
			return fmt.Errorf("%w: %v", sentinel, apiErr)
		}
		return err
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		if sentinel := retry.ClassifyStatus(reqErr.HTTPStatusCode); sentinel != nil {
			return fmt.Errorf("%w: %v", sentinel, reqErr)
		}
	}

	return err
}

// streamReader adapts the SDK stream to providers.StreamReader.
type streamReader struct {
	stream *goopenai.ChatCompletionStream
	usage  *providers.TokenUsage
}

// Next returns the next chunk or io.EOF when the stream is done.
func (s *streamReader) Next() (*providers.StreamChunk, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, wrapError(err)
		}

		// The final frame carries usage with no choices when
		// stream_options.include_usage is set.
		if resp.Usage != nil {
			s.usage = &providers.TokenUsage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
			if resp.Usage.CompletionTokensDetails != nil {
				s.usage.ReasoningTokens = resp.Usage.CompletionTokensDetails.ReasoningTokens
			}
		}

		if len(resp.Choices) == 0 {
			if resp.Usage != nil {
				return &providers.StreamChunk{IsComplete: true, Usage: s.usage}, nil
			}
			continue
		}

		choice := resp.Choices[0]
		chunk := &providers.StreamChunk{
			Content: choice.Delta.Content,
		}

		if len(choice.Delta.ToolCalls) > 0 {
			tc := choice.Delta.ToolCalls[0]
			chunk.ToolCallID = tc.ID
			chunk.ToolName = tc.Function.Name
			chunk.ToolArgs = tc.Function.Arguments
		}

		if choice.FinishReason != "" {
			chunk.IsComplete = true
			chunk.FinishReason = convertFinishReason(choice.FinishReason)
			chunk.Usage = s.usage
		}

		return chunk, nil
	}
}

// Close closes the underlying SDK stream.
func (s *streamReader) Close() error {
	return s.stream.Close()
}
