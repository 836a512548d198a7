// Package anthropic implements providers.Provider on top of the official
// Anthropic SDK. The messages API differs from OpenAI in three ways the
// conversion below has to absorb: the system prompt travels outside the
// message list, tool calls and tool results are content blocks rather than
// dedicated roles, and tool results must appear in a user message.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentloom/agentloom/internal/retry"
	"github.com/agentloom/agentloom/providers"
)

const defaultMaxTokens = 4096

// Provider implements providers.Provider against the Anthropic API.
type Provider struct {
	client sdk.Client
}

// Option customizes the provider.
type Option = option.RequestOption

// WithBaseURL points the client at a different endpoint.
func WithBaseURL(url string) Option {
	return option.WithBaseURL(url)
}

// New creates an Anthropic provider.
func New(apiKey string, opts ...Option) *Provider {
	all := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Provider{client: sdk.NewClient(all...)}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "anthropic"
}

// Complete generates a non-streaming completion.
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	msg, err := p.client.Messages.New(ctx, buildParams(req))
	if err != nil {
		return nil, wrapError(err)
	}

	out := &providers.CompletionResponse{
		ID:           msg.ID,
		Model:        string(msg.Model),
		FinishReason: convertStopReason(string(msg.StopReason)),
		Created:      time.Now(),
		Usage: providers.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}

	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case sdk.TextBlock:
			out.Content += b.Text
		case sdk.ToolUseBlock:
			args := map[string]any{}
			if len(b.Input) > 0 {
				if err := json.Unmarshal(b.Input, &args); err != nil {
					return nil, fmt.Errorf("anthropic: tool use %s has invalid input: %w", b.ID, err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, providers.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: args,
			})
		}
	}

	return out, nil
}

// Stream generates a streaming completion.
func (p *Provider) Stream(ctx context.Context, req providers.CompletionRequest) (providers.StreamReader, error) {
	stream := p.client.Messages.NewStreaming(ctx, buildParams(req))
	return &streamReader{stream: stream}, nil
}

func buildParams(req providers.CompletionRequest) sdk.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  buildMessages(req.Messages),
	}

	if req.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(float64(req.Temperature))
	}
	if req.TopP > 0 {
		params.TopP = sdk.Float(float64(req.TopP))
	}

	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        tool.Name,
				Description: sdk.String(tool.Description),
				InputSchema: buildInputSchema(tool.Parameters),
			},
		})
	}

	switch req.ToolChoice {
	case "", "auto":
	case "required", "any":
		params.ToolChoice = sdk.ToolChoiceUnionParam{OfAny: &sdk.ToolChoiceAnyParam{}}
	default:
		params.ToolChoice = sdk.ToolChoiceUnionParam{
			OfTool: &sdk.ToolChoiceToolParam{Name: req.ToolChoice},
		}
	}

	return params
}

// buildInputSchema lifts a JSON schema map into the SDK's input schema
// shape, which carries properties and required separately.
func buildInputSchema(schema map[string]any) sdk.ToolInputSchemaParam {
	out := sdk.ToolInputSchemaParam{}

	if props, ok := schema["properties"]; ok {
		out.Properties = props
	}

	switch required := schema["required"].(type) {
	case []string:
		out.Required = required
	case []any:
		for _, r := range required {
			if s, ok := r.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	}

	return out
}

func buildMessages(messages []providers.Message) []sdk.MessageParam {
	var out []sdk.MessageParam
	var pendingResults []sdk.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			out = append(out, sdk.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case providers.RoleTool:
			// Tool results for one assistant turn belong in a single
			// user message.
			pendingResults = append(pendingResults,
				sdk.NewToolResultBlock(msg.ToolCallID, msg.Content, false))

		case providers.RoleAssistant:
			flushResults()
			var blocks []sdk.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Arguments
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, args, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, sdk.NewAssistantMessage(blocks...))
			}

		case providers.RoleUser, providers.RoleSystem:
			// System messages inside the list are rare; treat them as
			// user context since the API takes the system prompt separately.
			flushResults()
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(msg.Content)))
		}
	}

	flushResults()
	return out
}

func convertStopReason(reason string) providers.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return providers.FinishReasonStop
	case "tool_use":
		return providers.FinishReasonToolCalls
	case "max_tokens":
		return providers.FinishReasonLength
	default:
		return providers.FinishReason(reason)
	}
}

func wrapError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		if sentinel := retry.ClassifyStatus(apiErr.StatusCode); sentinel != nil {
			return fmt.Errorf("%w: %v", sentinel, apiErr)
		}
	}
	return err
}

// streamReader adapts the SDK event stream to providers.StreamReader.
type streamReader struct {
	stream        *ssestream.Stream[sdk.MessageStreamEventUnion]
	currentToolID string
	inputTokens   int
	outputTokens  int
}

// Next converts SDK events to chunks, skipping bookkeeping events that
// carry nothing the agent loop consumes.
func (s *streamReader) Next() (*providers.StreamChunk, error) {
	for s.stream.Next() {
		event := s.stream.Current()

		switch ev := event.AsAny().(type) {
		case sdk.MessageStartEvent:
			s.inputTokens = int(ev.Message.Usage.InputTokens)

		case sdk.ContentBlockStartEvent:
			if tool, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
				s.currentToolID = tool.ID
				return &providers.StreamChunk{
					ToolCallID: tool.ID,
					ToolName:   tool.Name,
				}, nil
			}

		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				return &providers.StreamChunk{Content: delta.Text}, nil
			case sdk.InputJSONDelta:
				return &providers.StreamChunk{
					ToolCallID: s.currentToolID,
					ToolArgs:   delta.PartialJSON,
				}, nil
			}

		case sdk.ContentBlockStopEvent:
			s.currentToolID = ""

		case sdk.MessageDeltaEvent:
			s.outputTokens = int(ev.Usage.OutputTokens)
			return &providers.StreamChunk{
				IsComplete:   true,
				FinishReason: convertStopReason(string(ev.Delta.StopReason)),
				Usage: &providers.TokenUsage{
					PromptTokens:     s.inputTokens,
					CompletionTokens: s.outputTokens,
					TotalTokens:      s.inputTokens + s.outputTokens,
				},
			}, nil

		case sdk.MessageStopEvent:
			// Final event; the loop below reports EOF.
		}
	}

	if err := s.stream.Err(); err != nil {
		return nil, wrapError(err)
	}
	return nil, io.EOF
}

// Close closes the underlying SDK stream.
func (s *streamReader) Close() error {
	return s.stream.Close()
}
