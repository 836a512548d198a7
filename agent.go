// Package agentloom provides a flexible framework for building LLM-powered agents with tool calling.
package agentloom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/agentloom/agentloom/internal/logging"
	"github.com/agentloom/agentloom/internal/parallel"
	"github.com/agentloom/agentloom/internal/retry"
	"github.com/agentloom/agentloom/internal/timeout"
	"github.com/agentloom/agentloom/middleware"
	"github.com/agentloom/agentloom/providers"
	"github.com/agentloom/agentloom/providers/openai"
)

// Aliases so callers configure agents without importing internal packages.
type (
	RetryConfig    = retry.RetryConfig
	ParallelConfig = parallel.ParallelConfig
	SafetyMode     = parallel.SafetyMode
	Middleware     = middleware.Middleware
	BaseMiddleware = middleware.BaseMiddleware
)

// Parallel tool execution safety modes.
const (
	SafetyModeOptimistic  = parallel.SafetyModeOptimistic
	SafetyModePessimistic = parallel.SafetyModePessimistic
)

// Function and sentinel re-exports for convenience
var (
	DefaultRetryConfig    = retry.DefaultRetryConfig
	DefaultParallelConfig = parallel.DefaultParallelConfig
	ErrRateLimited        = retry.ErrRateLimited
	ErrTimeout            = retry.ErrTimeout
	ErrServerError        = retry.ErrServerError
)

// WithRetry runs fn under cfg's retry policy, backing off between attempts.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	return retry.WithRetry(ctx, cfg, fn)
}

const defaultEventBuffer = 10

// SystemPromptFunc builds the system prompt from context.
type SystemPromptFunc func(ctx context.Context) string

// Agent orchestrates LLM interactions with tool calling and streaming.
type Agent struct {
	provider          providers.Provider
	model             string
	systemPrompt      string
	systemPromptFn    SystemPromptFunc
	tools             map[string]Tool
	maxIterations     int
	temperature       float32
	reasoningEffort   providers.ReasoningEffort
	streamResponses   bool
	toolChoice        string
	retryConfig       RetryConfig
	timeoutConfig     TimeoutConfig
	conversationStore ConversationStore
	approvalConfig    ApprovalConfig
	loggingConfig     LoggingConfig
	logger            *slog.Logger
	middlewares       []Middleware
	eventBuffer       int
	parallelConfig    ParallelConfig
	tracer            Tracer
	agentName         string
	description       string
}

// Config holds agent configuration.
type Config struct {
	APIKey                string
	Model                 string
	SystemPrompt          string
	SystemPromptFn        SystemPromptFunc
	MaxIterations         int
	Temperature           float32
	ReasoningEffort       providers.ReasoningEffort
	StreamResponses       bool
	ToolChoice            string
	Retry                 *RetryConfig
	Timeout               *TimeoutConfig
	ConversationStore     ConversationStore
	Approval              *ApprovalConfig
	Provider              providers.Provider
	Logging               *LoggingConfig
	EventBuffer           int
	ParallelToolExecution *ParallelConfig
	Tracer                Tracer
	AgentName             string
	Description           string
}

// Common validation errors.
var (
	ErrMissingAPIKey          = errors.New("agentloom: APIKey is required")
	ErrInvalidIterations      = errors.New("agentloom: MaxIterations must be between 1 and 100")
	ErrInvalidTemperature     = errors.New("agentloom: Temperature must be between 0.0 and 2.0")
	ErrInvalidReasoningEffort = errors.New("agentloom: ReasoningEffort must be valid")
)

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.APIKey == "" && c.Provider == nil {
		return ErrMissingAPIKey
	}
	if c.MaxIterations < 0 || c.MaxIterations > 100 {
		return ErrInvalidIterations
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return ErrInvalidTemperature
	}
	if !c.ReasoningEffort.Valid() {
		return ErrInvalidReasoningEffort
	}
	return nil
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Model:           "gpt-4o-mini",
		MaxIterations:   5,
		Temperature:     0.7,
		StreamResponses: true,
	}
}

// New creates a new agent with the given configuration. Zero-value fields
// fall back to the DefaultConfig values.
func New(cfg Config) (*Agent, error) {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = 5
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent config: %w", err)
	}

	loggingConfig := valueOr(cfg.Logging, DefaultLoggingConfig())
	logger := logging.ResolveLogger(loggingConfig)
	retryConfig := valueOr(cfg.Retry, DefaultRetryConfig())
	timeoutConfig := valueOr(cfg.Timeout, timeout.DefaultTimeoutConfig())
	approvalConfig := valueOr(cfg.Approval, ApprovalConfig{})

	parallelConfig := valueOr(cfg.ParallelToolExecution, DefaultParallelConfig())
	if parallelConfig.MaxConcurrent <= 0 {
		parallelConfig.MaxConcurrent = 1
	}

	provider := cfg.Provider
	if provider == nil {
		provider = openai.New(cfg.APIKey)
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = &NoOpTracer{}
	}

	agentName := cfg.AgentName
	if agentName == "" {
		agentName = cfg.Model
	}
	eventBuffer := cfg.EventBuffer
	if eventBuffer <= 0 {
		eventBuffer = defaultEventBuffer
	}

	return &Agent{
		provider:          provider,
		model:             cfg.Model,
		systemPrompt:      cfg.SystemPrompt,
		systemPromptFn:    cfg.SystemPromptFn,
		tools:             make(map[string]Tool),
		maxIterations:     cfg.MaxIterations,
		temperature:       cfg.Temperature,
		reasoningEffort:   cfg.ReasoningEffort,
		streamResponses:   cfg.StreamResponses,
		toolChoice:        cfg.ToolChoice,
		retryConfig:       retryConfig,
		timeoutConfig:     timeoutConfig,
		conversationStore: cfg.ConversationStore,
		approvalConfig:    approvalConfig,
		loggingConfig:     loggingConfig,
		logger:            logger,
		eventBuffer:       eventBuffer,
		parallelConfig:    parallelConfig,
		tracer:            tracer,
		agentName:         agentName,
		description:       cfg.Description,
	}, nil
}

// valueOr dereferences override when set, otherwise returns def.
func valueOr[T any](override *T, def T) T {
	if override == nil {
		return def
	}
	return *override
}

// Name returns the agent's name.
func (a *Agent) Name() string {
	return a.agentName
}

// Description returns the agent's description.
func (a *Agent) Description() string {
	return a.description
}

// AddTool registers a tool. A tool with the same name replaces the previous
// registration.
func (a *Agent) AddTool(tool Tool) {
	a.tools[tool.Name()] = tool
}

// AsTool wraps the agent as a tool so another agent can call it like any
// other capability. The wrapped run's events are consumed internally; only
// the final response surfaces as the tool result.
func (a *Agent) AsTool(name, description string) Tool {
	return NewTool(name).
		WithDescription(description).
		WithParameter("input", String().Required().WithDescription("Task input")).
		WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
			input, ok := args["input"].(string)
			if !ok {
				return nil, fmt.Errorf("input required")
			}

			var last string
			for event := range a.Run(ctx, input) {
				if event.Type != EventTypeFinalOutput {
					continue
				}
				if response, ok := event.Data["response"].(string); ok {
					last = response
				}
			}

			if last == "" {
				return "Agent completed without final output", nil
			}
			return last, nil
		}).
		Build()
}

// Use registers middleware for agent execution hooks.
func (a *Agent) Use(m Middleware) {
	if m == nil {
		return
	}
	a.middlewares = append(a.middlewares, m)
}

// Start hooks thread the context through middlewares in registration order.
// Completion hooks run in reverse registration order.

func (a *Agent) applyAgentStart(ctx context.Context, input string) context.Context {
	for _, m := range a.middlewares {
		ctx = m.OnAgentStart(ctx, input)
	}
	return ctx
}

func (a *Agent) applyAgentComplete(ctx context.Context, output string, err error) {
	a.eachReversed(func(m Middleware) { m.OnAgentComplete(ctx, output, err) })
}

func (a *Agent) applyToolStart(ctx context.Context, tool string, args any) context.Context {
	for _, m := range a.middlewares {
		ctx = m.OnToolStart(ctx, tool, args)
	}
	return ctx
}

func (a *Agent) applyToolComplete(ctx context.Context, tool string, result any, err error) {
	a.eachReversed(func(m Middleware) { m.OnToolComplete(ctx, tool, result, err) })
}

func (a *Agent) applyLLMCall(ctx context.Context, req any) context.Context {
	for _, m := range a.middlewares {
		ctx = m.OnLLMCall(ctx, req)
	}
	return ctx
}

func (a *Agent) applyLLMResponse(ctx context.Context, resp any, err error) {
	a.eachReversed(func(m Middleware) { m.OnLLMResponse(ctx, resp, err) })
}

func (a *Agent) eachReversed(fn func(Middleware)) {
	for i := len(a.middlewares) - 1; i >= 0; i-- {
		fn(a.middlewares[i])
	}
}

// emit stamps correlation fields from the context onto the event before
// sending it. Data keys already set by the event constructor win.
func (a *Agent) emit(ctx context.Context, events chan<- Event, event Event) {
	if id, ok := GetTraceID(ctx); ok && id != "" {
		event.TraceID = id
	}
	if id, ok := GetSpanID(ctx); ok && id != "" {
		event.SpanID = id
	}
	if name, ok := GetAgentName(ctx); ok && name != "" {
		event.Data = setIfAbsent(event.Data, "agent_name", name)
	}
	if iteration, ok := GetIteration(ctx); ok {
		event.Data = setIfAbsent(event.Data, "iteration", iteration)
	}
	events <- event
}

func setIfAbsent(data map[string]any, key string, value any) map[string]any {
	if data == nil {
		data = map[string]any{}
	}
	if _, exists := data[key]; !exists {
		data[key] = value
	}
	return data
}

var errNoConversationStore = errors.New("agentloom: conversation store not configured")

func (a *Agent) requireStore() (ConversationStore, error) {
	if a.conversationStore == nil {
		return nil, errNoConversationStore
	}
	return a.conversationStore, nil
}

// GetConversation loads a stored conversation by ID.
func (a *Agent) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	store, err := a.requireStore()
	if err != nil {
		return Conversation{}, err
	}
	return store.Load(ctx, conversationID)
}

// SaveConversation persists a conversation.
func (a *Agent) SaveConversation(ctx context.Context, conv Conversation) error {
	store, err := a.requireStore()
	if err != nil {
		return err
	}
	return store.Save(ctx, conv)
}

// AppendToConversation adds a turn to a stored conversation.
func (a *Agent) AppendToConversation(ctx context.Context, conversationID string, turn ConversationTurn) error {
	store, err := a.requireStore()
	if err != nil {
		return err
	}
	return store.Append(ctx, conversationID, turn)
}

// DeleteConversation removes a stored conversation.
func (a *Agent) DeleteConversation(ctx context.Context, conversationID string) error {
	store, err := a.requireStore()
	if err != nil {
		return err
	}
	return store.Delete(ctx, conversationID)
}

// AddContext injects content into the conversation as a user turn, for
// feeding the agent background material between runs.
func (a *Agent) AddContext(ctx context.Context, conversationID string, content string) error {
	store, err := a.requireStore()
	if err != nil {
		return err
	}
	turn := ConversationTurn{
		Role:      "user",
		Content:   content,
		Timestamp: time.Now(),
	}
	return store.Append(ctx, conversationID, turn)
}

// ClearConversation empties a conversation's turns while keeping its ID,
// resetting the timestamps as if it were freshly created.
func (a *Agent) ClearConversation(ctx context.Context, conversationID string) error {
	store, err := a.requireStore()
	if err != nil {
		return err
	}

	conv, err := store.Load(ctx, conversationID)
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, conversationID); err != nil {
		return err
	}

	conv.Turns = nil
	conv.CreatedAt = time.Now()
	conv.UpdatedAt = time.Now()
	return store.Save(ctx, conv)
}

// ForkConversation copies an existing conversation under a new ID and
// appends a fresh user message, leaving the original untouched.
func (a *Agent) ForkConversation(ctx context.Context, originalID, newID, userMessage string) error {
	store, err := a.requireStore()
	if err != nil {
		return err
	}

	original, err := store.Load(ctx, originalID)
	if err != nil {
		return err
	}

	forked := Conversation{
		ID:       newID,
		AgentID:  original.AgentID,
		Turns:    append(make([]ConversationTurn, 0, len(original.Turns)+1), original.Turns...),
		Metadata: make(map[string]any, len(original.Metadata)),
	}
	maps.Copy(forked.Metadata, original.Metadata)
	forked.Turns = append(forked.Turns, ConversationTurn{
		Role:      "user",
		Content:   userMessage,
		Timestamp: time.Now(),
	})

	return store.Save(ctx, forked)
}

// RunConversation runs the agent with the stored conversation history as
// context, then appends the new user and assistant turns to the store.
func (a *Agent) RunConversation(ctx context.Context, conversationID, userMessage string) (<-chan Event, error) {
	store, err := a.requireStore()
	if err != nil {
		return nil, err
	}

	conv, err := store.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	ctx = WithConversation(ctx, conversationID)
	events := a.run(ctx, userMessage, conversationMessages(conv))

	out := make(chan Event, a.eventBuffer)
	go func() {
		defer close(out)

		var finalOutput string
		for event := range events {
			if event.Type == EventTypeFinalOutput {
				if response, ok := event.Data["response"].(string); ok {
					finalOutput = response
				}
			}
			out <- event
		}

		// The run context may be cancelled by the time the stream drains,
		// so persist the turns with a detached context.
		appendCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		userTurn := ConversationTurn{Role: "user", Content: userMessage, Timestamp: time.Now()}
		if err := store.Append(appendCtx, conversationID, userTurn); err != nil {
			a.logger.Warn("failed to append user turn", "conversation_id", conversationID, "error", err)
			return
		}

		assistantTurn := ConversationTurn{Role: "assistant", Content: finalOutput, Timestamp: time.Now()}
		if err := store.Append(appendCtx, conversationID, assistantTurn); err != nil {
			a.logger.Warn("failed to append assistant turn", "conversation_id", conversationID, "error", err)
		}
	}()

	return out, nil
}

// conversationMessages converts stored turns into provider messages.
func conversationMessages(conv Conversation) []providers.Message {
	messages := make([]providers.Message, 0, len(conv.Turns))
	for _, turn := range conv.Turns {
		switch turn.Role {
		case "user":
			messages = append(messages, providers.Message{
				Role:    providers.RoleUser,
				Content: turn.Content,
			})
		case "assistant":
			msg := providers.Message{
				Role:    providers.RoleAssistant,
				Content: turn.Content,
			}
			for _, tc := range turn.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, providers.ToolCall{
					ID:        tc.ID,
					Name:      tc.Name,
					Arguments: tc.Arguments,
				})
			}
			messages = append(messages, msg)
		case "tool":
			for _, tr := range turn.ToolResults {
				content := tr.Error
				if content == "" {
					content = fmt.Sprintf("%v", tr.Result)
				}
				messages = append(messages, providers.Message{
					Role:       providers.RoleTool,
					Content:    content,
					ToolCallID: tr.CallID,
				})
			}
		}
	}
	return messages
}
