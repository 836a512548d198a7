package agentloom

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agentloom/agentloom/providers"
)

type handoffOptions struct {
	includeTrace bool
	maxTurns     int
	context      HandoffContext
	registry     *HandoffRegistry
}

func defaultHandoffOptions() handoffOptions {
	return handoffOptions{maxTurns: 10}
}

// HandoffContext carries background for the delegated agent: why the work
// is being handed over, plus structured metadata for the registry record.
type HandoffContext struct {
	Background string         `json:"background,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// HandoffOption configures a handoff.
type HandoffOption func(*handoffOptions)

// WithIncludeTrace captures the delegate's reasoning steps in the result.
// Useful when the delegating agent needs to see how the work was done; it
// increases context usage.
func WithIncludeTrace(include bool) HandoffOption {
	return func(o *handoffOptions) {
		o.includeTrace = include
	}
}

// WithMaxTurns lowers the delegate's iteration budget for this handoff.
func WithMaxTurns(max int) HandoffOption {
	return func(o *handoffOptions) {
		o.maxTurns = max
	}
}

// WithContext supplies background the delegate sees ahead of the task.
func WithContext(ctx HandoffContext) HandoffOption {
	return func(o *handoffOptions) {
		o.context = ctx
	}
}

// WithRegistry records the handoff lifecycle (pending, in progress,
// completed or failed) in the given registry.
func WithRegistry(registry *HandoffRegistry) HandoffOption {
	return func(o *handoffOptions) {
		o.registry = registry
	}
}

// HandoffResult is the outcome of a delegation. Trace is populated only
// when WithIncludeTrace was set; Usage covers the delegate's whole run.
type HandoffResult struct {
	Response string               `json:"response"`
	Summary  string               `json:"summary,omitempty"`
	Trace    []HandoffTraceItem   `json:"trace,omitempty"`
	Usage    providers.TokenUsage `json:"usage"`
	Metadata map[string]any       `json:"metadata,omitempty"`
}

// HandoffTraceItem is one step of the delegate's run.
type HandoffTraceItem struct {
	Type    string `json:"type"` // thought, tool_call, tool_result or response
	Content string `json:"content"`
}

var (
	ErrHandoffAgentNil      = errors.New("agentloom: handoff target agent cannot be nil")
	ErrHandoffTaskEmpty     = errors.New("agentloom: handoff task cannot be empty")
	ErrHandoffExecutionFail = errors.New("agentloom: handoff execution failed")
)

// Handoff delegates a task to another agent. The delegate works in an
// isolated context and returns its result; the delegating agent can
// optionally see the execution trace.
//
// Example:
//
//	indexer, _ := agentloom.New(indexerConfig)
//	result, err := librarian.Handoff(ctx, indexer,
//	    "Reindex the guides section and resolve duplicate entries",
//	    agentloom.WithIncludeTrace(true),
//	)
func (a *Agent) Handoff(ctx context.Context, to *Agent, task string, opts ...HandoffOption) (*HandoffResult, error) {
	if to == nil {
		return nil, ErrHandoffAgentNil
	}
	if task == "" {
		return nil, ErrHandoffTaskEmpty
	}

	options := defaultHandoffOptions()
	for _, opt := range opts {
		opt(&options)
	}

	// Nest the delegate's work under the caller's trace when one exists.
	tracer := GetTracer(ctx)
	if tracer == nil {
		tracer = a.tracer
	}

	ctx, end := startSpan(ctx, tracer, "handoff")
	defer end()
	setSpanAttrs(ctx, tracer, map[string]any{
		"handoff_from":   a.Name(),
		"handoff_to":     to.Name(),
		"task_length":    len(task),
		"include_trace":  options.includeTrace,
		"max_turns":      options.maxTurns,
		"has_background": options.context.Background != "",
	})

	delegated := delegateWithTracer(to, tracer)
	options.capTurns(delegated)

	result, err := runHandoff(ctx, a.Name(), delegated, task, options)
	if err != nil {
		setSpanAttrs(ctx, tracer, map[string]any{"error": err.Error()})
		return nil, err
	}

	setSpanAttrs(ctx, tracer, map[string]any{
		"response_length": len(result.Response),
		"trace_items":     len(result.Trace),
		"has_summary":     result.Summary != "",
	})
	return result, nil
}

// capTurns lowers the delegate's iteration budget when maxTurns is tighter.
func (o handoffOptions) capTurns(agent *Agent) {
	if o.maxTurns > 0 && o.maxTurns < agent.maxIterations {
		agent.maxIterations = o.maxTurns
	}
}

// taskPrompt prefixes the task with its background, when there is one.
func (o handoffOptions) taskPrompt(task string) string {
	if o.context.Background == "" {
		return task
	}
	return fmt.Sprintf("Background: %s\n\nTask: %s", o.context.Background, task)
}

// runHandoff executes the delegate and drives the optional registry
// lifecycle around it. The registry record is created before any LLM work
// happens and resolves to completed or failed.
func runHandoff(ctx context.Context, from string, agent *Agent, task string, opts handoffOptions) (*HandoffResult, error) {
	var record Handoff
	if opts.registry != nil {
		var err error
		record, err = opts.registry.Create(from, agent.Name(), task, opts.context)
		if err != nil {
			return nil, fmt.Errorf("recording handoff: %w", err)
		}
		if err := opts.registry.Begin(record.ID); err != nil {
			agent.logger.Warn("failed to mark handoff in progress",
				"handoff_id", record.ID, "error", err)
		}
	}

	// Surface the delegation on the parent's event stream when running
	// inside another agent's loop.
	if publisher, ok := GetEventPublisher(ctx); ok {
		publisher(HandoffEvent(record.ID, from, agent.Name(), task))
	}

	response, summary, trace, usage, err := executeHandoff(ctx, agent, opts.taskPrompt(task), opts)
	if err != nil {
		if opts.registry != nil {
			if failErr := opts.registry.Fail(record.ID, err); failErr != nil {
				agent.logger.Warn("failed to mark handoff failed",
					"handoff_id", record.ID, "error", failErr)
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrHandoffExecutionFail, err)
	}

	result := &HandoffResult{
		Response: response,
		Summary:  summary,
		Usage:    usage,
		Metadata: make(map[string]any),
	}
	if opts.includeTrace {
		result.Trace = trace
	}

	if opts.registry != nil {
		result.Metadata["handoff_id"] = record.ID
		if err := opts.registry.Complete(record.ID, result); err != nil {
			agent.logger.Warn("failed to mark handoff completed",
				"handoff_id", record.ID, "error", err)
		}
	}

	return result, nil
}

// executeHandoff runs the delegate and folds its event stream into a
// response, an optional trace, and the accumulated usage.
func executeHandoff(ctx context.Context, agent *Agent, task string, opts handoffOptions) (string, string, []HandoffTraceItem, providers.TokenUsage, error) {
	var (
		trace    []HandoffTraceItem
		thinking strings.Builder
		response string
		usage    providers.TokenUsage
		runErr   error
	)

	record := func(itemType, content string) {
		if opts.includeTrace {
			trace = append(trace, HandoffTraceItem{Type: itemType, Content: content})
		}
	}

	for event := range agent.Run(ctx, task) {
		switch event.Type {
		case EventTypeThinkingChunk:
			if chunk, ok := event.Data["chunk"].(string); ok {
				thinking.WriteString(chunk)
				record("thought", chunk)
			}
		case EventTypeActionDetected:
			desc, _ := event.Data["description"].(string)
			toolID, _ := event.Data["tool_id"].(string)
			record("tool_call", fmt.Sprintf("%s (%s)", desc, toolID))
		case EventTypeActionResult:
			desc, _ := event.Data["description"].(string)
			record("tool_result", fmt.Sprintf("%s: %v", desc, event.Data["result"]))
		case EventTypeFinalOutput:
			if content, ok := event.Data["response"].(string); ok {
				response = content
				record("response", content)
			}
		case EventTypeAgentComplete:
			usage = usageFromEventData(event.Data)
		case EventTypeError:
			if msg, ok := event.Data["error"].(string); ok {
				runErr = errors.New(msg)
			}
		}
	}

	if runErr != nil {
		return "", "", nil, providers.TokenUsage{}, runErr
	}

	// A run that never produced a final output still answered through its
	// accumulated thinking.
	if response == "" {
		response = thinking.String()
	}
	return response, generateHandoffSummary(trace), trace, usage, nil
}

// usageFromEventData reads the token counters off an agent_complete event.
func usageFromEventData(data map[string]any) providers.TokenUsage {
	intAt := func(key string) int {
		if v, ok := data[key].(int); ok {
			return v
		}
		return 0
	}
	return providers.TokenUsage{
		PromptTokens:     intAt("prompt_tokens"),
		CompletionTokens: intAt("completion_tokens"),
		ReasoningTokens:  intAt("reasoning_tokens"),
		TotalTokens:      intAt("total_tokens"),
	}
}

// generateHandoffSummary condenses a trace into one line of accounting.
func generateHandoffSummary(trace []HandoffTraceItem) string {
	if len(trace) == 0 {
		return ""
	}

	toolCalls := 0
	for _, item := range trace {
		if item.Type == "tool_call" {
			toolCalls++
		}
	}

	if toolCalls == 0 {
		return fmt.Sprintf("Completed in %d step(s)", len(trace))
	}
	return fmt.Sprintf("Completed with %d tool call(s) across %d step(s)", toolCalls, len(trace))
}

// AsHandoffTool wraps the agent as a Tool so delegation can be triggered by
// the LLM through tool calling.
//
// Example:
//
//	indexer, _ := agentloom.New(indexerConfig)
//	librarian, _ := agentloom.New(librarianConfig)
//
//	librarian.AddTool(indexer.AsHandoffTool(
//	    "delegate_indexing",
//	    "Hand indexing work to the indexer agent",
//	))
func (a *Agent) AsHandoffTool(name, description string, opts ...HandoffOption) Tool {
	return NewTool(name).
		WithDescription(description).
		WithParameter("task", String().Required().WithDescription("The task to delegate to this agent")).
		WithParameter("background", String().WithDescription("Optional background context about why this handoff is happening")).
		WithHandler(func(ctx context.Context, args map[string]any) (any, error) {
			task, ok := args["task"].(string)
			if !ok || task == "" {
				return nil, ErrHandoffTaskEmpty
			}

			options := defaultHandoffOptions()
			for _, opt := range opts {
				opt(&options)
			}
			// A per-call background overrides any registered default.
			if bg, ok := args["background"].(string); ok && bg != "" {
				options.context.Background = bg
			}

			delegated := delegateWithTracer(a, GetTracer(ctx))
			options.capTurns(delegated)

			from, _ := GetAgentName(ctx)
			result, err := runHandoff(ctx, from, delegated, task, options)
			if err != nil {
				return nil, err
			}
			return result, nil
		}).
		Build()
}
