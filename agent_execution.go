package agentloom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/agentloom/agentloom/internal/logging"
	"github.com/agentloom/agentloom/providers"
)

// Run executes the agent with streaming events.
func (a *Agent) Run(ctx context.Context, userMessage string) <-chan Event {
	return a.run(ctx, userMessage, nil)
}

// run is the shared implementation behind Run and RunConversation. The
// history messages are prepended to the new user message.
func (a *Agent) run(ctx context.Context, userMessage string, history []providers.Message) <-chan Event {
	events := make(chan Event, a.eventBuffer)
	startTime := time.Now()

	go func() {
		traceCtx, endTrace := a.tracer.StartTrace(ctx, "agent.run",
			WithTraceInput(userMessage),
			WithTraceStartTime(startTime),
		)
		defer endTrace()
		ctx = traceCtx

		ctx = WithTracer(ctx, a.tracer)
		ctx = WithAgentName(ctx, a.agentName)

		// When a parent agent is listening (handoffs, subagents), forward
		// events to it as well. Error events stay local so the parent's
		// stream is not polluted with recoverable child failures.
		parentPub, hasParent := GetEventPublisher(ctx)
		var runLoopChan chan<- Event
		var internalChan chan Event
		var wg sync.WaitGroup

		if hasParent {
			internalChan = make(chan Event, a.eventBuffer)
			runLoopChan = internalChan
			wg.Add(1)
			go func() {
				defer wg.Done()
				for e := range internalChan {
					if e.Type != EventTypeError {
						parentPub(e)
					}
					events <- e
				}
			}()
		} else {
			runLoopChan = events
		}

		childPub := func(e Event) {
			runLoopChan <- e
		}
		execCtx := WithEventPublisher(ctx, childPub)

		execCtx, cancel := a.withExecutionTimeout(execCtx)
		if cancel != nil {
			defer cancel()
		}

		execCtx = a.applyAgentStart(execCtx, userMessage)

		agentName := a.agentName
		a.emit(execCtx, runLoopChan, AgentStart(agentName))

		finalOutput, usage, iterations, runErr := a.runLoop(execCtx, userMessage, history, runLoopChan)
		a.applyAgentComplete(execCtx, finalOutput, runErr)

		// Always emit final output event (even if empty)
		// Empty output is still a valid completion state that clients need to know about
		a.emit(execCtx, runLoopChan, FinalOutput("", finalOutput))

		duration := time.Since(startTime).Milliseconds()
		a.emit(execCtx, runLoopChan, AgentCompleteWithUsage(agentName, finalOutput, usage, iterations, duration))

		if hasParent {
			close(internalChan)
			wg.Wait()
		}
		close(events)
	}()

	return events
}

// runLoop orchestrates the multi-turn conversation.
func (a *Agent) runLoop(ctx context.Context, userMessage string, history []providers.Message, events chan<- Event) (string, providers.TokenUsage, int, error) {
	conversationHistory := make([]providers.Message, 0, len(history)+1)
	conversationHistory = append(conversationHistory, history...)
	conversationHistory = append(conversationHistory, providers.Message{
		Role:    providers.RoleUser,
		Content: userMessage,
	})

	var finalOutput string
	var totalUsage providers.TokenUsage
	iterationsUsed := 0
	completed := false

	for iteration := 0; iteration < a.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			runErr := fmt.Errorf("agent execution timeout: %w", err)
			a.emit(ctx, events, Error(runErr))
			return finalOutput, totalUsage, iterationsUsed, runErr
		}

		a.logger.Debug("agent iteration", "iteration", iteration, "max", a.maxIterations)

		iterCtx := WithIteration(ctx, iteration+1)
		req := a.buildCompletionRequest(iterCtx, conversationHistory)
		a.logPrompt(req)

		var resp *providers.CompletionResponse
		var err error

		if a.streamResponses {
			resp, err = a.runStreamingIteration(iterCtx, req, events)
		} else {
			resp, err = a.runNonStreamingIteration(iterCtx, req, events)
		}

		if err != nil {
			return finalOutput, totalUsage, iterationsUsed, err
		}

		resp.ToolCalls = ensureToolCallIDs(filterCompleteToolCalls(resp.ToolCalls))
		iterationsUsed = iteration + 1

		totalUsage.Add(resp.Usage)

		assistantMsg := providers.Message{
			Role:      providers.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		conversationHistory = append(conversationHistory, assistantMsg)

		if len(resp.ToolCalls) == 0 {
			// An empty response with no tool calls still counts as completion.
			finalOutput = resp.Content
			completed = true
			a.logger.Info("agent completed", "iterations", iteration+1, "output_length", len(finalOutput))
			break
		}

		toolMessages := a.executeToolCalls(iterCtx, resp.ToolCalls, events)
		conversationHistory = append(conversationHistory, toolMessages...)

		a.logger.Debug("continuing iteration", "tool_calls_executed", len(toolMessages))
	}

	if !completed {
		return "", totalUsage, iterationsUsed, fmt.Errorf("max iterations reached without completion")
	}

	return finalOutput, totalUsage, iterationsUsed, nil
}

func (a *Agent) buildSystemPrompt(ctx context.Context) string {
	if a.systemPromptFn != nil {
		return a.systemPromptFn(ctx)
	}
	return a.systemPrompt
}

func (a *Agent) withExecutionTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeoutConfig.AgentExecution <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, a.timeoutConfig.AgentExecution)
}

func (a *Agent) withLLMTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeoutConfig.LLMCall <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, a.timeoutConfig.LLMCall)
}

func (a *Agent) withToolTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeoutConfig.ToolExecution <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, a.timeoutConfig.ToolExecution)
}

func (a *Agent) handleIterationError(ctx context.Context, events chan<- Event, err error, msg string, keyvals ...any) error {
	a.logger.Error(msg, append(keyvals, "error", err)...)
	a.emit(ctx, events, Error(err))
	return err
}

// logPrompt appends the outgoing request to the prompt log file when enabled.
func (a *Agent) logPrompt(req providers.CompletionRequest) {
	if !a.loggingConfig.LogPrompts {
		return
	}

	payload := map[string]any{
		"timestamp":     time.Now().UTC().Format(time.RFC3339Nano),
		"model":         req.Model,
		"system_prompt": req.SystemPrompt,
		"messages":      req.Messages,
	}

	var entry any = payload
	if a.loggingConfig.RedactSensitive {
		entry = logging.RedactValue(payload)
	}

	if err := logging.WriteJSONLine(logging.ResolvePromptLogPath(a.loggingConfig), entry); err != nil {
		a.logger.Warn("failed to write prompt log", "error", err)
	}
}

// buildCompletionRequest creates a provider-agnostic completion request from current conversation state.
func (a *Agent) buildCompletionRequest(ctx context.Context, conversationHistory []providers.Message) providers.CompletionRequest {
	// Build tool definitions in a stable order
	tools := make([]providers.ToolDefinition, 0, len(a.tools))
	if len(a.tools) > 0 {
		names := make([]string, 0, len(a.tools))
		for name := range a.tools {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			tool := a.tools[name]
			tools = append(tools, tool.ToToolDefinition())
		}
	}

	toolChoice := a.toolChoice
	if toolChoice == "" {
		toolChoice = "auto"
	}

	return providers.CompletionRequest{
		Model:             a.model,
		SystemPrompt:      a.buildSystemPrompt(ctx),
		Messages:          conversationHistory,
		Tools:             tools,
		Temperature:       a.temperature,
		MaxTokens:         0, // Let provider use default
		TopP:              0, // Let provider use default
		ToolChoice:        toolChoice,
		ParallelToolCalls: true,
		ReasoningEffort:   a.reasoningEffort,
	}
}

// runNonStreamingIteration executes a single non-streaming iteration.
func (a *Agent) runNonStreamingIteration(ctx context.Context, req providers.CompletionRequest, events chan<- Event) (*providers.CompletionResponse, error) {
	callCtx := a.applyLLMCall(ctx, req)
	callCtx, cancel := a.withLLMTimeout(callCtx)
	if cancel != nil {
		defer cancel()
	}

	callCtx = startLLMCallTiming(callCtx)

	resp, err := a.provider.Complete(callCtx, req)
	if err != nil {
		iterationErr := fmt.Errorf("provider completion error: %w", err)
		a.applyLLMResponse(callCtx, nil, iterationErr)
		a.logLLMGeneration(callCtx, req, nil, iterationErr)
		return nil, a.handleIterationError(callCtx, events, iterationErr, "completion failed", "model", a.model)
	}

	a.applyLLMResponse(callCtx, resp, nil)
	a.logLLMGeneration(callCtx, req, resp, nil)

	if a.loggingConfig.LogResponses {
		a.logger.Info("completion received",
			"content_length", len(resp.Content),
			"tool_calls", len(resp.ToolCalls),
			"finish_reason", resp.FinishReason)
	}

	return resp, nil
}

// runStreamingIteration executes a single streaming iteration.
func (a *Agent) runStreamingIteration(ctx context.Context, req providers.CompletionRequest, events chan<- Event) (*providers.CompletionResponse, error) {
	callCtx := a.applyLLMCall(ctx, req)
	callCtx, cancel := a.withLLMTimeout(callCtx)
	if cancel != nil {
		defer cancel()
	}

	callCtx = startLLMCallTiming(callCtx)

	stream, err := a.provider.Stream(callCtx, req)
	if err != nil {
		iterationErr := fmt.Errorf("provider stream error: %w", err)
		a.applyLLMResponse(callCtx, nil, iterationErr)
		return nil, a.handleIterationError(callCtx, events, iterationErr, "streaming failed", "model", a.model)
	}
	defer stream.Close()

	// Accumulate streaming response
	var content string
	var toolCalls []providers.ToolCall
	var usage *providers.TokenUsage
	var finishReason providers.FinishReason

	// Track tool calls being built across chunks
	activeToolCalls := make(map[string]*providers.ToolCall)
	toolArgsRaw := make(map[string]string)

	for {
		chunk, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			readErr := fmt.Errorf("stream read error: %w", err)
			a.applyLLMResponse(callCtx, nil, readErr)
			a.logLLMGeneration(callCtx, req, nil, readErr)
			return nil, a.handleIterationError(callCtx, events, readErr, "stream read failed", "model", a.model)
		}

		if timing := getLLMCallTiming(callCtx); timing != nil && timing.completionStartTime == nil {
			if chunk.Content != "" || chunk.ToolCallID != "" || chunk.ToolArgs != "" {
				start := time.Now()
				timing.completionStartTime = &start
			}
		}

		// Emit thinking chunks
		if chunk.Content != "" {
			content += chunk.Content
			a.emit(ctx, events, ThinkingChunk(chunk.Content))
		}

		// Handle tool call chunks
		if chunk.ToolCallID != "" {
			if activeToolCalls[chunk.ToolCallID] == nil {
				activeToolCalls[chunk.ToolCallID] = &providers.ToolCall{
					ID:        chunk.ToolCallID,
					Arguments: make(map[string]any),
				}
			}
			tc := activeToolCalls[chunk.ToolCallID]
			if chunk.ToolName != "" {
				tc.Name = chunk.ToolName
			}
			if chunk.ToolArgs != "" {
				toolArgsRaw[chunk.ToolCallID] = chunk.ToolArgs
				var args map[string]any
				if err := json.Unmarshal([]byte(chunk.ToolArgs), &args); err == nil {
					tc.Arguments = args
				}
			}
		}

		// Handle completion
		if chunk.IsComplete {
			finishReason = chunk.FinishReason
			if chunk.Usage != nil {
				usage = chunk.Usage
			}

			// Collect completed tool calls. Arguments may only be parseable
			// once the full raw JSON has arrived.
			for _, tc := range activeToolCalls {
				if len(tc.Arguments) == 0 {
					if raw, ok := toolArgsRaw[tc.ID]; ok {
						var args map[string]any
						if err := json.Unmarshal([]byte(raw), &args); err == nil {
							tc.Arguments = args
						}
					}
				}
				if tc.Name == "" {
					continue
				}
				if tc.Arguments == nil {
					tc.Arguments = map[string]any{}
				}
				toolCalls = append(toolCalls, *tc)
			}
			break
		}
	}

	resp := &providers.CompletionResponse{
		ID:           fmt.Sprintf("stream-%d", len(content)), // Generate ID
		Content:      content,
		ToolCalls:    ensureToolCallIDs(toolCalls),
		FinishReason: finishReason,
		Model:        a.model,
	}
	if usage != nil {
		resp.Usage = *usage
	}

	a.applyLLMResponse(callCtx, resp, nil)
	a.logLLMGeneration(callCtx, req, resp, nil)

	return resp, nil
}

// filterCompleteToolCalls drops tool calls the stream never finished naming.
func filterCompleteToolCalls(toolCalls []providers.ToolCall) []providers.ToolCall {
	if len(toolCalls) == 0 {
		return toolCalls
	}
	filtered := make([]providers.ToolCall, 0, len(toolCalls))
	for _, tc := range toolCalls {
		if tc.Name == "" {
			continue
		}
		if tc.Arguments == nil {
			tc.Arguments = map[string]any{}
		}
		filtered = append(filtered, tc)
	}
	return filtered
}

// ensureToolCallIDs fills in IDs for providers that omit them, avoiding
// collisions with IDs already present.
func ensureToolCallIDs(toolCalls []providers.ToolCall) []providers.ToolCall {
	if len(toolCalls) == 0 {
		return toolCalls
	}
	used := make(map[string]struct{}, len(toolCalls))
	for _, tc := range toolCalls {
		if tc.ID != "" {
			used[tc.ID] = struct{}{}
		}
	}
	next := 1
	for i := range toolCalls {
		if toolCalls[i].ID != "" {
			continue
		}
		for {
			id := fmt.Sprintf("call_%d", next)
			next++
			if _, exists := used[id]; exists {
				continue
			}
			toolCalls[i].ID = id
			used[id] = struct{}{}
			break
		}
	}
	return toolCalls
}
