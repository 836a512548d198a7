package agentloom

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentloom/agentloom/internal/retry"
	"github.com/agentloom/agentloom/providers"
)

// executeToolCalls runs every tool call from a model response and returns
// the tool-role messages to append to the conversation.
func (a *Agent) executeToolCalls(ctx context.Context, toolCalls []providers.ToolCall, events chan<- Event) []providers.Message {
	if len(toolCalls) == 0 {
		return nil
	}

	if a.parallelConfig.Enabled {
		return a.executeToolCallsParallel(ctx, toolCalls, events)
	}
	return a.executeToolCallsSequential(ctx, toolCalls, events)
}

func (a *Agent) executeToolCallsSequential(ctx context.Context, toolCalls []providers.ToolCall, events chan<- Event) []providers.Message {
	messages := make([]providers.Message, 0, len(toolCalls))

	for _, call := range toolCalls {
		msg := a.executeToolCall(ctx, call, events)
		messages = append(messages, msg)
	}

	return messages
}

func (a *Agent) executeToolCallsParallel(ctx context.Context, toolCalls []providers.ToolCall, events chan<- Event) []providers.Message {
	messages := make([]providers.Message, len(toolCalls))

	// Tools marked serial must never run concurrently, even when parallel
	// execution is enabled. Split the batch and run the serial ones after
	// the parallel group drains.
	var parallelIdx, serialIdx []int
	for i, call := range toolCalls {
		if tool, ok := a.tools[call.Name]; ok && tool.Concurrency() == ConcurrencySerial {
			serialIdx = append(serialIdx, i)
			continue
		}
		parallelIdx = append(parallelIdx, i)
	}

	type result struct {
		index int
		msg   providers.Message
	}

	resultChan := make(chan result, len(parallelIdx))
	sem := make(chan struct{}, a.parallelConfig.MaxConcurrent)

	for _, i := range parallelIdx {
		sem <- struct{}{}
		go func(idx int, tc providers.ToolCall) {
			defer func() { <-sem }()
			msg := a.executeToolCall(ctx, tc, events)
			resultChan <- result{index: idx, msg: msg}
		}(i, toolCalls[i])
	}

	// Collect parallel results, keeping original call order
	for range parallelIdx {
		r := <-resultChan
		messages[r.index] = r.msg
	}

	for _, i := range serialIdx {
		messages[i] = a.executeToolCall(ctx, toolCalls[i], events)
	}

	return messages
}

// executeToolCall runs one tool call end to end: approval gate, timeout,
// retries, and event emission. Failures never escape as errors; they come
// back as tool-role messages so the model can react.
func (a *Agent) executeToolCall(ctx context.Context, toolCall providers.ToolCall, events chan<- Event) providers.Message {
	tool, ok := a.tools[toolCall.Name]
	if !ok {
		a.logger.Warn("tool not found", "tool", toolCall.Name)
		a.emit(ctx, events, ToolError(toolCall.Name, fmt.Errorf("tool not found")))
		return toolMessage(toolCall, fmt.Sprintf("Error: Tool '%s' not found", toolCall.Name))
	}

	args := toolCall.Arguments
	if args == nil {
		args = map[string]any{}
	}
	// ActionDetected precedes the approval gate so observers see the request
	// even when it ends up denied.
	a.emit(ctx, events, ActionDetected(tool.FormatPending(args), toolCall.ID))

	if a.approvalConfig.requiresApproval(toolCall.Name) {
		approved, rejectMsg := a.requestToolApproval(ctx, toolCall, tool, events)
		if !approved {
			return *rejectMsg
		}
	}

	toolCtx := a.applyToolStart(ctx, toolCall.Name, toolCall.Arguments)
	toolCtx, cancel := a.withToolTimeout(toolCtx)
	if cancel != nil {
		defer cancel()
	}

	argsJSON, err := json.Marshal(toolCall.Arguments)
	if err != nil {
		a.logger.Error("failed to marshal tool arguments", "tool", toolCall.Name, "error", err)
		a.emit(ctx, events, ToolError(toolCall.Name, err))
		return toolMessage(toolCall, fmt.Sprintf("Error marshaling arguments: %v", err))
	}

	result, err := retry.WithRetry(toolCtx, a.retryConfig, func() (any, error) {
		return tool.Execute(toolCtx, string(argsJSON))
	})
	a.applyToolComplete(toolCtx, toolCall.Name, result, err)

	var content string
	if err != nil {
		content = fmt.Sprintf("Error executing tool: %v", err)
		a.logger.Error("tool execution failed", "tool", toolCall.Name, "error", err)
		a.emit(ctx, events, ToolError(toolCall.Name, err))
	} else {
		content = formatToolResult(result)
		a.logger.Info("tool executed successfully", "tool", toolCall.Name)
		a.emit(ctx, events, ActionResult(tool.FormatResult(result), result))
	}

	msg := toolMessage(toolCall, content)
	msg.Name = toolCall.Name
	return msg
}

// toolMessage builds the tool-role reply the model sees for a call.
func toolMessage(call providers.ToolCall, content string) providers.Message {
	return providers.Message{
		Role:       providers.RoleTool,
		Content:    content,
		ToolCallID: call.ID,
	}
}

// requestToolApproval runs the approval gate for one tool call. On denial or
// error it returns the tool-role message that takes the call's place in the
// conversation, so the model learns the call never ran.
func (a *Agent) requestToolApproval(ctx context.Context, toolCall providers.ToolCall, tool Tool, events chan<- Event) (bool, *providers.Message) {
	conversationID, _ := GetConversationID(ctx)
	req := ApprovalRequest{
		ToolName:       toolCall.Name,
		Arguments:      toolCall.Arguments,
		Description:    tool.description,
		ConversationID: conversationID,
		CallID:         toolCall.ID,
	}
	a.emit(ctx, events, ApprovalRequired(req))

	approved, err := a.evaluateApproval(ctx, req)
	if err != nil {
		msg := toolMessage(toolCall, fmt.Sprintf("Approval timeout or error: %v", err))
		return false, &msg
	}
	if !approved {
		a.emit(ctx, events, ApprovalDenied(toolCall.Name, toolCall.ID, "rejected by approval handler"))
		msg := toolMessage(toolCall, "Tool execution rejected by user")
		return false, &msg
	}

	a.emit(ctx, events, ApprovalGranted(toolCall.Name, toolCall.ID))
	return true, nil
}

func (a *Agent) evaluateApproval(ctx context.Context, req ApprovalRequest) (bool, error) {
	if a.approvalConfig.Handler == nil {
		return false, fmt.Errorf("no approval handler configured")
	}
	return a.approvalConfig.Handler(ctx, req)
}

// formatToolResult renders a handler's return value as the tool message
// content: strings pass through, everything else is JSON encoded.
func formatToolResult(result any) string {
	if result == nil {
		return "null"
	}

	switch v := result.(type) {
	case string:
		return v
	case error:
		return fmt.Sprintf("Error: %v", v)
	default:
		if data, err := json.Marshal(result); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", result)
	}
}
