package agentloom

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrSubAgentNotConfigured is returned when a sub-agent is nil.
var ErrSubAgentNotConfigured = errors.New("agentloom: sub-agent is required")

// SubAgentConfig describes how a delegate agent is exposed as a tool.
// Name becomes the tool name the parent model calls; InputField and
// OutputField default to "input" and "response".
type SubAgentConfig struct {
	Name        string
	Description string
	InputField  string
	OutputField string
	// IncludeTrace returns the delegate's reasoning and tool activity
	// alongside its response.
	IncludeTrace bool
	// MaxTraceItems caps the number of trace items (0 = default).
	MaxTraceItems int
	// MaxTraceChars caps total characters across trace items (0 = default).
	MaxTraceChars int
}

// NewSubAgentTool wraps a delegate agent as a callable tool. The tool takes a
// single required input field and returns the delegate's final response plus
// its handoff summary; the activity trace rides along when IncludeTrace is set.
func NewSubAgentTool(cfg SubAgentConfig, sub *Agent) (Tool, error) {
	if sub == nil {
		return Tool{}, ErrSubAgentNotConfigured
	}

	resolved, err := resolveSubAgentConfig(cfg)
	if err != nil {
		return Tool{}, err
	}

	tool := NewTool(resolved.Name).
		WithDescription(resolved.Description).
		WithParameter(resolved.InputField, String().Required().WithDescription("Input for sub-agent")).
		WithHandler(subAgentHandler(sub, resolved)).
		WithResultFormatter(func(_ string, result any) string {
			return formatSubAgentResult(resolved, result)
		}).
		Build()

	return tool, nil
}

func resolveSubAgentConfig(cfg SubAgentConfig) (SubAgentConfig, error) {
	if cfg.Name == "" {
		return SubAgentConfig{}, errors.New("agentloom: sub-agent tool name is required")
	}

	if cfg.InputField == "" {
		cfg.InputField = "input"
	}
	if cfg.OutputField == "" {
		cfg.OutputField = "response"
	}
	if cfg.MaxTraceItems == 0 {
		cfg.MaxTraceItems = 40
	}
	if cfg.MaxTraceChars == 0 {
		cfg.MaxTraceChars = 8000
	}

	return cfg, nil
}

// SubAgentTraceItem is one step of a delegate's run: reasoning, a tool call
// or result, a progress note, or a decision.
type SubAgentTraceItem struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// subAgentTrace collects trace items under the configured budgets. Items past
// either budget are dropped; the last item that fits is clipped to the
// character budget.
type subAgentTrace struct {
	include  bool
	maxItems int
	maxChars int
	chars    int
	items    []SubAgentTraceItem
	pending  strings.Builder
}

func newSubAgentTrace(cfg SubAgentConfig) *subAgentTrace {
	return &subAgentTrace{
		include:  cfg.IncludeTrace,
		maxItems: cfg.MaxTraceItems,
		maxChars: cfg.MaxTraceChars,
		items:    make([]SubAgentTraceItem, 0, 8),
	}
}

func (t *subAgentTrace) record(itemType, content string) {
	if !t.include {
		return
	}
	if t.maxItems > 0 && len(t.items) >= t.maxItems {
		return
	}
	if t.maxChars > 0 {
		remaining := t.maxChars - t.chars
		if remaining <= 0 {
			return
		}
		if len(content) > remaining {
			if remaining > 3 {
				content = content[:remaining-3] + "..."
			} else {
				content = content[:remaining]
			}
		}
	}
	t.chars += len(content)
	t.items = append(t.items, SubAgentTraceItem{Type: itemType, Content: content})
}

// recordDescription records the event's description field, if present.
func (t *subAgentTrace) recordDescription(itemType string, event Event) {
	if desc, ok := event.Data["description"].(string); ok && desc != "" {
		t.record(itemType, desc)
	}
}

// bufferReasoning accumulates streamed thinking chunks until the next
// non-reasoning event flushes them as a single item.
func (t *subAgentTrace) bufferReasoning(chunk string) {
	if !t.include {
		return
	}
	t.pending.WriteString(chunk)
}

func (t *subAgentTrace) flushReasoning() {
	if !t.include {
		return
	}
	text := strings.TrimSpace(t.pending.String())
	t.pending.Reset()
	if text != "" {
		t.record("reasoning", text)
	}
}

func subAgentHandler(sub *Agent, cfg SubAgentConfig) ToolHandler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		message, err := subAgentInput(args, cfg.InputField)
		if err != nil {
			return nil, err
		}

		result, err := runSubAgent(ctx, sub, cfg, message)
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

func subAgentInput(args map[string]any, field string) (string, error) {
	raw, ok := args[field]
	if !ok {
		return "", fmt.Errorf("missing required field: %s", field)
	}
	message, ok := raw.(string)
	if !ok || message == "" {
		return "", fmt.Errorf("invalid %s: expected non-empty string", field)
	}
	return message, nil
}

// runSubAgent executes the delegate and condenses its event stream into the
// tool result: the final response, the handoff summary, and optionally the
// collected trace.
func runSubAgent(ctx context.Context, sub *Agent, cfg SubAgentConfig, message string) (map[string]any, error) {
	// The caller's tracer wins so delegated work lands in the parent trace.
	tracer := GetTracer(ctx)
	if tracer == nil {
		tracer = sub.tracer
	}

	// Run a copy so the tracer override never touches the shared agent.
	delegated := *sub
	if tracer != nil && !isNoOpTracer(tracer) {
		spanCtx, endSpan := tracer.StartSpan(ctx, "sub_agent."+cfg.Name,
			WithSpanType(SpanTypeSpan),
			WithSpanInput(message),
		)
		defer endSpan()
		ctx = spanCtx
		delegated.tracer = tracer
	}

	trace := newSubAgentTrace(cfg)
	var response, summary string

	for event := range delegated.Run(ctx, message) {
		switch event.Type {
		case EventTypeFinalOutput:
			if text, ok := event.Data["response"].(string); ok {
				response = text
			}
			if text, ok := event.Data["summary"].(string); ok {
				summary = text
			}
		case EventTypeError:
			if msg, ok := event.Data["error"].(string); ok && msg != "" {
				return nil, fmt.Errorf("sub-agent error: %s", msg)
			}
			return nil, errors.New("sub-agent error")
		case EventTypeThinkingChunk:
			if chunk, ok := event.Data["chunk"].(string); ok {
				trace.bufferReasoning(chunk)
			}
		case EventTypeActionDetected:
			trace.flushReasoning()
			trace.recordDescription("tool_call", event)
		case EventTypeActionResult:
			trace.flushReasoning()
			trace.recordDescription("tool_result", event)
		case EventTypeProgress:
			trace.flushReasoning()
			trace.recordDescription("progress", event)
		case EventTypeDecision:
			trace.flushReasoning()
			action, _ := event.Data["action"].(string)
			reasoning, _ := event.Data["reasoning"].(string)
			if content := strings.TrimSpace(action + " — " + reasoning); content != "" {
				trace.record("decision", content)
			}
		}
	}

	if response == "" {
		return nil, errors.New("sub-agent returned no response")
	}
	trace.flushReasoning()

	result := map[string]any{
		cfg.OutputField: response,
		"summary":       summary,
	}
	if cfg.IncludeTrace {
		result["trace"] = trace.items
	}
	return result, nil
}

// traceItems accepts both live trace slices and traces that crossed a JSON
// round trip, which decode as generic maps.
func traceItems(raw any) []SubAgentTraceItem {
	switch items := raw.(type) {
	case []SubAgentTraceItem:
		return items
	case []any:
		decoded := make([]SubAgentTraceItem, 0, len(items))
		for _, entry := range items {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			var item SubAgentTraceItem
			item.Type, _ = m["type"].(string)
			item.Content, _ = m["content"].(string)
			if item.Type == "" && item.Content == "" {
				continue
			}
			decoded = append(decoded, item)
		}
		return decoded
	default:
		return nil
	}
}

func formatSubAgentResult(cfg SubAgentConfig, result any) string {
	header := fmt.Sprintf("✓ %s completed", formatToolName(cfg.Name))

	resultMap, ok := result.(map[string]any)
	if !ok || !cfg.IncludeTrace {
		return header
	}
	items := traceItems(resultMap["trace"])
	if len(items) == 0 {
		return header
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\nSub-agent trace:")
	for _, item := range items {
		fmt.Fprintf(&b, "\n- %s: %s", strings.ToUpper(item.Type), item.Content)
	}
	return b.String()
}

// AddSubAgent registers a sub-agent as a tool on the agent.
func (a *Agent) AddSubAgent(name string, sub *Agent) error {
	tool, err := NewSubAgentTool(SubAgentConfig{
		Name:        name,
		Description: fmt.Sprintf("Delegate to %s agent", name),
	}, sub)
	if err != nil {
		return err
	}

	a.AddTool(tool)
	return nil
}
