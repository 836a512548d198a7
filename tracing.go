package agentloom

import (
	"context"
	"maps"
	"time"
)

// Tracer records agent activity for an observability backend. Implementations
// must be safe for concurrent use; every agent run may call them from several
// goroutines.
type Tracer interface {
	// StartTrace opens the root trace for an agent run. The returned function
	// ends the trace.
	StartTrace(ctx context.Context, name string, opts ...TraceOption) (context.Context, func())

	// StartSpan opens a child span for one operation, such as a tool call.
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, func())

	// LogGeneration records a single LLM generation with its usage and cost.
	LogGeneration(ctx context.Context, opts GenerationOptions) error

	// LogEvent records a point-in-time event within the trace.
	LogEvent(ctx context.Context, name string, attributes map[string]any) error

	// SetTraceAttributes attaches attributes to the current trace.
	SetTraceAttributes(ctx context.Context, attributes map[string]any) error

	// SetSpanOutput sets the output of the current span.
	SetSpanOutput(ctx context.Context, output any) error

	// SetSpanAttributes attaches attributes to the current span.
	SetSpanAttributes(ctx context.Context, attributes map[string]any) error

	// Flush sends pending traces. Short-lived programs should call it before
	// exiting.
	Flush(ctx context.Context) error
}

// TraceOption configures trace creation.
type TraceOption func(*TraceConfig)

// SpanOption configures span creation.
type SpanOption func(*SpanConfig)

// TraceConfig collects per-trace settings applied by TraceOptions.
type TraceConfig struct {
	UserID    string
	SessionID string
	Tags      []string
	Metadata  map[string]any
	Input     any
	Version   string
	// Environment names the deployment environment (production, staging).
	Environment string
	Release     string
	// StartTime overrides the trace start time when set.
	StartTime *time.Time
}

// SpanConfig collects per-span settings applied by SpanOptions.
type SpanConfig struct {
	Type     SpanType
	Input    any
	Metadata map[string]any
	Level    LogLevel
}

// SpanType classifies what a span observed.
type SpanType string

const (
	// SpanTypeSpan is a generic non-LLM operation.
	SpanTypeSpan SpanType = "span"
	// SpanTypeGeneration is an LLM call.
	SpanTypeGeneration SpanType = "generation"
	// SpanTypeEvent is a point-in-time event.
	SpanTypeEvent SpanType = "event"
	// SpanTypeTool is a tool or function call.
	SpanTypeTool SpanType = "tool"
	// SpanTypeRetrieval is a retrieval step.
	SpanTypeRetrieval SpanType = "retrieval"
)

// LogLevel is the severity attached to a span.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelDefault LogLevel = "DEFAULT"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// GenerationOptions carries everything a backend needs to record one LLM
// generation.
type GenerationOptions struct {
	Name  string
	Model string
	// ModelParameters holds request settings like temperature or max_tokens.
	ModelParameters map[string]any
	Input           any
	Output          any
	Usage           *UsageInfo
	// Cost is optional; backends may derive it from Usage instead.
	Cost      *CostInfo
	Metadata  map[string]any
	StartTime time.Time
	EndTime   time.Time
	// CompletionStartTime marks when the first token arrived (streaming).
	CompletionStartTime *time.Time
	// PromptName and PromptVersion link the generation to a managed prompt.
	PromptName    string
	PromptVersion int
	Level         LogLevel
	// StatusMessage describes errors or warnings.
	StatusMessage string
}

// UsageInfo holds the token counts reported by the provider.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	ReasoningTokens  int
	TotalTokens      int
}

// CostInfo is an estimated cost breakdown in USD. Providers do not report
// cost; estimates come from published pricing and may drift. Set
// DisableCostCalculation to suppress estimation entirely.
type CostInfo struct {
	PromptCost     float64
	CompletionCost float64
	TotalCost      float64
}

// WithUserID attributes the trace to an end user.
func WithUserID(userID string) TraceOption {
	return func(c *TraceConfig) {
		c.UserID = userID
	}
}

// WithSessionID groups related traces, such as one conversation thread.
func WithSessionID(sessionID string) TraceOption {
	return func(c *TraceConfig) {
		c.SessionID = sessionID
	}
}

// WithTags appends tags to the trace.
func WithTags(tags ...string) TraceOption {
	return func(c *TraceConfig) {
		c.Tags = append(c.Tags, tags...)
	}
}

// WithMetadata merges metadata into the trace. Repeated calls accumulate.
func WithMetadata(metadata map[string]any) TraceOption {
	return func(c *TraceConfig) {
		if c.Metadata == nil {
			c.Metadata = make(map[string]any, len(metadata))
		}
		maps.Copy(c.Metadata, metadata)
	}
}

// WithTraceInput records the input that started the run.
func WithTraceInput(input any) TraceOption {
	return func(c *TraceConfig) {
		c.Input = input
	}
}

// WithTraceStartTime pins the trace start to a known instant instead of
// whenever the tracer was invoked.
func WithTraceStartTime(start time.Time) TraceOption {
	return func(c *TraceConfig) {
		c.StartTime = &start
	}
}

// WithVersion records the application version.
func WithVersion(version string) TraceOption {
	return func(c *TraceConfig) {
		c.Version = version
	}
}

// WithEnvironment records the deployment environment.
func WithEnvironment(env string) TraceOption {
	return func(c *TraceConfig) {
		c.Environment = env
	}
}

// WithRelease records the release identifier.
func WithRelease(release string) TraceOption {
	return func(c *TraceConfig) {
		c.Release = release
	}
}

// WithSpanType sets the span classification.
func WithSpanType(spanType SpanType) SpanOption {
	return func(c *SpanConfig) {
		c.Type = spanType
	}
}

// WithSpanInput records the operation input on the span.
func WithSpanInput(input any) SpanOption {
	return func(c *SpanConfig) {
		c.Input = input
	}
}

// WithSpanMetadata merges metadata into the span. Repeated calls accumulate.
func WithSpanMetadata(metadata map[string]any) SpanOption {
	return func(c *SpanConfig) {
		if c.Metadata == nil {
			c.Metadata = make(map[string]any, len(metadata))
		}
		maps.Copy(c.Metadata, metadata)
	}
}

// WithLogLevel sets the span severity.
func WithLogLevel(level LogLevel) SpanOption {
	return func(c *SpanConfig) {
		c.Level = level
	}
}

// NoOpTracer discards everything. It is the default when no tracer is
// configured, so agent code can call the Tracer interface unconditionally.
type NoOpTracer struct{}

func (*NoOpTracer) StartTrace(ctx context.Context, _ string, _ ...TraceOption) (context.Context, func()) {
	return ctx, func() {}
}

func (*NoOpTracer) StartSpan(ctx context.Context, _ string, _ ...SpanOption) (context.Context, func()) {
	return ctx, func() {}
}

func (*NoOpTracer) LogGeneration(context.Context, GenerationOptions) error { return nil }

func (*NoOpTracer) LogEvent(context.Context, string, map[string]any) error { return nil }

func (*NoOpTracer) SetTraceAttributes(context.Context, map[string]any) error { return nil }

func (*NoOpTracer) SetSpanOutput(context.Context, any) error { return nil }

func (*NoOpTracer) SetSpanAttributes(context.Context, map[string]any) error { return nil }

func (*NoOpTracer) Flush(context.Context) error { return nil }

// isNoOpTracer reports whether tracing is effectively disabled.
func isNoOpTracer(t Tracer) bool {
	_, ok := t.(*NoOpTracer)
	return ok
}

// startSpan opens a child span when tracer is real. With no tracer, or the
// no-op one, the context passes through and the returned func does nothing.
func startSpan(ctx context.Context, tracer Tracer, name string, opts ...SpanOption) (context.Context, func()) {
	if tracer == nil || isNoOpTracer(tracer) {
		return ctx, func() {}
	}
	return tracer.StartSpan(ctx, name, opts...)
}

// setSpanAttrs attaches attributes to the current span, tolerating a nil
// tracer.
func setSpanAttrs(ctx context.Context, tracer Tracer, attrs map[string]any) {
	if tracer == nil {
		return
	}
	tracer.SetSpanAttributes(ctx, attrs)
}

// delegateWithTracer copies agent so a delegated run reports into the
// caller's tracer without mutating the shared instance.
func delegateWithTracer(agent *Agent, tracer Tracer) *Agent {
	clone := *agent
	if tracer != nil && !isNoOpTracer(tracer) {
		clone.tracer = tracer
	}
	return &clone
}
