// Package agentloom provides an OpenTelemetry tracing implementation
// that exports spans over OTLP/HTTP.
package agentloom

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/agentloom/agentloom"
)

// OTelTracer implements the Tracer interface using OpenTelemetry,
// exporting spans to any OTLP/HTTP-compatible collector
type OTelTracer struct {
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
}

// OTelConfig holds configuration for OpenTelemetry tracing
type OTelConfig struct {
	// Endpoint is the OTLP collector endpoint as host:port.
	// A full URL is also accepted; an http:// scheme implies Insecure.
	// Defaults to "localhost:4318".
	Endpoint string
	// Headers are added to every export request (e.g. authorization)
	Headers map[string]string
	// URLPath overrides the trace export path.
	// Defaults to "/v1/traces".
	URLPath string
	// Insecure disables TLS for the exporter connection
	Insecure bool
	// ServiceName identifies your application in traces
	ServiceName string
	// ServiceVersion tracks your application version
	ServiceVersion string
	// Environment specifies the deployment environment (production, staging, etc.)
	Environment string
	// Enabled controls whether tracing is active
	Enabled bool
}

// NewOTelTracer creates a new OpenTelemetry tracer instance
func NewOTelTracer(cfg OTelConfig) (*OTelTracer, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("tracing is disabled")
	}

	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4318"
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "agentloom-app"
	}

	if cfg.URLPath == "" {
		cfg.URLPath = "/v1/traces"
	}

	// Accept scheme-prefixed endpoints; the exporter wants host:port
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	useInsecure := cfg.Insecure || strings.HasPrefix(cfg.Endpoint, "http://")

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithURLPath(cfg.URLPath),
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	if useInsecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	// Create resource with service information (without Default to avoid schema conflicts)
	res := resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	// Create tracer provider with batch span processor
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	// Set global tracer provider
	otel.SetTracerProvider(tp)

	// Set propagator for distributed tracing
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return &OTelTracer{
		tracer:         tp.Tracer(tracerName),
		tracerProvider: tp,
	}, nil
}

// StartTrace creates a new trace context
func (o *OTelTracer) StartTrace(ctx context.Context, name string, opts ...TraceOption) (context.Context, func()) {
	cfg := &TraceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	// Use explicit start time if provided, otherwise use current time
	startTime := time.Now()
	if cfg.StartTime != nil {
		startTime = *cfg.StartTime
	}

	// Create root span
	spanCtx, span := o.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithTimestamp(startTime),
	)

	o.setTraceAttributes(span, cfg)

	endFunc := func() {
		// Set output if provided
		if cfg.Metadata != nil {
			if output, ok := cfg.Metadata["output"]; ok {
				outputJSON, _ := json.Marshal(output)
				span.SetAttributes(attribute.String("agentloom.trace.output", string(outputJSON)))
			}
		}
		span.End()
	}

	return spanCtx, endFunc
}

// StartSpan creates a new span within the current trace
func (o *OTelTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, func()) {
	cfg := &SpanConfig{
		Type:  SpanTypeSpan,
		Level: LogLevelDefault,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	spanCtx, span := o.tracer.Start(ctx, name,
		trace.WithTimestamp(time.Now()),
	)

	span.SetAttributes(attribute.String("agentloom.span.type", string(cfg.Type)))
	span.SetAttributes(attribute.String("agentloom.span.level", string(cfg.Level)))

	if cfg.Input != nil {
		inputJSON, _ := json.Marshal(cfg.Input)
		span.SetAttributes(attribute.String("agentloom.span.input", string(inputJSON)))
	}

	if cfg.Metadata != nil {
		for k, v := range cfg.Metadata {
			valueJSON, _ := json.Marshal(v)
			span.SetAttributes(attribute.String(fmt.Sprintf("agentloom.span.metadata.%s", k), string(valueJSON)))
		}
	}

	endFunc := func() {
		span.End()
	}

	return spanCtx, endFunc
}

// LogGeneration records an LLM generation as a child span carrying the
// GenAI semantic convention attributes
func (o *OTelTracer) LogGeneration(ctx context.Context, opts GenerationOptions) error {
	_, span := o.tracer.Start(ctx, opts.Name,
		trace.WithTimestamp(opts.StartTime),
	)
	defer span.End(trace.WithTimestamp(opts.EndTime))

	span.SetAttributes(attribute.String("agentloom.span.type", string(SpanTypeGeneration)))

	if opts.Model != "" {
		span.SetAttributes(attribute.String("gen_ai.request.model", opts.Model))
	}

	if opts.ModelParameters != nil {
		paramsJSON, _ := json.Marshal(opts.ModelParameters)
		span.SetAttributes(attribute.String("agentloom.generation.parameters", string(paramsJSON)))
	}

	if opts.Input != nil {
		inputJSON, _ := json.Marshal(opts.Input)
		span.SetAttributes(attribute.String("gen_ai.prompt", string(inputJSON)))
	}

	if opts.Output != nil {
		outputJSON, _ := json.Marshal(opts.Output)
		span.SetAttributes(attribute.String("gen_ai.completion", string(outputJSON)))
	}

	if opts.Usage != nil {
		attrs := []attribute.KeyValue{
			attribute.Int("gen_ai.usage.input_tokens", opts.Usage.PromptTokens),
			attribute.Int("gen_ai.usage.output_tokens", opts.Usage.CompletionTokens),
			attribute.Int("gen_ai.usage.total_tokens", opts.Usage.TotalTokens),
		}
		// Reasoning tokens only appear for reasoning models
		if opts.Usage.ReasoningTokens > 0 {
			attrs = append(attrs, attribute.Int("gen_ai.usage.reasoning_tokens", opts.Usage.ReasoningTokens))
		}
		span.SetAttributes(attrs...)
	}

	if opts.Cost != nil {
		costDetails := map[string]float64{
			"input":  opts.Cost.PromptCost,
			"output": opts.Cost.CompletionCost,
			"total":  opts.Cost.TotalCost,
		}
		costJSON, _ := json.Marshal(costDetails)
		span.SetAttributes(attribute.String("agentloom.generation.cost_details", string(costJSON)))
		span.SetAttributes(attribute.Float64("gen_ai.usage.cost", opts.Cost.TotalCost))
	}

	if opts.CompletionStartTime != nil {
		span.SetAttributes(attribute.String("agentloom.generation.completion_start_time", opts.CompletionStartTime.Format(time.RFC3339)))
	}

	if opts.PromptName != "" {
		span.SetAttributes(attribute.String("agentloom.generation.prompt.name", opts.PromptName))
		if opts.PromptVersion > 0 {
			span.SetAttributes(attribute.Int("agentloom.generation.prompt.version", opts.PromptVersion))
		}
	}

	if opts.Metadata != nil {
		for k, v := range opts.Metadata {
			valueJSON, _ := json.Marshal(v)
			span.SetAttributes(attribute.String(fmt.Sprintf("agentloom.span.metadata.%s", k), string(valueJSON)))
		}
	}

	span.SetAttributes(attribute.String("agentloom.span.level", string(opts.Level)))

	if opts.StatusMessage != "" {
		span.SetAttributes(attribute.String("agentloom.span.status_message", opts.StatusMessage))
		if opts.Level == LogLevelError {
			span.SetStatus(codes.Error, opts.StatusMessage)
		}
	}

	return nil
}

// LogEvent records a simple zero-duration event span
func (o *OTelTracer) LogEvent(ctx context.Context, name string, attributes map[string]any) error {
	_, span := o.tracer.Start(ctx, name,
		trace.WithTimestamp(time.Now()),
	)
	defer span.End(trace.WithTimestamp(time.Now()))

	span.SetAttributes(attribute.String("agentloom.span.type", string(SpanTypeEvent)))

	if attributes != nil {
		for k, v := range attributes {
			valueJSON, _ := json.Marshal(v)
			span.SetAttributes(attribute.String(fmt.Sprintf("agentloom.span.metadata.%s", k), string(valueJSON)))
		}
	}

	return nil
}

// SetTraceAttributes sets attributes on the current trace
func (o *OTelTracer) SetTraceAttributes(ctx context.Context, attributes map[string]any) error {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return nil
	}

	for k, v := range attributes {
		valueJSON, _ := json.Marshal(v)
		span.SetAttributes(attribute.String(fmt.Sprintf("agentloom.trace.metadata.%s", k), string(valueJSON)))
	}

	return nil
}

// SetSpanOutput sets the output on the current span
func (o *OTelTracer) SetSpanOutput(ctx context.Context, output any) error {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return nil
	}

	if output != nil {
		outputJSON, _ := json.Marshal(output)
		span.SetAttributes(attribute.String("agentloom.span.output", string(outputJSON)))
	}

	return nil
}

// SetSpanAttributes sets attributes on the current span as metadata
func (o *OTelTracer) SetSpanAttributes(ctx context.Context, attributes map[string]any) error {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return nil
	}

	for k, v := range attributes {
		valueJSON, _ := json.Marshal(v)
		span.SetAttributes(attribute.String(fmt.Sprintf("agentloom.span.metadata.%s", k), string(valueJSON)))
	}

	return nil
}

// Flush ensures all pending traces are sent
func (o *OTelTracer) Flush(ctx context.Context) error {
	return o.tracerProvider.ForceFlush(ctx)
}

// Shutdown gracefully shuts down the tracer
func (o *OTelTracer) Shutdown(ctx context.Context) error {
	return o.tracerProvider.Shutdown(ctx)
}

// setTraceAttributes sets trace-level attributes from config
func (o *OTelTracer) setTraceAttributes(span trace.Span, cfg *TraceConfig) {
	if cfg.UserID != "" {
		span.SetAttributes(attribute.String("user.id", cfg.UserID))
	}

	if cfg.SessionID != "" {
		span.SetAttributes(attribute.String("session.id", cfg.SessionID))
	}

	if len(cfg.Tags) > 0 {
		tagsJSON, _ := json.Marshal(cfg.Tags)
		span.SetAttributes(attribute.String("agentloom.trace.tags", string(tagsJSON)))
	}

	if cfg.Version != "" {
		span.SetAttributes(attribute.String("agentloom.trace.version", cfg.Version))
	}

	if cfg.Environment != "" {
		span.SetAttributes(attribute.String("deployment.environment", cfg.Environment))
	}

	if cfg.Release != "" {
		span.SetAttributes(attribute.String("agentloom.trace.release", cfg.Release))
	}

	if cfg.Input != nil {
		inputJSON, _ := json.Marshal(cfg.Input)
		span.SetAttributes(attribute.String("agentloom.trace.input", string(inputJSON)))
	}

	if cfg.Metadata != nil {
		for k, v := range cfg.Metadata {
			// Output is set when the trace ends
			if k == "output" {
				continue
			}
			valueJSON, _ := json.Marshal(v)
			span.SetAttributes(attribute.String(fmt.Sprintf("agentloom.trace.metadata.%s", k), string(valueJSON)))
		}
	}
}
