package agentloom

import (
	"context"
	"errors"
)

// ErrDepsNotFound is returned when no dependencies are stored in the context.
var ErrDepsNotFound = errors.New("agentloom: dependencies not found in context")

// contextKey keeps this package's context values from colliding with keys
// set by callers.
type contextKey string

const (
	depsKey           contextKey = "agentloom_deps"
	conversationIDKey contextKey = "agentloom_conversation_id"
	traceIDKey        contextKey = "agentloom_trace_id"
	spanIDKey         contextKey = "agentloom_span_id"
	eventPublisherKey contextKey = "agentloom_event_publisher"
	tracerKey         contextKey = "agentloom_tracer"
	agentNameKey      contextKey = "agentloom_agent_name"
	iterationKey      contextKey = "agentloom_iteration"
)

// WithDeps stores the caller's dependency bundle in the context, where tool
// handlers retrieve it with GetDeps. One slot only: a second call replaces
// the first.
func WithDeps(ctx context.Context, deps any) context.Context {
	return context.WithValue(ctx, depsKey, deps)
}

// GetDeps retrieves the dependency bundle as T. It fails with
// ErrDepsNotFound when nothing is stored or the stored value is not a T.
func GetDeps[T any](ctx context.Context) (T, error) {
	deps, ok := ctx.Value(depsKey).(T)
	if !ok {
		var zero T
		return zero, ErrDepsNotFound
	}
	return deps, nil
}

// MustGetDeps retrieves the dependency bundle or panics.
//
// Deprecated: use GetDeps and handle the error. MustGetDeps remains for
// callers that wire dependencies unconditionally at startup.
func MustGetDeps[T any](ctx context.Context) T {
	deps, err := GetDeps[T](ctx)
	if err != nil {
		panic(err)
	}
	return deps
}

// WithConversation tags the context with a conversation ID.
func WithConversation(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, conversationIDKey, conversationID)
}

// GetConversationID returns the conversation ID, if one is set.
func GetConversationID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(conversationIDKey).(string)
	return id, ok
}

// WithTraceID tags the context with a trace ID for event correlation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID returns the trace ID, if one is set.
func GetTraceID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(traceIDKey).(string)
	return id, ok
}

// WithSpanID tags the context with a span ID for event correlation.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

// GetSpanID returns the span ID, if one is set.
func GetSpanID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(spanIDKey).(string)
	return id, ok
}

// WithAgentName tags the context with the running agent's name. An empty
// name leaves the context untouched.
func WithAgentName(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, agentNameKey, name)
}

// GetAgentName returns the running agent's name, if one is set.
func GetAgentName(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(agentNameKey).(string)
	return name, ok
}

// WithIteration tags the context with the current loop iteration. Iteration
// numbering starts at 1; zero and below leave the context untouched.
func WithIteration(ctx context.Context, iteration int) context.Context {
	if iteration <= 0 {
		return ctx
	}
	return context.WithValue(ctx, iterationKey, iteration)
}

// GetIteration returns the current loop iteration, if one is set.
func GetIteration(ctx context.Context) (int, bool) {
	val, ok := ctx.Value(iterationKey).(int)
	return val, ok
}

// EventPublisher forwards an event into the active run's stream.
type EventPublisher func(Event)

// WithEventPublisher lets code outside the run loop, such as tool handlers,
// publish events into the active stream.
func WithEventPublisher(ctx context.Context, publisher EventPublisher) context.Context {
	return context.WithValue(ctx, eventPublisherKey, publisher)
}

// GetEventPublisher returns the active stream's publisher, if one is set.
func GetEventPublisher(ctx context.Context) (EventPublisher, bool) {
	publisher, ok := ctx.Value(eventPublisherKey).(EventPublisher)
	return publisher, ok
}

// WithTracer carries a tracer across agent boundaries so delegated runs
// (handoffs, sub-agents) land in the caller's trace.
func WithTracer(ctx context.Context, tracer Tracer) context.Context {
	return context.WithValue(ctx, tracerKey, tracer)
}

// GetTracer returns the inherited tracer, or nil when none is set.
func GetTracer(ctx context.Context) Tracer {
	tracer, _ := ctx.Value(tracerKey).(Tracer)
	return tracer
}
