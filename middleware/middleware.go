// Package middleware defines the hook interface agents invoke at each
// stage of a run. Implementations observe execution; the only way they
// influence it is by returning a derived context from a start hook.
package middleware

import "context"

// Middleware receives callbacks around agent runs, LLM round trips and
// tool invocations. Contexts returned from OnAgentStart, OnToolStart and
// OnLLMCall flow into the corresponding stage, so hooks can attach spans
// or request-scoped values.
type Middleware interface {
	OnAgentStart(ctx context.Context, input string) context.Context
	OnAgentComplete(ctx context.Context, output string, err error)
	OnToolStart(ctx context.Context, tool string, args any) context.Context
	OnToolComplete(ctx context.Context, tool string, result any, err error)
	OnLLMCall(ctx context.Context, req any) context.Context
	OnLLMResponse(ctx context.Context, resp any, err error)
}

// BaseMiddleware implements every hook as a no-op. Embed it and override
// only the hooks you care about.
type BaseMiddleware struct{}

var _ Middleware = BaseMiddleware{}

func (BaseMiddleware) OnAgentStart(ctx context.Context, _ string) context.Context { return ctx }
func (BaseMiddleware) OnAgentComplete(context.Context, string, error)             {}
func (BaseMiddleware) OnToolStart(ctx context.Context, _ string, _ any) context.Context {
	return ctx
}
func (BaseMiddleware) OnToolComplete(context.Context, string, any, error)   {}
func (BaseMiddleware) OnLLMCall(ctx context.Context, _ any) context.Context { return ctx }
func (BaseMiddleware) OnLLMResponse(context.Context, any, error)            {}
