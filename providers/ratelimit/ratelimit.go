// Package ratelimit wraps any providers.Provider with a client-side
// request rate limit.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/agentloom/agentloom/providers"
)

// Provider delegates to an inner provider after acquiring a rate token.
// Both Complete and Stream draw from the same limiter, so a burst of
// streaming calls counts against non-streaming ones.
type Provider struct {
	inner   providers.Provider
	limiter *rate.Limiter
}

// New wraps inner with a limiter allowing rps requests per second with
// the given burst. A non-positive rps disables limiting.
func New(inner providers.Provider, rps float64, burst int) *Provider {
	var limiter *rate.Limiter
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Provider{inner: inner, limiter: limiter}
}

// Name returns the inner provider's name.
func (p *Provider) Name() string {
	return p.inner.Name()
}

// Complete waits for rate capacity, then delegates.
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Complete(ctx, req)
}

// Stream waits for rate capacity, then delegates.
func (p *Provider) Stream(ctx context.Context, req providers.CompletionRequest) (providers.StreamReader, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Stream(ctx, req)
}

func (p *Provider) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("ratelimit: %w", err)
	}
	return nil
}
