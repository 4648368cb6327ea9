package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedClient throttles calls to a backend with a token bucket.
// Upstream quotas are per-minute; smoothing requests client-side keeps a
// burst of analyses from tripping the quota and failing mid-batch.
type RateLimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps inner so that at most callsPerMinute calls
// are started per minute, with a burst of up to burst immediate calls.
func NewRateLimitedClient(inner Client, callsPerMinute int, burst int) *RateLimitedClient {
	if callsPerMinute <= 0 {
		callsPerMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(callsPerMinute)/60.0), burst),
	}
}

func (r *RateLimitedClient) Model() string {
	return r.inner.Model()
}

// Generate waits for a rate token (honoring ctx cancellation) and then
// delegates to the wrapped backend.
func (r *RateLimitedClient) Generate(ctx context.Context, prompt string, params GenerationParams) (*Completion, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Generate(ctx, prompt, params)
}
