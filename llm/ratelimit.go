package llm

import (
	"context"

	"golang.org/x/time/rate"
)

type rateLimitedClient struct {
	next    Client
	limiter *rate.Limiter
}

// NewRateLimited throttles calls to next to rps requests per second.
func NewRateLimited(next Client, rps float64, burst int) Client {
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (c *rateLimitedClient) Generate(ctx context.Context, messages []Message) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", classify("wait for rate limiter", err)
	}
	return c.next.Generate(ctx, messages)
}
