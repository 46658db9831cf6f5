package llmclient

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimit caps calls at rps per second with the given burst, separately for
// each phase, so slow image diagnoses never queue ahead of chat turns.
// rps <= 0 disables it.
func RateLimit(rps float64, burst int) Middleware {
	return func(next LLMClient) LLMClient {
		if rps <= 0 {
			return next
		}
		if burst <= 0 {
			burst = 1
		}
		return &rateLimited{
			next:   next,
			limit:  rate.Limit(rps),
			burst:  burst,
			phases: make(map[string]*rate.Limiter),
		}
	}
}

type rateLimited struct {
	next  LLMClient
	limit rate.Limit
	burst int

	mu     sync.Mutex
	phases map[string]*rate.Limiter
}

func (c *rateLimited) limiter(phase string) *rate.Limiter {
	phase = strings.ToLower(strings.TrimSpace(phase))
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.phases[phase]
	if !ok {
		l = rate.NewLimiter(c.limit, c.burst)
		c.phases[phase] = l
	}
	return l
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error { return c.next.Close() }

func (c *rateLimited) Generate(ctx context.Context, req Request) (string, error) {
	if err := c.limiter(req.Phase).Wait(ctx); err != nil {
		return "", err
	}
	return c.next.Generate(ctx, req)
}
