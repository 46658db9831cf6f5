package llmclient

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

type Config struct {
	Provider string // "gemini" or "fake"
	APIKey   string
	Model    string
	Timeout  time.Duration
	RPS      float64
	Burst    int
}

// New builds the process-wide backend client with the standard middleware chain.
func New(ctx context.Context, cfg Config) (LLMClient, error) {
	var inner LLMClient
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "gemini":
		g, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		inner = g
	case "fake":
		inner = NewFakeClient()
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	log.Printf("llm: provider=%s timeout=%s rps=%v", inner.Name(), cfg.Timeout, cfg.RPS)
	return Wrap(inner,
		WithLogging(nil),
		RateLimit(cfg.RPS, cfg.Burst),
		WithTimeout(cfg.Timeout),
	), nil
}
