package llm

import (
	"context"
	"fmt"

	"github.com/ValenteCreativo/carepilot/internal/config"
)

// Gateway selects a provider by configured key: Gemini when its key is set,
// otherwise the chat-completions fallback.
type Gateway struct {
	provider Provider
}

// NewGateway builds the gateway from config. At least one key must be set
// (enforced by config.Load, re-checked here for direct construction).
func NewGateway(cfg config.LLMConfig) (*Gateway, error) {
	switch {
	case cfg.GeminiAPIKey != "":
		return &Gateway{provider: NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel)}, nil
	case cfg.OpenAIAPIKey != "":
		return &Gateway{provider: NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel)}, nil
	default:
		return nil, fmt.Errorf("no LLM provider key configured")
	}
}

// NewGatewayWithProvider wraps an explicit provider (used by tests).
func NewGatewayWithProvider(p Provider) *Gateway {
	return &Gateway{provider: p}
}

func (g *Gateway) Generate(ctx context.Context, prompt string) (Result, error) {
	res, err := g.provider.Generate(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", g.provider.Name(), err)
	}
	return res, nil
}

func (g *Gateway) ProviderName() string { return g.provider.Name() }
