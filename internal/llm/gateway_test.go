package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/ValenteCreativo/carepilot/internal/config"
)

type stubProvider struct {
	result Result
	err    error
}

func (s stubProvider) Generate(ctx context.Context, prompt string) (Result, error) {
	return s.result, s.err
}
func (s stubProvider) Name() string { return "stub" }

func TestNewGatewayPrefersGemini(t *testing.T) {
	g, err := NewGateway(config.LLMConfig{
		GeminiAPIKey: "gk", GeminiModel: "gemini-1.5-flash",
		OpenAIAPIKey: "ok", OpenAIModel: "gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	if g.ProviderName() != "gemini" {
		t.Errorf("provider = %s, want gemini", g.ProviderName())
	}
}

func TestNewGatewayFallsBackToOpenAI(t *testing.T) {
	g, err := NewGateway(config.LLMConfig{OpenAIAPIKey: "ok", OpenAIModel: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	if g.ProviderName() != "openai" {
		t.Errorf("provider = %s, want openai", g.ProviderName())
	}
}

func TestNewGatewayNoKeys(t *testing.T) {
	if _, err := NewGateway(config.LLMConfig{}); err == nil {
		t.Fatal("expected error with no keys")
	}
}

func TestGatewayWrapsProviderErrors(t *testing.T) {
	g := NewGatewayWithProvider(stubProvider{err: errors.New("boom")})
	_, err := g.Generate(context.Background(), "p")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "stub: boom" {
		t.Errorf("error = %q", got)
	}
}
