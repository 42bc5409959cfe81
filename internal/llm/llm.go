// Package llm provides the text-generation gateway: a primary Gemini REST
// client with a chat-completions fallback, selected by which API key is
// configured.
package llm

import "context"

// Result is one completed generation.
type Result struct {
	Content   string
	Model     string
	LatencyMs int64
}

// Provider generates text for a single prompt.
type Provider interface {
	Generate(ctx context.Context, prompt string) (Result, error)
	Name() string
}
