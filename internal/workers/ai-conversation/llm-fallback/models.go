// internal/workers/ai-conversation/llm-fallback/models.go
package llmfallback

import "context"

// Generator produces a free-text completion for prompt.
type Generator interface {
	GenerateText(ctx context.Context, model, prompt string) (string, error)
}

type Answer struct {
	Text      string
	Generated bool
}
