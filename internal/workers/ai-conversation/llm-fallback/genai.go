package llmfallback

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenAIGenerator calls the Gemini API.
type GenAIGenerator struct {
	client *genai.Client
}

func NewGenAIGenerator(ctx context.Context, apiKey string) (*GenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIGenerator{client: client}, nil
}

func (g *GenAIGenerator) GenerateText(ctx context.Context, model, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	return resp.Text(), nil
}
