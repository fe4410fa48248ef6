// internal/workers/ai-conversation/llm-fallback/config.go
package llmfallback

import "time"

type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Model:   "gemini-2.0-flash",
		Timeout: 15 * time.Second,
	}
}
