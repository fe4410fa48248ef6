package llmfallback

import (
	"context"
	"errors"
	"strings"

	"lca-assistant/internal/common/logger"
)

const (
	TaskType = "llm-fallback"
)

var (
	ErrLLMTimeout = errors.New("LLM_TIMEOUT")
)

// HelpText is returned when no model is configured or the model fails.
const HelpText = `I can answer questions about H-1B sponsorship and LCA filings. Try:
- "How many students from University of Michigan got H-1B last year?"
- "How many H-1B petitions did Google file in FY2024?"
- "Which companies filed the most H-1B petitions?"
- "Look up case I-200-24001-123456"
- "Jobs paying over $120k" or "jobs under $80k"
- "Show LCA filings in Seattle"
- "Jobs for data scientists"
- "/profile Google" for an employer summary`

// Handler answers messages no recognizer matched. It never fails: any model
// error degrades to HelpText.
type Handler struct {
	config    *Config
	generator Generator
	logger    logger.Logger
}

// NewHandler accepts a nil generator, which disables the model.
func NewHandler(config *Config, generator Generator, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		generator: generator,
		logger:    log.With(map[string]interface{}{"component": TaskType}),
	}
}

func (h *Handler) Enabled() bool {
	return h.generator != nil
}

func (h *Handler) Answer(ctx context.Context, message string) Answer {
	if h.generator == nil {
		return Answer{Text: HelpText}
	}

	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	text, err := h.generator.GenerateText(ctx, h.config.Model, buildPrompt(message))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = ErrLLMTimeout
		}
		h.logger.Warn("LLM fallback failed", map[string]interface{}{
			"model": h.config.Model,
			"error": err.Error(),
		})
		return Answer{Text: HelpText}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Answer{Text: HelpText}
	}

	h.logger.Info("LLM fallback completed", map[string]interface{}{
		"model":        h.config.Model,
		"answerLength": len(text),
	})
	return Answer{Text: text, Generated: true}
}

func buildPrompt(message string) string {
	var parts []string

	parts = append(parts, "You are an assistant for international students and workers researching US H-1B sponsorship and LCA filings.")
	parts = append(parts, "\nUser Question: "+message)

	parts = append(parts, "\nInstructions:")
	parts = append(parts, "- Keep the answer short and practical")
	parts = append(parts, "- Do not invent petition counts, wages or case numbers")
	parts = append(parts, "- Suggest asking about a specific employer, school or case number when that would help")

	parts = append(parts, "\nAnswer:")

	return strings.Join(parts, "\n")
}
