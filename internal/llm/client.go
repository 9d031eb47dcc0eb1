package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"issuewiz/config"
)

// ErrEmptyCompletion is returned when the model answers with nothing.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Client defines the interface for LLM clients.
type Client interface {
	// Request sends a request to the LLM with system message and user prompt.
	Request(ctx context.Context, systemMessage, userPrompt string) (string, error)
}

// New returns the client for the configured provider.
func New(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaClient(cfg)
	case "gemini":
		return NewGeminiClient(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

var fenceLine = regexp.MustCompile("```.*?(\n|$)")

// SanitizeReply strips the markdown code fences models like to wrap JSON in.
func SanitizeReply(reply string) string {
	return strings.TrimSpace(fenceLine.ReplaceAllString(reply, ""))
}

// truncatePrompt cuts prompt to max runes. Callers that care which part
// survives should fit the prompt themselves; this is the last guard.
func truncatePrompt(prompt string, max int) string {
	if max <= 0 || utf8.RuneCountInString(prompt) <= max {
		return prompt
	}
	return string([]rune(prompt)[:max])
}
