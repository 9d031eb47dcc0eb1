package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"issuewiz/config"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// ErrMissingAPIKey is returned when no Gemini key is configured.
var ErrMissingAPIKey = errors.New("gemini api key not set (llm.gemini.api_key or GEMINI_API_KEY)")

// GeminiClient calls the Gemini API. A genai client is opened per request,
// so the value is safe for concurrent use and holds no connections.
type GeminiClient struct {
	apiKey          string
	cfg             config.GeminiConfig
	maxPromptLength int
}

// NewGeminiClient creates a Gemini client. The key comes from config or,
// failing that, from GEMINI_API_KEY.
func NewGeminiClient(cfg config.LLMConfig) (*GeminiClient, error) {
	apiKey := cfg.Gemini.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	logrus.Infof("Using Gemini model %s", cfg.Gemini.Model)

	return &GeminiClient{
		apiKey:          apiKey,
		cfg:             cfg.Gemini,
		maxPromptLength: cfg.MaxPromptLength,
	}, nil
}

// Request sends the prompt with the system message as system instruction.
func (gc *GeminiClient) Request(ctx context.Context, systemMessage, userPrompt string) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(gc.apiKey))
	if err != nil {
		return "", fmt.Errorf("creating gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(gc.cfg.Model)
	model.SetTemperature(gc.cfg.Temperature)
	model.SetTopK(gc.cfg.TopK)
	model.SetTopP(gc.cfg.TopP)
	model.SetMaxOutputTokens(gc.cfg.MaxOutputTokens)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemMessage)},
	}

	userPrompt = truncatePrompt(userPrompt, gc.maxPromptLength)
	logrus.Debugf("Sending prompt of %d characters to Gemini", len(userPrompt))

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyCompletion
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyCompletion
	}
	return sb.String(), nil
}
