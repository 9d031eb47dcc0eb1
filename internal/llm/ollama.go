package llm

import (
	"context"
	"fmt"
	"net/url"
	"unicode/utf8"

	"issuewiz/config"

	"github.com/JexSrs/go-ollama"
	"github.com/sirupsen/logrus"
)

// OllamaClient talks to a local or remote Ollama server.
type OllamaClient struct {
	client          *ollama.Ollama
	model           string
	maxPromptLength int
}

// NewOllamaClient creates a new client for Ollama.
func NewOllamaClient(cfg config.LLMConfig) (*OllamaClient, error) {
	ollamaURL, err := url.Parse(cfg.Ollama.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", cfg.Ollama.Host, err)
	}
	if ollamaURL.Scheme == "" || ollamaURL.Host == "" {
		return nil, fmt.Errorf("invalid ollama host %q: scheme and host are required", cfg.Ollama.Host)
	}

	logrus.Infof("Using Ollama host %s with model %s", cfg.Ollama.Host, cfg.Ollama.Model)

	return &OllamaClient{
		client:          ollama.New(*ollamaURL),
		model:           cfg.Ollama.Model,
		maxPromptLength: cfg.MaxPromptLength,
	}, nil
}

type generateResult struct {
	text string
	err  error
}

// Request sends a single, non-streaming Generate call. The library call
// takes no context, so cancellation abandons the call rather than aborting it.
func (oc *OllamaClient) Request(ctx context.Context, systemMessage, userPrompt string) (string, error) {
	length := utf8.RuneCountInString(userPrompt)
	logrus.Debugf("Sending prompt of %d characters to Ollama (max: %d)", length, oc.maxPromptLength)
	if oc.maxPromptLength > 0 && length > oc.maxPromptLength {
		logrus.Warnf("Prompt is being truncated from %d to %d characters.", length, oc.maxPromptLength)
		userPrompt = truncatePrompt(userPrompt, oc.maxPromptLength)
	}

	done := make(chan generateResult, 1)
	go func() {
		text, err := oc.generate(systemMessage, userPrompt)
		done <- generateResult{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("ollama generate: %w", ctx.Err())
	case res := <-done:
		return res.text, res.err
	}
}

func (oc *OllamaClient) generate(systemMessage, userPrompt string) (string, error) {
	res, err := oc.client.Generate(
		oc.client.Generate.WithModel(oc.model),
		oc.client.Generate.WithSystem(systemMessage),
		oc.client.Generate.WithPrompt(userPrompt),
	)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}

	if !res.Done {
		return "", fmt.Errorf("ollama generate: response not marked done (unexpected streaming)")
	}
	if res.Response == "" {
		return "", ErrEmptyCompletion
	}

	logrus.Debug("Response received from Ollama.")
	return res.Response, nil
}
