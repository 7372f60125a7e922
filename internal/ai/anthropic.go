package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// AnthropicConfig configures the Anthropic messages endpoint and HTTP
// behavior.
type AnthropicConfig struct {
	MessagesURL  string
	APIKey       string
	DefaultModel string
	HTTPClient   *http.Client
}

type anthropicProvider struct {
	cfg AnthropicConfig
}

// NewAnthropicProvider builds a provider over the Anthropic messages API.
func NewAnthropicProvider(cfg AnthropicConfig) Provider {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if strings.TrimSpace(cfg.MessagesURL) == "" {
		cfg.MessagesURL = "https://api.anthropic.com/v1/messages"
	}
	if strings.TrimSpace(cfg.DefaultModel) == "" {
		cfg.DefaultModel = "claude-3-5-haiku-latest"
	}
	return &anthropicProvider{cfg: cfg}
}

func (p *anthropicProvider) Name() string { return "anthropic" }

func (p *anthropicProvider) Complete(ctx context.Context, prompt string, params Params) (string, error) {
	apiKey := strings.TrimSpace(p.cfg.APIKey)
	if apiKey == "" {
		return "", &ProviderError{Provider: p.Name(), Class: ErrorAuth, Err: fmt.Errorf("api key is required")}
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}

	model := strings.TrimSpace(params.Model)
	if model == "" {
		model = p.cfg.DefaultModel
	}
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	request := map[string]any{
		"model":      model,
		"max_tokens": maxTokens,
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
	}
	if params.Temperature > 0 {
		request["temperature"] = params.Temperature
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.MessagesURL, bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	res, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", transportError(p.Name(), err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, readErr := io.ReadAll(io.LimitReader(res.Body, 4096))
		if readErr != nil {
			return "", fmt.Errorf("read completion error body: %w", readErr)
		}
		return "", statusError(p.Name(), res.StatusCode, string(body))
	}

	var payload struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", malformedError(p.Name(), fmt.Errorf("decode completion response: %w", err))
	}
	var outputText string
	for _, content := range payload.Content {
		if content.Type == "text" && strings.TrimSpace(content.Text) != "" {
			outputText = strings.TrimSpace(content.Text)
			break
		}
	}
	if outputText == "" {
		return "", malformedError(p.Name(), fmt.Errorf("completion response missing text content"))
	}
	return outputText, nil
}
