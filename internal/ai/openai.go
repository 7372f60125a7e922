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

// OpenAIConfig configures the OpenAI responses endpoint and HTTP behavior.
type OpenAIConfig struct {
	ResponsesURL string
	APIKey       string
	DefaultModel string
	HTTPClient   *http.Client
}

type openAIProvider struct {
	cfg OpenAIConfig
}

// NewOpenAIProvider builds a provider over the OpenAI responses API.
func NewOpenAIProvider(cfg OpenAIConfig) Provider {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if strings.TrimSpace(cfg.ResponsesURL) == "" {
		cfg.ResponsesURL = "https://api.openai.com/v1/responses"
	}
	if strings.TrimSpace(cfg.DefaultModel) == "" {
		cfg.DefaultModel = "gpt-4o-mini"
	}
	return &openAIProvider{cfg: cfg}
}

func (p *openAIProvider) Name() string { return "openai" }

func (p *openAIProvider) Complete(ctx context.Context, prompt string, params Params) (string, error) {
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
	request := map[string]any{
		"model": model,
		"input": prompt,
	}
	if params.MaxTokens > 0 {
		request["max_output_tokens"] = params.MaxTokens
	}
	if params.Temperature > 0 {
		request["temperature"] = params.Temperature
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.ResponsesURL, bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Credential material is sent only as an Authorization header and is
	// never echoed in errors or logs.
	req.Header.Set("Authorization", "Bearer "+apiKey)

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
		OutputText string `json:"output_text"`
		Output     []struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", malformedError(p.Name(), fmt.Errorf("decode completion response: %w", err))
	}
	outputText := strings.TrimSpace(payload.OutputText)
	if outputText == "" {
		for _, item := range payload.Output {
			for _, content := range item.Content {
				if strings.TrimSpace(content.Text) != "" {
					outputText = strings.TrimSpace(content.Text)
					break
				}
			}
			if outputText != "" {
				break
			}
		}
	}
	if outputText == "" {
		return "", malformedError(p.Name(), fmt.Errorf("completion response missing output text"))
	}
	return outputText, nil
}
