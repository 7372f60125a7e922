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

// OllamaConfig configures a local Ollama endpoint. Ollama needs no
// credentials, which makes it the fallback of last resort.
type OllamaConfig struct {
	BaseURL      string
	DefaultModel string
	HTTPClient   *http.Client
}

type ollamaProvider struct {
	cfg OllamaConfig
}

// NewOllamaProvider builds a provider over the Ollama generate API.
func NewOllamaProvider(cfg OllamaConfig) Provider {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if strings.TrimSpace(cfg.DefaultModel) == "" {
		cfg.DefaultModel = "llama3"
	}
	return &ollamaProvider{cfg: cfg}
}

func (p *ollamaProvider) Name() string { return "ollama" }

func (p *ollamaProvider) Complete(ctx context.Context, prompt string, params Params) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}

	model := strings.TrimSpace(params.Model)
	if model == "" {
		model = p.cfg.DefaultModel
	}
	request := map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
	}
	if params.Temperature > 0 {
		request["options"] = map[string]any{"temperature": params.Temperature}
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}
	generateURL := strings.TrimRight(p.cfg.BaseURL, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, generateURL, bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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
		Response string `json:"response"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", malformedError(p.Name(), fmt.Errorf("decode completion response: %w", err))
	}
	outputText := strings.TrimSpace(payload.Response)
	if outputText == "" {
		return "", malformedError(p.Name(), fmt.Errorf("completion response missing text"))
	}
	return outputText, nil
}
