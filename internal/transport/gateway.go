// Package transport connects the orchestrator to the chat gateway: an
// inbound webhook for player events, an outbound HTTP client for
// deliveries, and the operator review API.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/louisbranch/questmaster/internal/game/domain"
	"github.com/louisbranch/questmaster/internal/platform/timeouts"
)

// GatewayConfig configures the outbound delivery client.
type GatewayConfig struct {
	// URL is the gateway's message delivery endpoint.
	URL string
	// Token authorizes deliveries. Sent as a bearer token when set.
	Token string
	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client
}

// GatewaySender delivers outbound events to the chat gateway over HTTP.
type GatewaySender struct {
	url    string
	token  string
	client *http.Client
}

// NewGatewaySender validates the configuration and builds a sender.
func NewGatewaySender(cfg GatewayConfig) (*GatewaySender, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, fmt.Errorf("gateway url is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &GatewaySender{url: url, token: cfg.Token, client: client}, nil
}

// gatewayMessage is the delivery payload.
type gatewayMessage struct {
	SessionID  string   `json:"session_id"`
	Recipients []string `json:"recipients,omitempty"`
	Text       string   `json:"text"`
}

// Send posts one outbound event to the gateway. Each delivery carries
// its own timeout so a stalled gateway cannot hold a session worker.
func (s *GatewaySender) Send(ctx context.Context, event domain.OutboundEvent) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.GatewaySend)
	defer cancel()

	body, err := json.Marshal(gatewayMessage{
		SessionID:  event.SessionID,
		Recipients: event.Recipients,
		Text:       event.Text,
	})
	if err != nil {
		return fmt.Errorf("encode gateway message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver to gateway: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("gateway returned %d: %s", res.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
