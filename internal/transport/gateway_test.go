package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/louisbranch/questmaster/internal/game/domain"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func httpResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestGatewaySenderSend(t *testing.T) {
	var captured *http.Request
	var capturedBody []byte
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		captured = r
		capturedBody, _ = io.ReadAll(r.Body)
		return httpResponse(http.StatusOK, `{}`), nil
	})}

	sender, err := NewGatewaySender(GatewayConfig{
		URL:        "https://gateway.example/messages",
		Token:      "secret-token",
		HTTPClient: client,
	})
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}

	event := domain.OutboundEvent{
		SessionID:  "sess-1",
		Recipients: []string{"p1", "p2"},
		Text:       "The door creaks open.",
	}
	if err := sender.Send(context.Background(), event); err != nil {
		t.Fatalf("send: %v", err)
	}

	if captured.Method != http.MethodPost {
		t.Errorf("method = %s, want POST", captured.Method)
	}
	if got := captured.Header.Get("Authorization"); got != "Bearer secret-token" {
		t.Errorf("authorization = %q", got)
	}
	if got := captured.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("content type = %q", got)
	}

	var payload gatewayMessage
	if err := json.Unmarshal(capturedBody, &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload.SessionID != "sess-1" || payload.Text != "The door creaks open." {
		t.Errorf("payload = %+v", payload)
	}
	if len(payload.Recipients) != 2 {
		t.Errorf("recipients = %v", payload.Recipients)
	}
}

func TestGatewaySenderErrorStatus(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return httpResponse(http.StatusBadGateway, "upstream unavailable"), nil
	})}

	sender, err := NewGatewaySender(GatewayConfig{URL: "https://gateway.example/messages", HTTPClient: client})
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}

	err = sender.Send(context.Background(), domain.OutboundEvent{SessionID: "s", Text: "hi"})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	if !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "upstream unavailable") {
		t.Errorf("err = %v, want status and body detail", err)
	}
}

func TestGatewaySenderRequiresURL(t *testing.T) {
	if _, err := NewGatewaySender(GatewayConfig{}); err == nil {
		t.Fatal("expected error for missing url")
	}
}

func TestGatewaySenderCanceledContext(t *testing.T) {
	sender, err := NewGatewaySender(GatewayConfig{URL: "https://gateway.example/messages"})
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sender.Send(ctx, domain.OutboundEvent{SessionID: "s", Text: "hi"}); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
