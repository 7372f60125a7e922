package transport

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/louisbranch/questmaster/internal/game/domain"
	"github.com/louisbranch/questmaster/internal/orchestrator"
)

// Submitter accepts inbound events for processing. It is satisfied by
// the orchestrator.
type Submitter interface {
	Submit(ctx context.Context, event domain.InboundEvent) error
}

// webhookPayload is the gateway's inbound event shape.
type webhookPayload struct {
	EventID   string `json:"event_id"`
	SessionID string `json:"session_id"`
	PlayerID  string `json:"player_id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// WebhookHandler receives gateway events and hands them to the
// orchestrator. Delivery is at least once; duplicates are the
// orchestrator's problem, acceptance is this handler's.
type WebhookHandler struct {
	submitter Submitter
	secret    string
}

// NewWebhookHandler builds the inbound webhook. An empty secret disables
// signature checking, intended for local development only.
func NewWebhookHandler(submitter Submitter, secret string) (*WebhookHandler, error) {
	if submitter == nil {
		return nil, errors.New("submitter is required")
	}
	return &WebhookHandler{submitter: submitter, secret: secret}, nil
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.secret != "" {
		provided := r.Header.Get("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
			http.Error(w, "invalid webhook secret", http.StatusUnauthorized)
			return
		}
	}

	var payload webhookPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&payload); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	event := domain.InboundEvent{
		EventID:   payload.EventID,
		SessionID: payload.SessionID,
		PlayerID:  payload.PlayerID,
		Text:      payload.Text,
	}
	if payload.Timestamp > 0 {
		event.Timestamp = time.UnixMilli(payload.Timestamp).UTC()
	}

	err := h.submitter.Submit(r.Context(), event)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, orchestrator.ErrMailboxFull):
		// The gateway retries; at-least-once delivery makes this safe.
		w.Header().Set("Retry-After", "1")
		http.Error(w, "session queue is full", http.StatusTooManyRequests)
	case errors.Is(err, orchestrator.ErrNotRunning):
		http.Error(w, "service is shutting down", http.StatusServiceUnavailable)
	case errors.Is(err, domain.ErrEmptyEventID),
		errors.Is(err, domain.ErrEmptySessionID),
		errors.Is(err, domain.ErrEmptyPlayerID),
		errors.Is(err, domain.ErrEmptyEventText):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("webhook: submit event %s: %v", payload.EventID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
