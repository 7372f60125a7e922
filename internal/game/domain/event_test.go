package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizeInboundEvent(t *testing.T) {
	event, err := NormalizeInboundEvent(InboundEvent{
		EventID:   "  evt-1  ",
		SessionID: "sess-1",
		PlayerID:  "player-1",
		Text:      "  I open the door  ",
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if event.EventID != "evt-1" {
		t.Fatalf("expected trimmed event id, got %q", event.EventID)
	}
	if event.Text != "I open the door" {
		t.Fatalf("expected trimmed text, got %q", event.Text)
	}
	if event.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be defaulted")
	}
}

func TestNormalizeInboundEventValidation(t *testing.T) {
	valid := InboundEvent{
		EventID:   "evt-1",
		SessionID: "sess-1",
		PlayerID:  "player-1",
		Text:      "hello",
		Timestamp: time.Now(),
	}

	tests := []struct {
		name   string
		mutate func(*InboundEvent)
		want   error
	}{
		{"missing event id", func(e *InboundEvent) { e.EventID = " " }, ErrEmptyEventID},
		{"missing session id", func(e *InboundEvent) { e.SessionID = "" }, ErrEmptySessionID},
		{"missing player id", func(e *InboundEvent) { e.PlayerID = "" }, ErrEmptyPlayerID},
		{"missing text", func(e *InboundEvent) { e.Text = "   " }, ErrEmptyEventText},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			event := valid
			tc.mutate(&event)
			if _, err := NormalizeInboundEvent(event); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
