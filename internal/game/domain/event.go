package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrEmptyEventID indicates a transport event ID is required.
	ErrEmptyEventID = errors.New("event id is required")
	// ErrEmptyEventText indicates event text is required.
	ErrEmptyEventText = errors.New("event text is required")
)

// InboundEvent is a normalized player message received from the transport
// collaborator. EventID is transport-supplied and used for de-duplication
// under at-least-once delivery.
type InboundEvent struct {
	EventID   string
	SessionID string
	PlayerID  string
	Text      string
	Timestamp time.Time
}

// NormalizeInboundEvent trims and validates an inbound event.
func NormalizeInboundEvent(event InboundEvent) (InboundEvent, error) {
	event.EventID = strings.TrimSpace(event.EventID)
	if event.EventID == "" {
		return InboundEvent{}, ErrEmptyEventID
	}
	event.SessionID = strings.TrimSpace(event.SessionID)
	if event.SessionID == "" {
		return InboundEvent{}, ErrEmptySessionID
	}
	event.PlayerID = strings.TrimSpace(event.PlayerID)
	if event.PlayerID == "" {
		return InboundEvent{}, ErrEmptyPlayerID
	}
	event.Text = strings.TrimSpace(event.Text)
	if event.Text == "" {
		return InboundEvent{}, ErrEmptyEventText
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event, nil
}

// OutboundEvent is a message handed to the transport collaborator for
// delivery. A single inbound event may produce several outbound events,
// emitted in order.
type OutboundEvent struct {
	SessionID  string
	Recipients []string
	Text       string
}
