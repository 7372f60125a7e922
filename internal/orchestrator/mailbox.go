package orchestrator

import (
	"errors"
	"fmt"

	"github.com/louisbranch/questmaster/internal/game/domain"
)

// ErrMailboxFull indicates a session's queue rejected an event. The
// transport should surface a retryable status to the gateway.
var ErrMailboxFull = errors.New("session mailbox is full")

// mailboxCapacity bounds how many events a session can queue before
// submissions are rejected.
const mailboxCapacity = 64

// mailbox is one session's serialized event queue. A single worker
// goroutine drains it, so events within a session never interleave while
// independent sessions proceed in parallel.
type mailbox struct {
	sessionID string
	events    chan domain.InboundEvent
	// aiFailures counts consecutive AI dispatch failures. Only the
	// session worker touches it.
	aiFailures int
}

func newMailbox(sessionID string) *mailbox {
	return &mailbox{
		sessionID: sessionID,
		events:    make(chan domain.InboundEvent, mailboxCapacity),
	}
}

// enqueue appends an event in arrival order without blocking. A full
// queue rejects the event so the transport can retry later.
func (m *mailbox) enqueue(event domain.InboundEvent) error {
	select {
	case m.events <- event:
		return nil
	default:
		return fmt.Errorf("session %s: %w", m.sessionID, ErrMailboxFull)
	}
}

// drain discards queued events. Called when a session archives.
func (m *mailbox) drain() {
	for {
		select {
		case <-m.events:
		default:
			return
		}
	}
}
