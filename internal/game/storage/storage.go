package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/questmaster/internal/game/domain"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrStateConflict indicates a session transition lost a compare-and-set
	// race or requested a move the state machine rejects.
	ErrStateConflict = errors.New("session state conflict")
)

// SessionStore persists session records and guards state transitions.
type SessionStore interface {
	PutSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, id string) (domain.Session, error)
	// TransitionSession moves a session from one state to another only if the
	// stored state still matches from. Returns ErrStateConflict otherwise.
	TransitionSession(ctx context.Context, id string, from, to domain.SessionState, now time.Time) (domain.Session, error)
	// TouchSession updates the session's last activity timestamp.
	TouchSession(ctx context.Context, id string, now time.Time) error
	ListSessions(ctx context.Context) ([]domain.Session, error)
}

// CharacterStore persists character sheets.
type CharacterStore interface {
	PutCharacter(ctx context.Context, character domain.Character) error
	GetCharacter(ctx context.Context, id string) (domain.Character, error)
	// GetCharacterByPlayer fetches the active character a player controls in a
	// session. Removed characters are not returned.
	GetCharacterByPlayer(ctx context.Context, sessionID, playerID string) (domain.Character, error)
	ListCharacters(ctx context.Context, sessionID string) ([]domain.Character, error)
	// UpdateCharacterHP applies a hit point delta atomically, clamped to
	// [0, max], and returns the updated record.
	UpdateCharacterHP(ctx context.Context, id string, delta int, now time.Time) (domain.Character, error)
	// RemoveCharacter marks a character as removed without deleting its record.
	RemoveCharacter(ctx context.Context, id string, now time.Time) error
}

// RollStore keeps a bounded, append-only roll history per session.
type RollStore interface {
	// AppendRoll stores a roll and evicts the oldest entries beyond retention.
	AppendRoll(ctx context.Context, roll domain.Roll, retention int) error
	// ListRolls returns up to limit rolls for a session, newest first.
	ListRolls(ctx context.Context, sessionID string, limit int) ([]domain.Roll, error)
}

// EventDedupe remembers processed transport event IDs so redelivered events
// are acknowledged without reprocessing.
type EventDedupe interface {
	// MarkEventProcessed records an event ID and reports whether it had
	// already been recorded.
	MarkEventProcessed(ctx context.Context, eventID string) (bool, error)
	// EventProcessed reports whether an event ID has been recorded.
	EventProcessed(ctx context.Context, eventID string) (bool, error)
}

// Store is the full persistence surface the orchestrator depends on.
type Store interface {
	SessionStore
	CharacterStore
	RollStore
	EventDedupe
	Close() error
}
