package domain

import (
	"fmt"
	"time"

	"github.com/louisbranch/questmaster/internal/id"
)

// SessionState describes where a session sits in its processing lifecycle.
type SessionState int

const (
	// SessionStateUnspecified represents an invalid session state value.
	SessionStateUnspecified SessionState = iota
	// SessionStateCreated indicates the session exists but has not greeted players.
	SessionStateCreated
	// SessionStateAwaitingPlayerInput indicates the session is idle between turns.
	SessionStateAwaitingPlayerInput
	// SessionStateResolvingMechanics indicates dice or character updates are in flight.
	SessionStateResolvingMechanics
	// SessionStateAwaitingAI indicates narration was dispatched to an AI provider.
	SessionStateAwaitingAI
	// SessionStateAwaitingHumanReview indicates automated narration is suspended
	// pending an operator.
	SessionStateAwaitingHumanReview
	// SessionStateResponding indicates outbound events are being emitted.
	SessionStateResponding
	// SessionStatePaused indicates the session stopped accepting new processing.
	SessionStatePaused
	// SessionStateArchived is the terminal state.
	SessionStateArchived
)

var stateNames = map[SessionState]string{
	SessionStateCreated:             "created",
	SessionStateAwaitingPlayerInput: "awaiting_player_input",
	SessionStateResolvingMechanics:  "resolving_mechanics",
	SessionStateAwaitingAI:          "awaiting_ai",
	SessionStateAwaitingHumanReview: "awaiting_human_review",
	SessionStateResponding:          "responding",
	SessionStatePaused:              "paused",
	SessionStateArchived:            "archived",
}

// String returns the snake_case state name.
func (s SessionState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unspecified"
}

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	return s == SessionStateArchived
}

// CanTransition reports whether the state machine admits from -> to.
//
// Archival is reachable from any non-terminal state via explicit
// termination, and any non-terminal state may pause.
func CanTransition(from, to SessionState) bool {
	if from.Terminal() {
		return false
	}
	if to == SessionStateArchived {
		return true
	}
	if to == SessionStatePaused {
		return from != SessionStatePaused
	}

	switch from {
	case SessionStateCreated:
		return to == SessionStateAwaitingPlayerInput
	case SessionStateAwaitingPlayerInput:
		return to == SessionStateResolvingMechanics || to == SessionStateAwaitingAI
	case SessionStateResolvingMechanics:
		return to == SessionStateAwaitingAI
	case SessionStateAwaitingAI:
		return to == SessionStateAwaitingHumanReview || to == SessionStateResponding
	case SessionStateAwaitingHumanReview:
		return to == SessionStateResponding
	case SessionStateResponding:
		return to == SessionStateAwaitingPlayerInput
	case SessionStatePaused:
		return to == SessionStateAwaitingPlayerInput
	default:
		return false
	}
}

// WorldState is the session's snapshot of the fiction.
type WorldState struct {
	Location     string
	TimeOfDay    string
	Tags         []string
	CombatRounds int
}

// Session groups players, characters, and world state for one continuous
// play instance. At most one inbound event per session is processed at a
// time; the orchestrator serializes them.
type Session struct {
	ID           string
	Players      []string
	State        SessionState
	Scene        string
	ActiveQuest  string
	World        WorldState
	PendingDraft string
	LastActivity time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPlayer reports whether the player participates in the session.
func (s Session) HasPlayer(playerID string) bool {
	for _, p := range s.Players {
		if p == playerID {
			return true
		}
	}
	return false
}

// CreateSessionInput describes the metadata needed to create a session.
type CreateSessionInput struct {
	Scene    string
	Location string
}

// CreateSession creates a new session with a generated ID and timestamps.
// The session starts in the Created state with an empty player roster.
func CreateSession(input CreateSessionInput, now func() time.Time, idGenerator func() (string, error)) (Session, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	sessionID, err := idGenerator()
	if err != nil {
		return Session{}, fmt.Errorf("generate session id: %w", err)
	}

	createdAt := now().UTC()
	return Session{
		ID:    sessionID,
		State: SessionStateCreated,
		Scene: input.Scene,
		World: WorldState{
			Location: input.Location,
		},
		LastActivity: createdAt,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}, nil
}
