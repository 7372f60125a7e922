// Package domain models the entities owned by a game session: characters,
// sessions, rolls, and the events flowing through the orchestrator.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/questmaster/internal/id"
)

var (
	// ErrEmptyCharacterName indicates a character name is required.
	ErrEmptyCharacterName = errors.New("character name is required")
	// ErrEmptyPlayerID indicates an owning player ID is required.
	ErrEmptyPlayerID = errors.New("player id is required")
	// ErrEmptySessionID indicates an owning session ID is required.
	ErrEmptySessionID = errors.New("session id is required")
	// ErrInvalidLevel indicates a character level must be positive.
	ErrInvalidLevel = errors.New("level must be a positive integer")
	// ErrInvalidHP indicates hit points outside the [0, max] range.
	ErrInvalidHP = errors.New("hit points must satisfy 0 <= current <= max")
	// ErrInvalidAbilityScore indicates an ability score outside [1, 30].
	ErrInvalidAbilityScore = errors.New("ability scores must be between 1 and 30")
)

// AbilityScores holds the six standard ability scores.
type AbilityScores struct {
	Strength     int
	Dexterity    int
	Constitution int
	Intelligence int
	Wisdom       int
	Charisma     int
}

// All returns the scores in canonical order.
func (a AbilityScores) All() [6]int {
	return [6]int{a.Strength, a.Dexterity, a.Constitution, a.Intelligence, a.Wisdom, a.Charisma}
}

// Character is a player character within a session.
//
// Current HP never exceeds max HP and is clamped at zero; zero HP means
// incapacitated, not deleted. Characters are soft-removed on explicit
// deletion only, never while their session is active.
type Character struct {
	ID         string
	PlayerID   string
	SessionID  string
	Name       string
	Level      int
	HPCurrent  int
	HPMax      int
	ArmorClass int
	Abilities  AbilityScores
	Inventory  []string
	Status     string
	Removed    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CreateCharacterInput captures user-provided fields for creating a character.
type CreateCharacterInput struct {
	PlayerID   string
	SessionID  string
	Name       string
	Level      int
	HPMax      int
	ArmorClass int
	Abilities  AbilityScores
	Inventory  []string
}

// NormalizeCreateCharacterInput validates and canonicalizes character input.
func NormalizeCreateCharacterInput(input CreateCharacterInput) (CreateCharacterInput, error) {
	input.PlayerID = strings.TrimSpace(input.PlayerID)
	if input.PlayerID == "" {
		return CreateCharacterInput{}, ErrEmptyPlayerID
	}

	input.SessionID = strings.TrimSpace(input.SessionID)
	if input.SessionID == "" {
		return CreateCharacterInput{}, ErrEmptySessionID
	}

	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return CreateCharacterInput{}, ErrEmptyCharacterName
	}

	if input.Level <= 0 {
		input.Level = 1
	}
	if input.HPMax <= 0 {
		return CreateCharacterInput{}, ErrInvalidHP
	}
	for _, score := range input.Abilities.All() {
		if score < 1 || score > 30 {
			return CreateCharacterInput{}, ErrInvalidAbilityScore
		}
	}

	return input, nil
}

// CreateCharacter constructs a normalized character with generated
// identifiers. New characters start at full hit points.
func CreateCharacter(input CreateCharacterInput, now func() time.Time, idGenerator func() (string, error)) (Character, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateCharacterInput(input)
	if err != nil {
		return Character{}, err
	}

	characterID, err := idGenerator()
	if err != nil {
		return Character{}, fmt.Errorf("generate character id: %w", err)
	}

	createdAt := now().UTC()
	return Character{
		ID:         characterID,
		PlayerID:   normalized.PlayerID,
		SessionID:  normalized.SessionID,
		Name:       normalized.Name,
		Level:      normalized.Level,
		HPCurrent:  normalized.HPMax,
		HPMax:      normalized.HPMax,
		ArmorClass: normalized.ArmorClass,
		Abilities:  normalized.Abilities,
		Inventory:  normalized.Inventory,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}, nil
}

// ApplyHPDelta returns the character's current HP shifted by delta and
// clamped to [0, max]. It never returns a value outside that range.
func ApplyHPDelta(current, max, delta int) int {
	next := current + delta
	if next < 0 {
		return 0
	}
	if next > max {
		return max
	}
	return next
}
