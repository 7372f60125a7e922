package domain

import (
	"time"

	"github.com/louisbranch/questmaster/internal/core/dice"
)

// DefaultRollRetention is how many rolls a session keeps before the oldest
// are evicted.
const DefaultRollRetention = 200

// Roll records one evaluated dice expression. Rolls are immutable once
// created and form an append-only, retention-capped history per session.
type Roll struct {
	SessionID   string
	CharacterID string
	Expression  string
	Mode        string
	Results     []int
	Modifier    int
	Total       int
	Critical    bool
	Fumble      bool
	RolledAt    time.Time
}

// NewRoll builds a persistent roll record from a dice evaluation.
func NewRoll(sessionID, characterID string, result dice.Roll, now func() time.Time) Roll {
	if now == nil {
		now = time.Now
	}
	return Roll{
		SessionID:   sessionID,
		CharacterID: characterID,
		Expression:  result.Expression,
		Mode:        result.Mode.String(),
		Results:     result.Results,
		Modifier:    result.Modifier,
		Total:       result.Total,
		Critical:    result.Critical,
		Fumble:      result.Fumble,
		RolledAt:    now().UTC(),
	}
}
