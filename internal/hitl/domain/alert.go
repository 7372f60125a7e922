package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/louisbranch/questmaster/internal/id"
)

// Severity ranks how urgently an alert needs an operator.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Status tracks an alert through the review workflow. Alerts are never
// deleted; resolved alerts stay for audit.
type Status string

const (
	StatusOpen         Status = "open"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Reason identifies which rule raised an alert.
type Reason string

const (
	ReasonInappropriateContent Reason = "inappropriate_content"
	ReasonRulesDispute         Reason = "rules_dispute"
	ReasonPlayerConflict       Reason = "player_conflict"
	ReasonComplexSituation     Reason = "complex_situation"
	ReasonOperatorRequest      Reason = "operator_request"
	ReasonAIUnavailable        Reason = "ai_unavailable"
	ReasonAIFailures           Reason = "ai_failures"
	ReasonCombatStalled        Reason = "combat_stalled"
	ReasonSessionFault         Reason = "session_fault"
)

// Source identifies whose text tripped a rule.
type Source string

const (
	SourcePlayer Source = "player"
	SourceAI     Source = "ai"
	SourceSystem Source = "system"
)

var (
	// ErrEmptyAlertID indicates an alert ID is required.
	ErrEmptyAlertID = errors.New("alert id is required")
	// ErrEmptyAlertSessionID indicates an alert session ID is required.
	ErrEmptyAlertSessionID = errors.New("alert session id is required")
	// ErrEmptyAlertReason indicates an alert reason is required.
	ErrEmptyAlertReason = errors.New("alert reason is required")
	// ErrAlertNotOpen indicates a workflow action needs an open or
	// acknowledged alert.
	ErrAlertNotOpen = errors.New("alert is not open")
)

// Alert records a situation flagged for human review. The excerpt keeps
// enough of the triggering text for an operator to judge without loading
// the full session.
type Alert struct {
	ID        string
	SessionID string
	PlayerID  string
	Source    Source
	Reason    Reason
	Severity  Severity
	Excerpt   string
	Note      string
	Status    Status
	Response  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateAlertInput carries the fields needed to open an alert.
type CreateAlertInput struct {
	SessionID string
	PlayerID  string
	Source    Source
	Reason    Reason
	Severity  Severity
	Excerpt   string
	Note      string
}

const maxExcerptLen = 280

// CreateAlert validates input and builds an open alert.
func CreateAlert(input CreateAlertInput, now func() time.Time, idGenerator func() (string, error)) (Alert, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	if strings.TrimSpace(input.SessionID) == "" {
		return Alert{}, ErrEmptyAlertSessionID
	}
	if strings.TrimSpace(string(input.Reason)) == "" {
		return Alert{}, ErrEmptyAlertReason
	}
	if input.Severity == "" {
		input.Severity = SeverityWarning
	}
	if input.Source == "" {
		input.Source = SourceSystem
	}

	id, err := idGenerator()
	if err != nil {
		return Alert{}, err
	}

	timestamp := now().UTC()
	return Alert{
		ID:        id,
		SessionID: strings.TrimSpace(input.SessionID),
		PlayerID:  strings.TrimSpace(input.PlayerID),
		Source:    input.Source,
		Reason:    input.Reason,
		Severity:  input.Severity,
		Excerpt:   TruncateExcerpt(input.Excerpt),
		Note:      strings.TrimSpace(input.Note),
		Status:    StatusOpen,
		CreatedAt: timestamp,
		UpdatedAt: timestamp,
	}, nil
}

// TruncateExcerpt trims triggering text to the stored excerpt length.
func TruncateExcerpt(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= maxExcerptLen {
		return text
	}
	return string(runes[:maxExcerptLen])
}

// Active reports whether the alert still needs operator attention.
func (a Alert) Active() bool {
	return a.Status == StatusOpen || a.Status == StatusAcknowledged
}
