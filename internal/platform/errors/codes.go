// Package errors provides structured error handling with machine-readable codes.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Dice errors
	CodeDiceParse        Code = "DICE_PARSE"
	CodeDiceModeNeedsD20 Code = "DICE_MODE_NEEDS_D20"
	CodeDiceInvalidSides Code = "DICE_INVALID_SIDES"
	CodeDiceTooManyDice  Code = "DICE_TOO_MANY_DICE"
	CodeDiceMissingExpr  Code = "DICE_MISSING_EXPRESSION"
	CodeSeedOutOfRange   Code = "SEED_OUT_OF_RANGE"

	// Character errors
	CodeCharacterEmptyName     Code = "CHARACTER_EMPTY_NAME"
	CodeCharacterEmptyPlayerID Code = "CHARACTER_EMPTY_PLAYER_ID"
	CodeCharacterInvalidLevel  Code = "CHARACTER_INVALID_LEVEL"
	CodeCharacterInvalidHP     Code = "CHARACTER_INVALID_HP"
	CodeCharacterExists        Code = "CHARACTER_EXISTS"

	// Session errors
	CodeSessionEmptyID           Code = "SESSION_EMPTY_ID"
	CodeSessionInvalidTransition Code = "SESSION_INVALID_TRANSITION"
	CodeSessionStateConflict     Code = "SESSION_STATE_CONFLICT"
	CodeSessionArchived          Code = "SESSION_ARCHIVED"

	// Alert errors
	CodeAlertEmptySessionID    Code = "ALERT_EMPTY_SESSION_ID"
	CodeAlertInvalidSeverity   Code = "ALERT_INVALID_SEVERITY"
	CodeAlertInvalidResolution Code = "ALERT_INVALID_RESOLUTION"
	CodeAlertNotOpen           Code = "ALERT_NOT_OPEN"

	// AI dispatch errors
	CodeAIProvidersExhausted Code = "AI_PROVIDERS_EXHAUSTED"
	CodeAIEmptyPrompt        Code = "AI_EMPTY_PROMPT"

	// Operator grant errors
	CodeOperatorGrantInvalid Code = "OPERATOR_GRANT_INVALID"
	CodeOperatorGrantExpired Code = "OPERATOR_GRANT_EXPIRED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"

	// Transport errors
	CodeEventEmptyID        Code = "EVENT_EMPTY_ID"
	CodeEventEmptySessionID Code = "EVENT_EMPTY_SESSION_ID"
)

// HTTPStatus maps the error code to an HTTP status for API surfaces.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeDiceParse, CodeDiceModeNeedsD20, CodeDiceInvalidSides,
		CodeDiceTooManyDice, CodeDiceMissingExpr, CodeSeedOutOfRange,
		CodeCharacterEmptyName, CodeCharacterEmptyPlayerID,
		CodeCharacterInvalidLevel, CodeCharacterInvalidHP,
		CodeSessionEmptyID, CodeAlertEmptySessionID,
		CodeAlertInvalidSeverity, CodeAlertInvalidResolution,
		CodeAIEmptyPrompt, CodeEventEmptyID, CodeEventEmptySessionID:
		return http.StatusBadRequest
	case CodeOperatorGrantInvalid, CodeOperatorGrantExpired:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeCharacterExists, CodeSessionInvalidTransition,
		CodeSessionStateConflict, CodeSessionArchived, CodeAlertNotOpen:
		return http.StatusConflict
	case CodeAIProvidersExhausted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
