package dice

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// maxDiceCount caps the number of dice in one expression.
const maxDiceCount = 100

// allowedSides lists the die types players can roll.
var allowedSides = map[int]bool{4: true, 6: true, 8: true, 10: true, 12: true, 20: true, 100: true}

var expressionPattern = regexp.MustCompile(`^(\d*)d(\d+)([+-]\d+)?$`)

// Spec is a parsed dice expression.
type Spec struct {
	Count    int
	Sides    int
	Modifier int
}

// Canonical renders the spec back in normalized expression form.
func (s Spec) Canonical() string {
	expr := fmt.Sprintf("%dd%d", s.Count, s.Sides)
	if s.Modifier > 0 {
		expr += fmt.Sprintf("+%d", s.Modifier)
	}
	if s.Modifier < 0 {
		expr += strconv.Itoa(s.Modifier)
	}
	return expr
}

// ParseError reports a malformed dice expression. It identifies the
// offending fragment so callers can surface a correction message.
type ParseError struct {
	Expression string
	Fragment   string
	Reason     string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Fragment == "" {
		return fmt.Sprintf("invalid dice expression %q: %s", e.Expression, e.Reason)
	}
	return fmt.Sprintf("invalid dice expression %q at %q: %s", e.Expression, e.Fragment, e.Reason)
}

// Parse normalizes and parses a dice expression into a Spec.
//
// Expressions are lowercased and whitespace-stripped before matching, so
// "2D6 + 3" parses the same as "2d6+3".
func Parse(expression string) (Spec, error) {
	normalized := strings.ToLower(strings.ReplaceAll(expression, " ", ""))
	if normalized == "" {
		return Spec{}, &ParseError{Expression: expression, Reason: "expression is required"}
	}

	match := expressionPattern.FindStringSubmatch(normalized)
	if match == nil {
		return Spec{}, &ParseError{
			Expression: expression,
			Fragment:   normalized,
			Reason:     "expected [N]d<sides>[+/-modifier]",
		}
	}

	count := 1
	if match[1] != "" {
		parsed, err := strconv.Atoi(match[1])
		if err != nil || parsed <= 0 {
			return Spec{}, &ParseError{Expression: expression, Fragment: match[1], Reason: "die count must be a positive integer"}
		}
		count = parsed
	}
	if count > maxDiceCount {
		return Spec{}, &ParseError{
			Expression: expression,
			Fragment:   match[1],
			Reason:     fmt.Sprintf("die count must be at most %d", maxDiceCount),
		}
	}

	sides, err := strconv.Atoi(match[2])
	if err != nil || !allowedSides[sides] {
		return Spec{}, &ParseError{
			Expression: expression,
			Fragment:   "d" + match[2],
			Reason:     "die type must be one of d4, d6, d8, d10, d12, d20, d100",
		}
	}

	modifier := 0
	if match[3] != "" {
		modifier, err = strconv.Atoi(match[3])
		if err != nil {
			return Spec{}, &ParseError{Expression: expression, Fragment: match[3], Reason: "modifier must be a signed integer"}
		}
	}

	return Spec{Count: count, Sides: sides, Modifier: modifier}, nil
}
