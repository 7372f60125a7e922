// Package detector scans player and AI text for situations that need a
// human game master. Findings are advisory; the orchestrator decides
// whether a session is held for review.
package detector

import (
	"strings"

	"github.com/louisbranch/questmaster/internal/hitl/domain"
)

// Signal is one observation for the detector: a piece of text plus the
// lightweight session context the non-keyword rules need.
type Signal struct {
	SessionID string
	PlayerID  string
	Source    domain.Source
	Text      string
	// ConsecutiveAIFailures counts dispatch failures since the last
	// successful AI response for the session.
	ConsecutiveAIFailures int
	// CombatRounds is the session's current combat round counter, zero
	// outside combat.
	CombatRounds int
}

// Finding is a matched rule, ready to become an alert.
type Finding struct {
	Reason   domain.Reason
	Severity domain.Severity
	Excerpt  string
	Note     string
}

// Detector evaluates signals against a rule set. The zero value is not
// usable; construct with New.
type Detector struct {
	rules domain.RuleSet
}

// New returns a detector over the given rules.
func New(rules domain.RuleSet) *Detector {
	return &Detector{rules: rules}
}

// Evaluate runs every rule against the signal and returns all findings.
// Evaluation is pure: no clock, no I/O, no stored state.
func (d *Detector) Evaluate(signal Signal) []Finding {
	var findings []Finding

	lowered := strings.ToLower(signal.Text)
	for _, rule := range d.rules.Keywords {
		if keyword, ok := matchKeyword(lowered, rule.Keywords); ok {
			findings = append(findings, Finding{
				Reason:   rule.Reason,
				Severity: rule.Severity,
				Excerpt:  domain.TruncateExcerpt(signal.Text),
				Note:     "matched keyword: " + keyword,
			})
		}
	}

	if d.isComplex(lowered, signal.Text) {
		findings = append(findings, Finding{
			Reason:   domain.ReasonComplexSituation,
			Severity: d.rules.Complexity.Severity,
			Excerpt:  domain.TruncateExcerpt(signal.Text),
			Note:     "complexity threshold reached",
		})
	}

	if d.rules.Failures.MaxConsecutive > 0 && signal.ConsecutiveAIFailures >= d.rules.Failures.MaxConsecutive {
		findings = append(findings, Finding{
			Reason:   domain.ReasonAIFailures,
			Severity: d.rules.Failures.Severity,
			Note:     "consecutive ai dispatch failures",
		})
	}

	if d.rules.Combat.MaxRounds > 0 && signal.CombatRounds > d.rules.Combat.MaxRounds {
		findings = append(findings, Finding{
			Reason:   domain.ReasonCombatStalled,
			Severity: d.rules.Combat.Severity,
			Note:     "combat exceeded round budget",
		})
	}

	return findings
}

func matchKeyword(lowered string, keywords []string) (string, bool) {
	for _, keyword := range keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(lowered, keyword) {
			return keyword, true
		}
	}
	return "", false
}

// isComplex scores the complexity indicators and compares against the
// rule threshold. A single long message or lone question mark does not
// trip it; indicators have to stack.
func (d *Detector) isComplex(lowered, original string) bool {
	rule := d.rules.Complexity
	if rule.Threshold <= 0 {
		return false
	}

	score := 0
	if rule.MaxWords > 0 && len(strings.Fields(original)) > rule.MaxWords {
		score++
	}
	if rule.MaxQuestions > 0 && strings.Count(original, "?") > rule.MaxQuestions {
		score++
	}
	for _, marker := range rule.Markers {
		if marker != "" && strings.Contains(lowered, marker) {
			score++
			break
		}
	}

	return score >= rule.Threshold
}
