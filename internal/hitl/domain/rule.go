package domain

// KeywordRule raises an alert when any of its keywords appears in the
// text. Matching is case-insensitive substring matching on the lowered
// text, so entries should be lowercase.
type KeywordRule struct {
	Reason   Reason
	Severity Severity
	Keywords []string
}

// ComplexityRule flags messages that score at or above Threshold across
// its indicators: word count, question marks, and simultaneity markers.
type ComplexityRule struct {
	MaxWords     int
	MaxQuestions int
	Markers      []string
	Threshold    int
	Severity     Severity
}

// FailureRule flags a consecutive-provider-failure streak.
type FailureRule struct {
	MaxConsecutive int
	Severity       Severity
}

// CombatRule flags combat that has run past a round budget without
// resolving.
type CombatRule struct {
	MaxRounds int
	Severity  Severity
}

// RuleSet is the full detector configuration. Rules are plain data so
// deployments can tune or replace them without code changes.
type RuleSet struct {
	Keywords   []KeywordRule
	Complexity ComplexityRule
	Failures   FailureRule
	Combat     CombatRule
}

// DefaultRules returns the stock rule set. Keyword lists carry both the
// Portuguese phrasings the service launched with and English equivalents.
func DefaultRules() RuleSet {
	return RuleSet{
		Keywords: []KeywordRule{
			{
				Reason:   ReasonInappropriateContent,
				Severity: SeverityCritical,
				Keywords: []string{
					"inadequado", "ofensivo", "impróprio", "inapropriado",
					"violento", "sexual", "discriminação", "preconceito",
					"inappropriate", "offensive", "slur",
				},
			},
			{
				Reason:   ReasonRulesDispute,
				Severity: SeverityWarning,
				Keywords: []string{
					"não funciona assim", "está errado", "disputo", "discordo",
					"regras oficiais", "manual", "errata",
					"that's not how it works", "rules lawyer", "official rules",
				},
			},
			{
				Reason:   ReasonPlayerConflict,
				Severity: SeverityWarning,
				Keywords: []string{
					"não gostei", "injusto", "favorecimento", "parcial",
					"trapaça", "batota", "conflito", "discussão",
					"unfair", "cheating", "favoritism",
				},
			},
			{
				Reason:   ReasonComplexSituation,
				Severity: SeverityInfo,
				Keywords: []string{
					"não entendo", "complicado", "confuso",
					"gm humano", "mestre real", "intervenção",
					"human gm", "real dm",
				},
			},
			{
				Reason:   ReasonOperatorRequest,
				Severity: SeverityInfo,
				Keywords: []string{
					"mestre", "admin", "moderador", "suporte",
					"moderator", "support",
				},
			},
		},
		Complexity: ComplexityRule{
			MaxWords:     50,
			MaxQuestions: 2,
			Markers: []string{
				"multi", "simultâneo", "ao mesmo tempo",
				"simultaneous", "at the same time",
			},
			Threshold: 2,
			Severity:  SeverityInfo,
		},
		Failures: FailureRule{
			MaxConsecutive: 3,
			Severity:       SeverityCritical,
		},
		Combat: CombatRule{
			MaxRounds: 10,
			Severity:  SeverityWarning,
		},
	}
}
