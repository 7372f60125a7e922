// Package dice parses and evaluates tabletop dice expressions.
//
// The accepted grammar is [N]d<Sides>[{+|-}Modifier], for example "d20",
// "2d6+3", or "1d8-1". N defaults to 1 when omitted. Advantage and
// disadvantage modes apply only to a single d20 and roll two independent
// dice, keeping the higher or lower before the modifier is added.
package dice

import (
	"math/rand"

	"github.com/louisbranch/questmaster/internal/core/check"
	"github.com/louisbranch/questmaster/internal/random"
)

// Mode selects how a single-d20 expression is evaluated.
type Mode int

const (
	// ModeNormal rolls each die once.
	ModeNormal Mode = iota
	// ModeAdvantage rolls two d20s and keeps the higher.
	ModeAdvantage
	// ModeDisadvantage rolls two d20s and keeps the lower.
	ModeDisadvantage
)

// String returns the lowercase mode name.
func (m Mode) String() string {
	switch m {
	case ModeAdvantage:
		return "advantage"
	case ModeDisadvantage:
		return "disadvantage"
	default:
		return "normal"
	}
}

// Roll is the outcome of evaluating a dice expression.
//
// Results holds every die actually rolled, in roll order. Under advantage
// or disadvantage both d20s appear and Kept records the value that counted.
type Roll struct {
	Expression string
	Mode       Mode
	Results    []int
	Kept       int
	Modifier   int
	Total      int
	Critical   bool
	Fumble     bool
}

// testDifficultyExpression is the fixed expression used by PerformTest.
const testDifficultyExpression = "1d20"

// Evaluate parses and evaluates a dice expression with a fresh
// crypto-seeded random source.
func Evaluate(expression string, mode Mode) (Roll, error) {
	seed, err := random.NewSeed()
	if err != nil {
		return Roll{}, err
	}
	return EvaluateWithRand(rand.New(rand.NewSource(seed)), expression, mode)
}

// EvaluateWithRand evaluates a dice expression using the provided random
// source. Callers that need deterministic results pass a seeded rng.
func EvaluateWithRand(rng *rand.Rand, expression string, mode Mode) (Roll, error) {
	spec, err := Parse(expression)
	if err != nil {
		return Roll{}, err
	}

	singleD20 := spec.Count == 1 && spec.Sides == 20
	if mode != ModeNormal && !singleD20 {
		return Roll{}, &ParseError{
			Expression: expression,
			Fragment:   spec.Canonical(),
			Reason:     mode.String() + " applies only to a single d20",
		}
	}

	roll := Roll{
		Expression: spec.Canonical(),
		Mode:       mode,
		Modifier:   spec.Modifier,
	}

	if mode != ModeNormal {
		first := rollDie(rng, spec.Sides)
		second := rollDie(rng, spec.Sides)
		kept := first
		if mode == ModeAdvantage && second > kept {
			kept = second
		}
		if mode == ModeDisadvantage && second < kept {
			kept = second
		}
		roll.Results = []int{first, second}
		roll.Kept = kept
		roll.Total = kept + spec.Modifier
		roll.Critical = kept == 20
		roll.Fumble = kept == 1
		return roll, nil
	}

	results := make([]int, spec.Count)
	sum := 0
	for i := 0; i < spec.Count; i++ {
		value := rollDie(rng, spec.Sides)
		results[i] = value
		sum += value
	}
	roll.Results = results
	roll.Total = sum + spec.Modifier
	if singleD20 {
		roll.Kept = results[0]
		roll.Critical = results[0] == 20
		roll.Fumble = results[0] == 1
	}
	return roll, nil
}

// PerformTest rolls 1d20, adds the modifier, and compares the total against
// the difficulty class. Meeting the DC exactly is a success.
func PerformTest(modifier, difficulty int) (Roll, check.Result, error) {
	seed, err := random.NewSeed()
	if err != nil {
		return Roll{}, check.Result{}, err
	}
	return PerformTestWithRand(rand.New(rand.NewSource(seed)), modifier, difficulty)
}

// PerformTestWithRand is PerformTest with a caller-controlled random source.
func PerformTestWithRand(rng *rand.Rand, modifier, difficulty int) (Roll, check.Result, error) {
	roll, err := EvaluateWithRand(rng, testDifficultyExpression, ModeNormal)
	if err != nil {
		return Roll{}, check.Result{}, err
	}
	roll.Modifier = modifier
	roll.Total += modifier
	return roll, check.Check(roll.Total, difficulty), nil
}

// RollAbilityScores generates six ability scores, each 4d6 dropping the
// lowest die. Every score falls in [3, 18].
func RollAbilityScores(rng *rand.Rand) []int {
	scores := make([]int, 6)
	for i := range scores {
		scores[i] = rollAbilityScore(rng)
	}
	return scores
}

func rollAbilityScore(rng *rand.Rand) int {
	lowest := 7
	sum := 0
	for i := 0; i < 4; i++ {
		value := rollDie(rng, 6)
		sum += value
		if value < lowest {
			lowest = value
		}
	}
	return sum - lowest
}

// rollDie rolls a single die with the provided number of sides.
func rollDie(rng *rand.Rand, sides int) int {
	return rng.Intn(sides) + 1
}
