// Package rules implements the deterministic mechanics the narrator's tools
// invoke: dice formulas, ability checks, saving throws, attacks, damage and
// conditions.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	maxDiceCount = 100
	minDieSides  = 2
	maxDieSides  = 1000
	maxModifier  = 1000
)

var formulaPattern = regexp.MustCompile(`^(\d*)d(\d+)(?:([+-])(\d+))?$`)

// DiceRoll captures the outcome of a rolled formula.
type DiceRoll struct {
	Formula  string `json:"formula"`
	Count    int    `json:"count"`
	Sides    int    `json:"sides"`
	Rolls    []int  `json:"rolls"`
	Modifier int    `json:"modifier"`
	Total    int    `json:"total"`
}

// Formula is a parsed NdS+M expression.
type Formula struct {
	Count    int
	Sides    int
	Modifier int
}

// ParseFormula parses "NdS", "NdS+M", "NdS-M" or "dS" (count defaults to 1).
// Whitespace and the case of the "d" are ignored.
func ParseFormula(formula string) (Formula, error) {
	normalized := strings.ToLower(strings.Join(strings.Fields(formula), ""))
	match := formulaPattern.FindStringSubmatch(normalized)
	if match == nil {
		return Formula{}, fmt.Errorf("%w: %q", ErrInvalidFormula, formula)
	}

	outOfRange := fmt.Errorf("%w: %q out of range", ErrInvalidFormula, formula)
	count := 1
	if match[1] != "" {
		n, err := strconv.Atoi(match[1])
		if err != nil {
			return Formula{}, outOfRange
		}
		count = n
	}
	sides, err := strconv.Atoi(match[2])
	if err != nil {
		return Formula{}, outOfRange
	}
	if count < 1 || count > maxDiceCount || sides < minDieSides || sides > maxDieSides {
		return Formula{}, outOfRange
	}

	modifier := 0
	if match[4] != "" {
		modifier, err = strconv.Atoi(match[4])
		if err != nil || modifier > maxModifier {
			return Formula{}, outOfRange
		}
		if match[3] == "-" {
			modifier = -modifier
		}
	}
	return Formula{Count: count, Sides: sides, Modifier: modifier}, nil
}

// String renders the formula in canonical form.
func (f Formula) String() string {
	switch {
	case f.Modifier > 0:
		return fmt.Sprintf("%dd%d+%d", f.Count, f.Sides, f.Modifier)
	case f.Modifier < 0:
		return fmt.Sprintf("%dd%d%d", f.Count, f.Sides, f.Modifier)
	default:
		return fmt.Sprintf("%dd%d", f.Count, f.Sides)
	}
}

// RollFormula rolls a parsed formula through rng.
//
// Dice are rolled in order and reported in Rolls in the same order. Total is
// the sum of every die plus Modifier.
func RollFormula(rng RNG, f Formula) DiceRoll {
	rolls := make([]int, f.Count)
	total := f.Modifier
	for i := range rolls {
		rolls[i] = rollDie(rng, f.Sides)
		total += rolls[i]
	}
	return DiceRoll{
		Formula:  f.String(),
		Count:    f.Count,
		Sides:    f.Sides,
		Rolls:    rolls,
		Modifier: f.Modifier,
		Total:    total,
	}
}
