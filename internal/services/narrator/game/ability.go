package game

import "strings"

// Ability names one of the six ability scores.
type Ability string

const (
	Strength     Ability = "strength"
	Dexterity    Ability = "dexterity"
	Constitution Ability = "constitution"
	Intelligence Ability = "intelligence"
	Wisdom       Ability = "wisdom"
	Charisma     Ability = "charisma"
)

// Abilities returns the six abilities in canonical sheet order.
func Abilities() []Ability {
	return []Ability{Strength, Dexterity, Constitution, Intelligence, Wisdom, Charisma}
}

// ParseAbility accepts full names and three-letter abbreviations, ignoring case.
func ParseAbility(value string) (Ability, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, ability := range Abilities() {
		if value == string(ability) || value == ability.Short() {
			return ability, true
		}
	}
	return "", false
}

// Short returns the lowercase three-letter abbreviation.
func (a Ability) Short() string {
	if len(a) < 3 {
		return string(a)
	}
	return string(a[:3])
}

// AbilityScores maps each ability to its raw score.
type AbilityScores map[Ability]int

// Score returns the raw score, defaulting to 10 when unset.
func (s AbilityScores) Score(ability Ability) int {
	if value, ok := s[ability]; ok {
		return value
	}
	return 10
}
