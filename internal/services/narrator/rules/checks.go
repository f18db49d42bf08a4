package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/storyroom/internal/services/narrator/game"
)

// RollType selects how many d20s are rolled and which is kept.
type RollType string

const (
	RollNormal       RollType = "normal"
	RollAdvantage    RollType = "advantage"
	RollDisadvantage RollType = "disadvantage"
)

// ParseRollType maps free text to a RollType; unknown or empty is normal.
func ParseRollType(value string) RollType {
	switch RollType(strings.ToLower(strings.TrimSpace(value))) {
	case RollAdvantage:
		return RollAdvantage
	case RollDisadvantage:
		return RollDisadvantage
	default:
		return RollNormal
	}
}

// CheckResult is the detail of a d20 check, save or attack.
type CheckResult struct {
	CharacterID string       `json:"character_id"`
	Ability     game.Ability `json:"ability"`
	RollType    RollType     `json:"roll_type"`
	// Rolls holds every raw d20 rolled, in order.
	Rolls       []int `json:"rolls"`
	Kept        int   `json:"kept"`
	Modifier    int   `json:"modifier"`
	Proficiency int   `json:"proficiency,omitempty"`
	Total       int   `json:"total"`
	Critical    bool  `json:"critical,omitempty"`
	Fumble      bool  `json:"fumble,omitempty"`
}

// Weapon describes what an attack is made with.
type Weapon struct {
	Name    string `json:"name"`
	Finesse bool   `json:"finesse,omitempty"`
	Damage  string `json:"damage,omitempty"`
}

// AttackResult is the detail of an attack roll.
type AttackResult struct {
	CheckResult
	Weapon Weapon `json:"weapon"`
}

// AbilityModifier returns floor((score-10)/2).
func AbilityModifier(score int) int {
	diff := score - 10
	if diff < 0 {
		return -((-diff + 1) / 2)
	}
	return diff / 2
}

// ProficiencyBonus returns ceil(1 + level/4).
func ProficiencyBonus(level int) int {
	if level < 0 {
		level = 0
	}
	return 1 + (level+3)/4
}

var savingThrowProficiencies = map[string][2]game.Ability{
	"barbarian": {game.Strength, game.Constitution},
	"bard":      {game.Dexterity, game.Charisma},
	"cleric":    {game.Wisdom, game.Charisma},
	"druid":     {game.Intelligence, game.Wisdom},
	"fighter":   {game.Strength, game.Constitution},
	"monk":      {game.Strength, game.Dexterity},
	"paladin":   {game.Wisdom, game.Charisma},
	"ranger":    {game.Strength, game.Dexterity},
	"rogue":     {game.Dexterity, game.Intelligence},
	"sorcerer":  {game.Constitution, game.Charisma},
	"warlock":   {game.Wisdom, game.Charisma},
	"wizard":    {game.Intelligence, game.Wisdom},
}

// HasSaveProficiency reports whether class is proficient in ability saves.
func HasSaveProficiency(class string, ability game.Ability) bool {
	pair, ok := savingThrowProficiencies[strings.ToLower(strings.TrimSpace(class))]
	if !ok {
		return false
	}
	return pair[0] == ability || pair[1] == ability
}

// rollD20Locked rolls one d20, or two under advantage/disadvantage keeping the
// higher/lower raw die.
func (e *Engine) rollD20Locked(rollType RollType) (rolls []int, kept int) {
	first := rollDie(e.rng, 20)
	if rollType != RollAdvantage && rollType != RollDisadvantage {
		return []int{first}, first
	}
	second := rollDie(e.rng, 20)
	kept = first
	if rollType == RollAdvantage && second > first {
		kept = second
	}
	if rollType == RollDisadvantage && second < first {
		kept = second
	}
	return []int{first, second}, kept
}

func (e *Engine) checkLocked(ctx context.Context, characterID string, ability game.Ability, rollType RollType) (CheckResult, game.CharacterTemplate, error) {
	parsed, ok := game.ParseAbility(string(ability))
	if !ok {
		return CheckResult{}, game.CharacterTemplate{}, fmt.Errorf("%w: %q", ErrInvalidAbility, ability)
	}
	ability = parsed
	template, err := e.templateLocked(ctx, characterID)
	if err != nil {
		return CheckResult{}, game.CharacterTemplate{}, err
	}
	rolls, kept := e.rollD20Locked(rollType)
	modifier := AbilityModifier(template.AbilityScores.Score(ability))
	return CheckResult{
		CharacterID: characterID,
		Ability:     ability,
		RollType:    rollType,
		Rolls:       rolls,
		Kept:        kept,
		Modifier:    modifier,
		Total:       kept + modifier,
		Critical:    kept == 20,
		Fumble:      kept == 1,
	}, template, nil
}

// AbilityCheck rolls a d20 ability check for a cached character.
func (e *Engine) AbilityCheck(ctx context.Context, characterID string, ability game.Ability, rollType RollType) (CheckResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	result, _, err := e.checkLocked(ctx, characterID, ability, rollType)
	return result, err
}

// SavingThrow rolls an ability check and adds proficiency when the character's
// class is proficient in saves for that ability.
func (e *Engine) SavingThrow(ctx context.Context, characterID string, ability game.Ability, rollType RollType) (CheckResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	result, template, err := e.checkLocked(ctx, characterID, ability, rollType)
	if err != nil {
		return CheckResult{}, err
	}
	if HasSaveProficiency(template.Class, result.Ability) {
		result.Proficiency = ProficiencyBonus(template.Level)
		result.Total += result.Proficiency
	}
	return result, nil
}

// AttackRoll rolls to hit with weapon. Finesse weapons use the higher of
// strength and dexterity; everything else uses strength. Proficiency is always
// added.
func (e *Engine) AttackRoll(ctx context.Context, attackerID string, weapon Weapon, rollType RollType) (AttackResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	template, err := e.templateLocked(ctx, attackerID)
	if err != nil {
		return AttackResult{}, err
	}

	ability := game.Strength
	if weapon.Finesse && template.AbilityScores.Score(game.Dexterity) > template.AbilityScores.Score(game.Strength) {
		ability = game.Dexterity
	}
	rolls, kept := e.rollD20Locked(rollType)
	modifier := AbilityModifier(template.AbilityScores.Score(ability))
	proficiency := ProficiencyBonus(template.Level)
	return AttackResult{
		CheckResult: CheckResult{
			CharacterID: attackerID,
			Ability:     ability,
			RollType:    rollType,
			Rolls:       rolls,
			Kept:        kept,
			Modifier:    modifier,
			Proficiency: proficiency,
			Total:       kept + modifier + proficiency,
			Critical:    kept == 20,
			Fumble:      kept == 1,
		},
		Weapon: weapon,
	}, nil
}
