package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/storyroom/internal/services/narrator/game"
)

// ConditionUnconscious is appended when damage drops a character to 0 HP.
const ConditionUnconscious = "unconscious"

// Status is a character's consciousness after damage or healing.
type Status string

const (
	StatusConscious   Status = "conscious"
	StatusUnconscious Status = "unconscious"
)

// DamageResult reports the effect of ApplyDamage.
type DamageResult struct {
	CharacterID    string `json:"character_id"`
	Amount         int    `json:"amount"`
	DamageType     string `json:"damage_type,omitempty"`
	AbsorbedByTemp int    `json:"absorbed_by_temp"`
	CurrentHP      int    `json:"current_hp"`
	TempHP         int    `json:"temp_hp"`
	Status         Status `json:"status"`
}

// ApplyDamage absorbs amount into temporary HP first, then reduces current HP
// floored at zero. Reaching zero HP adds the unconscious condition once.
func (e *Engine) ApplyDamage(targetID string, amount int, damageType string) (DamageResult, error) {
	if amount < 0 {
		return DamageResult{}, fmt.Errorf("%w: %d", ErrNegativeDamage, amount)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.stateLocked(targetID)
	if err != nil {
		return DamageResult{}, err
	}

	absorbed := min(state.TempHP, amount)
	state.TempHP -= absorbed
	remaining := amount - absorbed
	state.CurrentHP = max(state.CurrentHP-remaining, 0)

	if state.CurrentHP == 0 {
		addCondition(state, game.Condition{Name: ConditionUnconscious, Source: "damage"})
	}
	return DamageResult{
		CharacterID:    targetID,
		Amount:         amount,
		DamageType:     strings.TrimSpace(damageType),
		AbsorbedByTemp: absorbed,
		CurrentHP:      state.CurrentHP,
		TempHP:         state.TempHP,
		Status:         statusOf(state),
	}, nil
}

// HealResult reports the effect of Heal.
type HealResult struct {
	CharacterID string `json:"character_id"`
	Healed      int    `json:"healed"`
	CurrentHP   int    `json:"current_hp"`
	Status      Status `json:"status"`
}

// Heal raises current HP up to the template maximum and clears unconscious
// once HP is above zero.
func (e *Engine) Heal(ctx context.Context, targetID string, amount int) (HealResult, error) {
	if amount < 0 {
		return HealResult{}, fmt.Errorf("%w: %d", ErrNegativeHealing, amount)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.stateLocked(targetID)
	if err != nil {
		return HealResult{}, err
	}
	template, err := e.templateLocked(ctx, targetID)
	if err != nil {
		return HealResult{}, err
	}

	before := state.CurrentHP
	state.CurrentHP = min(state.CurrentHP+amount, template.MaxHP)
	if state.CurrentHP < before {
		state.CurrentHP = before
	}
	if state.CurrentHP > 0 {
		removeCondition(state, ConditionUnconscious)
	}
	return HealResult{
		CharacterID: targetID,
		Healed:      state.CurrentHP - before,
		CurrentHP:   state.CurrentHP,
		Status:      statusOf(state),
	}, nil
}

// ApplyCondition adds condition unless one with the same name is present.
func (e *Engine) ApplyCondition(targetID string, condition game.Condition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.stateLocked(targetID)
	if err != nil {
		return err
	}
	addCondition(state, condition)
	return nil
}

// RemoveCondition drops the named condition if present.
func (e *Engine) RemoveCondition(targetID string, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.stateLocked(targetID)
	if err != nil {
		return err
	}
	removeCondition(state, name)
	return nil
}

func addCondition(state *game.CharacterState, condition game.Condition) {
	condition.Name = strings.TrimSpace(condition.Name)
	if condition.Name == "" || state.HasCondition(condition.Name) {
		return
	}
	state.Conditions = append(state.Conditions, condition)
}

func removeCondition(state *game.CharacterState, name string) {
	kept := state.Conditions[:0]
	for _, condition := range state.Conditions {
		if !strings.EqualFold(condition.Name, name) {
			kept = append(kept, condition)
		}
	}
	state.Conditions = kept
}

func statusOf(state *game.CharacterState) Status {
	if state.CurrentHP == 0 {
		return StatusUnconscious
	}
	return StatusConscious
}
