package mode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/storyroom/internal/services/narrator/event"
	"github.com/louisbranch/storyroom/internal/services/narrator/game"
	"github.com/louisbranch/storyroom/internal/services/narrator/rules"
	"github.com/louisbranch/storyroom/internal/services/narrator/tools"
)

// toolHandler executes one tool call and returns the value reported back to
// the LLM.
type toolHandler func(ctx context.Context, run *turnRun, arguments string) (any, error)

func (m *ExplorationMode) handlerTable() map[tools.Name]toolHandler {
	return map[tools.Name]toolHandler{
		tools.RequestAbilityCheck: m.singleCheck(event.CheckAbility),
		tools.RequestSavingThrow:  m.singleCheck(event.CheckSave),
		tools.RequestGroupCheck:   m.groupCheck,
		tools.StartCombat:         m.startCombat,
		tools.RestrictAction:      m.restrictAction,
	}
}

type checkResult struct {
	CharacterID string             `json:"characterId"`
	Actor       string             `json:"actor"`
	Ability     string             `json:"ability"`
	DC          int                `json:"dc"`
	Roll        *rules.CheckResult `json:"roll"`
	Success     bool               `json:"success"`
}

func (m *ExplorationMode) singleCheck(kind event.CheckType) toolHandler {
	return func(ctx context.Context, run *turnRun, arguments string) (any, error) {
		args, err := tools.Decode[tools.CheckArgs](arguments)
		if err != nil {
			return nil, err
		}
		ability, ok := game.ParseAbility(args.Ability)
		if !ok {
			return nil, fmt.Errorf("%w: %q", rules.ErrInvalidAbility, args.Ability)
		}
		dc := args.Difficulty()
		characterID := run.resolver.resolve(ctx, args.CharacterID)
		rollType := rules.ParseRollType(args.RollType)

		var roll rules.CheckResult
		if kind == event.CheckSave {
			roll, err = m.deps.Engine.SavingThrow(ctx, characterID, ability, rollType)
		} else {
			roll, err = m.deps.Engine.AbilityCheck(ctx, characterID, ability, rollType)
		}
		if err != nil {
			return nil, err
		}

		result := checkResult{
			CharacterID: characterID,
			Actor:       m.actorName(ctx, run, characterID),
			Ability:     string(ability),
			DC:          dc,
			Roll:        &roll,
			Success:     roll.Total >= dc,
		}
		err = run.send(event.DiceRoll{
			CheckType:   kind,
			CharacterID: result.CharacterID,
			Actor:       result.Actor,
			Ability:     result.Ability,
			DC:          result.DC,
			Roll:        result.Roll,
			Success:     result.Success,
			Reason:      strings.TrimSpace(args.Reason),
		})
		return result, err
	}
}

type groupResult struct {
	Ability   string              `json:"ability"`
	DC        int                 `json:"dc"`
	Results   []event.GroupMember `json:"results"`
	Successes int                 `json:"successes"`
	Total     int                 `json:"total"`
	Success   bool                `json:"success"`
}

// groupCheck rolls the same ability check for every target. A target that
// cannot roll is recorded as a failure without stopping the batch; the group
// succeeds when more than half of the targets succeed.
func (m *ExplorationMode) groupCheck(ctx context.Context, run *turnRun, arguments string) (any, error) {
	args, err := tools.Decode[tools.GroupCheckArgs](arguments)
	if err != nil {
		return nil, err
	}
	ability, ok := game.ParseAbility(args.Ability)
	if !ok {
		return nil, fmt.Errorf("%w: %q", rules.ErrInvalidAbility, args.Ability)
	}
	targets := m.groupTargets(ctx, run, args.CharacterIDs)
	if len(targets) == 0 {
		return nil, errors.New("no characters to roll for")
	}

	dc := args.Difficulty()
	result := groupResult{Ability: string(ability), DC: dc, Total: len(targets)}
	for _, characterID := range targets {
		member := event.GroupMember{CharacterID: characterID, Actor: m.actorName(ctx, run, characterID)}
		roll, err := m.deps.Engine.AbilityCheck(ctx, characterID, ability, rules.RollNormal)
		if err != nil {
			member.Error = err.Error()
		} else {
			member.Roll = &roll
			member.Success = roll.Total >= dc
		}
		if member.Success {
			result.Successes++
		}
		result.Results = append(result.Results, member)
	}
	result.Success = result.Successes*2 > result.Total

	err = run.send(event.DiceRoll{
		CheckType: event.CheckGroup,
		Ability:   result.Ability,
		DC:        result.DC,
		Group:     result.Results,
		Successes: result.Successes,
		Success:   result.Success,
		Reason:    strings.TrimSpace(args.Reason),
	})
	return result, err
}

// groupTargets resolves explicit ids, or falls back to every roster member
// with a character, then to every character in the room.
func (m *ExplorationMode) groupTargets(ctx context.Context, run *turnRun, requested []string) []string {
	var targets []string
	seen := make(map[string]bool)
	add := func(characterID string) {
		if characterID != "" && !seen[characterID] {
			seen[characterID] = true
			targets = append(targets, characterID)
		}
	}
	if len(requested) > 0 {
		for _, ref := range requested {
			add(run.resolver.resolve(ctx, ref))
		}
		return targets
	}
	for _, member := range run.resolver.members(ctx) {
		add(member.CharacterID)
	}
	if len(targets) == 0 {
		for _, characterID := range run.state.CharacterIDs() {
			add(characterID)
		}
	}
	return targets
}

func (m *ExplorationMode) startCombat(_ context.Context, run *turnRun, arguments string) (any, error) {
	args, err := tools.Decode[tools.StartCombatArgs](arguments)
	if err != nil {
		return nil, err
	}
	err = run.send(event.ModeTransition{
		Mode:    string(Combat),
		Reason:  strings.TrimSpace(args.Reason),
		Enemies: args.Enemies,
	})
	return map[string]string{"status": "combat_started", "mode": string(Combat)}, err
}

func (m *ExplorationMode) restrictAction(ctx context.Context, run *turnRun, arguments string) (any, error) {
	args, err := tools.Decode[tools.RestrictActionArgs](arguments)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(args.CharacterIDs))
	for _, ref := range args.CharacterIDs {
		if resolved := run.resolver.resolve(ctx, ref); resolved != "" {
			ids = append(ids, resolved)
		}
	}
	err = run.send(event.ActionRestriction{CharacterIDs: ids, Reason: strings.TrimSpace(args.Reason)})
	if len(ids) == 0 {
		return map[string]any{"restricted": false}, err
	}
	return map[string]any{"restricted": true, "characterIds": ids}, err
}

// actorName prefers the roster's character name, then the template name.
func (m *ExplorationMode) actorName(ctx context.Context, run *turnRun, characterID string) string {
	if name := run.resolver.characterName(ctx, characterID); name != "" {
		return name
	}
	if template, err := m.deps.Engine.Template(ctx, characterID); err == nil && template.Name != "" {
		return template.Name
	}
	return characterID
}
