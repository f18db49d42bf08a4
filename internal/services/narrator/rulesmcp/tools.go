package rulesmcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/storyroom/internal/services/narrator/rules"
)

// RollDiceInput is the roll_dice tool input.
type RollDiceInput struct {
	Formula string `json:"formula" jsonschema:"dice formula such as 2d6+3 or d20"`
}

// CheckInput is the ability_check and saving_throw tool input.
type CheckInput struct {
	RoomID      string `json:"room_id,omitempty" jsonschema:"room holding the character; defaults to the server's room"`
	CharacterID string `json:"character_id" jsonschema:"character instance id"`
	Ability     string `json:"ability" jsonschema:"ability name or abbreviation such as dexterity or DEX"`
	DC          int    `json:"dc,omitempty" jsonschema:"difficulty class; omitted means no pass/fail verdict"`
	RollType    string `json:"roll_type,omitempty" jsonschema:"normal, advantage or disadvantage"`
}

// CheckOutput is the ability_check and saving_throw tool output.
type CheckOutput struct {
	Result  rules.CheckResult `json:"result"`
	DC      int               `json:"dc,omitempty"`
	Success *bool             `json:"success,omitempty"`
}

// DamageInput is the apply_damage tool input.
type DamageInput struct {
	RoomID      string `json:"room_id,omitempty" jsonschema:"room holding the character; defaults to the server's room"`
	CharacterID string `json:"character_id" jsonschema:"character instance id"`
	Amount      int    `json:"amount" jsonschema:"non-negative damage amount"`
	DamageType  string `json:"damage_type,omitempty" jsonschema:"damage type such as fire or slashing"`
}

// HealInput is the heal tool input.
type HealInput struct {
	RoomID      string `json:"room_id,omitempty" jsonschema:"room holding the character; defaults to the server's room"`
	CharacterID string `json:"character_id" jsonschema:"character instance id"`
	Amount      int    `json:"amount" jsonschema:"non-negative amount of hit points restored"`
}

// RollDiceTool defines the MCP tool schema for rolling a formula.
func RollDiceTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "roll_dice",
		Description: "Rolls a dice formula (NdS+M)",
	}
}

// AbilityCheckTool defines the MCP tool schema for ability checks.
func AbilityCheckTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "ability_check",
		Description: "Rolls an ability check for a character in a saved room",
	}
}

// SavingThrowTool defines the MCP tool schema for saving throws.
func SavingThrowTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "saving_throw",
		Description: "Rolls a saving throw for a character in a saved room",
	}
}

// ApplyDamageTool defines the MCP tool schema for damage.
func ApplyDamageTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "apply_damage",
		Description: "Applies damage to a character and saves the room",
	}
}

// HealTool defines the MCP tool schema for healing.
func HealTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "heal",
		Description: "Restores hit points to a character and saves the room",
	}
}

func (s *Server) rollDice(_ context.Context, _ *mcp.CallToolRequest, input RollDiceInput) (*mcp.CallToolResult, rules.DiceRoll, error) {
	formula, err := rules.ParseFormula(input.Formula)
	if err != nil {
		return nil, rules.DiceRoll{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return nil, rules.RollFormula(s.rng, formula), nil
}

func (s *Server) check(save bool) mcp.ToolHandlerFor[CheckInput, CheckOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CheckInput) (*mcp.CallToolResult, CheckOutput, error) {
		ability, err := parseAbility(input.Ability)
		if err != nil {
			return nil, CheckOutput{}, err
		}
		rollType := rules.ParseRollType(input.RollType)

		var out CheckOutput
		err = s.withRoom(ctx, input.RoomID, func(engine *rules.Engine) (bool, error) {
			var result rules.CheckResult
			var err error
			if save {
				result, err = engine.SavingThrow(ctx, input.CharacterID, ability, rollType)
			} else {
				result, err = engine.AbilityCheck(ctx, input.CharacterID, ability, rollType)
			}
			if err != nil {
				return false, err
			}
			out.Result = result
			if input.DC > 0 {
				success := result.Total >= input.DC
				out.DC = input.DC
				out.Success = &success
			}
			return false, nil
		})
		if err != nil {
			return nil, CheckOutput{}, err
		}
		return nil, out, nil
	}
}

func (s *Server) applyDamage(ctx context.Context, _ *mcp.CallToolRequest, input DamageInput) (*mcp.CallToolResult, rules.DamageResult, error) {
	var out rules.DamageResult
	err := s.withRoom(ctx, input.RoomID, func(engine *rules.Engine) (bool, error) {
		result, err := engine.ApplyDamage(input.CharacterID, input.Amount, input.DamageType)
		if err != nil {
			return false, err
		}
		out = result
		return true, nil
	})
	if err != nil {
		return nil, rules.DamageResult{}, err
	}
	return nil, out, nil
}

func (s *Server) heal(ctx context.Context, _ *mcp.CallToolRequest, input HealInput) (*mcp.CallToolResult, rules.HealResult, error) {
	var out rules.HealResult
	err := s.withRoom(ctx, input.RoomID, func(engine *rules.Engine) (bool, error) {
		result, err := engine.Heal(ctx, input.CharacterID, input.Amount)
		if err != nil {
			return false, err
		}
		out = result
		return true, nil
	})
	if err != nil {
		return nil, rules.HealResult{}, err
	}
	return nil, out, nil
}
