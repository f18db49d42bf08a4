// Package tools declares the fixed function-calling schema the narrator
// exposes to the LLM.
package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/louisbranch/storyroom/internal/services/narrator/game"
	"github.com/louisbranch/storyroom/internal/services/narrator/llm"
	"github.com/louisbranch/storyroom/internal/services/narrator/rules"
)

// Name identifies a tool.
type Name string

const (
	RequestAbilityCheck Name = "request_ability_check"
	RequestSavingThrow  Name = "request_saving_throw"
	RequestGroupCheck   Name = "request_group_check"
	StartCombat         Name = "start_combat"
	RestrictAction      Name = "restrict_action"
)

// All lists every tool in the order it is offered.
func All() []Name {
	return []Name{RequestAbilityCheck, RequestSavingThrow, RequestGroupCheck, StartCombat, RestrictAction}
}

// CheckArgs are the arguments of request_ability_check and
// request_saving_throw.
type CheckArgs struct {
	CharacterID string  `json:"characterId" jsonschema:"id or name of the character making the roll"`
	Ability     string  `json:"ability" jsonschema:"ability the roll uses"`
	DC          float64 `json:"dc" jsonschema:"difficulty class the total must meet or beat"`
	Reason      string  `json:"reason" jsonschema:"what the roll is for, shown to players"`
	RollType    string  `json:"rollType,omitempty" jsonschema:"normal, advantage or disadvantage"`
}

// Difficulty is the DC as an integer target.
func (a CheckArgs) Difficulty() int { return Difficulty(a.DC) }

// GroupCheckArgs are the arguments of request_group_check.
type GroupCheckArgs struct {
	Ability      string   `json:"ability" jsonschema:"ability every character rolls"`
	DC           float64  `json:"dc" jsonschema:"difficulty class each total must meet or beat"`
	Reason       string   `json:"reason" jsonschema:"what the group is attempting"`
	CharacterIDs []string `json:"characterIds,omitempty" jsonschema:"characters taking part; omit for the whole party"`
}

// Difficulty is the DC as an integer target.
func (a GroupCheckArgs) Difficulty() int { return Difficulty(a.DC) }

// Difficulty rounds a DC up to the smallest integer total that meets it, so
// an integer total t satisfies t >= dc exactly when t >= Difficulty(dc).
func Difficulty(dc float64) int {
	if math.IsNaN(dc) {
		return 0
	}
	return int(math.Ceil(dc))
}

// StartCombatArgs are the arguments of start_combat.
type StartCombatArgs struct {
	Reason  string   `json:"reason" jsonschema:"why combat starts"`
	Enemies []string `json:"enemies,omitempty" jsonschema:"names of the opposing creatures"`
}

// RestrictActionArgs are the arguments of restrict_action.
type RestrictActionArgs struct {
	CharacterIDs []string `json:"characterIds" jsonschema:"characters allowed to act next; empty lifts the restriction"`
	Reason       string   `json:"reason" jsonschema:"why only these characters may act"`
}

type definition struct {
	name        Name
	description string
	args        reflect.Type
}

var definitions = []definition{
	{RequestAbilityCheck, "Ask one character to make an ability check against a DC.", reflect.TypeFor[CheckArgs]()},
	{RequestSavingThrow, "Ask one character to make a saving throw against a DC.", reflect.TypeFor[CheckArgs]()},
	{RequestGroupCheck, "Ask several characters to make the same ability check; the group succeeds when more than half succeed.", reflect.TypeFor[GroupCheckArgs]()},
	{StartCombat, "Begin combat when hostilities break out.", reflect.TypeFor[StartCombatArgs]()},
	{RestrictAction, "Limit which characters may act in the next round.", reflect.TypeFor[RestrictActionArgs]()},
}

// Definitions returns the LLM tool list with JSON schemas derived from the
// argument structs.
var Definitions = sync.OnceValues(buildDefinitions)

func buildDefinitions() ([]llm.Tool, error) {
	abilities := make([]any, 0, 6)
	for _, ability := range game.Abilities() {
		abilities = append(abilities, string(ability))
	}
	rollTypes := []any{string(rules.RollNormal), string(rules.RollAdvantage), string(rules.RollDisadvantage)}

	out := make([]llm.Tool, 0, len(definitions))
	for _, def := range definitions {
		schema, err := jsonschema.ForType(def.args, &jsonschema.ForOptions{})
		if err != nil {
			return nil, fmt.Errorf("schema for %s: %w", def.name, err)
		}
		if prop, ok := schema.Properties["ability"]; ok {
			prop.Enum = abilities
		}
		if prop, ok := schema.Properties["rollType"]; ok {
			prop.Enum = rollTypes
		}
		params, err := toMap(schema)
		if err != nil {
			return nil, fmt.Errorf("encode schema for %s: %w", def.name, err)
		}
		out = append(out, llm.Tool{Name: string(def.name), Description: def.description, Parameters: params})
	}
	return out, nil
}

func toMap(schema *jsonschema.Schema) (map[string]any, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, err
	}
	return params, nil
}

// Decode parses a tool call's JSON arguments into T. Empty arguments decode
// as an empty object.
func Decode[T any](arguments string) (T, error) {
	var args T
	arguments = strings.TrimSpace(arguments)
	if arguments == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return args, fmt.Errorf("invalid arguments: %w", err)
	}
	return args, nil
}
