// Package event defines the ordered stream a turn produces.
package event

import "github.com/louisbranch/storyroom/internal/services/narrator/rules"

// Type tags an event variant.
type Type string

const (
	TypeNarrative         Type = "narrative"
	TypeDiceRoll          Type = "dice_roll"
	TypeModeTransition    Type = "mode_transition"
	TypeActionRestriction Type = "action_restriction"
	TypeTurnEnd           Type = "turn_end"
)

// Event is one entry of a turn's stream. The set of variants is closed.
type Event interface {
	Type() Type
	isEvent()
}

// Narrative carries narrator text.
type Narrative struct {
	Text string `json:"text"`
}

// CheckType names the mechanic behind a DiceRoll.
type CheckType string

const (
	CheckAbility CheckType = "ability_check"
	CheckSave    CheckType = "saving_throw"
	CheckGroup   CheckType = "group_check"
)

// GroupMember is one target's outcome within a group check.
type GroupMember struct {
	CharacterID string             `json:"character_id"`
	Actor       string             `json:"actor,omitempty"`
	Roll        *rules.CheckResult `json:"roll,omitempty"`
	Success     bool               `json:"success"`
	Error       string             `json:"error,omitempty"`
}

// DiceRoll reports a resolved check. Roll is set for single-character checks;
// Group and Successes are set for group checks.
type DiceRoll struct {
	CheckType   CheckType          `json:"check_type"`
	CharacterID string             `json:"character_id,omitempty"`
	Actor       string             `json:"actor,omitempty"`
	Ability     string             `json:"ability"`
	DC          int                `json:"dc"`
	Roll        *rules.CheckResult `json:"roll,omitempty"`
	Group       []GroupMember      `json:"group,omitempty"`
	Successes   int                `json:"successes,omitempty"`
	Success     bool               `json:"success"`
	Reason      string             `json:"reason,omitempty"`
}

// ModeTransition asks the session to switch modes.
type ModeTransition struct {
	Mode    string   `json:"mode"`
	Reason  string   `json:"reason,omitempty"`
	Enemies []string `json:"enemies,omitempty"`
}

// ActionRestriction limits who may act next. An empty list lifts the
// restriction.
type ActionRestriction struct {
	CharacterIDs []string `json:"character_ids"`
	Reason       string   `json:"reason,omitempty"`
}

// TurnEnd terminates a turn's stream.
type TurnEnd struct{}

func (Narrative) Type() Type         { return TypeNarrative }
func (DiceRoll) Type() Type          { return TypeDiceRoll }
func (ModeTransition) Type() Type    { return TypeModeTransition }
func (ActionRestriction) Type() Type { return TypeActionRestriction }
func (TurnEnd) Type() Type           { return TypeTurnEnd }

func (Narrative) isEvent()         {}
func (DiceRoll) isEvent()          {}
func (ModeTransition) isEvent()    {}
func (ActionRestriction) isEvent() {}
func (TurnEnd) isEvent()           {}

// Emitter receives events in order. It returns an error when the consumer has
// gone away.
type Emitter func(Event) error
