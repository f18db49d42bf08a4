// Package turngate decides who may act in a round and when the round is
// complete.
package turngate

import (
	"slices"

	"github.com/louisbranch/storyroom/internal/services/narrator/game"
)

// Kind tags the active gate policy.
type Kind string

const (
	KindAllPlayers Kind = "all_players"
	KindRestricted Kind = "restricted"
	KindPaused     Kind = "paused"
	KindInitiative Kind = "initiative"
)

// Status is the read-only projection of a gate for display.
type Status struct {
	Kind       Kind     `json:"kind"`
	AllowedIDs []string `json:"allowed_ids,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// Gate is a turn policy.
type Gate interface {
	// CanAct reports whether the user, playing characterID, may submit an action.
	CanAct(userID, characterID string) bool
	// CanAdvance reports whether the submitted actions complete the round.
	CanAdvance(actions []game.PlayerAction, totalMembers int) bool
	Status() Status
}

// AllPlayers lets everyone act and advances once every member has acted.
type AllPlayers struct{}

// NewAllPlayers returns the default gate.
func NewAllPlayers() AllPlayers { return AllPlayers{} }

// CanAct implements Gate.
func (AllPlayers) CanAct(string, string) bool { return true }

// CanAdvance implements Gate.
func (AllPlayers) CanAdvance(actions []game.PlayerAction, totalMembers int) bool {
	return totalMembers > 0 && len(actions) >= totalMembers
}

// Status implements Gate.
func (AllPlayers) Status() Status { return Status{Kind: KindAllPlayers} }

// Restricted lets only the listed characters act.
type Restricted struct {
	ids    []string
	reason string
}

// NewRestricted limits action to the given character ids.
func NewRestricted(ids []string, reason string) Restricted {
	return Restricted{ids: slices.Clone(ids), reason: reason}
}

// CanAct implements Gate.
func (g Restricted) CanAct(_ string, characterID string) bool {
	return slices.Contains(g.ids, characterID)
}

// CanAdvance implements Gate.
func (g Restricted) CanAdvance(actions []game.PlayerAction, _ int) bool {
	acted := actedCharacters(actions)
	for _, id := range g.ids {
		if !acted[id] {
			return false
		}
	}
	return true
}

// Status implements Gate.
func (g Restricted) Status() Status {
	return Status{Kind: KindRestricted, AllowedIDs: slices.Clone(g.ids), Reason: g.reason}
}

// Paused blocks every action.
type Paused struct {
	reason string
}

// NewPaused returns a gate that never opens.
func NewPaused(reason string) Paused { return Paused{reason: reason} }

// CanAct implements Gate.
func (Paused) CanAct(string, string) bool { return false }

// CanAdvance implements Gate.
func (Paused) CanAdvance([]game.PlayerAction, int) bool { return false }

// Status implements Gate.
func (g Paused) Status() Status { return Status{Kind: KindPaused, Reason: g.reason} }

// Initiative lets only the character whose turn it is act.
type Initiative struct {
	currentID string
	reason    string
}

// NewInitiative returns a gate for currentID's turn.
func NewInitiative(currentID, reason string) Initiative {
	return Initiative{currentID: currentID, reason: reason}
}

// CanAct implements Gate.
func (g Initiative) CanAct(_ string, characterID string) bool {
	return characterID == g.currentID
}

// CanAdvance implements Gate.
func (g Initiative) CanAdvance(actions []game.PlayerAction, _ int) bool {
	return actedCharacters(actions)[g.currentID]
}

// Status implements Gate.
func (g Initiative) Status() Status {
	return Status{Kind: KindInitiative, AllowedIDs: []string{g.currentID}, Reason: g.reason}
}

func actedCharacters(actions []game.PlayerAction) map[string]bool {
	acted := make(map[string]bool, len(actions))
	for _, action := range actions {
		if action.CharacterID != "" {
			acted[action.CharacterID] = true
		}
	}
	return acted
}
