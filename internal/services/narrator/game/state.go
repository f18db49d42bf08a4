// Package game defines the per-room state the narrator reads and mutates.
//
// A GameState is owned by exactly one room and is mutated in place during a
// turn. Callers serialize turns per room; nothing here is safe for concurrent
// writers.
package game

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// CharacterTemplate is the immutable sheet a character instance derives from.
type CharacterTemplate struct {
	ID            string        `json:"id" yaml:"id"`
	Name          string        `json:"name" yaml:"name"`
	Class         string        `json:"class" yaml:"class"`
	Race          string        `json:"race" yaml:"race"`
	Level         int           `json:"level" yaml:"level"`
	AbilityScores AbilityScores `json:"ability_scores" yaml:"ability_scores"`
	MaxHP         int           `json:"max_hp" yaml:"max_hp"`
	ArmorClass    int           `json:"armor_class" yaml:"armor_class"`
	Background    string        `json:"background,omitempty" yaml:"background,omitempty"`
}

// Condition is a named status effect on a character.
type Condition struct {
	Name   string `json:"name"`
	Source string `json:"source,omitempty"`
}

// EquipmentItem is one carried item.
type EquipmentItem struct {
	Name     string `json:"name" yaml:"name"`
	Equipped bool   `json:"equipped" yaml:"equipped"`
}

// CharacterState is the mutable, per-session state of a character instance.
type CharacterState struct {
	InstanceID      string          `json:"instance_id"`
	TemplateID      string          `json:"template_id"`
	CurrentHP       int             `json:"current_hp"`
	TempHP          int             `json:"temp_hp"`
	Conditions      []Condition     `json:"conditions,omitempty"`
	Buffs           []string        `json:"buffs,omitempty"`
	SpellSlots      string          `json:"spell_slots,omitempty"`
	Equipment       []EquipmentItem `json:"equipment,omitempty"`
	CurrentThoughts string          `json:"current_thoughts,omitempty"`
}

// HasCondition reports whether a condition with the given name is present.
func (c *CharacterState) HasCondition(name string) bool {
	for _, condition := range c.Conditions {
		if strings.EqualFold(condition.Name, name) {
			return true
		}
	}
	return false
}

// CharacterOverlay carries conditions other players can see on a character.
type CharacterOverlay struct {
	CharacterID string   `json:"character_id"`
	Visible     []string `json:"visible,omitempty"`
	Note        string   `json:"note,omitempty"`
}

// WorldContext accumulates what the narrator should remember about the world.
type WorldContext struct {
	RecentEvents []string        `json:"recent_events,omitempty"`
	Facts        []string        `json:"facts,omitempty"`
	Flags        map[string]bool `json:"flags,omitempty"`
}

// Encounter is an active scene element such as a hostile group.
type Encounter struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PlayerNote is free text a player pinned for the narrator.
type PlayerNote struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

// HistoryTurn is one past round of the conversation.
type HistoryTurn struct {
	Actions   []PlayerAction `json:"actions,omitempty"`
	Narrative string         `json:"narrative"`
	At        time.Time      `json:"at"`
}

// PlayerAction is one participant's submission for a round.
type PlayerAction struct {
	UserID        string    `json:"user_id"`
	Username      string    `json:"username"`
	CharacterID   string    `json:"character_id,omitempty"`
	CharacterName string    `json:"character_name,omitempty"`
	Text          string    `json:"text"`
	Timestamp     time.Time `json:"timestamp"`
}

// Actor returns the display name used when quoting the action to the narrator.
func (a PlayerAction) Actor() string {
	if name := strings.TrimSpace(a.CharacterName); name != "" {
		return name
	}
	return strings.TrimSpace(a.Username)
}

// Member is one entry of a room roster.
type Member struct {
	UserID        string `json:"user_id" yaml:"user_id"`
	Username      string `json:"username" yaml:"username"`
	CharacterID   string `json:"character_id,omitempty" yaml:"character_id,omitempty"`
	CharacterName string `json:"character_name,omitempty" yaml:"character_name,omitempty"`
}

// Actor returns the character name when one is claimed, else the username.
func (m Member) Actor() string {
	if name := strings.TrimSpace(m.CharacterName); name != "" {
		return name
	}
	return strings.TrimSpace(m.Username)
}

// GameState is the per-room snapshot the narrator works against.
type GameState struct {
	RoomID        string                      `json:"room_id"`
	Location      string                      `json:"location"`
	ModuleLore    string                      `json:"module_lore,omitempty"`
	Characters    map[string]*CharacterState  `json:"characters"`
	Overlays      map[string]CharacterOverlay `json:"overlays,omitempty"`
	World         WorldContext                `json:"world"`
	Encounters    []Encounter                 `json:"encounters,omitempty"`
	PlayerNotes   []PlayerNote                `json:"player_notes,omitempty"`
	RecentHistory []HistoryTurn               `json:"recent_history,omitempty"`
}

// NewGameState returns an empty state for a room.
func NewGameState(roomID string) *GameState {
	return &GameState{
		RoomID:     roomID,
		Characters: make(map[string]*CharacterState),
		Overlays:   make(map[string]CharacterOverlay),
		World:      WorldContext{Flags: make(map[string]bool)},
	}
}

// CharacterIDs returns instance ids in a stable, sorted order.
func (s *GameState) CharacterIDs() []string {
	return slices.Sorted(maps.Keys(s.Characters))
}
