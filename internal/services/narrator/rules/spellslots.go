package rules

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// SpellSlot is the remaining/maximum count for one spell level.
type SpellSlot struct {
	Level     int `json:"level"`
	Remaining int `json:"remaining"`
	Max       int `json:"max"`
}

// ParseSpellSlots decodes the JSON array stored on a character state. Empty
// or malformed input yields no slots; malformed input is logged.
func ParseSpellSlots(raw string, logger *slog.Logger) []SpellSlot {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var slots []SpellSlot
	if err := json.Unmarshal([]byte(raw), &slots); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("ignoring malformed spell slots", "error", err)
		return nil
	}
	return slots
}

// SpellSlots returns the parsed spell slots of a cached character.
func (e *Engine) SpellSlots(characterID string) ([]SpellSlot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, err := e.stateLocked(characterID)
	if err != nil {
		return nil, err
	}
	return ParseSpellSlots(state.SpellSlots, e.logger), nil
}
