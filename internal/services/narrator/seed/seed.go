// Package seed loads character templates, rosters and room setup from YAML
// and writes them into narrator storage.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/louisbranch/storyroom/internal/services/narrator/game"
	"github.com/louisbranch/storyroom/internal/services/narrator/storage"
)

// File is the top-level seed document.
type File struct {
	Templates []game.CharacterTemplate `yaml:"templates"`
	Rooms     []Room                   `yaml:"rooms"`
}

// Room describes one room's starting scene and party.
type Room struct {
	ID         string        `yaml:"id"`
	Location   string        `yaml:"location"`
	Lore       string        `yaml:"lore"`
	Facts      []string      `yaml:"facts"`
	Characters []Character   `yaml:"characters"`
	Members    []game.Member `yaml:"members"`
}

// Character places an instance of a template in a room.
type Character struct {
	ID        string               `yaml:"id"`
	Template  string               `yaml:"template"`
	HP        *int                 `yaml:"hp"`
	Equipment []game.EquipmentItem `yaml:"equipment"`
}

// Store is the storage surface a seed is applied to.
type Store interface {
	storage.TemplateStore
	storage.RosterStore
	storage.RoomStateStore
}

// Load reads and validates a seed file.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read seed %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("seed %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a seed document.
func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("decode yaml: %w", err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Validate checks ids are present and unique, and that members only claim
// characters placed in their room.
func (f File) Validate() error {
	var errs []error
	templates := make(map[string]bool, len(f.Templates))
	for i, t := range f.Templates {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("templates[%d]: id is required", i))
			continue
		}
		if templates[id] {
			errs = append(errs, fmt.Errorf("templates[%d]: duplicate id %q", i, id))
		}
		templates[id] = true
	}

	rooms := make(map[string]bool, len(f.Rooms))
	for i, room := range f.Rooms {
		if strings.TrimSpace(room.ID) == "" {
			errs = append(errs, fmt.Errorf("rooms[%d]: id is required", i))
			continue
		}
		if rooms[room.ID] {
			errs = append(errs, fmt.Errorf("rooms[%d]: duplicate id %q", i, room.ID))
		}
		rooms[room.ID] = true

		characters := make(map[string]bool, len(room.Characters))
		for j, c := range room.Characters {
			switch {
			case strings.TrimSpace(c.ID) == "":
				errs = append(errs, fmt.Errorf("rooms[%s].characters[%d]: id is required", room.ID, j))
			case strings.TrimSpace(c.Template) == "":
				errs = append(errs, fmt.Errorf("rooms[%s].characters[%s]: template is required", room.ID, c.ID))
			case characters[c.ID]:
				errs = append(errs, fmt.Errorf("rooms[%s].characters[%d]: duplicate id %q", room.ID, j, c.ID))
			}
			characters[c.ID] = true
		}
		for j, m := range room.Members {
			if strings.TrimSpace(m.UserID) == "" {
				errs = append(errs, fmt.Errorf("rooms[%s].members[%d]: user_id is required", room.ID, j))
				continue
			}
			if m.CharacterID != "" && !characters[m.CharacterID] {
				errs = append(errs, fmt.Errorf("rooms[%s].members[%s]: unknown character %q", room.ID, m.UserID, m.CharacterID))
			}
		}
	}
	return errors.Join(errs...)
}

// Apply writes templates and members, then merges each room into its saved
// state. Characters already present in a saved room keep their current state.
func Apply(ctx context.Context, store Store, f File) error {
	if store == nil {
		return fmt.Errorf("store is required")
	}
	for _, t := range f.Templates {
		if err := store.PutTemplate(ctx, t); err != nil {
			return fmt.Errorf("seed template %s: %w", t.ID, err)
		}
	}

	for _, room := range f.Rooms {
		state, err := storage.LoadOrNew(ctx, store, room.ID)
		if err != nil {
			return fmt.Errorf("seed room %s: %w", room.ID, err)
		}
		if room.Location != "" {
			state.Location = room.Location
		}
		if room.Lore != "" {
			state.ModuleLore = strings.TrimSpace(room.Lore)
		}
		for _, fact := range room.Facts {
			if !slices.Contains(state.World.Facts, fact) {
				state.World.Facts = append(state.World.Facts, fact)
			}
		}
		for _, c := range room.Characters {
			if _, ok := state.Characters[c.ID]; ok {
				continue
			}
			template, err := store.GetTemplate(ctx, c.Template)
			if err != nil {
				return fmt.Errorf("seed room %s character %s: template %s: %w", room.ID, c.ID, c.Template, err)
			}
			hp := template.MaxHP
			if c.HP != nil {
				hp = *c.HP
			}
			state.Characters[c.ID] = &game.CharacterState{
				InstanceID: c.ID,
				TemplateID: template.ID,
				CurrentHP:  hp,
				Equipment:  c.Equipment,
			}
		}
		if err := store.SaveRoomState(ctx, state); err != nil {
			return fmt.Errorf("seed room %s: %w", room.ID, err)
		}

		for _, m := range room.Members {
			if m.CharacterID != "" && m.CharacterName == "" {
				if template, err := store.GetTemplate(ctx, state.Characters[m.CharacterID].TemplateID); err == nil {
					m.CharacterName = template.Name
				}
			}
			if m.Username == "" {
				m.Username = m.UserID
			}
			if err := store.PutMember(ctx, room.ID, m); err != nil {
				return fmt.Errorf("seed room %s member %s: %w", room.ID, m.UserID, err)
			}
		}
	}
	return nil
}
