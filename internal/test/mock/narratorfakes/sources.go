package narratorfakes

import (
	"context"

	"github.com/louisbranch/storyroom/internal/services/narrator/game"
)

// TemplateSource is a map-backed template lookup.
type TemplateSource struct {
	Templates map[string]game.CharacterTemplate
	Err       error
	Lookups   []string
}

// NewTemplateSource indexes templates by id.
func NewTemplateSource(templates ...game.CharacterTemplate) *TemplateSource {
	src := &TemplateSource{Templates: make(map[string]game.CharacterTemplate, len(templates))}
	for _, template := range templates {
		src.Templates[template.ID] = template
	}
	return src
}

// FindByID returns the indexed template.
func (s *TemplateSource) FindByID(_ context.Context, id string) (game.CharacterTemplate, bool, error) {
	s.Lookups = append(s.Lookups, id)
	if s.Err != nil {
		return game.CharacterTemplate{}, false, s.Err
	}
	template, ok := s.Templates[id]
	return template, ok, nil
}

// Roster is a static room member list.
type Roster struct {
	Members []game.Member
	Err     error
}

// RoomMembers returns the static members.
func (r *Roster) RoomMembers(context.Context) ([]game.Member, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Members, nil
}

// UpdateCall records one world-context update.
type UpdateCall struct {
	Narrative string
	Actions   []game.PlayerAction
	RoomID    string
}

// Updater records world-context updates and optionally fails.
type Updater struct {
	Calls []UpdateCall
	Err   error
}

// Update records the call.
func (u *Updater) Update(_ context.Context, narrative string, actions []game.PlayerAction, state *game.GameState) error {
	call := UpdateCall{Narrative: narrative, Actions: actions}
	if state != nil {
		call.RoomID = state.RoomID
	}
	u.Calls = append(u.Calls, call)
	return u.Err
}
