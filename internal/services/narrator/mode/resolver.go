package mode

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"

	"github.com/louisbranch/storyroom/internal/services/narrator/game"
)

// resolver maps the character references the LLM emits to instance ids.
// The roster is loaded at most once per turn.
type resolver struct {
	roster RosterSource
	state  *game.GameState
	logger *slog.Logger
	fold   cases.Caser

	loaded bool
	cached []game.Member
}

func newResolver(roster RosterSource, state *game.GameState, logger *slog.Logger) *resolver {
	return &resolver{roster: roster, state: state, logger: logger, fold: cases.Fold()}
}

func (r *resolver) members(ctx context.Context) []game.Member {
	if r.loaded || r.roster == nil {
		return r.cached
	}
	r.loaded = true
	members, err := r.roster.RoomMembers(ctx)
	if err != nil {
		r.logger.Warn("room roster unavailable", "error", err)
		return nil
	}
	r.cached = members
	return members
}

// resolve matches ref against instance ids first, then case-folded character
// names and usernames. Unmatched references are returned unchanged.
func (r *resolver) resolve(ctx context.Context, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if _, ok := r.state.Characters[ref]; ok {
		return ref
	}
	members := r.members(ctx)
	for _, member := range members {
		if member.CharacterID == ref {
			return ref
		}
	}
	folded := r.fold.String(ref)
	for _, member := range members {
		if member.CharacterID == "" {
			continue
		}
		if r.fold.String(member.CharacterName) == folded || r.fold.String(member.Username) == folded {
			return member.CharacterID
		}
	}
	return ref
}

func (r *resolver) characterName(ctx context.Context, characterID string) string {
	for _, member := range r.members(ctx) {
		if member.CharacterID == characterID {
			return strings.TrimSpace(member.CharacterName)
		}
	}
	return ""
}
