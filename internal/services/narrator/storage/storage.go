// Package storage defines the persistence contracts behind the narrator's
// collaborators: character templates, room rosters and room state snapshots.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/storyroom/internal/services/narrator/game"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// TemplateStore persists character templates.
type TemplateStore interface {
	PutTemplate(ctx context.Context, template game.CharacterTemplate) error
	GetTemplate(ctx context.Context, id string) (game.CharacterTemplate, error)
	ListTemplates(ctx context.Context) ([]game.CharacterTemplate, error)
}

// RosterStore persists room membership.
type RosterStore interface {
	PutMember(ctx context.Context, roomID string, member game.Member) error
	ListMembers(ctx context.Context, roomID string) ([]game.Member, error)
	RemoveMember(ctx context.Context, roomID, userID string) error
}

// RoomStateStore persists game state snapshots between turns.
type RoomStateStore interface {
	SaveRoomState(ctx context.Context, state *game.GameState) error
	LoadRoomState(ctx context.Context, roomID string) (*game.GameState, error)
}

// TemplateSource adapts a TemplateStore to the rules engine's lookup.
type TemplateSource struct {
	Store TemplateStore
}

// FindByID returns false when the template does not exist.
func (s TemplateSource) FindByID(ctx context.Context, id string) (game.CharacterTemplate, bool, error) {
	template, err := s.Store.GetTemplate(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return game.CharacterTemplate{}, false, nil
	}
	if err != nil {
		return game.CharacterTemplate{}, false, err
	}
	return template, true, nil
}

// RoomRoster adapts a RosterStore to one room's member list.
type RoomRoster struct {
	Store  RosterStore
	RoomID string
}

// RoomMembers lists the room's members.
func (r RoomRoster) RoomMembers(ctx context.Context) ([]game.Member, error) {
	return r.Store.ListMembers(ctx, r.RoomID)
}

// LoadOrNew returns the stored state for roomID, or a fresh one when the room
// has never been saved.
func LoadOrNew(ctx context.Context, store RoomStateStore, roomID string) (*game.GameState, error) {
	if strings.TrimSpace(roomID) == "" {
		return nil, fmt.Errorf("room id is required")
	}
	state, err := store.LoadRoomState(ctx, roomID)
	if errors.Is(err, ErrNotFound) {
		return game.NewGameState(roomID), nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}
