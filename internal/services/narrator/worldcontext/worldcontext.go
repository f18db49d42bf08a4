// Package worldcontext folds each finished turn back into the room's world
// memory.
package worldcontext

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/louisbranch/storyroom/internal/services/narrator/game"
)

const (
	// DefaultEventLimit caps World.RecentEvents.
	DefaultEventLimit = 10
	// DefaultHistoryLimit caps GameState.RecentHistory.
	DefaultHistoryLimit = 20
	// summaryLimit caps the length of one recorded event.
	summaryLimit = 200
)

// Updater enriches game state after a turn. Implementations are best-effort;
// callers log and ignore their errors.
type Updater interface {
	Update(ctx context.Context, narrative string, actions []game.PlayerAction, state *game.GameState) error
}

// RecentEvents records the turn in the room's history and appends a short
// summary of the narrative to the world's recent events.
type RecentEvents struct {
	EventLimit   int
	HistoryLimit int
	Now          func() time.Time
}

// NewRecentEvents returns an updater with the default caps.
func NewRecentEvents() *RecentEvents {
	return &RecentEvents{EventLimit: DefaultEventLimit, HistoryLimit: DefaultHistoryLimit, Now: time.Now}
}

// Update implements Updater.
func (u *RecentEvents) Update(ctx context.Context, narrative string, actions []game.PlayerAction, state *game.GameState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state == nil {
		return nil
	}
	narrative = strings.TrimSpace(narrative)
	if narrative == "" && len(actions) == 0 {
		return nil
	}

	now := time.Now
	if u.Now != nil {
		now = u.Now
	}
	state.RecentHistory = appendCapped(state.RecentHistory, game.HistoryTurn{
		Actions:   slices.Clone(actions),
		Narrative: narrative,
		At:        now(),
	}, limitOr(u.HistoryLimit, DefaultHistoryLimit))

	if summary := Summarize(narrative); summary != "" {
		state.World.RecentEvents = appendCapped(state.World.RecentEvents, summary, limitOr(u.EventLimit, DefaultEventLimit))
	}
	return nil
}

// Summarize returns the first sentence of narrative, capped in length.
func Summarize(narrative string) string {
	narrative = strings.Join(strings.Fields(narrative), " ")
	if narrative == "" {
		return ""
	}
	if idx := strings.IndexAny(narrative, ".!?"); idx >= 0 {
		narrative = narrative[:idx+1]
	}
	runes := []rune(narrative)
	if len(runes) > summaryLimit {
		return strings.TrimSpace(string(runes[:summaryLimit])) + "…"
	}
	return narrative
}

func appendCapped[T any](items []T, item T, limit int) []T {
	items = append(items, item)
	if len(items) > limit {
		items = slices.Clone(items[len(items)-limit:])
	}
	return items
}

func limitOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
