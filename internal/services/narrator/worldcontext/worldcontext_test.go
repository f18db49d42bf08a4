package worldcontext

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/storyroom/internal/services/narrator/game"
)

func TestRecentEventsRecordsTurn(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	updater := NewRecentEvents()
	updater.Now = func() time.Time { return at }
	state := game.NewGameState("room-1")
	actions := []game.PlayerAction{{Username: "ana", Text: "I light the torch"}}

	if err := updater.Update(context.Background(), "The torch flares. Shadows retreat.", actions, state); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(state.RecentHistory) != 1 || !state.RecentHistory[0].At.Equal(at) || len(state.RecentHistory[0].Actions) != 1 {
		t.Fatalf("history = %+v", state.RecentHistory)
	}
	if len(state.World.RecentEvents) != 1 || state.World.RecentEvents[0] != "The torch flares." {
		t.Fatalf("events = %v", state.World.RecentEvents)
	}
}

func TestRecentEventsCapsLists(t *testing.T) {
	updater := &RecentEvents{EventLimit: 3, HistoryLimit: 2}
	state := game.NewGameState("room-1")
	for i := 0; i < 5; i++ {
		if err := updater.Update(context.Background(), fmt.Sprintf("Event %d.", i), nil, state); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	if len(state.World.RecentEvents) != 3 || state.World.RecentEvents[0] != "Event 2." {
		t.Fatalf("events = %v", state.World.RecentEvents)
	}
	if len(state.RecentHistory) != 2 || state.RecentHistory[1].Narrative != "Event 4." {
		t.Fatalf("history = %+v", state.RecentHistory)
	}
}

func TestRecentEventsSkipsEmptyTurn(t *testing.T) {
	state := game.NewGameState("room-1")
	if err := NewRecentEvents().Update(context.Background(), "  ", nil, state); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(state.RecentHistory) != 0 || len(state.World.RecentEvents) != 0 {
		t.Fatal("expected no changes")
	}
}

func TestRecentEventsHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewRecentEvents().Update(ctx, "Something.", nil, game.NewGameState("room-1")); err == nil {
		t.Fatal("expected error")
	}
}

func TestSummarize(t *testing.T) {
	if got := Summarize("  The  door\nopens. Beyond it, darkness."); got != "The door opens." {
		t.Fatalf("summary = %q", got)
	}
	long := strings.Repeat("a", 300)
	if got := Summarize(long); len([]rune(got)) != summaryLimit+1 {
		t.Fatalf("summary length = %d", len([]rune(got)))
	}
}
