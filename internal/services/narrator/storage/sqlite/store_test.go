package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/storyroom/internal/services/narrator/game"
	"github.com/louisbranch/storyroom/internal/services/narrator/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "narrator.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenTwiceKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "narrator.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.PutTemplate(context.Background(), game.CharacterTemplate{ID: "tpl-1", Name: "Brisa"}); err != nil {
		t.Fatalf("put template: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if _, err := second.GetTemplate(context.Background(), "tpl-1"); err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	template := game.CharacterTemplate{
		ID:            "tpl-rogue",
		Name:          "Brisa",
		Class:         "Rogue",
		Race:          "Halfling",
		Level:         5,
		AbilityScores: game.AbilityScores{game.Dexterity: 16, game.Charisma: 14},
		MaxHP:         33,
		ArmorClass:    15,
		Background:    "Urchin",
	}
	if err := store.PutTemplate(ctx, template); err != nil {
		t.Fatalf("put template: %v", err)
	}

	got, err := store.GetTemplate(ctx, "tpl-rogue")
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if got.Name != "Brisa" || got.Level != 5 || got.AbilityScores.Score(game.Dexterity) != 16 {
		t.Fatalf("template = %+v", got)
	}

	template.Level = 6
	if err := store.PutTemplate(ctx, template); err != nil {
		t.Fatalf("update template: %v", err)
	}
	got, err = store.GetTemplate(ctx, "tpl-rogue")
	if err != nil {
		t.Fatalf("get updated: %v", err)
	}
	if got.Level != 6 {
		t.Fatalf("level = %d, want 6", got.Level)
	}
}

func TestTemplateValidationAndMissing(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	if err := store.PutTemplate(ctx, game.CharacterTemplate{Name: "x"}); err == nil {
		t.Fatal("expected error for missing id")
	}
	if err := store.PutTemplate(ctx, game.CharacterTemplate{ID: "x"}); err == nil {
		t.Fatal("expected error for missing name")
	}
	if _, err := store.GetTemplate(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListTemplatesSortedByName(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	for _, tpl := range []game.CharacterTemplate{
		{ID: "b", Name: "Tomas"},
		{ID: "a", Name: "Brisa"},
	} {
		if err := store.PutTemplate(ctx, tpl); err != nil {
			t.Fatalf("put %s: %v", tpl.ID, err)
		}
	}
	templates, err := store.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(templates) != 2 || templates[0].Name != "Brisa" || templates[1].Name != "Tomas" {
		t.Fatalf("templates = %+v", templates)
	}
}

func TestTemplateSourceAdapter(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()
	if err := store.PutTemplate(ctx, game.CharacterTemplate{ID: "tpl", Name: "Brisa"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	source := storage.TemplateSource{Store: store}
	got, ok, err := source.FindByID(ctx, "tpl")
	if err != nil || !ok || got.Name != "Brisa" {
		t.Fatalf("FindByID = %+v, %v, %v", got, ok, err)
	}
	_, ok, err = source.FindByID(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("missing FindByID = %v, %v", ok, err)
	}
}

func TestMembersJoinOrderAndUpdate(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	if err := store.PutMember(ctx, "room-1", game.Member{UserID: "u2", Username: "ben"}); err != nil {
		t.Fatalf("put u2: %v", err)
	}
	if err := store.PutMember(ctx, "room-1", game.Member{UserID: "u1", Username: "ana", CharacterID: "c1", CharacterName: "Brisa"}); err != nil {
		t.Fatalf("put u1: %v", err)
	}
	if err := store.PutMember(ctx, "room-2", game.Member{UserID: "u3", Username: "cid"}); err != nil {
		t.Fatalf("put u3: %v", err)
	}
	// Rejoining keeps the first position.
	if err := store.PutMember(ctx, "room-1", game.Member{UserID: "u2", Username: "ben", CharacterID: "c2", CharacterName: "Tomas"}); err != nil {
		t.Fatalf("update u2: %v", err)
	}

	members, err := storage.RoomRoster{Store: store, RoomID: "room-1"}.RoomMembers(ctx)
	if err != nil {
		t.Fatalf("room members: %v", err)
	}
	want := []game.Member{
		{UserID: "u2", Username: "ben", CharacterID: "c2", CharacterName: "Tomas"},
		{UserID: "u1", Username: "ana", CharacterID: "c1", CharacterName: "Brisa"},
	}
	if len(members) != len(want) {
		t.Fatalf("members = %+v", members)
	}
	for i := range want {
		if members[i] != want[i] {
			t.Fatalf("members[%d] = %+v, want %+v", i, members[i], want[i])
		}
	}

	if err := store.RemoveMember(ctx, "room-1", "u2"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := store.RemoveMember(ctx, "room-1", "u2"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second remove err = %v", err)
	}
	members, err = store.ListMembers(ctx, "room-1")
	if err != nil || len(members) != 1 {
		t.Fatalf("members after remove = %+v, %v", members, err)
	}
}

func TestMemberValidation(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	if err := store.PutMember(ctx, "", game.Member{UserID: "u1"}); err == nil {
		t.Fatal("expected error for missing room id")
	}
	if err := store.PutMember(ctx, "room", game.Member{}); err == nil {
		t.Fatal("expected error for missing user id")
	}
}

func TestRoomStateRoundTrip(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	if _, err := store.LoadRoomState(ctx, "room-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	state := game.NewGameState("room-1")
	state.Location = "The Gilded Tankard"
	state.Characters["c1"] = &game.CharacterState{
		InstanceID: "c1",
		TemplateID: "tpl-rogue",
		CurrentHP:  20,
		Conditions: []game.Condition{{Name: "poisoned", Source: "trap"}},
	}
	state.World.Flags["met_innkeeper"] = true
	state.World.RecentEvents = []string{"The party arrived."}

	if err := store.SaveRoomState(ctx, state); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.LoadRoomState(ctx, "room-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Location != state.Location {
		t.Fatalf("location = %q", got.Location)
	}
	c1, ok := got.Characters["c1"]
	if !ok || c1.CurrentHP != 20 || !c1.HasCondition("poisoned") {
		t.Fatalf("c1 = %+v", c1)
	}
	if !got.World.Flags["met_innkeeper"] {
		t.Fatalf("flags = %v", got.World.Flags)
	}
	if got.Overlays == nil {
		t.Fatal("overlays should be initialized")
	}
}

func TestSaveRoomStateRequiresRoom(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	if err := store.SaveRoomState(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil state")
	}
	if err := store.SaveRoomState(context.Background(), game.NewGameState("")); err == nil {
		t.Fatal("expected error for empty room id")
	}
}

func TestLoadOrNew(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx := context.Background()

	fresh, err := storage.LoadOrNew(ctx, store, "room-9")
	if err != nil {
		t.Fatalf("load or new: %v", err)
	}
	if fresh.RoomID != "room-9" || len(fresh.Characters) != 0 {
		t.Fatalf("fresh = %+v", fresh)
	}

	fresh.Location = "Docks"
	if err := store.SaveRoomState(ctx, fresh); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := storage.LoadOrNew(ctx, store, "room-9")
	if err != nil || loaded.Location != "Docks" {
		t.Fatalf("loaded = %+v, %v", loaded, err)
	}

	if _, err := storage.LoadOrNew(ctx, store, ""); err == nil {
		t.Fatal("expected error for empty room id")
	}
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()
	store := openTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.PutTemplate(ctx, game.CharacterTemplate{ID: "a", Name: "b"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("PutTemplate err = %v", err)
	}
	if _, err := store.ListMembers(ctx, "room"); !errors.Is(err, context.Canceled) {
		t.Fatalf("ListMembers err = %v", err)
	}
	if _, err := store.LoadRoomState(ctx, "room"); !errors.Is(err, context.Canceled) {
		t.Fatalf("LoadRoomState err = %v", err)
	}
}
