package contextbuild

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/louisbranch/storyroom/internal/services/narrator/game"
	"github.com/louisbranch/storyroom/internal/test/mock/narratorfakes"
)

func sampleState() *game.GameState {
	state := game.NewGameState("room-1")
	state.Location = "The Sunken Library"
	state.ModuleLore = "A drowned city beneath the lake."
	state.World.RecentEvents = []string{"The door collapsed."}
	state.World.Facts = []string{"The librarian is a ghost."}
	state.World.Flags["met_librarian"] = true
	state.World.Flags["found_key"] = false
	state.Encounters = []game.Encounter{{ID: "e1", Name: "Drowned sentries", Description: "three of them"}}
	state.Characters["c1"] = &game.CharacterState{
		InstanceID: "c1", TemplateID: "tpl-1", CurrentHP: 7, TempHP: 2,
		Conditions: []game.Condition{{Name: "poisoned"}},
		Equipment:  []game.EquipmentItem{{Name: "rapier", Equipped: true}, {Name: "rope"}},
	}
	state.Overlays["c1"] = game.CharacterOverlay{CharacterID: "c1", Visible: []string{"poisoned"}, Note: "pale"}
	state.PlayerNotes = []game.PlayerNote{{Username: "ana", Text: "Remember the ghost owes us."}}
	return state
}

func TestDefaultProvidersNamesAndPriorities(t *testing.T) {
	want := map[string]int{
		NameSystemPrompt:        0,
		NameWorldContext:        10,
		NameCharacterOverlay:    15,
		NameModuleLore:          100,
		NameCharacterProfiles:   200,
		NamePlayerNotes:         300,
		NameGameRules:           300,
		NameConversationHistory: 400,
	}
	providers := DefaultProviders("", nil)
	if len(providers) != len(want) {
		t.Fatalf("providers = %d, want %d", len(providers), len(want))
	}
	for _, p := range providers {
		priority, ok := want[p.Name()]
		if !ok {
			t.Fatalf("unexpected provider %q", p.Name())
		}
		if p.Priority() != priority {
			t.Fatalf("%s priority = %d, want %d", p.Name(), p.Priority(), priority)
		}
	}
}

func TestWorldContextProvider(t *testing.T) {
	blocks, err := WorldContext{}.Provide(context.Background(), sampleState())
	if err != nil {
		t.Fatalf("provide: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(blocks))
	}
	content := blocks[0].Content
	for _, want := range []string{"The Sunken Library", "Drowned sentries: three of them", "The door collapsed.", "ghost", "met_librarian"} {
		if !strings.Contains(content, want) {
			t.Fatalf("content missing %q:\n%s", want, content)
		}
	}
	if strings.Contains(content, "found_key") {
		t.Fatalf("unset flag rendered:\n%s", content)
	}
}

func TestProvidersReturnNothingForEmptyState(t *testing.T) {
	empty := game.NewGameState("room-1")
	for _, p := range []Provider{WorldContext{}, CharacterOverlay{}, ModuleLore{}, CharacterProfiles{}, PlayerNotes{}, ConversationHistory{}} {
		blocks, err := p.Provide(context.Background(), empty)
		if err != nil {
			t.Fatalf("%s: %v", p.Name(), err)
		}
		if len(blocks) != 0 {
			t.Fatalf("%s blocks = %+v, want none", p.Name(), blocks)
		}
	}
}

func TestCharacterProfilesProvider(t *testing.T) {
	templates := narratorfakes.NewTemplateSource(game.CharacterTemplate{
		ID: "tpl-1", Name: "Brisa", Class: "Rogue", Race: "Halfling", Level: 3, MaxHP: 18, ArmorClass: 14,
		AbilityScores: game.AbilityScores{game.Dexterity: 16},
	})
	blocks, err := CharacterProfiles{Templates: templates}.Provide(context.Background(), sampleState())
	if err != nil {
		t.Fatalf("provide: %v", err)
	}
	content := blocks[0].Content
	for _, want := range []string{"Brisa (id c1)", "level 3 Halfling Rogue", "HP 7/18 +2 temp", "AC 14", "DEX 16 (+3)", "STR 10 (+0)", "poisoned", "rapier (equipped)"} {
		if !strings.Contains(content, want) {
			t.Fatalf("content missing %q:\n%s", want, content)
		}
	}
	if blocks[0].Priority() != PriorityCharacterProfiles {
		t.Fatalf("priority = %d", blocks[0].Priority())
	}
}

func TestCharacterProfilesProviderPropagatesLookupError(t *testing.T) {
	templates := narratorfakes.NewTemplateSource()
	templates.Err = errors.New("db down")
	if _, err := (CharacterProfiles{Templates: templates}).Provide(context.Background(), sampleState()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCharacterOverlayAndNotes(t *testing.T) {
	state := sampleState()
	overlay, err := CharacterOverlay{}.Provide(context.Background(), state)
	if err != nil {
		t.Fatalf("overlay: %v", err)
	}
	if !strings.Contains(overlay[0].Content, "c1: poisoned (pale)") {
		t.Fatalf("overlay = %q", overlay[0].Content)
	}
	notes, err := PlayerNotes{}.Provide(context.Background(), state)
	if err != nil {
		t.Fatalf("notes: %v", err)
	}
	if !strings.Contains(notes[0].Content, "ana: Remember the ghost owes us.") {
		t.Fatalf("notes = %q", notes[0].Content)
	}
}

func TestGameRulesListsActiveConditions(t *testing.T) {
	blocks, err := GameRules{}.Provide(context.Background(), sampleState())
	if err != nil {
		t.Fatalf("provide: %v", err)
	}
	if !strings.Contains(blocks[0].Content, "c1 is poisoned") {
		t.Fatalf("content = %q", blocks[0].Content)
	}
}

func TestConversationHistoryTruncatesLongNarratives(t *testing.T) {
	state := game.NewGameState("room-1")
	long := strings.Repeat("word ", 400)
	state.RecentHistory = []game.HistoryTurn{{
		Actions:   []game.PlayerAction{{Username: "ana", CharacterName: "Brisa", Text: "I open the door"}},
		Narrative: long,
	}}

	blocks, err := ConversationHistory{}.Provide(context.Background(), state)
	if err != nil {
		t.Fatalf("provide: %v", err)
	}
	content := blocks[0].Content
	if !strings.Contains(content, "[Brisa] I open the door") {
		t.Fatalf("content missing action:\n%s", content)
	}
	if !strings.HasSuffix(content, "…") {
		t.Fatalf("narrative not truncated")
	}
	narrative := content[strings.Index(content, "Narrator: ")+len("Narrator: "):]
	if n := utf8.RuneCountInString(narrative); n > HistoryTurnLimit+1 {
		t.Fatalf("narrative length = %d, want <= %d", n, HistoryTurnLimit+1)
	}
}

func TestTruncate(t *testing.T) {
	tcs := []struct {
		in    string
		limit int
		want  string
	}{
		{in: "short", limit: 10, want: "short"},
		{in: "the quick brown fox", limit: 12, want: "the quick…"},
		{in: "line one\nline two", limit: 12, want: "line one…"},
		{in: "abcdefghijklmnop", limit: 5, want: "abcde…"},
	}
	for _, tc := range tcs {
		if got := Truncate(tc.in, tc.limit); got != tc.want {
			t.Fatalf("Truncate(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
		}
	}
}

func TestSystemPromptDefaults(t *testing.T) {
	blocks, err := SystemPrompt("").Provide(context.Background(), game.NewGameState("room-1"))
	if err != nil {
		t.Fatalf("provide: %v", err)
	}
	if blocks[0].Content != DefaultSystemPrompt {
		t.Fatalf("content = %q", blocks[0].Content)
	}
	custom, _ := SystemPrompt("Be terse.").Provide(context.Background(), nil)
	if custom[0].Content != "Be terse." {
		t.Fatalf("content = %q", custom[0].Content)
	}
}
