package contextbuild

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/louisbranch/storyroom/internal/services/narrator/game"
	"github.com/louisbranch/storyroom/internal/services/narrator/rules"
)

// HistoryTurnLimit is the per-turn narrative cap applied by the conversation
// history provider.
const HistoryTurnLimit = 1000

// DefaultSystemPrompt is the narrator's standing instruction set.
const DefaultSystemPrompt = `You are the narrator of a multiplayer tabletop roleplaying session.
Several players act together each round. Describe the outcome of their actions in vivid second person, voice every non-player character, and keep the story moving.

Mechanics are resolved by tools, never by you:
- Call request_ability_check or request_saving_throw when one character's action has an uncertain outcome.
- Call request_group_check when the whole party attempts something together.
- Call start_combat when hostilities begin.
- Call restrict_action when only some characters may act next; call it with an empty list to lift the restriction.
Narrate the results of any rolls after the tools respond. Never invent dice results.`

// StaticProvider returns a single fixed block.
type StaticProvider struct {
	name     string
	priority int
	content  string
}

// Name implements Provider.
func (p StaticProvider) Name() string { return p.name }

// Priority implements Provider.
func (p StaticProvider) Priority() int { return p.priority }

// Provide implements Provider.
func (p StaticProvider) Provide(context.Context, *game.GameState) ([]Block, error) {
	if strings.TrimSpace(p.content) == "" {
		return nil, nil
	}
	return []Block{NewBlock(p.name, p.content, p.priority)}, nil
}

// SystemPrompt returns the system prompt provider. An empty prompt selects
// DefaultSystemPrompt.
func SystemPrompt(prompt string) Provider {
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultSystemPrompt
	}
	return StaticProvider{name: NameSystemPrompt, priority: PrioritySystemPrompt, content: prompt}
}

// WorldContext renders location, encounters, recent events, facts and set
// flags.
type WorldContext struct{}

// Name implements Provider.
func (WorldContext) Name() string { return NameWorldContext }

// Priority implements Provider.
func (WorldContext) Priority() int { return PriorityWorldContext }

// Provide implements Provider.
func (WorldContext) Provide(_ context.Context, state *game.GameState) ([]Block, error) {
	var b strings.Builder
	if loc := strings.TrimSpace(state.Location); loc != "" {
		fmt.Fprintf(&b, "Current location: %s\n", loc)
	}
	if len(state.Encounters) > 0 {
		b.WriteString("Active encounters:\n")
		for _, enc := range state.Encounters {
			if enc.Description != "" {
				fmt.Fprintf(&b, "- %s: %s\n", enc.Name, enc.Description)
				continue
			}
			fmt.Fprintf(&b, "- %s\n", enc.Name)
		}
	}
	writeList(&b, "Recent events:", state.World.RecentEvents)
	writeList(&b, "Established facts:", state.World.Facts)

	var flags []string
	for flag, set := range state.World.Flags {
		if set {
			flags = append(flags, flag)
		}
	}
	slices.Sort(flags)
	writeList(&b, "Story flags:", flags)

	return single(NameWorldContext, b.String(), PriorityWorldContext), nil
}

// CharacterOverlay renders the conditions other players can see.
type CharacterOverlay struct{}

// Name implements Provider.
func (CharacterOverlay) Name() string { return NameCharacterOverlay }

// Priority implements Provider.
func (CharacterOverlay) Priority() int { return PriorityCharacterOverlay }

// Provide implements Provider.
func (CharacterOverlay) Provide(_ context.Context, state *game.GameState) ([]Block, error) {
	ids := make([]string, 0, len(state.Overlays))
	for id := range state.Overlays {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var b strings.Builder
	for _, id := range ids {
		overlay := state.Overlays[id]
		if len(overlay.Visible) == 0 && overlay.Note == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s:", id)
		if len(overlay.Visible) > 0 {
			fmt.Fprintf(&b, " %s", strings.Join(overlay.Visible, ", "))
		}
		if overlay.Note != "" {
			fmt.Fprintf(&b, " (%s)", overlay.Note)
		}
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return nil, nil
	}
	return single(NameCharacterOverlay, "Visible conditions:\n"+b.String(), PriorityCharacterOverlay), nil
}

// ModuleLore renders the adventure's setting text.
type ModuleLore struct{}

// Name implements Provider.
func (ModuleLore) Name() string { return NameModuleLore }

// Priority implements Provider.
func (ModuleLore) Priority() int { return PriorityModuleLore }

// Provide implements Provider.
func (ModuleLore) Provide(_ context.Context, state *game.GameState) ([]Block, error) {
	lore := strings.TrimSpace(state.ModuleLore)
	if lore == "" {
		return nil, nil
	}
	return single(NameModuleLore, "Setting:\n"+lore, PriorityModuleLore), nil
}

// CharacterProfiles renders one sheet summary per character in the room.
type CharacterProfiles struct {
	Templates rules.TemplateSource
}

// Name implements Provider.
func (CharacterProfiles) Name() string { return NameCharacterProfiles }

// Priority implements Provider.
func (CharacterProfiles) Priority() int { return PriorityCharacterProfiles }

// Provide implements Provider.
func (p CharacterProfiles) Provide(ctx context.Context, state *game.GameState) ([]Block, error) {
	ids := state.CharacterIDs()
	if len(ids) == 0 {
		return nil, nil
	}
	var b strings.Builder
	b.WriteString("Party:\n")
	for _, id := range ids {
		cs := state.Characters[id]
		if cs == nil {
			continue
		}
		var template game.CharacterTemplate
		found := false
		if p.Templates != nil {
			var err error
			template, found, err = p.Templates.FindByID(ctx, cs.TemplateID)
			if err != nil {
				return nil, fmt.Errorf("find template %s: %w", cs.TemplateID, err)
			}
		}
		writeProfile(&b, id, cs, template, found)
	}
	return single(NameCharacterProfiles, b.String(), PriorityCharacterProfiles), nil
}

func writeProfile(b *strings.Builder, id string, cs *game.CharacterState, template game.CharacterTemplate, found bool) {
	if !found {
		fmt.Fprintf(b, "- %s: HP %d", id, cs.CurrentHP)
	} else {
		fmt.Fprintf(b, "- %s (id %s): level %d %s %s, HP %d/%d", template.Name, id, template.Level, template.Race, template.Class, cs.CurrentHP, template.MaxHP)
	}
	if cs.TempHP > 0 {
		fmt.Fprintf(b, " +%d temp", cs.TempHP)
	}
	if found {
		fmt.Fprintf(b, ", AC %d\n  ", template.ArmorClass)
		scores := make([]string, 0, 6)
		for _, ability := range game.Abilities() {
			score := template.AbilityScores.Score(ability)
			scores = append(scores, fmt.Sprintf("%s %d (%+d)", strings.ToUpper(ability.Short()), score, rules.AbilityModifier(score)))
		}
		b.WriteString(strings.Join(scores, ", "))
	}
	b.WriteString("\n")
	if len(cs.Conditions) > 0 {
		names := make([]string, 0, len(cs.Conditions))
		for _, c := range cs.Conditions {
			names = append(names, c.Name)
		}
		fmt.Fprintf(b, "  Conditions: %s\n", strings.Join(names, ", "))
	}
	if len(cs.Equipment) > 0 {
		items := make([]string, 0, len(cs.Equipment))
		for _, item := range cs.Equipment {
			if item.Equipped {
				items = append(items, item.Name+" (equipped)")
				continue
			}
			items = append(items, item.Name)
		}
		fmt.Fprintf(b, "  Carrying: %s\n", strings.Join(items, ", "))
	}
	if thoughts := strings.TrimSpace(cs.CurrentThoughts); thoughts != "" {
		fmt.Fprintf(b, "  Thinking: %s\n", thoughts)
	}
}

// PlayerNotes renders notes players pinned for the narrator.
type PlayerNotes struct{}

// Name implements Provider.
func (PlayerNotes) Name() string { return NamePlayerNotes }

// Priority implements Provider.
func (PlayerNotes) Priority() int { return PriorityPlayerNotes }

// Provide implements Provider.
func (PlayerNotes) Provide(_ context.Context, state *game.GameState) ([]Block, error) {
	var b strings.Builder
	for _, note := range state.PlayerNotes {
		text := strings.TrimSpace(note.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", note.Username, text)
	}
	if b.Len() == 0 {
		return nil, nil
	}
	return single(NamePlayerNotes, "Player notes:\n"+b.String(), PriorityPlayerNotes), nil
}

// GameRules reminds the narrator of how checks work and which conditions are
// currently in effect.
type GameRules struct{}

// Name implements Provider.
func (GameRules) Name() string { return NameGameRules }

// Priority implements Provider.
func (GameRules) Priority() int { return PriorityGameRules }

// Provide implements Provider.
func (GameRules) Provide(_ context.Context, state *game.GameState) ([]Block, error) {
	var b strings.Builder
	b.WriteString("Rules reminder:\n")
	b.WriteString("- A check succeeds when its total meets or beats the DC (easy 10, medium 15, hard 20).\n")
	b.WriteString("- Use advantage or disadvantage only when the fiction clearly supports it.\n")
	b.WriteString("- Unconscious characters cannot act until healed.\n")

	var active []string
	for _, id := range state.CharacterIDs() {
		cs := state.Characters[id]
		if cs == nil {
			continue
		}
		for _, c := range cs.Conditions {
			active = append(active, fmt.Sprintf("%s is %s", id, c.Name))
		}
	}
	writeList(&b, "Active conditions:", active)
	return single(NameGameRules, b.String(), PriorityGameRules), nil
}

// ConversationHistory replays the recent rounds, truncating long narratives.
type ConversationHistory struct {
	// Limit caps each narrative; zero selects HistoryTurnLimit.
	Limit int
}

// Name implements Provider.
func (ConversationHistory) Name() string { return NameConversationHistory }

// Priority implements Provider.
func (ConversationHistory) Priority() int { return PriorityConversationHistory }

// Provide implements Provider.
func (p ConversationHistory) Provide(_ context.Context, state *game.GameState) ([]Block, error) {
	if len(state.RecentHistory) == 0 {
		return nil, nil
	}
	limit := p.Limit
	if limit <= 0 {
		limit = HistoryTurnLimit
	}
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, turn := range state.RecentHistory {
		for _, action := range turn.Actions {
			fmt.Fprintf(&b, "[%s] %s\n", action.Actor(), strings.TrimSpace(action.Text))
		}
		if narrative := strings.TrimSpace(turn.Narrative); narrative != "" {
			fmt.Fprintf(&b, "Narrator: %s\n", Truncate(narrative, limit))
		}
	}
	return single(NameConversationHistory, b.String(), PriorityConversationHistory), nil
}

// DefaultProviders returns the eight standard providers.
func DefaultProviders(systemPrompt string, templates rules.TemplateSource) []Provider {
	return []Provider{
		SystemPrompt(systemPrompt),
		WorldContext{},
		CharacterOverlay{},
		ModuleLore{},
		CharacterProfiles{Templates: templates},
		PlayerNotes{},
		GameRules{},
		ConversationHistory{},
	}
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(title)
	b.WriteString("\n")
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func single(name, content string, priority int) []Block {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	return []Block{NewBlock(name, content, priority)}
}
