// Package contextbuild assembles the narrator prompt from prioritized context
// blocks.
//
// Providers each render zero or more named blocks from the room's game state.
// The Builder orders providers by priority, isolates their failures, and merges
// the low-priority blocks into one leading system message.
package contextbuild

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/louisbranch/storyroom/internal/services/narrator/game"
)

// Provider priorities. Lower values are placed earlier in the prompt; values
// below MergeThreshold are merged into the leading system message.
const (
	PrioritySystemPrompt        = 0
	PriorityWorldContext        = 10
	PriorityCharacterOverlay    = 15
	PriorityModuleLore          = 100
	PriorityCharacterProfiles   = 200
	PriorityPlayerNotes         = 300
	PriorityGameRules           = 300
	PriorityConversationHistory = 400

	// MergeThreshold is the first priority that gets its own message.
	MergeThreshold = 200
)

// Provider names.
const (
	NameSystemPrompt        = "system_prompt"
	NameWorldContext        = "world_context"
	NameCharacterOverlay    = "character_overlay"
	NameModuleLore          = "module_lore"
	NameCharacterProfiles   = "character_profiles"
	NamePlayerNotes         = "player_notes"
	NameGameRules           = "game_rules"
	NameConversationHistory = "conversation_history"
)

// Block is one named fragment of prompt text.
type Block struct {
	Name     string
	Content  string
	priority int
	Metadata map[string]string
}

// NewBlock returns a block with a fixed priority.
func NewBlock(name, content string, priority int) Block {
	return Block{Name: name, Content: content, priority: priority}
}

// Priority returns the priority the block was created with.
func (b Block) Priority() int {
	return b.priority
}

// Provider renders context blocks from game state.
//
// Provide must not mutate state. A nil or empty result means the provider has
// nothing to contribute this round.
type Provider interface {
	Name() string
	Priority() int
	Provide(ctx context.Context, state *game.GameState) ([]Block, error)
}

// EstimateTokens approximates the token count of text at four characters per
// token, rounded up.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// Truncate shortens text to at most limit characters, cutting back to the last
// line or word boundary when one exists in the second half, and appends an
// ellipsis when anything was removed.
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	cut := string(runes[:limit])
	if idx := strings.LastIndexAny(cut, "\n "); idx >= len(cut)/2 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " \n\t") + "…"
}
