package contextbuild

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/louisbranch/storyroom/internal/services/narrator/game"
	"github.com/louisbranch/storyroom/internal/services/narrator/llm"
)

// ErrCriticalProvider reports that a provider the prompt cannot do without
// failed. Builds that return it produce no messages.
var ErrCriticalProvider = errors.New("critical context provider failed")

// DefaultCritical names the providers whose failure aborts a build.
var DefaultCritical = []string{NameSystemPrompt, NameConversationHistory}

// mergedName labels the leading system message.
const mergedName = "context"

// ProviderInfo describes one registered provider.
type ProviderInfo struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Critical bool   `json:"critical,omitempty"`
}

// Snapshot is the diagnostic view of the most recent build.
type Snapshot struct {
	Timestamp       time.Time      `json:"timestamp"`
	Providers       []ProviderInfo `json:"providers"`
	BuildLog        []string       `json:"build_log"`
	Errors          []string       `json:"errors"`
	EstimatedTokens int            `json:"estimated_tokens"`
	ContentBytes    int            `json:"content_bytes"`
}

// Summary renders the snapshot as one human-readable line.
func (s Snapshot) Summary() string {
	return fmt.Sprintf("%d providers, %d errors, ~%s tokens (%s)",
		len(s.Providers), len(s.Errors), humanize.Comma(int64(s.EstimatedTokens)), humanize.Bytes(uint64(s.ContentBytes)))
}

// Builder turns game state into the ordered message list sent to the LLM.
type Builder struct {
	providers []Provider
	critical  map[string]bool
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	snapshot Snapshot
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithCritical replaces the set of critical provider names.
func WithCritical(names ...string) BuilderOption {
	return func(b *Builder) {
		b.critical = make(map[string]bool, len(names))
		for _, name := range names {
			b.critical[name] = true
		}
	}
}

// WithBuilderLogger sets the logger used for omitted providers.
func WithBuilderLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuilder registers providers, stably sorted by ascending priority.
func NewBuilder(providers []Provider, opts ...BuilderOption) *Builder {
	b := &Builder{
		providers: slices.Clone(providers),
		logger:    slog.Default(),
		now:       time.Now,
	}
	WithCritical(DefaultCritical...)(b)
	for _, opt := range opts {
		opt(b)
	}
	slices.SortStableFunc(b.providers, func(x, y Provider) int {
		return cmp.Compare(x.Priority(), y.Priority())
	})
	return b
}

// Providers lists registered providers in invocation order.
func (b *Builder) Providers() []ProviderInfo {
	infos := make([]ProviderInfo, 0, len(b.providers))
	for _, p := range b.providers {
		infos = append(infos, ProviderInfo{Name: p.Name(), Priority: p.Priority(), Critical: b.critical[p.Name()]})
	}
	return infos
}

// Build invokes every provider and assembles the prompt messages.
//
// Blocks below MergeThreshold are joined, blank-line separated, into one
// leading system message. Every other block becomes its own timestamped
// system message. A failing critical provider aborts the build with
// ErrCriticalProvider; other failures are logged and their blocks omitted.
func (b *Builder) Build(ctx context.Context, state *game.GameState) ([]llm.Message, error) {
	if state == nil {
		return nil, errors.New("game state is required")
	}
	snap := Snapshot{Timestamp: b.now(), Providers: b.Providers()}
	defer func() {
		b.mu.Lock()
		b.snapshot = snap
		b.mu.Unlock()
	}()

	var blocks []Block
	for _, p := range b.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		produced, err := invoke(ctx, p, state)
		if err != nil {
			entry := fmt.Sprintf("%s: Error: %v", p.Name(), err)
			snap.BuildLog = append(snap.BuildLog, entry)
			snap.Errors = append(snap.Errors, entry)
			if b.critical[p.Name()] {
				return nil, fmt.Errorf("%w: %s: %w", ErrCriticalProvider, p.Name(), err)
			}
			b.logger.Warn("context provider omitted", "provider", p.Name(), "error", err)
			continue
		}
		tokens := 0
		for _, block := range produced {
			tokens += EstimateTokens(block.Content)
			snap.ContentBytes += len(block.Content)
		}
		snap.EstimatedTokens += tokens
		snap.BuildLog = append(snap.BuildLog, fmt.Sprintf("%s: %d block(s), ~%d tokens", p.Name(), len(produced), tokens))
		blocks = append(blocks, produced...)
	}
	// A provider may emit blocks at priorities other than its own.
	slices.SortStableFunc(blocks, func(x, y Block) int {
		return cmp.Compare(x.Priority(), y.Priority())
	})
	return b.assemble(blocks), nil
}

func (b *Builder) assemble(blocks []Block) []llm.Message {
	var merged []string
	var separate []Block
	for _, block := range blocks {
		if strings.TrimSpace(block.Content) == "" {
			continue
		}
		if block.Priority() < MergeThreshold {
			merged = append(merged, block.Content)
			continue
		}
		separate = append(separate, block)
	}

	messages := make([]llm.Message, 0, len(separate)+1)
	if len(merged) > 0 {
		messages = append(messages, llm.Message{
			Role:      llm.RoleSystem,
			Name:      mergedName,
			Content:   strings.Join(merged, "\n\n"),
			Timestamp: b.now(),
		})
	}
	for _, block := range separate {
		messages = append(messages, llm.Message{
			Role:      llm.RoleSystem,
			Name:      block.Name,
			Content:   block.Content,
			Timestamp: b.now(),
		})
	}
	return messages
}

// Snapshot returns diagnostics for the most recent build.
func (b *Builder) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := b.snapshot
	snap.Providers = slices.Clone(snap.Providers)
	snap.BuildLog = slices.Clone(snap.BuildLog)
	snap.Errors = slices.Clone(snap.Errors)
	return snap
}

func invoke(ctx context.Context, p Provider, state *game.GameState) (blocks []Block, err error) {
	defer func() {
		if r := recover(); r != nil {
			blocks = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Provide(ctx, state)
}
