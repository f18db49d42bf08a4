package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/louisbranch/storyroom/internal/services/narrator/contextbuild"
	"github.com/louisbranch/storyroom/internal/services/narrator/game"
	"github.com/louisbranch/storyroom/internal/services/narrator/llm"
	"github.com/louisbranch/storyroom/internal/services/narrator/mode"
	"github.com/louisbranch/storyroom/internal/services/narrator/rules"
	"github.com/louisbranch/storyroom/internal/services/narrator/session"
	"github.com/louisbranch/storyroom/internal/services/narrator/storage"
	"github.com/louisbranch/storyroom/internal/services/narrator/worldcontext"
)

// Store is the persistence surface a Runtime needs.
type Store interface {
	storage.TemplateStore
	storage.RosterStore
	storage.RoomStateStore
}

// RuntimeConfig configures room wiring.
type RuntimeConfig struct {
	Store Store
	LLM   llm.Client
	// SystemPrompt overrides contextbuild.DefaultSystemPrompt.
	SystemPrompt string
	// NewRNG returns the dice source for a new room. Defaults to rules.NewRNG.
	NewRNG func() (rules.RNG, error)
	Logger *slog.Logger
}

// Runtime builds and caches one session coordinator per room.
type Runtime struct {
	cfg      RuntimeConfig
	registry *session.Registry
}

// NewRuntime validates cfg and returns a runtime with an empty room registry.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.LLM == nil {
		return nil, errors.New("llm client is required")
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = contextbuild.DefaultSystemPrompt
	}
	if cfg.NewRNG == nil {
		cfg.NewRNG = rules.NewRNG
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := &Runtime{cfg: cfg}
	r.registry = session.NewRegistry(r.newCoordinator)
	return r, nil
}

// Room returns the coordinator for roomID, loading its saved state on first
// use.
func (r *Runtime) Room(ctx context.Context, roomID string) (*session.Coordinator, error) {
	return r.registry.GetOrCreate(ctx, roomID)
}

// Members lists the room roster in join order.
func (r *Runtime) Members(ctx context.Context, roomID string) ([]game.Member, error) {
	return r.cfg.Store.ListMembers(ctx, roomID)
}

// Rooms lists rooms with a live coordinator.
func (r *Runtime) Rooms() []string {
	return r.registry.Rooms()
}

// Evict drops a room's coordinator. The next Room call reloads saved state.
func (r *Runtime) Evict(roomID string) {
	r.registry.Remove(roomID)
}

func (r *Runtime) newCoordinator(ctx context.Context, roomID string) (*session.Coordinator, error) {
	state, err := storage.LoadOrNew(ctx, r.cfg.Store, roomID)
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	rng, err := r.cfg.NewRNG()
	if err != nil {
		return nil, fmt.Errorf("room %s rng: %w", roomID, err)
	}

	logger := r.cfg.Logger.With("room_id", roomID)
	templates := storage.TemplateSource{Store: r.cfg.Store}
	deps := mode.Dependencies{
		Builder: contextbuild.NewBuilder(
			contextbuild.DefaultProviders(r.cfg.SystemPrompt, templates),
			contextbuild.WithBuilderLogger(logger),
		),
		LLM:     r.cfg.LLM,
		Engine:  rules.NewEngine(rng, templates, rules.WithLogger(logger)),
		Roster:  storage.RoomRoster{Store: r.cfg.Store, RoomID: roomID},
		Updater: worldcontext.NewRecentEvents(),
		Logger:  logger,
	}
	return session.NewCoordinator(ctx, state, deps,
		session.WithStateSaver(r.cfg.Store),
		session.WithLogger(logger),
	)
}
