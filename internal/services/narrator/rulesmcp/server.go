// Package rulesmcp exposes the rules engine to MCP clients so tools outside
// a live session can roll dice and resolve checks against a saved room.
package rulesmcp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/storyroom/internal/services/narrator/game"
	"github.com/louisbranch/storyroom/internal/services/narrator/rules"
	"github.com/louisbranch/storyroom/internal/services/narrator/storage"
)

const (
	serverName    = "storyroom rules"
	serverVersion = "0.1.0"
)

// Store is the persistence surface the rules tools read and write.
type Store interface {
	storage.TemplateStore
	storage.RoomStateStore
}

// Server hosts the rules MCP server.
type Server struct {
	mcpServer   *mcp.Server
	store       Store
	defaultRoom string

	// mu serializes load-mutate-save cycles and guards rng.
	mu  sync.Mutex
	rng rules.RNG
}

// New creates a server over store. defaultRoom is used when a tool call
// omits room_id.
func New(store Store, rng rules.RNG, defaultRoom string) (*Server, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if rng == nil {
		return nil, errors.New("rng is required")
	}
	s := &Server{
		mcpServer:   mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil),
		store:       store,
		defaultRoom: defaultRoom,
		rng:         rng,
	}
	mcp.AddTool(s.mcpServer, RollDiceTool(), s.rollDice)
	mcp.AddTool(s.mcpServer, AbilityCheckTool(), s.check(false))
	mcp.AddTool(s.mcpServer, SavingThrowTool(), s.check(true))
	mcp.AddTool(s.mcpServer, ApplyDamageTool(), s.applyDamage)
	mcp.AddTool(s.mcpServer, HealTool(), s.heal)
	return s, nil
}

// Serve runs the server over transport until the client disconnects or ctx
// ends.
func (s *Server) Serve(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

// withRoom loads the room into a fresh engine, runs fn and saves the state
// when fn reports a mutation.
func (s *Server) withRoom(ctx context.Context, roomID string, fn func(*rules.Engine) (bool, error)) error {
	if roomID == "" {
		roomID = s.defaultRoom
	}
	if roomID == "" {
		return errors.New("room_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.store.LoadRoomState(ctx, roomID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("room %q not found", roomID)
	}
	if err != nil {
		return fmt.Errorf("load room %s: %w", roomID, err)
	}
	engine := rules.NewEngine(s.rng, storage.TemplateSource{Store: s.store})
	engine.SyncCharacterStates(state.Characters)

	mutated, err := fn(engine)
	if err != nil {
		return err
	}
	if mutated {
		if err := s.store.SaveRoomState(ctx, state); err != nil {
			return fmt.Errorf("save room %s: %w", roomID, err)
		}
	}
	return nil
}

func parseAbility(value string) (game.Ability, error) {
	ability, ok := game.ParseAbility(value)
	if !ok {
		return "", fmt.Errorf("%w: %q", rules.ErrInvalidAbility, value)
	}
	return ability, nil
}
