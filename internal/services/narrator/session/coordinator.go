// Package session owns the per-room mode and turn gate and re-exposes each
// turn as one ordered event stream.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/louisbranch/storyroom/internal/platform/id"
	"github.com/louisbranch/storyroom/internal/services/narrator/event"
	"github.com/louisbranch/storyroom/internal/services/narrator/game"
	"github.com/louisbranch/storyroom/internal/services/narrator/mode"
	"github.com/louisbranch/storyroom/internal/services/narrator/turngate"
)

// ErrTurnInProgress reports a turn submitted while another is still running
// for the same room.
var ErrTurnInProgress = errors.New("turn already in progress")

// ModeFactory constructs a mode by name.
type ModeFactory func(name mode.Name, deps mode.Dependencies) (mode.State, error)

// StateSaver persists room state after a completed turn.
type StateSaver interface {
	SaveRoomState(ctx context.Context, state *game.GameState) error
}

// Coordinator runs turns for one room.
type Coordinator struct {
	state   *game.GameState
	deps    mode.Dependencies
	factory ModeFactory
	saver   StateSaver
	logger  *slog.Logger

	running atomic.Bool

	mu      sync.Mutex
	current mode.State
	gate    turngate.Gate
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithModeFactory overrides how modes are constructed.
func WithModeFactory(factory ModeFactory) Option {
	return func(c *Coordinator) {
		if factory != nil {
			c.factory = factory
		}
	}
}

// WithStateSaver persists state after every turn that reaches TurnEnd.
func WithStateSaver(saver StateSaver) Option {
	return func(c *Coordinator) {
		c.saver = saver
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCoordinator starts the room in exploration mode behind an AllPlayers
// gate.
func NewCoordinator(ctx context.Context, state *game.GameState, deps mode.Dependencies, opts ...Option) (*Coordinator, error) {
	if state == nil {
		return nil, errors.New("game state is required")
	}
	c := &Coordinator{
		state:   state,
		deps:    deps,
		factory: mode.New,
		logger:  slog.Default(),
		gate:    turngate.NewAllPlayers(),
	}
	for _, opt := range opts {
		opt(c)
	}
	current, err := c.factory(mode.Exploration, deps)
	if err != nil {
		return nil, fmt.Errorf("start exploration: %w", err)
	}
	if err := current.Enter(ctx); err != nil {
		return nil, fmt.Errorf("enter %s: %w", current.Name(), err)
	}
	c.current = current
	return c, nil
}

// RoomID returns the room this coordinator serves.
func (c *Coordinator) RoomID() string {
	return c.state.RoomID
}

// State returns the room's game state.
func (c *Coordinator) State() *game.GameState {
	return c.state
}

// Mode returns the name of the current mode.
func (c *Coordinator) Mode() mode.Name {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Name()
}

// CanAct delegates to the current gate.
func (c *Coordinator) CanAct(userID, characterID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate.CanAct(userID, characterID)
}

// CanAdvance delegates to the current gate.
func (c *Coordinator) CanAdvance(actions []game.PlayerAction, totalMembers int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate.CanAdvance(actions, totalMembers)
}

// GateStatus returns the current gate's status.
func (c *Coordinator) GateStatus() turngate.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate.Status()
}

// Turn is a turn in flight. Events is closed when the turn finishes; Err is
// valid once Events is closed.
type Turn struct {
	events chan event.Event
	cancel context.CancelFunc
	err    error
}

// Events returns the ordered stream of the turn.
func (t *Turn) Events() <-chan event.Event {
	return t.events
}

// Err returns the turn's terminal error, if any.
func (t *Turn) Err() error {
	return t.err
}

// Close stops the turn. A consumer that stops reading Events must call it;
// calling it after the turn has finished is a no-op.
func (t *Turn) Close() {
	t.cancel()
}

// ProcessTurn runs a turn on its own goroutine and streams its events through
// an unbuffered channel. Canceling ctx or calling Close stops the turn.
func (c *Coordinator) ProcessTurn(ctx context.Context, actions []game.PlayerAction) *Turn {
	ctx, cancel := context.WithCancel(ctx)
	t := &Turn{events: make(chan event.Event), cancel: cancel}
	go func() {
		defer close(t.events)
		defer cancel()
		t.err = c.Run(ctx, actions, func(e event.Event) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			select {
			case t.events <- e:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	return t
}

// Run processes one turn synchronously, passing every event to yield in
// order. Mode transitions and action restrictions are applied after the event
// has been yielded.
func (c *Coordinator) Run(ctx context.Context, actions []game.PlayerAction, yield event.Emitter) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrTurnInProgress
	}
	defer c.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	turnID, err := id.NewID()
	if err != nil {
		return fmt.Errorf("turn id: %w", err)
	}
	logger := c.logger.With("room_id", c.state.RoomID, "turn_id", turnID)

	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	var fatal error
	ended := false
	emit := func(e event.Event) error {
		if err := yield(e); err != nil {
			return err
		}
		if _, ok := e.(event.TurnEnd); ok {
			ended = true
		}
		if err := c.observe(ctx, e); err != nil {
			fatal = err
			cancel()
			return err
		}
		return nil
	}

	err = current.ProcessActions(ctx, actions, mode.TurnContext{TurnID: turnID, State: c.state}, emit)
	if fatal != nil {
		logger.Error("turn aborted", "error", fatal)
		return fatal
	}
	if err != nil {
		return err
	}
	if ended && c.saver != nil {
		if err := c.saver.SaveRoomState(ctx, c.state); err != nil {
			return fmt.Errorf("save room state: %w", err)
		}
	}
	return nil
}

func (c *Coordinator) observe(ctx context.Context, e event.Event) error {
	switch e := e.(type) {
	case event.ModeTransition:
		return c.transition(ctx, mode.Name(e.Mode))
	case event.ActionRestriction:
		c.mu.Lock()
		defer c.mu.Unlock()
		if len(e.CharacterIDs) == 0 {
			c.gate = turngate.NewAllPlayers()
			return nil
		}
		c.gate = turngate.NewRestricted(e.CharacterIDs, e.Reason)
	}
	return nil
}

// transition exits the current mode, constructs the target and enters it
// behind a fresh AllPlayers gate.
func (c *Coordinator) transition(ctx context.Context, target mode.Name) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.current.Exit(ctx); err != nil {
		return fmt.Errorf("exit %s: %w", c.current.Name(), err)
	}
	next, err := c.factory(target, c.deps)
	if err != nil {
		return err
	}
	c.gate = turngate.NewAllPlayers()
	if err := next.Enter(ctx); err != nil {
		return mode.Fatal(fmt.Errorf("enter %s: %w", target, err))
	}
	c.current = next
	c.logger.Info("mode changed", "room_id", c.state.RoomID, "mode", target)
	return nil
}
